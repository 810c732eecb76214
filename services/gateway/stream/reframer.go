// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream reframes the upstream RAG relay's chunked event stream
// into a clean incremental text stream.
//
// The relay speaks two framings on the same connection: SSE-style
// "data: {json}" events whose "response" field carries the current full
// answer, and a numbered "N:payload" tagged-line protocol whose tag 0
// carries text. Chunk boundaries fall anywhere, including mid-rune, so the
// Reframer reassembles lines across chunks before classifying them.
//
// Emission uses replace semantics: each delivered string is the new full
// answer text, not an append fragment, and a value identical to the last
// delivered one is suppressed.
package stream

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ErrorFrameText is the single terminal frame emitted when the upstream
// fails. Callers see it on the normal text stream, not a side channel.
const ErrorFrameText = "could not process the query"

// doneSentinel ends a stream early. Arrives bare or as a data: payload.
const doneSentinel = "[DONE]"

// maxLineRequeues bounds how many times an unparsable data: line is put
// back at the head of the buffer to be rejoined with later bytes. Without
// a bound a poison line would grow the buffer for the whole stream.
const maxLineRequeues = 2

var taggedLineRe = regexp.MustCompile(`^(\d+):(.*)$`)

// EmitFunc receives each new full response text.
type EmitFunc func(text string)

// Reframer reassembles and reframes one upstream stream.
//
// # Thread Safety
//
// Not safe for concurrent use. Every request constructs its own Reframer;
// buffer state is never shared across requests.
type Reframer struct {
	ownerID string
	emit    EmitFunc

	pending  string // line buffer: bytes after the last newline
	partial  []byte // trailing incomplete UTF-8 rune from the last chunk
	last     string // last emitted value, for duplicate suppression
	requeues int
	done     bool
}

// NewReframer builds a reframer for one request. ownerID is scrubbed from
// every emitted value; emit must be non-nil.
func NewReframer(ownerID string, emit EmitFunc) *Reframer {
	return &Reframer{ownerID: ownerID, emit: emit}
}

// Feed consumes one raw chunk from the response body.
//
// Bytes that do not end on a rune boundary are held for the next chunk;
// bytes after the last newline stay buffered. Calling Feed after the done
// sentinel is a no-op.
func (r *Reframer) Feed(chunk []byte) {
	if r.done || len(chunk) == 0 {
		return
	}

	buf := chunk
	if len(r.partial) > 0 {
		buf = append(r.partial, chunk...)
	}
	complete, rest := splitCompleteUTF8(buf)
	r.partial = append([]byte(nil), rest...)
	r.pending += string(complete)

	for !r.done {
		idx := strings.IndexByte(r.pending, '\n')
		if idx < 0 {
			return
		}
		line := r.pending[:idx]
		r.pending = r.pending[idx+1:]
		r.processLine(line)
	}
}

// Done reports whether the stream's sentinel has been seen.
func (r *Reframer) Done() bool {
	return r.done
}

// Finish marks end-of-body. Whatever is left in the buffer at that point
// never became a parsable line; it is discarded without error.
func (r *Reframer) Finish() {
	r.pending = ""
	r.partial = nil
	r.done = true
}

// Last returns the most recently emitted value.
func (r *Reframer) Last() string {
	return r.last
}

type lineKind int

const (
	lineJSONEvent lineKind = iota
	lineTagged
	lineSentinel
	lineUnrecognized
)

func classifyLine(line string) lineKind {
	switch {
	case line == doneSentinel:
		return lineSentinel
	case strings.HasPrefix(line, "data: "):
		return lineJSONEvent
	case taggedLineRe.MatchString(line):
		return lineTagged
	default:
		return lineUnrecognized
	}
}

func (r *Reframer) processLine(raw string) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}

	switch classifyLine(line) {
	case lineSentinel:
		r.done = true
	case lineJSONEvent:
		r.processJSONEvent(line)
	case lineTagged:
		r.processTaggedLine(line)
	case lineUnrecognized:
		// Comment lines, retry hints, anything the relay invents next.
	}
}

// processJSONEvent handles one "data: {...}" line.
//
// A payload that fails to parse is usually a record the relay split across
// a flush boundary, so it goes back to the head of the buffer to be
// rejoined with the next bytes. The retry budget keeps a genuinely broken
// line from poisoning the rest of the stream: once spent, the line is
// dropped and parsing state resets.
func (r *Reframer) processJSONEvent(line string) {
	payload := strings.TrimPrefix(line, "data: ")
	if strings.TrimSpace(payload) == doneSentinel {
		r.done = true
		return
	}

	var event struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		if r.requeues < maxLineRequeues {
			r.requeues++
			r.pending = line + r.pending
		} else {
			r.requeues = 0
		}
		return
	}
	r.requeues = 0

	if event.Response == "" {
		return
	}
	r.deliver(normalizeText(event.Response))
}

// processTaggedLine handles the "N:payload" relay protocol. Only tag 0
// carries text; other tags are tool-call and bookkeeping frames the
// gateway has no use for.
func (r *Reframer) processTaggedLine(line string) {
	m := taggedLineRe.FindStringSubmatch(line)
	if m[1] != "0" {
		return
	}
	text := normalizeText(m[2])
	if text == "" {
		return
	}
	r.deliver(text)
}

// deliver scrubs and emits a new full response value, suppressing
// consecutive duplicates.
func (r *Reframer) deliver(text string) {
	text = Scrub(text, r.ownerID)
	if text == r.last {
		return
	}
	r.last = text
	r.emit(text)
}
