// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// The upstream relay emits Spanish accented characters inconsistently: the
// same character arrives as an HTML named entity, a backslash-u escape, or
// Latin-1 mojibake (UTF-8 bytes decoded as Latin-1 somewhere upstream).
// accentReplacer folds all three encodings back to literal UTF-8.
var accentReplacer = strings.NewReplacer(
	// Named entities.
	"&aacute;", "á",
	"&eacute;", "é",
	"&iacute;", "í",
	"&oacute;", "ó",
	"&uacute;", "ú",
	"&ntilde;", "ñ",
	"&Aacute;", "Á",
	"&Eacute;", "É",
	"&Iacute;", "Í",
	"&Oacute;", "Ó",
	"&Uacute;", "Ú",
	"&Ntilde;", "Ñ",
	// Backslash-u escapes that survived JSON decoding.
	`\u00e1`, "á",
	`\u00e9`, "é",
	`\u00ed`, "í",
	`\u00f3`, "ó",
	`\u00fa`, "ú",
	`\u00f1`, "ñ",
	`\u00c1`, "Á",
	`\u00c9`, "É",
	`\u00cd`, "Í",
	`\u00d3`, "Ó",
	`\u00da`, "Ú",
	`\u00d1`, "Ñ",
	// Latin-1 mojibake.
	"Ã¡", "á",
	"Ã©", "é",
	"Ã­", "í",
	"Ã³", "ó",
	"Ãº", "ú",
	"Ã±", "ñ",
	"Ã\x81", "Á",
	"Ã\x89", "É",
	"Ã\x8d", "Í",
	"Ã\x93", "Ó",
	"Ã\x9a", "Ú",
	"Ã\x91", "Ñ",
)

// escapeReplacer undoes the JSON-style escapes the tagged-line protocol
// leaves in its payloads.
var escapeReplacer = strings.NewReplacer(
	`\"`, `"`,
	`\\`, `\`,
	`\n`, "\n",
	`\r`, "\r",
)

// normalizeText cleans one text payload: strip a wrapping JSON quote pair,
// undo payload escapes, fold accent encodings, and NFC-normalize.
func normalizeText(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	s = escapeReplacer.Replace(s)
	s = accentReplacer.Replace(s)
	return norm.NFC.String(s)
}

// splitCompleteUTF8 splits b into a prefix of whole UTF-8 sequences and a
// trailing fragment of an incomplete rune, if any. The fragment is at most
// three bytes; callers hold it and prepend it to the next chunk, giving
// non-fatal streaming decode semantics.
func splitCompleteUTF8(b []byte) (complete, rest []byte) {
	if len(b) == 0 {
		return b, nil
	}
	// Walk back over up to three continuation bytes to find the last rune
	// start, then check whether that rune is fully present.
	i := len(b) - 1
	for back := 0; back < 3 && i >= 0 && b[i]&0xC0 == 0x80; back++ {
		i--
	}
	if i < 0 || b[i] < 0x80 {
		return b, nil
	}

	var runeLen int
	switch {
	case b[i]&0xE0 == 0xC0:
		runeLen = 2
	case b[i]&0xF0 == 0xE0:
		runeLen = 3
	case b[i]&0xF8 == 0xF0:
		runeLen = 4
	default:
		// Stray continuation or invalid byte; let the decoder downstream
		// handle it rather than buffering forever.
		return b, nil
	}
	if len(b)-i >= runeLen {
		return b, nil
	}
	return b[:i], b[i:]
}
