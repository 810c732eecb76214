// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"strings"
)

// ScrubPlaceholder replaces owner-rooted path prefixes in model output.
// Paths like "<ownerID>/reports/q1.pdf" leak the storage namespace, which
// doubles as the user's identity at the provider.
const ScrubPlaceholder = "files"

// Scrub removes a caller's identity string from model-generated text.
//
// # Description
//
// Owner-rooted paths ("<ownerID>/...") keep their shape with the root
// swapped for ScrubPlaceholder, so download links in the text stay readable.
// Any remaining bare occurrence of the identity is dropped outright. Pure
// and total: empty inputs and texts without the identity pass through
// unchanged.
func Scrub(text, ownerID string) string {
	if ownerID == "" || !strings.Contains(text, ownerID) {
		return text
	}
	text = strings.ReplaceAll(text, ownerID+"/", ScrubPlaceholder+"/")
	return strings.ReplaceAll(text, ownerID, "")
}
