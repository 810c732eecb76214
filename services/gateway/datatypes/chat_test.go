// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"strings"
	"testing"
)

func TestChatRequest_Validate(t *testing.T) {
	t.Parallel()

	valid := ChatRequest{
		Query:   "what does the Q1 report say about churn?",
		Folders: []string{"reports"},
		History: []ChatTurn{
			{Role: "user", Content: "hola"},
			{Role: "assistant", Content: "hola, ¿en qué puedo ayudarte?"},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}

	empty := ChatRequest{}
	if err := empty.Validate(); err == nil {
		t.Error("empty query should fail validation")
	}

	badRole := ChatRequest{
		Query:   "q",
		History: []ChatTurn{{Role: "system", Content: "x"}},
	}
	if err := badRole.Validate(); err == nil {
		t.Error("history turn with role=system should fail validation")
	}
}

func TestChatRequest_QueryByteLimit(t *testing.T) {
	t.Parallel()

	atLimit := ChatRequest{Query: strings.Repeat("a", MaxQueryBytes)}
	if err := atLimit.Validate(); err != nil {
		t.Errorf("query at byte limit rejected: %v", err)
	}

	overLimit := ChatRequest{Query: strings.Repeat("a", MaxQueryBytes+1)}
	if err := overLimit.Validate(); err == nil {
		t.Error("query over byte limit should fail validation")
	}

	// Multibyte content counts bytes, not runes.
	multibyte := ChatRequest{Query: strings.Repeat("ñ", MaxQueryBytes/2+1)}
	if err := multibyte.Validate(); err == nil {
		t.Error("multibyte query over byte limit should fail validation")
	}
}
