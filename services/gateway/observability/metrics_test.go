// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(rateLimitDenials)
	RecordRateLimitDenial()
	if got := testutil.ToFloat64(rateLimitDenials); got != before+1 {
		t.Errorf("denials = %v, want %v", got, before+1)
	}

	beforeBytes := testutil.ToFloat64(uploadBytes)
	RecordUploadFinalized(512)
	if got := testutil.ToFloat64(uploadBytes); got != beforeBytes+512 {
		t.Errorf("upload bytes = %v, want %v", got, beforeBytes+512)
	}

	beforeReq := testutil.ToFloat64(requestsTotal.WithLabelValues("/v1/chat", "2xx"))
	RecordRequest("/v1/chat", "2xx")
	if got := testutil.ToFloat64(requestsTotal.WithLabelValues("/v1/chat", "2xx")); got != beforeReq+1 {
		t.Errorf("requests = %v, want %v", got, beforeReq+1)
	}

	RecordDelta()
	RecordStream("completed", 1.5)
	RecordUploadSession("aborted")
}
