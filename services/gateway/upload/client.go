// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Prgm-code/index0/services/gateway/datatypes"
)

// PutParts uploads every chunk of a file through its presigned URLs.
//
// # Description
//
// Each part is PUT concurrently; the store bounds effective parallelism
// through its own backpressure so no explicit cap is applied. Any failed
// part cancels the rest and fails the whole upload; partial progress is
// discarded and the caller aborts or retries the session from scratch.
//
// # Inputs
//
//   - body: the file content, read positionally so parts can be sent in
//     parallel without shared cursor state
//   - totalSize: declared size; must match the session geometry
//   - urls: part number (1-based) to presigned PUT URL
//
// # Outputs
//
//   - []datatypes.PartResult: one entry per part, sorted by part number
//   - error: wraps datatypes.ErrTransport on any network failure, non-2xx
//     response, or missing ETag
func PutParts(ctx context.Context, client *http.Client, body io.ReaderAt, totalSize int64, urls map[int]string) ([]datatypes.PartResult, error) {
	if client == nil {
		client = http.DefaultClient
	}
	wantParts := datatypes.PartCountFor(totalSize)
	if len(urls) != wantParts {
		return nil, fmt.Errorf("got %d part URLs for %d parts", len(urls), wantParts)
	}

	results := make([]datatypes.PartResult, wantParts)
	g, ctx := errgroup.WithContext(ctx)

	for part := 1; part <= wantParts; part++ {
		part := part
		g.Go(func() error {
			etag, err := putPart(ctx, client, body, part, totalSize, urls[part])
			if err != nil {
				return err
			}
			results[part-1] = datatypes.PartResult{PartNumber: part, ETag: etag}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].PartNumber < results[j].PartNumber
	})
	return results, nil
}

func putPart(ctx context.Context, client *http.Client, body io.ReaderAt, part int, totalSize int64, url string) (string, error) {
	start, end := datatypes.PartRange(part, totalSize)
	section := io.NewSectionReader(body, start, end-start)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, section)
	if err != nil {
		return "", fmt.Errorf("build part %d request: %w", part, err)
	}
	req.ContentLength = end - start

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: put part %d: %v", datatypes.ErrTransport, part, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: part %d returned status %d", datatypes.ErrTransport, part, resp.StatusCode)
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		return "", fmt.Errorf("%w: part %d response has no ETag", datatypes.ErrTransport, part)
	}
	return etag, nil
}
