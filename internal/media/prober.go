/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// probeTimeout bounds a single reachability check.
const probeTimeout = 10 * time.Second

// ProbeURL checks that a remote source answers before a stream run starts.
// Schemes ffmpeg handles natively but HTTP cannot probe (rtmp, rtsp) are
// skipped; the pipeline surfaces those failures itself.
func (s *Service) ProbeURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}

	client := &http.Client{
		Timeout: probeTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Allow up to 3 redirects
			if len(via) >= 3 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	if err := probeRequest(ctx, client, http.MethodHead, rawURL); err == nil {
		return nil
	}
	// Many media servers reject HEAD; retry with a one-byte ranged GET.
	return probeRequest(ctx, client, http.MethodGet, rawURL)
}

func probeRequest(ctx context.Context, client *http.Client, method, rawURL string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "ytstream/1.0")
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return nil
}
