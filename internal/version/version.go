/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version exposes the build version and a background checker
// that polls GitHub for newer releases.
package version

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Version is set at build time via ldflags:
//
//	-X github.com/snipersonu/ytstreamm1/internal/version.Version=X.Y.Z
var Version = "1.4.0"

const releasesURL = "https://api.github.com/repos/snipersonu/ytstreamm1/releases/latest"

// UpdateInfo is a snapshot of the last release poll.
type UpdateInfo struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	ReleaseURL      string
}

// Checker polls the releases endpoint every few hours and remembers
// whether a newer tag exists.
type Checker struct {
	mu     sync.RWMutex
	info   UpdateInfo
	logger zerolog.Logger
	period time.Duration
	url    string
	client *http.Client
	cancel context.CancelFunc
}

func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		logger: logger.With().Str("component", "update-checker").Logger(),
		period: 6 * time.Hour,
		url:    releasesURL,
		client: &http.Client{Timeout: 10 * time.Second},
		info:   UpdateInfo{CurrentVersion: Version},
	}
}

// Start checks once immediately, then on every tick until the context
// ends or Stop is called.
func (c *Checker) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.check(ctx)
	go func() {
		ticker := time.NewTicker(c.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.check(ctx)
			}
		}
	}()
}

func (c *Checker) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Info returns the result of the most recent poll.
func (c *Checker) Info() UpdateInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

func (c *Checker) check(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		c.logger.Debug().Err(err).Msg("failed to create request")
		return
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "YTStream/"+Version)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Msg("failed to fetch releases")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug().Int("status", resp.StatusCode).Msg("unexpected status from GitHub")
		return
	}

	var release struct {
		TagName string `json:"tag_name"`
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		c.logger.Debug().Err(err).Msg("failed to decode release")
		return
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	info := UpdateInfo{
		CurrentVersion:  Version,
		LatestVersion:   latest,
		UpdateAvailable: semverLess(Version, latest),
		ReleaseURL:      release.HTMLURL,
	}

	c.mu.Lock()
	c.info = info
	c.mu.Unlock()

	if info.UpdateAvailable {
		c.logger.Info().
			Str("current", Version).
			Str("latest", latest).
			Str("url", release.HTMLURL).
			Msg("new version available")
	}
}

// semverLess reports whether version a sorts before b, comparing
// major.minor.patch numerically.
func semverLess(a, b string) bool {
	av := splitVersion(a)
	bv := splitVersion(b)
	for i := 0; i < 3; i++ {
		if av[i] != bv[i] {
			return av[i] < bv[i]
		}
	}
	return false
}

func splitVersion(v string) [3]int {
	parts := strings.Split(strings.TrimPrefix(v, "v"), ".")
	var out [3]int
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			break
		}
		out[i] = n
	}
	return out
}
