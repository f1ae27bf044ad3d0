/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package health

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snipersonu/ytstreamm1/internal/events"
	"github.com/snipersonu/ytstreamm1/internal/stream"
)

type fakeSource struct {
	mu     sync.Mutex
	status stream.Status
	grades []stream.Health
}

func (f *fakeSource) Snapshot() stream.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSource) SetHealth(h stream.Health) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grades = append(f.grades, h)
}

func (f *fakeSource) set(st stream.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = st
}

func (f *fakeSource) lastGrade() (stream.Health, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.grades) == 0 {
		return "", false
	}
	return f.grades[len(f.grades)-1], true
}

type capturePublisher struct {
	mu       sync.Mutex
	captured []events.EventType
	payloads []events.Payload
}

func (c *capturePublisher) Publish(evt events.EventType, payload events.Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captured = append(c.captured, evt)
	c.payloads = append(c.payloads, payload)
}

func (c *capturePublisher) count(evt events.EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.captured {
		if e == evt {
			n++
		}
	}
	return n
}

func newTestSampler(source *fakeSource, pub *capturePublisher, ringSize int) *Sampler {
	s := NewSampler(source, nil, pub, Options{RingSize: ringSize}, zerolog.Nop())
	s.rng = rand.New(rand.NewSource(42))
	return s
}

func streamingStatus(errors, restarts int64) stream.Status {
	return stream.Status{
		IsStreaming: true,
		State:       stream.StateLive,
		Bitrate:     2500,
		FPS:         30,
		Errors:      errors,
		Restarts:    restarts,
		Uptime:      120,
	}
}

func TestScoreStaysInBounds(t *testing.T) {
	source := &fakeSource{}
	s := newTestSampler(source, &capturePublisher{}, 10)

	for _, errs := range []int64{0, 3, 10, 50, 500} {
		got := s.score(streamingStatus(errs, 2))
		if got < 0 || got > 100 {
			t.Fatalf("score(%d errors) = %d, outside [0,100]", errs, got)
		}
	}
}

func TestScoreDeductsForErrors(t *testing.T) {
	source := &fakeSource{}
	clean := newTestSampler(source, &capturePublisher{}, 10)
	dirty := newTestSampler(source, &capturePublisher{}, 10)

	// Same seed, so the jitter sequences match and the deduction is the
	// only difference.
	if c, d := clean.score(streamingStatus(0, 0)), dirty.score(streamingStatus(8, 0)); d >= c {
		t.Fatalf("score with 8 errors (%d) not below clean score (%d)", d, c)
	}
}

func TestGradeMapping(t *testing.T) {
	cases := []struct {
		score int
		want  stream.Health
	}{
		{95, stream.HealthExcellent},
		{90, stream.HealthExcellent},
		{80, stream.HealthGood},
		{60, stream.HealthFair},
		{49, stream.HealthPoor},
		{0, stream.HealthPoor},
	}
	for _, tc := range cases {
		if got := gradeFor(tc.score); got != tc.want {
			t.Fatalf("gradeFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestSampleFeedsSupervisorGrade(t *testing.T) {
	source := &fakeSource{}
	source.set(streamingStatus(0, 0))
	s := newTestSampler(source, &capturePublisher{}, 10)

	s.sample(context.Background())

	grade, ok := source.lastGrade()
	if !ok {
		t.Fatal("sampler never graded the stream")
	}
	// Clean counters leave at least 95 points even at worst jitter.
	if grade != stream.HealthExcellent {
		t.Fatalf("clean stream graded %s", grade)
	}
	if s.LastScore() < 90 {
		t.Fatalf("clean stream scored %d", s.LastScore())
	}
}

func TestSampleSkipsWhileOffline(t *testing.T) {
	source := &fakeSource{}
	source.set(stream.Status{IsStreaming: false, State: stream.StateOffline})
	pub := &capturePublisher{}
	s := newTestSampler(source, pub, 10)

	s.sample(context.Background())

	if _, ok := source.lastGrade(); ok {
		t.Fatal("sampler graded an offline stream")
	}
	if s.LastScore() != 0 {
		t.Fatalf("offline score = %d, want 0", s.LastScore())
	}
	if pub.count(events.EventHealthAlert) != 0 {
		t.Fatal("alert raised while offline")
	}
}

func TestAlertFiresOncePerEpisode(t *testing.T) {
	source := &fakeSource{}
	pub := &capturePublisher{}
	s := newTestSampler(source, pub, 10)
	ctx := context.Background()

	// Breach: error count over the ceiling keeps the condition true for
	// several consecutive samples.
	source.set(streamingStatus(20, 0))
	s.sample(ctx)
	s.sample(ctx)
	s.sample(ctx)

	if got := pub.count(events.EventHealthAlert); got != 1 {
		t.Fatalf("breach episode raised %d alerts, want 1", got)
	}

	// Clear the condition, then breach again: a fresh episode.
	source.set(streamingStatus(0, 0))
	s.sample(ctx)
	source.set(streamingStatus(20, 0))
	s.sample(ctx)

	if got := pub.count(events.EventHealthAlert); got != 2 {
		t.Fatalf("second episode raised %d alerts total, want 2", got)
	}
	if len(s.Alerts()) != 2 {
		t.Fatalf("ring holds %d alerts, want 2", len(s.Alerts()))
	}
}

func TestOfflineEndsEpisode(t *testing.T) {
	source := &fakeSource{}
	pub := &capturePublisher{}
	s := newTestSampler(source, pub, 10)
	ctx := context.Background()

	source.set(streamingStatus(20, 0))
	s.sample(ctx)
	source.set(stream.Status{IsStreaming: false})
	s.sample(ctx)
	source.set(streamingStatus(20, 0))
	s.sample(ctx)

	if got := pub.count(events.EventHealthAlert); got != 2 {
		t.Fatalf("offline gap should reset the episode: %d alerts, want 2", got)
	}
}

func TestAlertRingKeepsMostRecent(t *testing.T) {
	r := newAlertRing(3)
	for i := 0; i < 5; i++ {
		r.add(Alert{ID: fmt.Sprintf("a%d", i), RaisedAt: time.Now()})
	}
	got := r.list()
	if len(got) != 3 {
		t.Fatalf("ring length = %d, want 3", len(got))
	}
	if got[0].ID != "a2" || got[2].ID != "a4" {
		t.Fatalf("ring kept wrong window: %s..%s", got[0].ID, got[2].ID)
	}
}

func TestAcknowledgeFlipsFlagOnly(t *testing.T) {
	source := &fakeSource{}
	pub := &capturePublisher{}
	s := newTestSampler(source, pub, 10)

	source.set(streamingStatus(20, 0))
	s.sample(context.Background())

	alerts := s.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if !s.Acknowledge(alerts[0].ID) {
		t.Fatal("acknowledge reported not found")
	}
	if got := s.Alerts(); !got[0].Acknowledged {
		t.Fatal("flag not flipped")
	}
	if len(s.Alerts()) != 1 {
		t.Fatal("acknowledge must not drop the alert")
	}
	if s.Acknowledge("missing") {
		t.Fatal("unknown id acknowledged")
	}
}

func TestAnalyticsPublishesWhileStreaming(t *testing.T) {
	source := &fakeSource{}
	pub := &capturePublisher{}
	s := newTestSampler(source, pub, 10)
	ctx := context.Background()

	source.set(stream.Status{IsStreaming: false})
	s.captureAnalytics(ctx, time.Now())
	if pub.count(events.EventHealthAnalytics) != 0 {
		t.Fatal("analytics published while offline")
	}

	source.set(streamingStatus(1, 0))
	s.sample(ctx)
	s.captureAnalytics(ctx, time.Now())
	if pub.count(events.EventHealthAnalytics) != 1 {
		t.Fatal("no analytics snapshot published")
	}
}
