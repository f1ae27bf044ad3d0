package eventbus

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snipersonu/ytstreamm1/internal/events"
)

func TestBreakerPausesAfterThreshold(t *testing.T) {
	r := &RedisRelay{
		logger:     zerolog.Nop(),
		maxFails:   3,
		checkEvery: time.Minute,
	}
	failure := errors.New("connection refused")

	if !r.allowPublish() {
		t.Fatal("breaker should start closed")
	}

	r.notePublish(failure)
	r.notePublish(failure)
	if !r.allowPublish() {
		t.Fatal("breaker should stay closed below the threshold")
	}

	r.notePublish(failure)
	if r.allowPublish() {
		t.Fatal("breaker should pause publishing after the threshold")
	}
}

func TestBreakerProbesAfterInterval(t *testing.T) {
	r := &RedisRelay{
		logger:     zerolog.Nop(),
		maxFails:   1,
		checkEvery: 50 * time.Millisecond,
	}

	r.notePublish(errors.New("connection refused"))
	if r.allowPublish() {
		t.Fatal("breaker should be paused")
	}

	time.Sleep(60 * time.Millisecond)
	if !r.allowPublish() {
		t.Fatal("breaker should let one probe through after the interval")
	}
	// The probe consumed the window; the next attempt waits again.
	if r.allowPublish() {
		t.Fatal("second attempt inside the window should be blocked")
	}
}

func TestBreakerResumesOnSuccess(t *testing.T) {
	r := &RedisRelay{
		logger:     zerolog.Nop(),
		maxFails:   1,
		checkEvery: time.Minute,
	}

	r.notePublish(errors.New("connection refused"))
	if r.allowPublish() {
		t.Fatal("breaker should be paused")
	}

	r.notePublish(nil)
	if !r.allowPublish() {
		t.Fatal("a successful publish should resume mirroring")
	}
	if r.failCount != 0 {
		t.Errorf("failCount = %d after success, want 0", r.failCount)
	}
}

func TestSubjectFor(t *testing.T) {
	if got := subjectFor(events.EventStreamStarted); got != "ytstream.events.stream.started" {
		t.Errorf("subjectFor = %q", got)
	}
	if got := subjectFor(events.EventHealthAlert); got != "ytstream.events.health.alert" {
		t.Errorf("subjectFor = %q", got)
	}
}
