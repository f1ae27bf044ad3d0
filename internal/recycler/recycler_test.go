package recycler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snipersonu/ytstreamm1/internal/stream"
)

type fakeController struct {
	restarts  atomic.Int64
	streaming bool
}

func (f *fakeController) Restart(ctx context.Context) error {
	f.restarts.Add(1)
	return nil
}

func (f *fakeController) Snapshot() stream.Status {
	if f.streaming {
		return stream.Status{IsStreaming: true, State: stream.StateLive}
	}
	return stream.Status{State: stream.StateOffline}
}

func TestNewRejectsInvalidRule(t *testing.T) {
	if _, err := New("FREQ=SOMETIMES", &fakeController{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for invalid rule")
	}
	if _, err := New("", &fakeController{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for empty rule")
	}
}

func TestPlannedRestartSkipsOffline(t *testing.T) {
	ctrl := &fakeController{streaming: false}
	svc, err := New("FREQ=DAILY", ctrl, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	svc.runPlannedRestart(context.Background())

	if got := ctrl.restarts.Load(); got != 0 {
		t.Errorf("restarts = %d, want 0 for an offline stream", got)
	}
}

func TestPlannedRestartRunsWhenLive(t *testing.T) {
	ctrl := &fakeController{streaming: true}
	svc, err := New("FREQ=DAILY", ctrl, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	svc.runPlannedRestart(context.Background())

	if got := ctrl.restarts.Load(); got != 1 {
		t.Errorf("restarts = %d, want 1", got)
	}
}

func TestScheduleFiresOnSecondlyRule(t *testing.T) {
	ctrl := &fakeController{streaming: true}
	svc, err := New("FREQ=SECONDLY", ctrl, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for ctrl.restarts.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no planned restart fired within 5s on a secondly rule")
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}
