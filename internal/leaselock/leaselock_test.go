package leaselock

import (
	"context"
	"strings"
	"testing"
)

func TestLocalGuardSerializes(t *testing.T) {
	guard := NewLocalGuard()
	ctx := context.Background()

	release, err := guard.Acquire(ctx, "live_abc123xyz")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	if _, err := guard.Acquire(ctx, "live_abc123xyz"); err == nil {
		t.Fatal("second acquire of the same credential should fail")
	}

	// A different credential is independent.
	otherRelease, err := guard.Acquire(ctx, "live_other456")
	if err != nil {
		t.Fatalf("acquire of a different credential failed: %v", err)
	}
	otherRelease()

	release()

	// After release the credential is available again.
	release2, err := guard.Acquire(ctx, "live_abc123xyz")
	if err != nil {
		t.Fatalf("reacquire after release failed: %v", err)
	}
	release2()
}

func TestLocalGuardReleaseIdempotent(t *testing.T) {
	guard := NewLocalGuard()
	ctx := context.Background()

	release, err := guard.Acquire(ctx, "live_abc123xyz")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	release()
	release() // must not panic or double-free

	releaseAgain, err := guard.Acquire(ctx, "live_abc123xyz")
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	releaseAgain()
}

func TestSinkKeyHidesCredential(t *testing.T) {
	key := sinkKey("live_secret_stream_key")

	if !strings.HasPrefix(key, keyPrefix) {
		t.Errorf("key %q missing prefix %q", key, keyPrefix)
	}
	if strings.Contains(key, "secret") {
		t.Errorf("key %q leaks the credential", key)
	}
	if key != sinkKey("live_secret_stream_key") {
		t.Error("same credential should map to the same key")
	}
	if key == sinkKey("live_different_key") {
		t.Error("different credentials should map to different keys")
	}
}
