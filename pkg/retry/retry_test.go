package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, Delay: time.Millisecond}, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, Delay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoReturnsLastErrorAfterExhaustingAttempts(t *testing.T) {
	calls := 0
	want := errors.New("permanent")
	err := Do(context.Background(), Config{MaxAttempts: 3, Delay: time.Millisecond}, func() error {
		calls++
		return want
	})
	if err != want {
		t.Errorf("Do() error = %v, want %v", err, want)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (exhausted)", calls)
	}
}

func TestDoStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, Config{MaxAttempts: 5, Delay: time.Second}, func() error {
		calls++
		return errors.New("fail")
	})
	if err != context.Canceled {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0 (cancelled before first attempt)", calls)
	}
}

func TestDownloadQueueConfigMatchesRetryPolicy(t *testing.T) {
	cfg := DownloadQueueConfig()
	if cfg.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want 4 (3 retries)", cfg.MaxAttempts)
	}
	if cfg.Delay != 2*time.Second || cfg.MaxDelay != 8*time.Second {
		t.Errorf("Delay/MaxDelay = %v/%v, want 2s/8s", cfg.Delay, cfg.MaxDelay)
	}
}
