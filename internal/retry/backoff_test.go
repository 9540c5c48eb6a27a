package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hpungsan/salon/internal/errors"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries=3, got %d", config.MaxRetries)
	}
	if config.Multiplier != 2.0 {
		t.Errorf("Expected Multiplier=2.0, got %f", config.Multiplier)
	}
	if !config.Jitter {
		t.Error("Expected Jitter=true")
	}
	if got := config.WithMaxRetries(-1).MaxRetries; got != 0 {
		t.Errorf("WithMaxRetries(-1) = %d, want 0", got)
	}
}

func TestDo_SucceedsAfterStorageErrors(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig(), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.NewStorageIO(fmt.Errorf("database is locked"))
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got != 42 {
		t.Errorf("result = %d, want 42", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_DoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(), func(ctx context.Context) (string, error) {
		calls++
		return "", errors.NewNotFound("capsule", "x")
	})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.NewStorageIO(nil)
	})
	if !errors.Is(err, errors.ErrStorageIO) {
		t.Fatalf("err = %v, want STORAGE_IO", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (1 + 3 retries)", calls)
	}
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, fastConfig(), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.NewStorageIO(nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCalculateDelay(t *testing.T) {
	config := RetryConfig{BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2.0}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 10 * time.Millisecond},
		{1, 20 * time.Millisecond},
		{2, 40 * time.Millisecond},
		{3, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := calculateDelay(config, tt.attempt); got != tt.want {
			t.Errorf("calculateDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	config.Jitter = true
	for i := 0; i < 20; i++ {
		d := calculateDelay(config, 1)
		if d < 18*time.Millisecond || d > 22*time.Millisecond {
			t.Fatalf("jittered delay %v outside 10%% band", d)
		}
	}
}
