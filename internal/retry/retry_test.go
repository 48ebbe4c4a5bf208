package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hyperjump/colindex/internal/models"
)

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{60, time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicy_DelayJitterBounds(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, Jitter: 0.5}
	for i := 0; i < 200; i++ {
		d := p.Delay(2)
		if d < 100*time.Millisecond || d > 200*time.Millisecond {
			t.Fatalf("jittered delay %s outside [100ms, 200ms]", d)
		}
	}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"default", DefaultPolicy(), false},
		{"zero", Policy{}, false},
		{"negative retries", Policy{MaxRetries: -1}, true},
		{"negative delay", Policy{BaseDelay: -time.Second}, true},
		{"jitter above one", Policy{Jitter: 1.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, models.ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestPolicy_DoRetriesTransient(t *testing.T) {
	p := Policy{MaxRetries: 3}
	var retries []int
	attempts, err := p.DoNotify(context.Background(), func(ctx context.Context, attempt int) error {
		if attempt < 3 {
			return fmt.Errorf("%w: flaky", models.ErrTransient)
		}
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		retries = append(retries, attempt)
	})
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 3 || len(retries) != 2 {
		t.Errorf("attempts=%d retries=%v", attempts, retries)
	}
}

func TestPolicy_DoExhausts(t *testing.T) {
	p := Policy{MaxRetries: 2}
	boom := errors.New("boom")
	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error { return boom })
	if !errors.Is(err, boom) || attempts != 3 {
		t.Errorf("attempts=%d err=%v, want 3 attempts and boom", attempts, err)
	}
}

func TestPolicy_DoPermanentNotRetried(t *testing.T) {
	p := Policy{MaxRetries: 5}
	for _, perm := range []error{models.ErrShape, models.ErrNotFound, models.ErrConfiguration, &models.ShapeError{Expected: 2, Actual: 3}} {
		attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
			return fmt.Errorf("store: %w", perm)
		})
		if attempts != 1 || err == nil {
			t.Errorf("%v: attempts=%d, want 1", perm, attempts)
		}
	}
}

func TestPolicy_DoStopsOnCancel(t *testing.T) {
	p := Policy{MaxRetries: 10, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = p.Do(ctx, func(ctx context.Context, attempt int) error { return models.ErrTransient })
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
