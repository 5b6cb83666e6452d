package resilience

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestClassify_Table(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name      string
		err       error
		kind      ErrorKind
		retryable bool
	}{
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout, true},
		{"timeout message", errors.New("request timed out after 30s"), KindTimeout, true},
		{"connection refused", errors.New("dial tcp 127.0.0.1:6379: connection refused"), KindConnection, true},
		{"connection reset", errors.New("read: connection reset by peer"), KindConnection, true},
		{"unexpected eof", errors.New("unexpected EOF"), KindConnection, true},
		{"http 429", errors.New("HTTP 429 Too Many Requests"), KindRateLimited, true},
		{"rate limit message", errors.New("provider rate limit exceeded"), KindRateLimited, true},
		{"permission denied", errors.New("open /etc/secret: permission denied"), KindPermission, false},
		{"os.ErrPermission", fmt.Errorf("reading key: %w", os.ErrPermission), KindPermission, false},
		{"forbidden", errors.New("403 Forbidden"), KindPermission, false},
		{"missing module", errors.New("cannot find module providing package x"), KindConfig, false},
		{"invalid config", errors.New("invalid config: no queue name"), KindConfig, false},
		{"unmatched", errors.New("something odd happened"), KindUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, retryable, _ := c.Classify(tt.err)
			if kind != tt.kind {
				t.Errorf("kind = %s, want %s", kind, tt.kind)
			}
			if retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", retryable, tt.retryable)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := NewClassifier()
	err := errors.New("connection refused")

	k1, r1, s1 := c.Classify(err)
	k2, r2, s2 := c.Classify(err)

	if k1 != k2 || r1 != r2 || s1.MaxAttempts != s2.MaxAttempts {
		t.Error("classification is not deterministic for the same error shape")
	}
}

func TestClassify_UnknownDefaults(t *testing.T) {
	c := NewClassifier()
	_, retryable, strat := c.Classify(errors.New("never seen before"))
	if !retryable {
		t.Error("unknown errors should be retryable")
	}
	if strat.MaxAttempts != 2 {
		t.Errorf("unknown strategy max attempts = %d, want 2", strat.MaxAttempts)
	}
}

func TestClassify_CustomRulePrecedence(t *testing.T) {
	custom := Rule{
		Kind:      ErrorKind("provider"),
		Retryable: false,
		Match: func(err error) bool {
			return err.Error() == "connection refused"
		},
	}
	c := NewClassifier(custom)

	kind, retryable, _ := c.Classify(errors.New("connection refused"))
	if kind != ErrorKind("provider") {
		t.Errorf("kind = %s, want provider (custom rule should win)", kind)
	}
	if retryable {
		t.Error("custom rule should mark this non-retryable")
	}
}

func TestStrategy_Delay(t *testing.T) {
	s := Strategy{
		MaxAttempts:     5,
		InitialDelay:    1 * time.Second,
		MaxDelay:        10 * time.Second,
		BackoffMultiple: 2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{10, 10 * time.Second}, // capped
	}
	for _, tt := range tests {
		if got := s.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestStrategy_DelayJitterBounds(t *testing.T) {
	s := Strategy{
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        time.Second,
		BackoffMultiple: 2.0,
		Jitter:          true,
	}

	for i := 0; i < 200; i++ {
		d := s.Delay(1)
		if d < 100*time.Millisecond || d >= 150*time.Millisecond {
			t.Fatalf("jittered delay %v outside [100ms, 150ms)", d)
		}
	}
}
