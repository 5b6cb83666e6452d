package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/foreman/internal/core/domain"
)

// fastClassifier returns the default rule table with millisecond-scale
// delays so retry timing is observable without slow tests.
func fastClassifier() *Classifier {
	return NewClassifier(
		Rule{
			Kind:      KindConnection,
			Retryable: true,
			Strategy: Strategy{
				MaxAttempts:     3,
				InitialDelay:    20 * time.Millisecond,
				MaxDelay:        time.Second,
				BackoffMultiple: 2.0,
			},
			Match: matchConnection,
		},
	)
}

func TestExecute_SuccessFirstAttempt(t *testing.T) {
	e := NewExecutor(NewClassifier(), NewHistory(0), nil, nil)

	res := e.Execute(context.Background(), "t-1", func(ctx context.Context) (any, error) {
		return "ok", nil
	})

	if res.Status != StatusSuccess {
		t.Fatalf("status = %s, want success", res.Status)
	}
	if res.Value != "ok" {
		t.Errorf("value = %v, want ok", res.Value)
	}
	if len(res.Attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(res.Attempts))
	}
}

func TestExecute_ConnectionErrorBackoff(t *testing.T) {
	// A connection failure under max_attempts=3, initial 20ms, x2 backoff
	// must yield exactly 3 attempts with ~20ms and ~40ms gaps.
	e := NewExecutor(fastClassifier(), NewHistory(0), nil, nil)

	var mu sync.Mutex
	var calls []time.Time

	res := e.Execute(context.Background(), "t-2", func(ctx context.Context) (any, error) {
		mu.Lock()
		calls = append(calls, time.Now())
		mu.Unlock()
		return nil, errors.New("connection refused")
	})

	if res.Status != StatusFailure {
		t.Fatalf("status = %s, want failure", res.Status)
	}
	if res.ErrorKind != KindConnection {
		t.Errorf("error kind = %s, want connection", res.ErrorKind)
	}
	if len(res.Attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(res.Attempts))
	}
	if len(calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(calls))
	}

	gap1 := calls[1].Sub(calls[0])
	gap2 := calls[2].Sub(calls[1])
	if gap1 < 20*time.Millisecond || gap1 > 60*time.Millisecond {
		t.Errorf("first retry gap = %v, want ~20ms", gap1)
	}
	if gap2 < 40*time.Millisecond || gap2 > 100*time.Millisecond {
		t.Errorf("second retry gap = %v, want ~40ms", gap2)
	}
	if gap2 < gap1 {
		t.Errorf("backoff did not grow: %v then %v", gap1, gap2)
	}
}

func TestExecute_NonRetryableSingleAttempt(t *testing.T) {
	e := NewExecutor(NewClassifier(), NewHistory(0), nil, nil)

	calls := 0
	res := e.Execute(context.Background(), "t-3", func(ctx context.Context) (any, error) {
		calls++
		return nil, errors.New("open config: permission denied")
	})

	if res.Status != StatusFailure {
		t.Fatalf("status = %s, want failure", res.Status)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want exactly 1 for non-retryable error", calls)
	}
	if res.ErrorKind != KindPermission {
		t.Errorf("error kind = %s, want permission", res.ErrorKind)
	}
}

func TestExecute_AttemptsNeverExceedMax(t *testing.T) {
	e := NewExecutor(fastClassifier(), NewHistory(0), nil, nil)

	res := e.Execute(context.Background(), "t-4", func(ctx context.Context) (any, error) {
		return nil, errors.New("connection refused")
	})

	_, _, strat := fastClassifier().Classify(errors.New("connection refused"))
	if len(res.Attempts) > strat.MaxAttempts {
		t.Errorf("attempts = %d exceeds max %d", len(res.Attempts), strat.MaxAttempts)
	}
}

func TestExecute_UnknownErrorTwoAttempts(t *testing.T) {
	// The unknown classification is conservative: 2 attempts.
	c := NewClassifier()
	// Shrink the default delay so the test stays fast.
	custom := Rule{
		Kind:      KindUnknown,
		Retryable: true,
		Strategy:  Strategy{MaxAttempts: 2, InitialDelay: time.Millisecond, BackoffMultiple: 1},
		Match:     func(err error) bool { return err.Error() == "weird" },
	}
	c = NewClassifier(custom)
	e := NewExecutor(c, NewHistory(0), nil, nil)

	calls := 0
	res := e.Execute(context.Background(), "t-5", func(ctx context.Context) (any, error) {
		calls++
		return nil, errors.New("weird")
	})

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if res.Status != StatusFailure {
		t.Errorf("status = %s, want failure", res.Status)
	}
}

func TestExecute_RecoversFromPanic(t *testing.T) {
	e := NewExecutor(NewClassifier(), NewHistory(0), nil, nil)

	res := e.Execute(context.Background(), "t-6", func(ctx context.Context) (any, error) {
		panic("boom")
	})

	if res.Status != StatusFailure {
		t.Fatalf("status = %s, want failure", res.Status)
	}
	if res.Err == nil {
		t.Fatal("expected a structured error from the panic")
	}
}

func TestExecute_ContextCancelAbortsBackoff(t *testing.T) {
	c := NewClassifier(Rule{
		Kind:      KindConnection,
		Retryable: true,
		Strategy:  Strategy{MaxAttempts: 5, InitialDelay: 10 * time.Second, BackoffMultiple: 2},
		Match:     matchConnection,
	})
	e := NewExecutor(c, NewHistory(0), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res := e.Execute(ctx, "t-7", func(ctx context.Context) (any, error) {
		return nil, errors.New("connection refused")
	})

	if res.Status != StatusFailure {
		t.Fatalf("status = %s, want failure", res.Status)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("execute held the backoff sleep after cancel: %v", elapsed)
	}
}

func TestExecute_HistoryRecordsAttempts(t *testing.T) {
	h := NewHistory(time.Hour)
	e := NewExecutor(fastClassifier(), h, nil, nil)

	e.Execute(context.Background(), "t-8", func(ctx context.Context) (any, error) {
		return nil, errors.New("connection refused")
	})
	e.Execute(context.Background(), "t-9", func(ctx context.Context) (any, error) {
		return "ok", nil
	})

	report := h.Report()
	if report.Total != 4 { // 3 failures + 1 success
		t.Errorf("total = %d, want 4", report.Total)
	}
	if report.Failures != 3 {
		t.Errorf("failures = %d, want 3", report.Failures)
	}
	if report.ByKind[KindConnection] != 3 {
		t.Errorf("connection failures = %d, want 3", report.ByKind[KindConnection])
	}
}

type recorderSpy struct {
	mu       sync.Mutex
	attempts []domain.ExecutionAttempt
}

func (r *recorderSpy) Record(ctx context.Context, a domain.ExecutionAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return nil
}

func TestExecute_ArchivesAttempts(t *testing.T) {
	spy := &recorderSpy{}
	e := NewExecutor(fastClassifier(), NewHistory(0), spy, nil)

	e.Execute(context.Background(), "t-10", func(ctx context.Context) (any, error) {
		return nil, errors.New("connection refused")
	})

	spy.mu.Lock()
	defer spy.mu.Unlock()
	if len(spy.attempts) != 3 {
		t.Fatalf("archived attempts = %d, want 3", len(spy.attempts))
	}
	for i, a := range spy.attempts {
		if a.Attempt != i+1 {
			t.Errorf("attempt %d numbered %d", i, a.Attempt)
		}
		if a.TaskID != "t-10" {
			t.Errorf("attempt %d task id = %s", i, a.TaskID)
		}
	}
}
