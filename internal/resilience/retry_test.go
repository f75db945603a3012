package resilience

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		BackoffBase:   time.Millisecond,
		RateLimitBase: time.Millisecond,
		MaxBackoff:    10 * time.Millisecond,
		Multiplier:    2,
	}
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("503"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ExhaustedAfterMaxAttempts(t *testing.T) {
	calls := 0
	underlying := NewTransientError(errors.New("timeout"), 0)
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		return underlying
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, ErrExhaustedRetries) {
		t.Fatalf("expected ErrExhaustedRetries, got %v", err)
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) || ex.Attempts != 3 {
		t.Fatalf("expected ExhaustedError with 3 attempts, got %v", err)
	}
	if !IsTransient(err) {
		t.Error("exhausted error should still unwrap to the transient cause")
	}
}

func TestDo_TerminalStopsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		return NewTerminalError(errors.New("denied"), "REQUEST_DENIED")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !IsTerminal(err) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if IsExhausted(err) {
		t.Error("terminal error must not be reported as exhausted")
	}
}

func TestDo_UnclassifiedErrorNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		return errors.New("bad input")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	cfg := fastConfig()
	cfg.BackoffBase = time.Second
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	start := time.Now()
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, cfg, func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("flaky"), 0)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("cancellation did not interrupt backoff")
	}
}

func TestDo_OnRetryReceivesDelay(t *testing.T) {
	var delays []time.Duration
	cfg := fastConfig()
	cfg.OnRetry = func(_ int, _ error, d time.Duration) {
		delays = append(delays, d)
	}
	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return NewTransientError(errors.New("x"), 0)
	})
	if len(delays) != 2 {
		t.Fatalf("OnRetry called %d times, want 2", len(delays))
	}
	if delays[0] != time.Millisecond || delays[1] != 2*time.Millisecond {
		t.Errorf("delays = %v, want [1ms 2ms]", delays)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), fastConfig(), func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewRateLimitError(errors.New("OVER_QUERY_LIMIT"))
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "ok" {
		t.Errorf("v = %q, want ok", v)
	}
}

func TestComputeBackoff_LinearForTransient(t *testing.T) {
	cfg := applyDefaults(RetryConfig{BackoffBase: 2 * time.Second, MaxBackoff: time.Minute})
	err := NewTransientError(errors.New("x"), 0)
	for attempt, want := range map[int]time.Duration{1: 2 * time.Second, 2: 4 * time.Second, 3: 6 * time.Second} {
		if got := computeBackoff(attempt, err, cfg); got != want {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, want)
		}
	}
}

func TestComputeBackoff_ExponentialForRateLimit(t *testing.T) {
	cfg := applyDefaults(RetryConfig{RateLimitBase: time.Second, Multiplier: 2, MaxBackoff: time.Minute})
	err := NewRateLimitError(errors.New("quota"))
	for attempt, want := range map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second, 4: 8 * time.Second} {
		if got := computeBackoff(attempt, err, cfg); got != want {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, want)
		}
	}
}

func TestComputeBackoff_CappedAtMax(t *testing.T) {
	cfg := applyDefaults(RetryConfig{RateLimitBase: time.Second, Multiplier: 10, MaxBackoff: 5 * time.Second})
	got := computeBackoff(4, NewRateLimitError(errors.New("quota")), cfg)
	if got != 5*time.Second {
		t.Errorf("got %v, want 5s", got)
	}
}

func TestComputeBackoff_JitterStaysInRange(t *testing.T) {
	cfg := applyDefaults(RetryConfig{BackoffBase: 100 * time.Millisecond, JitterFraction: 0.5})
	err := NewTransientError(errors.New("x"), 0)
	for range 50 {
		got := computeBackoff(1, err, cfg)
		if got < 50*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("jittered delay %v out of range", got)
		}
	}
}

func TestFromRetryConfig(t *testing.T) {
	cfg := FromRetryConfig(5, 0.5, 1, 30)
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.BackoffBase != 500*time.Millisecond {
		t.Errorf("BackoffBase = %v, want 500ms", cfg.BackoffBase)
	}
	if cfg.RateLimitBase != time.Second {
		t.Errorf("RateLimitBase = %v, want 1s", cfg.RateLimitBase)
	}
	if cfg.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", cfg.MaxBackoff)
	}

	def := FromRetryConfig(0, 0, 0, 0)
	if !reflect.DeepEqual(def, DefaultRetryConfig()) {
		t.Errorf("zero inputs should keep defaults, got %+v", def)
	}
}
