package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/accruals-router/internal/core/domain"
)

func fastRetries(attempts int) Config {
	return Config{
		RetryMaxAttempts:    attempts,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	}
}

func TestExecuteRetriesByClassification(t *testing.T) {
	errOutage := errors.New("classifier overloaded")
	cases := []struct {
		name     string
		class    ErrorClassification
		failures int
		wantErr  bool
		wantRuns int
	}{
		{name: "transient recovers", class: Transient, failures: 2, wantRuns: 3},
		{name: "flaky recovers", class: Flaky, failures: 1, wantRuns: 2},
		{name: "permanent stops", class: Permanent, failures: 5, wantErr: true, wantRuns: 1},
		{name: "rejected stops", class: Rejected, failures: 5, wantErr: true, wantRuns: 1},
		{name: "attempts exhausted", class: Transient, failures: 5, wantErr: true, wantRuns: 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := NewExecutor(fastRetries(3))
			runs := 0
			err := exec.Execute(context.Background(), "classify", func(context.Context) error {
				runs++
				if runs <= tc.failures {
					return errOutage
				}
				return nil
			}, func(error) ErrorClassification { return tc.class })

			if tc.wantErr != (err != nil) || (err != nil && !errors.Is(err, errOutage)) {
				t.Fatalf("unexpected error %v", err)
			}
			if runs != tc.wantRuns {
				t.Fatalf("expected %d runs, got %d", tc.wantRuns, runs)
			}
		})
	}
}

func TestExecuteTripsBreakerOnRecordedFailures(t *testing.T) {
	cfg := fastRetries(1)
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	cfg.BreakerHalfOpenMaxCalls = 1
	exec := NewExecutor(cfg, WithDependency("nats"))

	errDown := errors.New("no servers")
	failing := func(context.Context) error { return errDown }
	for i := 0; i < 2; i++ {
		if err := exec.Execute(context.Background(), "publish", failing, func(error) ErrorClassification { return Permanent }); !errors.Is(err, errDown) {
			t.Fatalf("call %d: expected call error, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "publish", func(context.Context) error {
		t.Fatal("open breaker must short-circuit")
		return nil
	}, nil)
	if !IsCircuitOpen(err) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if err := exec.Execute(context.Background(), "other", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("breakers are per operation, got %v", err)
	}
}

func TestExecuteIgnoresRejectedFailuresInBreaker(t *testing.T) {
	cfg := fastRetries(1)
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 1
	cfg.BreakerFailureRatio = 0.1
	exec := NewExecutor(cfg)

	errBad := errors.New("bad request")
	for i := 0; i < 3; i++ {
		err := exec.Execute(context.Background(), "classify", func(context.Context) error { return errBad }, func(error) ErrorClassification { return Rejected })
		if !errors.Is(err, errBad) {
			t.Fatalf("call %d: expected caller error, got %v", i, err)
		}
	}
}

func TestExecuteWaitsForQuota(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts: 1,
		RateLimit:        20,
		RateBurst:        1,
		BreakerEnabled:   false,
	})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := exec.Execute(context.Background(), "op", func(context.Context) error { return nil }, nil); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("expected quota to space calls out, took %v", elapsed)
	}
}

func TestExecuteStopsWaitingWhenCancelled(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts: 1,
		RateLimit:        0.001,
		RateBurst:        1,
		BreakerEnabled:   false,
	})
	_ = exec.Execute(context.Background(), "op", func(context.Context) error { return nil }, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	called := false
	err := exec.Execute(ctx, "op", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if err == nil || called {
		t.Fatalf("expected quota wait to fail without calling, err=%v called=%v", err, called)
	}
}

func TestExecuteSkipsBackoffPastDeadline(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Second,
		RetryMaxBackoff:     time.Second,
		BreakerEnabled:      false,
	}, WithDependency("classifier"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(ctx, "op", func(context.Context) error {
		attempts++
		return errTemp
	}, func(error) ErrorClassification { return Transient })
	if !errors.Is(err, errTemp) || attempts != 1 {
		t.Fatalf("expected one attempt and the call error, got %d attempts, %v", attempts, err)
	}
}

func TestBackoffGrowsToCap(t *testing.T) {
	exec := NewExecutor(Config{
		RetryInitialBackoff: 10 * time.Millisecond,
		RetryMaxBackoff:     25 * time.Millisecond,
		RetryMultiplier:     2,
	})
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}
	for i, w := range want {
		if got := exec.backoff(i + 1); got != w {
			t.Fatalf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestWrapTemporary(t *testing.T) {
	errNet := errors.New("connection reset")
	classify := func(err error) ErrorClassification {
		if errors.Is(err, errNet) {
			return Transient
		}
		return Permanent
	}
	if err := WrapTemporary("call", errNet, classify); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", err)
	}
	if err := WrapTemporary("call", gobreaker.ErrOpenState, nil); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected open breaker to be temporary, got %v", err)
	}
	bad := errors.New("bad request")
	if err := WrapTemporary("call", bad, classify); err != bad {
		t.Fatalf("expected permanent error unchanged, got %v", err)
	}
	if class, ok := Common(context.Canceled); !ok || class != Rejected {
		t.Fatalf("expected cancellation to be rejected, got %+v ok=%v", class, ok)
	}
}

func TestClassifierPolicyNormalizes(t *testing.T) {
	cfg := ClassifierPolicy(-1, 0).normalize()
	if cfg.RateLimit != 0 || cfg.RetryMaxAttempts != 2 {
		t.Fatalf("unexpected normalized policy %+v", cfg)
	}
	if cfg.RetryMaxBackoff < cfg.RetryInitialBackoff {
		t.Fatalf("max backoff below initial: %+v", cfg)
	}
	if paced := ClassifierPolicy(0.5, 3).normalize(); paced.RateBurst != 1 || paced.RetryMaxAttempts != 3 {
		t.Fatalf("unexpected paced policy %+v", paced)
	}
}
