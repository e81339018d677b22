package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

func TestCircuitBreakerConfig_Defaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   CircuitBreakerConfig
		want CircuitBreakerConfig
	}{
		{
			name: "zero",
			want: CircuitBreakerConfig{MaxFailures: 5, ResetTimeout: 30 * time.Second, HalfOpenMax: 3},
		},
		{
			name: "explicit kept",
			in:   CircuitBreakerConfig{Name: "llm/openai", MaxFailures: 2, ResetTimeout: time.Minute, HalfOpenMax: 1},
			want: CircuitBreakerConfig{Name: "llm/openai", MaxFailures: 2, ResetTimeout: time.Minute, HalfOpenMax: 1},
		},
		{
			name: "negative replaced",
			in:   CircuitBreakerConfig{MaxFailures: -1, ResetTimeout: -time.Second},
			want: CircuitBreakerConfig{MaxFailures: 5, ResetTimeout: 30 * time.Second, HalfOpenMax: 3},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cb := NewCircuitBreaker(tc.in)
			got := cb.cfg
			if got.Now == nil {
				t.Fatal("Now not defaulted")
			}
			if got.Name != tc.want.Name || got.MaxFailures != tc.want.MaxFailures ||
				got.ResetTimeout != tc.want.ResetTimeout || got.HalfOpenMax != tc.want.HalfOpenMax {
				t.Errorf("cfg = %d/%v/%d, want %d/%v/%d", got.MaxFailures, got.ResetTimeout, got.HalfOpenMax,
					tc.want.MaxFailures, tc.want.ResetTimeout, tc.want.HalfOpenMax)
			}
			if cb.State() != StateClosed || cb.Name() != tc.want.Name {
				t.Errorf("new breaker = %v %q", cb.State(), cb.Name())
			}
		})
	}
}

func TestCircuitBreaker_ClosedToOpen(t *testing.T) {
	t.Parallel()

	clk := newClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: 3, ResetTimeout: time.Minute, Now: clk.Now})

	for range 3 {
		_ = cb.Execute(context.Background(), fail)
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 failures", cb.State())
	}

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("open breaker must not call fn")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: 3})
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), succeed)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_CancellationIsNotAFailure(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}

	err = cb.Execute(context.Background(), func(context.Context) error { return context.DeadlineExceeded })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if cb.State() != StateOpen {
		t.Errorf("state = %v, want open after a timeout", cb.State())
	}
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		probes []func(context.Context) error
		want   State
	}{
		{
			name:   "enough successes close",
			probes: []func(context.Context) error{succeed, succeed},
			want:   StateClosed,
		},
		{
			name:   "one success stays half-open",
			probes: []func(context.Context) error{succeed},
			want:   StateHalfOpen,
		},
		{
			name:   "failed probe re-opens",
			probes: []func(context.Context) error{succeed, fail},
			want:   StateOpen,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			clk := newClock()
			cb := NewCircuitBreaker(CircuitBreakerConfig{
				Name: "test", MaxFailures: 2, ResetTimeout: time.Second, HalfOpenMax: 2, Now: clk.Now,
			})
			_ = cb.Execute(context.Background(), fail)
			_ = cb.Execute(context.Background(), fail)
			if cb.State() != StateOpen {
				t.Fatal("expected open")
			}

			clk.Advance(time.Second)
			if cb.State() != StateHalfOpen {
				t.Fatalf("state = %v, want half-open after timeout", cb.State())
			}

			for _, p := range tc.probes {
				_ = cb.Execute(context.Background(), p)
			}
			if got := cb.State(); got != tc.want {
				t.Errorf("state = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	t.Parallel()

	clk := newClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "test", MaxFailures: 1, ResetTimeout: time.Second, HalfOpenMax: 1, Now: clk.Now,
	})
	_ = cb.Execute(context.Background(), fail)
	clk.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cb.Execute(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := cb.Execute(context.Background(), succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	wg.Wait()

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: 2, ResetTimeout: time.Hour})
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after reset", cb.State())
	}
	if err := cb.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

// ── helpers ──

func succeed(context.Context) error { return nil }
func fail(context.Context) error    { return errTest }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
