package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestDo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failing   []string
		want      string
		wantErr   bool
		wantCalls []string
	}{
		{name: "primary succeeds", want: "primary", wantCalls: []string{"primary"}},
		{name: "falls over", failing: []string{"primary"}, want: "secondary", wantCalls: []string{"primary", "secondary"}},
		{name: "all fail", failing: []string{"primary", "secondary"}, wantErr: true, wantCalls: []string{"primary", "secondary"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fg := NewFallbackGroup("primary", "primary", CircuitBreakerConfig{MaxFailures: 3})
			fg.Add("secondary", "secondary")

			var calls []string
			got, err := Do(context.Background(), fg, func(_ context.Context, v string) (string, error) {
				calls = append(calls, v)
				if slices.Contains(tc.failing, v) {
					return "", errTest
				}
				return v, nil
			})

			if tc.wantErr {
				if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want ErrAllFailed wrapping errTest", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("result = %q, want %q", got, tc.want)
			}
			if !slices.Equal(calls, tc.wantCalls) {
				t.Errorf("calls = %v, want %v", calls, tc.wantCalls)
			}
		})
	}
}

func TestDo_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup("primary", "primary", CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	fg.Add("secondary", "secondary")

	primaryCalls := 0
	call := func(_ context.Context, v string) (string, error) {
		if v == "primary" {
			primaryCalls++
			return "", errTest
		}
		return v, nil
	}

	for range 3 {
		if got, err := Do(context.Background(), fg, call); err != nil || got != "secondary" {
			t.Fatalf("Do = %q, %v", got, err)
		}
	}
	if primaryCalls != 1 {
		t.Errorf("primary called %d times, want 1 before its breaker opened", primaryCalls)
	}
}

func TestDo_StopsOnCancellation(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup("primary", "primary", CircuitBreakerConfig{})
	fg.Add("secondary", "secondary")

	ctx, cancel := context.WithCancel(context.Background())
	var calls []string
	_, err := Do(ctx, fg, func(ctx context.Context, v string) (string, error) {
		calls = append(calls, v)
		cancel()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !slices.Equal(calls, []string{"primary"}) {
		t.Errorf("calls = %v, want only primary", calls)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup("deepgram", 1, CircuitBreakerConfig{})
	fg.Add("whisper", 2)
	if got := fg.Names(); !slices.Equal(got, []string{"deepgram", "whisper"}) {
		t.Errorf("Names = %v", got)
	}
}
