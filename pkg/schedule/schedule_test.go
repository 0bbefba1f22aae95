package schedule

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNew_InvalidExpression(t *testing.T) {
	for _, expr := range []string{"", "not a cron", "61 * * * *"} {
		if _, err := New(expr, func(context.Context) error { return nil }); err == nil {
			t.Errorf("New(%q) succeeded, want error", expr)
		}
	}
}

func TestNext(t *testing.T) {
	s, err := New("0 6 * * *", func(context.Context) error { return nil })
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		after time.Time
		want  time.Time
	}{
		{after: time.Date(2024, 5, 1, 5, 0, 0, 0, time.UTC), want: time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)},
		{after: time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC), want: time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)},
		{after: time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC), want: time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := s.Next(tt.after)
		if err != nil {
			t.Fatalf("Next(%v) error = %v", tt.after, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("Next(%v) = %v, want %v", tt.after, got, tt.want)
		}
	}
}

func TestRun_RunsJobUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := 0
	s, err := New("*/5 * * * *", func(context.Context) error {
		runs++
		if runs == 2 {
			return errors.New("second run fails")
		}
		if runs == 3 {
			cancel()
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	var waits []time.Duration
	s.now = func() time.Time { return time.Date(2024, 5, 1, 10, 2, 0, 0, time.UTC) }
	s.after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if runs != 3 {
		t.Errorf("runs = %d, want 3", runs)
	}
	if len(waits) == 0 || waits[0] != 3*time.Minute {
		t.Errorf("waits = %v, want first wait of 3m", waits)
	}
}
