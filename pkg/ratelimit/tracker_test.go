package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func headers(limit, usage string) http.Header {
	h := http.Header{}
	h.Set(HeaderLimit, limit)
	h.Set(HeaderUsage, usage)
	return h
}

func TestTracker_GetState_Default(t *testing.T) {
	tracker := NewTracker(nil, testLogger())

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.IsHealthy {
		t.Error("default state should be healthy")
	}
}

func TestTracker_UpdateFromHeaders(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(NewMemoryStore(), testLogger())

	if err := tracker.UpdateFromHeaders(ctx, headers("200,2000", "42,420")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.ShortUsage != 42 || state.DailyUsage != 420 {
		t.Errorf("usage = %d/%d, want 42/420", state.ShortUsage, state.DailyUsage)
	}
}

func TestTracker_UpdateFromHeaders_NoHeaders(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tracker := NewTracker(store, testLogger())

	if err := tracker.UpdateFromHeaders(ctx, http.Header{}); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}
	state, _ := store.Load(ctx)
	if state != nil {
		t.Errorf("expected nothing stored, got %+v", state)
	}
}

func TestTracker_UpdateFromHeaders_Malformed(t *testing.T) {
	tracker := NewTracker(nil, testLogger())
	if err := tracker.UpdateFromHeaders(context.Background(), headers("200", "x")); err == nil {
		t.Error("expected error for malformed headers")
	}
}

func TestTracker_ShouldAllowRequest(t *testing.T) {
	tests := []struct {
		name      string
		usage     string
		wantAllow bool
	}{
		{name: "healthy", usage: "10,100", wantAllow: true},
		{name: "throttled", usage: "190,100", wantAllow: true},
		{name: "blocked short", usage: "200,100", wantAllow: false},
		{name: "blocked daily", usage: "10,2000", wantAllow: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			tracker := NewTracker(nil, testLogger())
			tracker.SetThrottleDelay(time.Millisecond)

			if err := tracker.UpdateFromHeaders(ctx, headers("200,2000", tt.usage)); err != nil {
				t.Fatalf("UpdateFromHeaders() error = %v", err)
			}

			allowed, err := tracker.ShouldAllowRequest(ctx)
			if err != nil {
				t.Fatalf("ShouldAllowRequest() error = %v", err)
			}
			if allowed != tt.wantAllow {
				t.Errorf("ShouldAllowRequest() = %v, want %v", allowed, tt.wantAllow)
			}
		})
	}
}

func TestTracker_ShouldAllowRequest_ThrottleCancelled(t *testing.T) {
	tracker := NewTracker(nil, testLogger())
	tracker.SetThrottleDelay(time.Hour)

	if err := tracker.UpdateFromHeaders(context.Background(), headers("200,2000", "190,100")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err == nil || allowed {
		t.Errorf("ShouldAllowRequest() = %v, %v; want false, context error", allowed, err)
	}
}

func TestTracker_WindowRollover(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(nil, testLogger())

	if err := tracker.UpdateFromHeaders(ctx, headers("200,2000", "200,100")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}
	tracker.now = func() time.Time { return time.Now().Add(ShortWindow) }

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if !allowed {
		t.Error("expected request to be allowed after the short window rolled over")
	}
}

func TestTracker_GetState_StaleStateIgnored(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(nil, testLogger())

	if err := tracker.UpdateFromHeaders(ctx, headers("200,2000", "200,2000")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}
	tracker.now = func() time.Time { return time.Now().Add(StaleAfter + time.Hour) }

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.IsHealthy || state.DailyUsage != 0 {
		t.Errorf("stale state = %+v, want default healthy state", state)
	}

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil || !allowed {
		t.Errorf("ShouldAllowRequest() = %v, %v; want true, nil", allowed, err)
	}
}
