package ratelimit

import (
	"net/http"
	"testing"
	"time"
)

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name      string
		limit     string
		usage     string
		wantOK    bool
		wantErr   bool
		wantShort int
		wantDaily int
	}{
		{name: "absent", wantOK: false},
		{name: "valid", limit: "200,2000", usage: "10,150", wantOK: true, wantShort: 10, wantDaily: 150},
		{name: "spaces", limit: "200, 2000", usage: " 10 ,150", wantOK: true, wantShort: 10, wantDaily: 150},
		{name: "missing usage", limit: "200,2000", wantErr: true},
		{name: "single value", limit: "200", usage: "10", wantErr: true},
		{name: "not a number", limit: "abc,2000", usage: "10,150", wantErr: true},
		{name: "negative", limit: "200,2000", usage: "-1,150", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.limit != "" {
				h.Set(HeaderLimit, tt.limit)
			}
			if tt.usage != "" {
				h.Set(HeaderUsage, tt.usage)
			}

			state, ok, err := ParseHeaders(h)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHeaders() error = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Fatalf("ParseHeaders() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if state.ShortUsage != tt.wantShort || state.DailyUsage != tt.wantDaily {
				t.Errorf("usage = %d/%d, want %d/%d", state.ShortUsage, state.DailyUsage, tt.wantShort, tt.wantDaily)
			}
			if state.ShortLimit != 200 || state.DailyLimit != 2000 {
				t.Errorf("limits = %d/%d, want 200/2000", state.ShortLimit, state.DailyLimit)
			}
		})
	}
}

func TestRateLimitState_Thresholds(t *testing.T) {
	tests := []struct {
		name         string
		shortUsage   int
		dailyUsage   int
		wantBlock    bool
		wantThrottle bool
		wantHealthy  bool
	}{
		{name: "healthy", shortUsage: 10, dailyUsage: 100, wantHealthy: true},
		{name: "just below throttle", shortUsage: 179, dailyUsage: 100, wantHealthy: true},
		{name: "throttle at 90 percent", shortUsage: 180, dailyUsage: 100, wantThrottle: true},
		{name: "short window used up", shortUsage: 200, dailyUsage: 100, wantBlock: true},
		{name: "daily window used up", shortUsage: 10, dailyUsage: 2000, wantBlock: true},
		{name: "over limit", shortUsage: 250, dailyUsage: 100, wantBlock: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &RateLimitState{
				ShortLimit: 200,
				ShortUsage: tt.shortUsage,
				DailyLimit: 2000,
				DailyUsage: tt.dailyUsage,
				LastUpdate: time.Now(),
			}
			s.UpdateHealth()

			if got := s.NeedsCriticalBlock(); got != tt.wantBlock {
				t.Errorf("NeedsCriticalBlock() = %v, want %v", got, tt.wantBlock)
			}
			if got := s.NeedsThrottling(); got != tt.wantThrottle {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.wantThrottle)
			}
			if s.IsHealthy != tt.wantHealthy {
				t.Errorf("IsHealthy = %v, want %v", s.IsHealthy, tt.wantHealthy)
			}
		})
	}
}

func TestRateLimitState_UnknownLimits(t *testing.T) {
	s := DefaultState()
	if s.NeedsCriticalBlock() || s.NeedsThrottling() {
		t.Error("default state must neither block nor throttle")
	}
	if s.ShortRemaining() != -1 || s.DailyRemaining() != -1 {
		t.Errorf("remaining = %d/%d, want -1/-1", s.ShortRemaining(), s.DailyRemaining())
	}
}

func TestRateLimitState_At(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 3, 0, 0, time.UTC)
	s := &RateLimitState{ShortLimit: 200, ShortUsage: 200, DailyLimit: 2000, DailyUsage: 2000, LastUpdate: base}

	tests := []struct {
		name      string
		now       time.Time
		wantShort int
		wantDaily int
	}{
		{name: "same window", now: base.Add(5 * time.Minute), wantShort: 200, wantDaily: 2000},
		{name: "next window", now: base.Add(12 * time.Minute), wantShort: 0, wantDaily: 2000},
		{name: "next day", now: base.Add(24 * time.Hour), wantShort: 0, wantDaily: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.At(tt.now)
			if got.ShortUsage != tt.wantShort || got.DailyUsage != tt.wantDaily {
				t.Errorf("usage = %d/%d, want %d/%d", got.ShortUsage, got.DailyUsage, tt.wantShort, tt.wantDaily)
			}
		})
	}

	if s.ShortUsage != 200 {
		t.Error("At must not modify the receiver")
	}
}

func TestRateLimitState_TimeUntilReset(t *testing.T) {
	s := DefaultState()
	now := time.Date(2024, 5, 1, 10, 3, 0, 0, time.UTC)
	if got := s.TimeUntilReset(now); got != 12*time.Minute {
		t.Errorf("TimeUntilReset() = %v, want 12m", got)
	}
}

func TestRateLimitState_IsStale(t *testing.T) {
	now := time.Now()
	s := &RateLimitState{LastUpdate: now.Add(-2 * time.Minute)}
	if !s.IsStale(now, time.Minute) {
		t.Error("expected state to be stale")
	}
	if s.IsStale(now, time.Hour) {
		t.Error("expected state to be fresh")
	}
}
