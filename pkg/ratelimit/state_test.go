package ratelimit

import (
	"net/http"
	"testing"
	"time"
)

func TestState_Blocked(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		resetAt   time.Time
		blocked   bool
		remaining time.Duration
	}{
		{"reset in future", now.Add(30 * time.Second), true, 30 * time.Second},
		{"reset now", now, false, 0},
		{"reset in past", now.Add(-time.Minute), false, 0},
		{"zero state", time.Time{}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := State{Provider: "p", ResetAt: tt.resetAt}
			if got := s.Blocked(now); got != tt.blocked {
				t.Errorf("Blocked() = %v, want %v", got, tt.blocked)
			}
			if got := s.TimeUntilReset(now); got != tt.remaining {
				t.Errorf("TimeUntilReset() = %v, want %v", got, tt.remaining)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{"seconds", "120", 2 * time.Minute, true},
		{"zero seconds", "0", 0, true},
		{"padded", " 5 ", 5 * time.Second, true},
		{"http date", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second, true},
		{"http date in past", now.Add(-time.Hour).Format(http.TimeFormat), 0, true},
		{"capped", "999999", MaxRetryAfter, true},
		{"empty", "", 0, false},
		{"negative", "-5", 0, false},
		{"garbage", "soon", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRetryAfter(tt.value, now)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseRetryAfter(%q) = %v, %v; want %v, %v", tt.value, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
