package transport

import (
	"testing"
	"time"
)

func TestBackoff_NextDelay(t *testing.T) {
	b := Backoff{BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // capped
		{10, 30 * time.Second},
	}

	for _, tt := range tests {
		got := b.NextDelay(tt.attempt)
		// Jitter is ±10% of the capped delay.
		lo := time.Duration(float64(tt.want) * 0.9)
		hi := time.Duration(float64(tt.want) * 1.1)
		if got < lo || got > hi {
			t.Errorf("NextDelay(%d) = %v, want within [%v, %v]", tt.attempt, got, lo, hi)
		}
	}
}

func TestBackoff_NegativeAttempt(t *testing.T) {
	b := Backoff{BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	got := b.NextDelay(-3)
	lo := time.Duration(float64(time.Second) * 0.9)
	hi := time.Duration(float64(time.Second) * 1.1)
	if got < lo || got > hi {
		t.Errorf("NextDelay(-3) = %v, want within [%v, %v]", got, lo, hi)
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		attempts    int
		maxAttempts int
		want        bool
	}{
		{0, 0, true},
		{1000, 0, true}, // zero means unlimited
		{0, 5, true},
		{4, 5, true},
		{5, 5, false},
		{6, 5, false},
	}

	for _, tt := range tests {
		if got := shouldRetry(tt.attempts, tt.maxAttempts); got != tt.want {
			t.Errorf("shouldRetry(%d, %d) = %v, want %v", tt.attempts, tt.maxAttempts, got, tt.want)
		}
	}
}
