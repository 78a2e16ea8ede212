package webhook

import (
	"testing"
	"time"
)

func TestRetryDelay(t *testing.T) {
	// Base 2s doubles per failed attempt; jitter is ±20%.
	tests := []struct {
		name           string
		failedAttempts int
		minDelay       time.Duration
		maxDelay       time.Duration
	}{
		{"first failure", 1, 1600 * time.Millisecond, 2400 * time.Millisecond},
		{"second failure", 2, 3200 * time.Millisecond, 4800 * time.Millisecond},
		{"third failure", 3, 6400 * time.Millisecond, 9600 * time.Millisecond},
		{"zero treated as first", 0, 1600 * time.Millisecond, 2400 * time.Millisecond},
		{"negative treated as first", -3, 1600 * time.Millisecond, 2400 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Run multiple times to account for jitter
			for i := 0; i < 10; i++ {
				delay := RetryDelay(2*time.Second, tt.failedAttempts)
				if delay < tt.minDelay || delay > tt.maxDelay {
					t.Errorf("RetryDelay(2s, %d) = %v, want between %v and %v",
						tt.failedAttempts, delay, tt.minDelay, tt.maxDelay)
				}
			}
		})
	}
}

func TestRetryDelay_Cap(t *testing.T) {
	// 4m doubled twice would be 16m; the cap holds it at 5m ± 20%.
	for i := 0; i < 10; i++ {
		delay := RetryDelay(4*time.Minute, 3)
		if delay < 4*time.Minute || delay > 6*time.Minute {
			t.Errorf("RetryDelay(4m, 3) = %v, want capped near %v", delay, 5*time.Minute)
		}
	}
}

func TestRetryDelay_DefaultBase(t *testing.T) {
	// Non-positive base falls back to the default.
	delay := RetryDelay(0, 1)
	min := time.Duration(float64(DefaultBaseDelay) * 0.8)
	max := time.Duration(float64(DefaultBaseDelay) * 1.2)
	if delay < min || delay > max {
		t.Errorf("RetryDelay(0, 1) = %v, want between %v and %v", delay, min, max)
	}
}

func TestIsExhausted(t *testing.T) {
	tests := []struct {
		attempt    int
		maxRetries int
		want       bool
	}{
		{0, 3, false},
		{2, 3, false},
		{3, 3, true},
		{4, 3, true},
	}

	for _, tt := range tests {
		got := IsExhausted(tt.attempt, tt.maxRetries)
		if got != tt.want {
			t.Errorf("IsExhausted(%d, %d) = %v, want %v", tt.attempt, tt.maxRetries, got, tt.want)
		}
	}
}

func TestEstimatedSequenceWindow(t *testing.T) {
	window := EstimatedSequenceWindow(3, 2*time.Second, 10*time.Second)

	// Three attempts of up to 10s plus backoffs of roughly 2s and 4s.
	if window < 30*time.Second {
		t.Errorf("window = %v, want at least the attempt budget", window)
	}
	if window > 2*time.Minute {
		t.Errorf("window = %v, unexpectedly large", window)
	}
}
