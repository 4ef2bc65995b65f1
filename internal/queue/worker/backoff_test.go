package worker

import (
	"testing"
	"time"
)

func TestExponentialBackoffGrows(t *testing.T) {
	prev := time.Duration(0)

	for attempt := 0; attempt < 6; attempt++ {
		d := ExponentialBackoff(attempt)

		// strip the jitter for the comparison
		base := d - (d % time.Second)

		if base < prev {
			t.Fatalf("attempt %d: backoff %v shrank below %v", attempt, base, prev)
		}

		prev = base
	}
}

func TestExponentialBackoffCapped(t *testing.T) {
	max := 5*time.Minute + 250*time.Millisecond

	for _, attempt := range []int{10, 20, 63, 100} {
		d := ExponentialBackoff(attempt)

		if d <= 0 {
			t.Fatalf("attempt %d: non-positive backoff %v", attempt, d)
		}

		if d > max {
			t.Fatalf("attempt %d: backoff %v exceeds cap", attempt, d)
		}
	}
}
