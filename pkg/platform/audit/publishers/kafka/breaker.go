package kafka

import (
	"sync"
	"time"
)

// breaker stops produce attempts while the broker is unreachable. After
// threshold consecutive failures it opens for cooldown, then lets a single
// probe through.
type breaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration

	failures  int
	openUntil time.Time
	open      bool
	now       func() time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if b.now().After(b.openUntil) {
		// half-open: one probe, re-armed by the next failure
		b.open = false
		b.failures = b.threshold - 1
		return true
	}
	return false
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
}

// failure records a failed produce and reports whether the breaker opened.
func (b *breaker) failure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if !b.open && b.failures >= b.threshold {
		b.open = true
		b.openUntil = b.now().Add(b.cooldown)
		return true
	}
	return false
}

func (b *breaker) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}
