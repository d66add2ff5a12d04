package ratelimit

import (
	"sync"
	"time"
)

type Decision struct {
	Admitted bool
	// RetryAfter is how long until the oldest counted event leaves the
	// window; set only on denial.
	RetryAfter time.Duration
}

// Limiter is a strict sliding-window counter: at most limit admissions
// per user within any trailing window. Expired events are pruned lazily
// on each admission check rather than on a timer.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events map[int64][]time.Time
}

func New(limit int, window time.Duration) *Limiter {
	if limit < 1 {
		limit = 1
	}
	return &Limiter{limit: limit, window: window, events: make(map[int64][]time.Time)}
}

func (l *Limiter) TryAdmit(userID int64, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.events[userID][:0]
	for _, ts := range l.events[userID] {
		if now.Sub(ts) < l.window {
			kept = append(kept, ts)
		}
	}

	if len(kept) < l.limit {
		l.events[userID] = append(kept, now)
		return Decision{Admitted: true}
	}
	l.events[userID] = kept
	return Decision{RetryAfter: kept[0].Add(l.window).Sub(now)}
}

// Count reports how many events remain in the user's window at now,
// without admitting anything.
func (l *Limiter) Count(userID int64, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ts := range l.events[userID] {
		if now.Sub(ts) < l.window {
			n++
		}
	}
	return n
}

// Compact drops windows whose events have all expired. Pruning is lazy,
// so this only reclaims memory for idle users and never changes
// admission outcomes.
func (l *Limiter) Compact(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for userID, evs := range l.events {
		live := false
		for _, ts := range evs {
			if now.Sub(ts) < l.window {
				live = true
				break
			}
		}
		if !live {
			delete(l.events, userID)
		}
	}
}
