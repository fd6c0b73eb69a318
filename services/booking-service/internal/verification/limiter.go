package verification

import (
	"context"
	"sync"
	"time"
)

// Limiter is a sliding-window counter per key: at most max hits in any window.
// It is process-wide state owned by whoever constructs it. Keys whose newest hit
// is older than the window are evicted by Sweep; Run sweeps on a ticker until ctx
// is done.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	hits   map[string][]time.Time
}

func NewLimiter(max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Hour
	}
	return &Limiter{max: max, window: window, hits: make(map[string][]time.Time)}
}

// Allow records a hit for key at now if the window has room. When it does not,
// retryAfter is how long until the oldest hit leaves the window.
func (l *Limiter) Allow(key string, now time.Time) (ok bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := prune(l.hits[key], now.Add(-l.window))
	if len(recent) >= l.max {
		l.hits[key] = recent
		return false, recent[0].Add(l.window).Sub(now)
	}
	l.hits[key] = append(recent, now)
	return true, 0
}

// Sweep drops keys with no hit inside the window and returns how many were removed.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	removed := 0
	for key, ts := range l.hits {
		recent := prune(ts, cutoff)
		if len(recent) == 0 {
			delete(l.hits, key)
			removed++
			continue
		}
		l.hits[key] = recent
	}
	return removed
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

func (l *Limiter) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = l.window
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Sweep(now)
		}
	}
}

// prune returns the suffix of ts after cutoff; ts is in hit order.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
