package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter checks whether a request of identity may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// idleAfter is how long a subject's bucket is kept without requests.
const idleAfter = 10 * time.Minute

// SubjectLimiter gives every subject its own token bucket.
type SubjectLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var _ RateLimiter = (*SubjectLimiter)(nil)

// NewSubjectLimiter allows rps requests per second per subject with the
// given burst. A burst below 1 is raised to the rounded-up rate.
func NewSubjectLimiter(rps float64, burst int) *SubjectLimiter {
	if burst < 1 {
		burst = max(int(rps+0.999), 1)
	}
	return &SubjectLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow takes a token from the subject's bucket. A limiter with a
// non-positive rate allows everything.
func (l *SubjectLimiter) Allow(_ context.Context, identity *Identity) error {
	if l.limit <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[identity.Subject]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[identity.Subject] = b
	}
	b.lastSeen = now

	if !b.limiter.AllowN(now, 1) {
		return ErrTooManyRequests
	}
	return nil
}

// sweep drops idle buckets, at most once per idleAfter.
func (l *SubjectLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < idleAfter {
		return
	}
	l.lastSweep = now
	for subject, b := range l.buckets {
		if now.Sub(b.lastSeen) >= idleAfter {
			delete(l.buckets, subject)
		}
	}
}

// Len returns the number of tracked subjects.
func (l *SubjectLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
