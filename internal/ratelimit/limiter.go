package ratelimit

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter admits or rejects one request for a subject (user id or client
// address).
type Limiter interface {
	Allow(ctx context.Context, subject string) (Decision, error)
}

// LocalTokenBucket is a per-process limiter for single-instance deployments
// and for running the API without Redis.
type LocalTokenBucket struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
	now     func() time.Time
	maxIdle int
}

func NewLocalTokenBucket(capacity int, window time.Duration) (*LocalTokenBucket, error) {
	if err := validateBucket(capacity, window); err != nil {
		return nil, err
	}

	return &LocalTokenBucket{
		limit:   rate.Limit(float64(capacity) / window.Seconds()),
		burst:   capacity,
		buckets: make(map[string]*rate.Limiter),
		now:     time.Now,
		maxIdle: 10_000,
	}, nil
}

func (l *LocalTokenBucket) Allow(_ context.Context, subject string) (Decision, error) {
	subject = normalizeSubject(subject)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bucket, ok := l.buckets[subject]
	if !ok {
		if len(l.buckets) >= l.maxIdle {
			l.evictFull(now)
		}
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets[subject] = bucket
	}

	reservation := bucket.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return Decision{
			Allowed:    false,
			Limit:      int64(l.burst),
			RetryAfter: delay,
		}, nil
	}

	return Decision{
		Allowed:   true,
		Limit:     int64(l.burst),
		Remaining: int64(math.Floor(bucket.TokensAt(now))),
	}, nil
}

// evictFull drops buckets that have refilled completely; they carry no
// state a fresh bucket would not.
func (l *LocalTokenBucket) evictFull(now time.Time) {
	for subject, bucket := range l.buckets {
		if bucket.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, subject)
		}
	}
}

func validateBucket(capacity int, window time.Duration) error {
	if capacity <= 0 {
		return errors.New("capacity must be positive")
	}
	if window <= 0 {
		return errors.New("window must be positive")
	}
	return nil
}

func normalizeSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "anonymous"
	}
	return subject
}
