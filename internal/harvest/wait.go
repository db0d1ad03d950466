package harvest

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// RetryUntil evaluates pred every poll until it returns true, maxWait
// elapses, or ctx ends. It always evaluates pred at least once.
func RetryUntil(ctx context.Context, pred func(context.Context) bool, maxWait, poll time.Duration) bool {
	deadline := time.Now().Add(maxWait)
	for {
		if pred(ctx) {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if !sleep(ctx, min(poll, remaining)) {
			return false
		}
	}
}

// sleep waits d or until ctx ends; it reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Pacer spaces out interactions so the session looks like a person.
type Pacer struct {
	min time.Duration
	max time.Duration
}

// NewPacer returns a Pacer whose human delay is uniform in [lo, hi].
func NewPacer(lo, hi time.Duration) *Pacer {
	if hi < lo {
		hi = lo
	}
	return &Pacer{min: lo, max: hi}
}

// Pause sleeps for a random human delay.
func (p *Pacer) Pause(ctx context.Context) {
	sleep(ctx, p.delay())
}

// Settle sleeps for a fixed duration, e.g. while a panel animates.
func (p *Pacer) Settle(ctx context.Context, d time.Duration) {
	sleep(ctx, d)
}

func (p *Pacer) delay() time.Duration {
	if p == nil {
		return 0
	}
	return p.min + randomJitter(p.max-p.min)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)+1))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
