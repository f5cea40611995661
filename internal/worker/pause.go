package worker

import (
	"context"
	"math/rand/v2"
	"time"
)

// pauser sleeps between requests.
type pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauser struct{}

func (timerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// jitter draws a delay uniformly from [lo, hi], millisecond-granular.
func jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	span := (hi - lo) / time.Millisecond
	return lo + rand.N(span+1)*time.Millisecond
}
