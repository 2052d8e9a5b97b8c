package session

import (
	"context"
	"time"
)

// RetryPolicy is a fixed-interval polling policy. Attempts are 1-based; the
// sleep happens before every attempt.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DeletePolicy confirms remote deletions: 10 attempts, 1s apart.
func DeletePolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 10, Interval: time.Second}
}

// CompletionPolicy awaits the remote combine job: 60 attempts, 1s apart.
func CompletionPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 60, Interval: time.Second}
}

// Sleeper waits between polling attempts.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer and honors ctx cancellation.
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poll calls check up to p.MaxAttempts times, sleeping p.Interval before
// each call, until check reports done. It returns the attempt that succeeded
// or ok=false when the bound was reached. A check error ends polling only
// when it is returned from stop.
func Poll(
	ctx context.Context,
	p RetryPolicy,
	s Sleeper,
	check func(attempt int) (done bool, stop error),
) (int, bool, error) {
	if s == nil {
		s = TimerSleeper{}
	}
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := s.Sleep(ctx, p.Interval); err != nil {
			return attempt, false, err
		}
		done, stop := check(attempt)
		if stop != nil {
			return attempt, false, stop
		}
		if done {
			return attempt, true, nil
		}
	}
	return p.MaxAttempts, false, nil
}
