// Package retry provides the bounded backoff policies used wherever the
// pipeline waits after a failure: SQLite busy retries in the ledger and the
// pause applied when many consecutive rows fail to decode.
package retry

import (
	"context"
	"time"
)

// Policy bounds an exponential retry loop.
type Policy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. The delay doubles after every retry up to Max.
func Do(ctx context.Context, policy Policy, retryable func(error) bool, op func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := policy.Initial
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if retryable == nil || !retryable(lastErr) || attempt == attempts-1 {
			break
		}
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
		delay = next(delay, policy.Max)
	}
	return lastErr
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func next(delay, limit time.Duration) time.Duration {
	if delay <= 0 {
		return limit
	}
	doubled := delay * 2
	if limit > 0 && doubled > limit {
		return limit
	}
	return doubled
}

// Backoff tracks consecutive failures at one call site. The first Threshold-1
// failures pass without delay; from then on each failure pauses, doubling the
// pause up to Max. A success resets the streak.
type Backoff struct {
	Threshold int
	Initial   time.Duration
	Max       time.Duration

	streak int
	delay  time.Duration
	sleep  func(context.Context, time.Duration) error
}

// NewBackoff builds a failure-streak backoff.
func NewBackoff(threshold int, initial, max time.Duration) *Backoff {
	if threshold <= 0 {
		threshold = 1
	}
	if max < initial {
		max = initial
	}
	return &Backoff{Threshold: threshold, Initial: initial, Max: max, sleep: Sleep}
}

// Failure records a failure and pauses when the streak has reached the
// threshold. It returns the pause applied and ctx's error if the wait was cut
// short.
func (b *Backoff) Failure(ctx context.Context) (time.Duration, error) {
	if b == nil {
		return 0, nil
	}
	b.streak++
	if b.streak < b.Threshold {
		return 0, nil
	}
	if b.delay == 0 {
		b.delay = b.Initial
	} else {
		b.delay = next(b.delay, b.Max)
	}
	wait := b.delay
	sleep := b.sleep
	if sleep == nil {
		sleep = Sleep
	}
	return wait, sleep(ctx, wait)
}

// Success ends the current failure streak.
func (b *Backoff) Success() {
	if b == nil {
		return
	}
	b.streak = 0
	b.delay = 0
}

// Streak reports the current number of consecutive failures.
func (b *Backoff) Streak() int {
	if b == nil {
		return 0
	}
	return b.streak
}
