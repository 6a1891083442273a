// Package poll runs a check repeatedly on a fixed interval until it reports
// completion or the attempt budget runs out.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned when every attempt ran without the check completing.
var ErrExhausted = errors.New("poll attempts exhausted")

// CheckFunc is called once per attempt (1-based). Returning done=true stops
// polling successfully; a non-nil error stops polling with that error.
type CheckFunc func(ctx context.Context, attempt int) (done bool, err error)

// Policy bounds a poll loop
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

// Ceiling is the longest a loop under this policy waits between attempts in total.
func (p Policy) Ceiling() time.Duration {
	return time.Duration(p.MaxAttempts) * p.Interval
}

// Until runs check until it completes, fails, the attempts are used up or ctx ends.
func (p Policy) Until(ctx context.Context, check CheckFunc) error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("%w: no attempts allowed", ErrExhausted)
	}

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := check(ctx, attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Interval):
		}
	}

	return fmt.Errorf("%w: %d attempts over %v", ErrExhausted, p.MaxAttempts, p.Ceiling())
}
