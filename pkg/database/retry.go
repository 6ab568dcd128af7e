package database

import (
	"context"
	"errors"
	"time"

	"github.com/medrex/hms-scheduling/pkg/types"
)

// RetryPolicy bounds the internal retries of StoreBusy failures
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	// OnRetry is called before each retry with the failed attempt number
	OnRetry func(attempt int, err error)
}

// Retry runs fn until it succeeds, fails with anything other than StoreBusy,
// or the attempts are used up. The wait doubles after every failed attempt.
func (p RetryPolicy) Retry(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, types.ErrStoreBusy) || attempt == attempts {
			return err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		wait := p.Backoff << (attempt - 1)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
