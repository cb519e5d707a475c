// Package retry provides the bounded retry-with-backoff helper shared by
// the mirror copy loop and the adb pull path.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Do runs op up to attempts times, waiting delay between tries. It returns
// nil as soon as op succeeds, the last error once attempts are exhausted,
// or the context error if ctx is done first.
func Do(ctx context.Context, attempts uint64, delay time.Duration, op func() error) error {
	if attempts == 0 {
		attempts = 1
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), attempts-1),
		ctx,
	)
	return backoff.Retry(op, b)
}
