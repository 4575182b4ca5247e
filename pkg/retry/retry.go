// Package retry implements the bounded fixed-interval retry wrapper used
// around database statements and HTTP downloads (spec §4.3, C3): a
// configurable attempt count and a fixed delay — explicitly not
// exponential backoff, per spec. notesd's configured defaults are 3
// attempts 2s apart (config.Default); Do itself treats Attempts <= 0 as a
// single attempt.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config carries the attempt count and fixed delay.
type Config struct {
	Attempts int
	Delay    time.Duration
}

// Do runs op, retrying up to cfg.Attempts times (including the first try)
// with a fixed cfg.Delay between attempts. The last error is returned
// unchanged if every attempt fails (spec: "surfaces the last error
// unchanged").
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	constant := backoff.NewConstantBackOff(cfg.Delay)
	bounded := backoff.WithMaxRetries(constant, uint64(cfg.Attempts-1))
	withCtx := backoff.WithContext(bounded, ctx)

	return backoff.Retry(func() error {
		return op(ctx)
	}, withCtx)
}

// DoValue is the generic-result variant: op returns (T, error); the last
// successful T is returned alongside a nil error, or the zero value
// alongside the last error once attempts are exhausted.
func DoValue[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
