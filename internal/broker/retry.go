package broker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// ConnectWithRetry connects the gateway, retrying up to retries times with a
// fixed delay. Rejected credentials are not retried.
func ConnectWithRetry(ctx context.Context, gw Gateway, retries int, delay time.Duration, logger zerolog.Logger) error {
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(retries)),
		ctx,
	)
	op := func() error {
		err := gw.Connect(ctx)
		if errors.Is(err, ErrAuthRejected) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn().Err(err).Str("broker", gw.Name()).Dur("retry_in", wait).Msg("broker connect failed")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return err
	}
	logger.Info().Str("broker", gw.Name()).Msg("broker connected")
	return nil
}
