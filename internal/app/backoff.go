package app

import (
	"context"
	"time"

	"github.com/Adda-Baaj/tweet-harvester/internal/config"
	"github.com/cenkalti/backoff/v4"
)

// RestartPolicy builds the delay applied between crawl attempts. It never
// returns backoff.Stop: the supervisor retries until cancelled.
func RestartPolicy(cfg *config.Config) backoff.BackOff {
	if cfg == nil || cfg.RestartBackoff != "exponential" {
		delay := time.Minute
		if cfg != nil && cfg.RestartDelay > 0 {
			delay = cfg.RestartDelay
		}
		return backoff.NewConstantBackOff(delay)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.RestartDelay
	exp.MaxInterval = cfg.RestartMaxDelay
	exp.MaxElapsedTime = 0
	exp.Reset()
	return exp
}

// loginPolicy allows attempts tries separated by a fixed pause.
func loginPolicy(ctx context.Context, attempts int, pause time.Duration) backoff.BackOff {
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(pause), uint64(attempts-1)), ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
