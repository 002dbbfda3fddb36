package publishers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Adda-Baaj/tweet-harvester/internal/logger"
	"github.com/cenkalti/backoff/v4"
)

const (
	retryInitialWait = 200 * time.Millisecond
	retryMaxWait     = 5 * time.Second
)

type target struct {
	pub     Publisher
	retries int
}

// Fanout hands each event to every publisher in turn. A failing publisher is
// retried up to its configured count and never blocks the others.
type Fanout struct {
	targets []target
	log     logger.Logger

	closeOnce sync.Once
	closeErr  error

	// newBackOff is swapped in tests to avoid real waits.
	newBackOff func() backoff.BackOff
}

// NewFanout wraps already-built publishers without retries.
func NewFanout(pubs []Publisher, log logger.Logger) *Fanout {
	f := &Fanout{log: logger.Ensure(log)}
	for _, p := range pubs {
		if p != nil {
			f.targets = append(f.targets, target{pub: p})
		}
	}
	return f
}

// Publish returns how many publishers accepted evt and the joined errors of
// those that did not.
func (f *Fanout) Publish(ctx context.Context, evt Event) (int, error) {
	if f == nil {
		return 0, nil
	}
	delivered := 0
	var errs []error
	for _, t := range f.targets {
		if err := f.deliver(ctx, t, evt); err != nil {
			errs = append(errs, fmt.Errorf("%s publisher %q: %w", t.pub.Type(), t.pub.ID(), err))
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

func (f *Fanout) deliver(ctx context.Context, t target, evt Event) error {
	if t.retries == 0 {
		return t.pub.Publish(ctx, evt)
	}
	attempt := 0
	op := func() error {
		attempt++
		return t.pub.Publish(ctx, evt)
	}
	notify := func(err error, wait time.Duration) {
		f.log.WarnObj("publish failed, retrying", "publish_retry", map[string]any{
			"publisher_id": t.pub.ID(),
			"record_id":    evt.Record.ID,
			"attempt":      attempt,
			"wait":         wait.String(),
			"error":        err.Error(),
		})
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(f.backOff(), uint64(t.retries)), ctx)
	return backoff.RetryNotify(op, policy, notify)
}

func (f *Fanout) backOff() backoff.BackOff {
	if f.newBackOff != nil {
		return f.newBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialWait
	b.MaxInterval = retryMaxWait
	b.MaxElapsedTime = 0
	return b
}

// Size is the number of publishers behind the fanout.
func (f *Fanout) Size() int {
	if f == nil {
		return 0
	}
	return len(f.targets)
}

// Close releases every publisher once. Later calls return the first result.
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	f.closeOnce.Do(func() {
		f.closeErr = closeAll(f.targets)
	})
	return f.closeErr
}
