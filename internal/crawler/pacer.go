package crawler

import (
	"context"
	"math/rand"
	"time"
)

// Pacer blocks for a duration drawn from [min, max].
type Pacer interface {
	Pause(ctx context.Context, min, max time.Duration) error
}

// JitterPacer sleeps for a uniformly random duration so requests do not land
// on a fixed interval.
type JitterPacer struct{}

func (JitterPacer) Pause(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min)))
	}
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

// NopPacer never sleeps. It still reports cancellation.
type NopPacer struct{}

func (NopPacer) Pause(ctx context.Context, _, _ time.Duration) error { return ctx.Err() }
