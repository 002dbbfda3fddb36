package publishers

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adda-Baaj/tweet-harvester/internal/logger"
)

// Publisher delivers accepted records to one downstream destination.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Builder turns a validated config entry into a live Publisher.
type Builder func(ctx context.Context, cfg PublisherConfig, log logger.Logger) (Publisher, error)

// Builders maps a publisher type to its Builder.
type Builders map[string]Builder

// DefaultBuilders knows every type a publishers file may declare.
func DefaultBuilders() Builders {
	return Builders{
		TypeHTTP:   newHTTPPublisher,
		TypeSQS:    newSQSPublisher,
		TypeSNS:    newSNSPublisher,
		TypePubSub: newPubSubPublisher,
	}
}

// Build creates the publisher for cfg.
func (b Builders) Build(ctx context.Context, cfg PublisherConfig, log logger.Logger) (Publisher, error) {
	build, ok := b[cfg.Type]
	if !ok || build == nil {
		return nil, fmt.Errorf("publisher %q: no builder for type %q", cfg.ID, cfg.Type)
	}
	return build(ctx, cfg, logger.Ensure(log))
}

// BuildFanout builds every entry and wraps them in a Fanout. If any entry
// fails the ones already built are closed.
func BuildFanout(ctx context.Context, b Builders, cfgs []PublisherConfig, log logger.Logger) (*Fanout, error) {
	targets := make([]target, 0, len(cfgs))
	for _, cfg := range cfgs {
		pub, err := b.Build(ctx, cfg, log)
		if err != nil {
			_ = closeAll(targets)
			return nil, err
		}
		targets = append(targets, target{pub: pub, retries: cfg.Retries})
	}
	return &Fanout{targets: targets, log: logger.Ensure(log)}, nil
}

func closeAll(targets []target) error {
	var errs []error
	for _, t := range targets {
		if err := t.pub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s publisher %q: %w", t.pub.Type(), t.pub.ID(), err))
		}
	}
	return errors.Join(errs...)
}
