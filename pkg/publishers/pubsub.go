package publishers

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/Adda-Baaj/tweet-harvester/internal/logger"
	"google.golang.org/api/option"
)

// pubsubTopic is the part of a Pub/Sub topic the publisher needs.
type pubsubTopic interface {
	Publish(ctx context.Context, msg *pubsub.Message) (string, error)
	Stop()
}

// liveTopic waits on each publish result so errors surface per record.
type liveTopic struct {
	topic *pubsub.Topic
}

func (t liveTopic) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	return t.topic.Publish(ctx, msg).Get(ctx)
}

func (t liveTopic) Stop() { t.topic.Stop() }

type pubsubPublisher struct {
	id     string
	topic  pubsubTopic
	client interface{ Close() error }
	log    logger.Logger
}

func newPubSubPublisher(ctx context.Context, cfg PublisherConfig, log logger.Logger) (Publisher, error) {
	if cfg.PubSub == nil {
		return nil, fmt.Errorf("publisher %q: gcp_pubsub block is required", cfg.ID)
	}
	var opts []option.ClientOption
	if cfg.PubSub.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.PubSub.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("publisher %q: pubsub client: %w", cfg.ID, err)
	}
	return &pubsubPublisher{
		id:     cfg.ID,
		topic:  liveTopic{topic: client.Topic(cfg.PubSub.Topic)},
		client: client,
		log:    logger.Ensure(log),
	}, nil
}

func (p *pubsubPublisher) ID() string   { return p.id }
func (p *pubsubPublisher) Type() string { return TypePubSub }

func (p *pubsubPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := evt.body()
	if err != nil {
		return err
	}
	msgID, err := p.topic.Publish(ctx, &pubsub.Message{
		Data:       body,
		Attributes: evt.attributes(),
	})
	if err != nil {
		return fmt.Errorf("pubsub publish: %w", err)
	}
	p.log.DebugObj("record published", "publish_meta", map[string]any{
		"publisher_id": p.id,
		"record_id":    evt.Record.ID,
		"message_id":   msgID,
	})
	return nil
}

// Close flushes pending messages before releasing the client.
func (p *pubsubPublisher) Close() error {
	p.topic.Stop()
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
