package publishers

import (
	"context"
	"fmt"
	"strings"

	"github.com/Adda-Baaj/tweet-harvester/internal/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// sqsPublisher enqueues one message per record. The record id doubles as the
// deduplication id on FIFO queues.
type sqsPublisher struct {
	id       string
	queueURL string
	fifo     bool
	api      sqsAPI
	log      logger.Logger
}

func newSQSPublisher(ctx context.Context, cfg PublisherConfig, log logger.Logger) (Publisher, error) {
	if cfg.SQS == nil {
		return nil, fmt.Errorf("publisher %q: sqs block is required", cfg.ID)
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.SQS.Region))
	if err != nil {
		return nil, fmt.Errorf("publisher %q: load aws config: %w", cfg.ID, err)
	}
	return &sqsPublisher{
		id:       cfg.ID,
		queueURL: cfg.SQS.QueueURL,
		fifo:     isFIFOQueue(cfg.SQS.QueueURL),
		api:      sqs.NewFromConfig(awsCfg),
		log:      logger.Ensure(log),
	}, nil
}

func isFIFOQueue(url string) bool {
	return strings.HasSuffix(url, ".fifo")
}

func (s *sqsPublisher) ID() string   { return s.id }
func (s *sqsPublisher) Type() string { return TypeSQS }
func (s *sqsPublisher) Close() error { return nil }

func (s *sqsPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := evt.body()
	if err != nil {
		return err
	}
	attrs := evt.attributes()
	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: make(map[string]sqstypes.MessageAttributeValue, len(attrs)),
	}
	for k, v := range attrs {
		dataType := "String"
		if k == "record_id" {
			dataType = "Number"
		}
		input.MessageAttributes[k] = sqstypes.MessageAttributeValue{
			DataType:    aws.String(dataType),
			StringValue: aws.String(v),
		}
	}
	if s.fifo {
		input.MessageGroupId = aws.String(evt.Query)
		input.MessageDeduplicationId = aws.String(attrs["record_id"])
	}

	out, err := s.api.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	s.log.DebugObj("record enqueued", "publish_meta", map[string]any{
		"publisher_id": s.id,
		"record_id":    evt.Record.ID,
		"message_id":   aws.ToString(out.MessageId),
	})
	return nil
}
