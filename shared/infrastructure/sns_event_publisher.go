package infrastructure

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var _ events.Publisher = (*SNSEventPublisher)(nil)

// SNS accepts at most ten entries per PublishBatch call
const maxBatchSize = 10

// SNSPublishAPI is the part of the SNS client the publisher needs
type SNSPublishAPI interface {
	PublishBatch(ctx context.Context, params *sns.PublishBatchInput, optFns ...func(*sns.Options)) (*sns.PublishBatchOutput, error)
}

// SNSEventPublisher publishes events to an SNS topic
type SNSEventPublisher struct {
	client   SNSPublishAPI
	topicArn string
	logger   *zap.Logger
}

func NewSNSEventPublisher(client SNSPublishAPI, topicArn string, logger *zap.Logger) *SNSEventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SNSEventPublisher{
		client:   client,
		topicArn: topicArn,
		logger:   logger,
	}
}

// Publish sends events in batches; batches are published concurrently
func (p *SNSEventPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	gr, ctx := errgroup.WithContext(ctx)
	for _, batch := range splitToChunks(evts, maxBatchSize) {
		batch := batch
		gr.Go(func() error {
			return p.batchPublish(ctx, batch)
		})
	}

	return gr.Wait()
}

func (p *SNSEventPublisher) batchPublish(ctx context.Context, batch []*events.Event) error {
	entries := make([]types.PublishBatchRequestEntry, len(batch))

	for i, event := range batch {
		body, err := encodeEvent(event)
		if err != nil {
			return errors.Wrapf(err, "event %s", event.ID)
		}

		attrs := map[string]types.MessageAttributeValue{
			"topic": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.Topic.String()),
			},
		}
		if !event.CorrelationID.IsEmpty() {
			attrs["correlation_id"] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(event.CorrelationID.String()),
			}
		}

		entries[i] = types.PublishBatchRequestEntry{
			Id:                aws.String(event.ID.String()),
			Message:           aws.String(string(body)),
			MessageAttributes: attrs,
		}
	}

	res, err := p.client.PublishBatch(ctx, &sns.PublishBatchInput{
		TopicArn:                   aws.String(p.topicArn),
		PublishBatchRequestEntries: entries,
	})
	if err != nil {
		return errors.Wrap(err, "failed to publish batch to SNS")
	}

	if len(res.Failed) > 0 {
		failed := make([]string, 0, len(res.Failed))
		for _, entry := range res.Failed {
			id := aws.ToString(entry.Id)
			failed = append(failed, id)
			p.logger.Error("event rejected by SNS",
				zap.String("event_id", id),
				zap.String("code", aws.ToString(entry.Code)),
				zap.String("reason", aws.ToString(entry.Message)),
			)
		}
		return errors.Errorf("SNS rejected %d of %d events: %s", len(failed), len(batch), strings.Join(failed, ","))
	}

	for _, event := range batch {
		p.logger.Debug("event published",
			zap.String("event_id", event.ID.String()),
			zap.String("topic", event.Topic.String()),
			zap.String("correlation_id", event.CorrelationID.String()),
		)
	}
	return nil
}

// splitToChunks splits slice into chunks of specified size
func splitToChunks[T any](slice []T, chunkSize int) [][]T {
	var chunks [][]T
	for i := 0; i < len(slice); i += chunkSize {
		end := i + chunkSize
		if end > len(slice) {
			end = len(slice)
		}
		chunks = append(chunks, slice[i:end])
	}
	return chunks
}
