package infrastructure

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var _ events.Subscriber = (*SQSEventSubscriber)(nil)

const (
	SQSMessageIDKey     = "sqs_message_id"
	SQSReceiptHandleKey = "sqs_receipt_handle"
)

// SQSAPI is the part of the SQS client the subscriber needs
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

type sqsMessage struct {
	Message types.Message
	Event   *events.Event
	Err     error
}

// SQSEventSubscriber long-polls a queue and feeds decoded events to a handler.
//
// Readers receive messages, workers run the handler and cleaners acknowledge: a message
// is deleted when the handler succeeds and its visibility is extended when it fails, so
// SQS redelivers it later with a growing delay.
type SQSEventSubscriber struct {
	mux     sync.Mutex
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running atomic.Bool
	options *sqsSubscriberOptions

	client   SQSAPI
	queueURL string
	handler  events.EventHandler
	logger   *zap.Logger
}

type sqsSubscriberOptions struct {
	workers                        int32
	readers                        int32
	cleaners                       int32
	maxNumberOfMessages            int32
	waitTimeSeconds                int32
	visibilityTimeout              int32
	sleepTimeAfterEmptyReceive     time.Duration
	sleepTimeAfterError            time.Duration
	extendVisibilityTimeoutOnError bool
	receiveCountRange              int32
	visibilityTimeoutOffset        int32
	maxVisibilityTimeout           int32
}

type SQSSubscriberOption func(*sqsSubscriberOptions)

func WithWorkers(workers int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.workers = workers
	}
}

func WithReaders(readers int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.readers = readers
	}
}

func WithVisibilityTimeout(timeout int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.visibilityTimeout = timeout
	}
}

func WithWaitTime(seconds int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.waitTimeSeconds = seconds
	}
}

func WithIdleSleep(afterEmpty, afterError time.Duration) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.sleepTimeAfterEmptyReceive = afterEmpty
		o.sleepTimeAfterError = afterError
	}
}

// NewSQSEventSubscriber creates a subscriber for queueURL
func NewSQSEventSubscriber(client SQSAPI, queueURL string, logger *zap.Logger, opts ...SQSSubscriberOption) *SQSEventSubscriber {
	options := &sqsSubscriberOptions{
		workers:                        10,
		readers:                        1,
		cleaners:                       2,
		maxNumberOfMessages:            5,
		waitTimeSeconds:                15,
		visibilityTimeout:              30,
		sleepTimeAfterEmptyReceive:     time.Second,
		sleepTimeAfterError:            5 * time.Second,
		extendVisibilityTimeoutOnError: true,
		receiveCountRange:              3,
		visibilityTimeoutOffset:        30,
		maxVisibilityTimeout:           900,
	}

	for _, opt := range opts {
		opt(options)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &SQSEventSubscriber{
		client:   client,
		queueURL: queueURL,
		options:  options,
		logger:   logger.With(zap.String("queue_url", queueURL)),
	}
}

// Subscribe starts consuming the queue with handler until Stop is called or ctx ends
func (s *SQSEventSubscriber) Subscribe(ctx context.Context, handler events.EventHandler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	if s.running.Load() {
		return errors.New("subscriber is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	inbound := make(chan *sqsMessage, s.options.maxNumberOfMessages*s.options.readers)
	outbound := make(chan *sqsMessage, s.options.workers)
	s.handler = handler
	s.cancel = cancel

	s.spawn(int(s.options.readers), func() { s.startReader(ctx, inbound) })
	s.spawn(int(s.options.workers), func() { s.startWorker(ctx, inbound, outbound) })
	s.spawn(int(s.options.cleaners), func() { s.startCleaner(ctx, outbound) })

	s.running.Store(true)
	s.logger.Info("sqs subscriber started",
		zap.Int32("readers", s.options.readers),
		zap.Int32("workers", s.options.workers),
	)
	return nil
}

// Stop cancels polling and waits for in-flight messages to be handled
func (s *SQSEventSubscriber) Stop() error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if !s.running.Load() {
		return nil
	}

	s.cancel()
	s.wg.Wait()
	s.running.Store(false)

	s.logger.Info("sqs subscriber stopped")
	return nil
}

func (s *SQSEventSubscriber) spawn(n int, fn func()) {
	for i := 0; i < n; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			fn()
		}()
	}
}

func (s *SQSEventSubscriber) startReader(ctx context.Context, inbound chan<- *sqsMessage) {
	for ctx.Err() == nil {
		received, err := s.read(ctx, inbound)
		switch {
		case err != nil && ctx.Err() == nil:
			s.logger.Error("failed to receive messages", zap.Error(err))
			sleep(ctx, s.options.sleepTimeAfterError)
		case err == nil && received == 0:
			sleep(ctx, s.options.sleepTimeAfterEmptyReceive)
		}
	}
}

func (s *SQSEventSubscriber) startWorker(ctx context.Context, inbound <-chan *sqsMessage, outbound chan<- *sqsMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-inbound:
			message.Err = s.handler.Handle(ctx, message.Event)
			if message.Err != nil {
				s.logger.Warn("event handling failed",
					zap.String("topic", message.Event.Topic.String()),
					zap.String("event_id", message.Event.ID.String()),
					zap.String("correlation_id", message.Event.CorrelationID.String()),
					zap.Error(message.Err),
				)
			}

			select {
			case outbound <- message:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *SQSEventSubscriber) startCleaner(ctx context.Context, outbound <-chan *sqsMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-outbound:
			if err := s.clean(ctx, message); err != nil {
				s.logger.Error("failed to settle message", zap.Error(err))
			}
		}
	}
}

func (s *SQSEventSubscriber) read(ctx context.Context, inbound chan<- *sqsMessage) (int, error) {
	output, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: s.options.maxNumberOfMessages,
		WaitTimeSeconds:     s.options.waitTimeSeconds,
		VisibilityTimeout:   s.options.visibilityTimeout,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to receive message from SQS")
	}

	for _, message := range output.Messages {
		event, err := decodeEvent([]byte(aws.ToString(message.Body)))
		if err != nil {
			// poison messages are dropped so they do not block the queue
			s.logger.Error("dropping malformed message",
				zap.String("message_id", aws.ToString(message.MessageId)),
				zap.Error(err),
			)
			if err := s.delete(ctx, message); err != nil {
				s.logger.Error("failed to drop malformed message", zap.Error(err))
			}
			continue
		}

		event.Metadata[SQSMessageIDKey] = aws.ToString(message.MessageId)
		event.Metadata[SQSReceiptHandleKey] = aws.ToString(message.ReceiptHandle)
		for k, v := range message.MessageAttributes {
			if v.StringValue != nil {
				event.Metadata[k] = *v.StringValue
			}
		}
		if event.CorrelationID.IsEmpty() {
			if id, ok := event.Metadata.Get("correlation_id"); ok {
				event.CorrelationID = models.ID(id)
			}
		}

		select {
		case inbound <- &sqsMessage{Message: message, Event: event}:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	return len(output.Messages), nil
}

func (s *SQSEventSubscriber) clean(ctx context.Context, message *sqsMessage) error {
	if message.Err == nil {
		return s.delete(ctx, message.Message)
	}

	if !s.options.extendVisibilityTimeoutOnError {
		return nil
	}

	receiveCount, err := strconv.Atoi(message.Message.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil {
		receiveCount = 1
	}

	visibilityTimeout := s.options.visibilityTimeout
	visibilityTimeout += (int32(receiveCount) / s.options.receiveCountRange) * s.options.visibilityTimeoutOffset
	if visibilityTimeout > s.options.maxVisibilityTimeout {
		visibilityTimeout = s.options.maxVisibilityTimeout
	}

	_, err = s.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(s.queueURL),
		ReceiptHandle:     message.Message.ReceiptHandle,
		VisibilityTimeout: visibilityTimeout,
	})
	return errors.Wrap(err, "failed to extend visibility timeout")
}

func (s *SQSEventSubscriber) delete(ctx context.Context, message types.Message) error {
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: message.ReceiptHandle,
	})
	return errors.Wrap(err, "failed to delete message from SQS")
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
