package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	mu      sync.Mutex
	inputs  []*sns.PublishBatchInput
	failIDs map[string]bool
}

func (f *fakeSNS) PublishBatch(_ context.Context, params *sns.PublishBatchInput, _ ...func(*sns.Options)) (*sns.PublishBatchOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, params)

	out := &sns.PublishBatchOutput{}
	for _, entry := range params.PublishBatchRequestEntries {
		if f.failIDs[aws.ToString(entry.Id)] {
			out.Failed = append(out.Failed, snstypes.BatchResultErrorEntry{
				Id:      entry.Id,
				Code:    aws.String("InternalError"),
				Message: aws.String("boom"),
			})
		}
	}
	return out, nil
}

type allocationResult struct {
	DeviceID string `json:"device_id"`
}

func TestSNSEventPublisher_Publish(t *testing.T) {
	client := &fakeSNS{}
	publisher := NewSNSEventPublisher(client, "arn:aws:sns:us-east-1:000000000000:saga-events", nil)

	var evts []*events.Event
	for i := 0; i < 12; i++ {
		evts = append(evts, events.NewEvent("order-456", events.DeviceAllocationRequestedEvent, allocationResult{DeviceID: fmt.Sprint(i)}).
			WithCorrelationID("saga-1"))
	}

	require.NoError(t, publisher.Publish(context.Background(), evts...))

	require.Len(t, client.inputs, 2)
	sizes := []int{len(client.inputs[0].PublishBatchRequestEntries), len(client.inputs[1].PublishBatchRequestEntries)}
	assert.ElementsMatch(t, []int{10, 2}, sizes)

	entry := client.inputs[0].PublishBatchRequestEntries[0]
	assert.Equal(t, events.DeviceAllocationRequestedEvent, aws.ToString(entry.MessageAttributes["topic"].StringValue))
	assert.Equal(t, "saga-1", aws.ToString(entry.MessageAttributes["correlation_id"].StringValue))

	decoded, err := decodeEvent([]byte(aws.ToString(entry.Message)))
	require.NoError(t, err)
	assert.Equal(t, events.Topic(events.DeviceAllocationRequestedEvent), decoded.Topic)
	assert.Equal(t, "saga-1", decoded.CorrelationID.String())
	assert.Equal(t, "order-456", decoded.AggregateID.String())

	var payload allocationResult
	require.NoError(t, decoded.UnmarshalPayload(&payload))
	assert.NotEmpty(t, payload.DeviceID)
}

func TestSNSEventPublisher_ReportsRejectedEntries(t *testing.T) {
	event := events.NewEvent("user-1", events.UserRegisteredEvent, nil)
	client := &fakeSNS{failIDs: map[string]bool{event.ID.String(): true}}
	publisher := NewSNSEventPublisher(client, "arn", nil)

	err := publisher.Publish(context.Background(), event)
	assert.ErrorContains(t, err, "SNS rejected 1 of 1 events")

	assert.NoError(t, publisher.Publish(context.Background()))
}

func TestDecodeEvent(t *testing.T) {
	raw := `{"id":"e-1","aggregate_id":"order-1","topic":"device.allocation.completed","correlation_id":"saga-7","data":{"device_id":"device-123"}}`
	notification, err := json.Marshal(map[string]string{"Type": "Notification", "Message": raw})
	require.NoError(t, err)

	tests := []struct {
		name          string
		body          string
		expectedError bool
	}{
		{name: "raw delivery", body: raw},
		{name: "sns notification", body: string(notification)},
		{name: "not json", body: "{", expectedError: true},
		{name: "no topic", body: `{"id":"e-1","data":{}}`, expectedError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := decodeEvent([]byte(tt.body))
			if tt.expectedError {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "saga-7", event.CorrelationID.String())
			assert.Equal(t, events.DeviceAllocationCompletedEvent, event.EventType)

			var payload allocationResult
			require.NoError(t, event.UnmarshalPayload(&payload))
			assert.Equal(t, "device-123", payload.DeviceID)
		})
	}
}

type fakeSQS struct {
	mu       sync.Mutex
	pending  []sqstypes.Message
	deleted  []string
	extended []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	messages := f.pending
	f.pending = nil
	return &sqs.ReceiveMessageOutput{Messages: messages}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) ChangeMessageVisibility(_ context.Context, params *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extended = append(f.extended, aws.ToString(params.ReceiptHandle))
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func (f *fakeSQS) snapshot() (deleted, extended []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...), append([]string(nil), f.extended...)
}

func sqsMessageFor(t *testing.T, receipt string, event *events.Event) sqstypes.Message {
	t.Helper()
	body, err := encodeEvent(event)
	require.NoError(t, err)
	return sqstypes.Message{
		MessageId:     aws.String("m-" + receipt),
		ReceiptHandle: aws.String(receipt),
		Body:          aws.String(string(body)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func TestSQSEventSubscriber_SettlesMessages(t *testing.T) {
	completed := events.NewEvent("order-1", events.DeviceAllocationCompletedEvent, allocationResult{DeviceID: "device-123"}).
		WithCorrelationID("saga-ok")
	failed := events.NewEvent("order-2", events.DeviceAllocationFailedEvent, nil).
		WithCorrelationID("saga-broken")

	client := &fakeSQS{pending: []sqstypes.Message{
		sqsMessageFor(t, "r-ok", completed),
		sqsMessageFor(t, "r-fail", failed),
		{MessageId: aws.String("m-bad"), ReceiptHandle: aws.String("r-bad"), Body: aws.String("not json")},
	}}

	var mu sync.Mutex
	var handled []string
	handler := events.HandlerFunc(func(_ context.Context, event *events.Event) error {
		mu.Lock()
		handled = append(handled, event.CorrelationID.String())
		mu.Unlock()
		if event.CorrelationID == "saga-broken" {
			return errors.New("store unavailable")
		}
		return nil
	})

	subscriber := NewSQSEventSubscriber(client, "https://sqs.local/queue", nil,
		WithWorkers(2),
		WithIdleSleep(time.Millisecond, time.Millisecond),
	)
	require.NoError(t, subscriber.Subscribe(context.Background(), handler))
	assert.Error(t, subscriber.Subscribe(context.Background(), handler), "already running")

	assert.Eventually(t, func() bool {
		deleted, extended := client.snapshot()
		return len(deleted) == 2 && len(extended) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, subscriber.Stop())
	require.NoError(t, subscriber.Stop())

	deleted, extended := client.snapshot()
	assert.ElementsMatch(t, []string{"r-ok", "r-bad"}, deleted)
	assert.Equal(t, []string{"r-fail"}, extended)

	mu.Lock()
	assert.ElementsMatch(t, []string{"saga-ok", "saga-broken"}, handled)
	mu.Unlock()
}
