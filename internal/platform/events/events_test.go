package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	"github.com/SscSPs/allowance_wallet/internal/platform/events"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() domain.Event {
	return domain.Event{
		Type:        domain.EventPaymentReserved,
		AggregateID: "txn-1",
		OccurredAt:  time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC),
		Data:        map[string]string{"amount": "12.50"},
	}
}

func TestRedisPublisher_AppendsToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	publisher := events.NewRedisPublisher(client, "allowance.transactions")
	ctx := context.Background()

	require.NoError(t, publisher.Publish(ctx, sampleEvent()))

	entries, err := client.XRange(ctx, "allowance.transactions", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EventPaymentReserved, entries[0].Values["type"])

	var decoded domain.Event
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["event"].(string)), &decoded))
	assert.Equal(t, "txn-1", decoded.AggregateID)
	assert.True(t, decoded.OccurredAt.Equal(sampleEvent().OccurredAt))
}

func TestRedisPublisher_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	err := events.NewRedisPublisher(client, "s").Publish(context.Background(), sampleEvent())

	assert.Error(t, err)
}

type fakeSender struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSender) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSPublisher_SendsJSONBody(t *testing.T) {
	sender := &fakeSender{}
	publisher := events.NewSQSPublisher(sender, "https://sqs.local/queue")

	require.NoError(t, publisher.Publish(context.Background(), sampleEvent()))

	require.Len(t, sender.inputs, 1)
	in := sender.inputs[0]
	assert.Equal(t, "https://sqs.local/queue", aws.ToString(in.QueueUrl))
	assert.Contains(t, aws.ToString(in.MessageBody), `"type":"payment.reserved"`)
	assert.Equal(t, domain.EventPaymentReserved, aws.ToString(in.MessageAttributes["type"].StringValue))
}

func TestSQSPublisher_WrapsSendError(t *testing.T) {
	boom := errors.New("throttled")
	publisher := events.NewSQSPublisher(&fakeSender{err: boom}, "q")

	err := publisher.Publish(context.Background(), sampleEvent())

	assert.ErrorIs(t, err, boom)
}

func TestBreakerPublisher_OpensAfterFailures(t *testing.T) {
	sender := &fakeSender{err: errors.New("down")}
	publisher := events.NewBreakerPublisher("sqs", events.NewSQSPublisher(sender, "q"), events.BreakerSettings{
		ConsecutiveFailures: 2,
		OpenTimeout:         time.Minute,
	})
	ctx := context.Background()

	assert.Error(t, publisher.Publish(ctx, sampleEvent()))
	assert.Error(t, publisher.Publish(ctx, sampleEvent()))
	err := publisher.Publish(ctx, sampleEvent())

	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, sender.inputs, 2)
	assert.Equal(t, "open", publisher.State())
}

func TestNoop(t *testing.T) {
	assert.NoError(t, events.Noop{}.Publish(context.Background(), sampleEvent()))
}
