package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/heatshop-checkout/internal/events"
)

type captureSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (c *captureSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.inputs = append(c.inputs, params)
	return &sqs.SendMessageOutput{}, nil
}

func TestPublisher_PublishEncodesEventAndAttributes(t *testing.T) {
	client := &captureSQS{}
	p := NewPublisher(client, "https://sqs.local/orders")

	err := p.Publish(context.Background(), events.OrderEvent{
		Type:           events.TypeOrderCreated,
		OrderID:        "o-1",
		OrderNumber:    "CMD-01",
		IdempotencyKey: "k-1",
		OccurredAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, client.inputs, 1)

	in := client.inputs[0]
	assert.Equal(t, "https://sqs.local/orders", *in.QueueUrl)
	decoded, err := events.Decode([]byte(*in.MessageBody))
	require.NoError(t, err)
	assert.Equal(t, "o-1", decoded.OrderID)
	assert.Equal(t, "order.created", *in.MessageAttributes["type"].StringValue)
	assert.Equal(t, "k-1", *in.MessageAttributes["idempotency_key"].StringValue)
	_, hasCorrelation := in.MessageAttributes["correlation_id"]
	assert.False(t, hasCorrelation)
}

func TestPublisher_SendFailureIsWrapped(t *testing.T) {
	boom := errors.New("throttled")
	p := NewPublisher(&captureSQS{err: boom}, "q")

	err := p.Publish(context.Background(), events.OrderEvent{Type: events.TypeOrderCreated, OrderID: "o-2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
