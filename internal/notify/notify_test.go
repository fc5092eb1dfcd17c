package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentora/payments/internal/retry"
)

func sample() Notification {
	return Notification{
		PayeeID:   "agent-1",
		Kind:      KindPaymentReceived,
		PaymentID: "pay-1",
		JobID:     "visit-1",
		JobType:   "VISIT",
		Amount:    460_000,
		Currency:  "USD",
		SentAt:    time.Now().UTC(),
	}
}

type flakyNotifier struct {
	failures int
	calls    int
}

func (f *flakyNotifier) Notify(ctx context.Context, n Notification) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("queue unavailable")
	}
	return nil
}

func TestRetryingNotifierRecovers(t *testing.T) {
	inner := &flakyNotifier{failures: 1}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := NewRetryingNotifier(inner, retry.Policy{
		MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2,
	}, logger)

	err := n.Notify(context.Background(), sample())

	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestRetryingNotifierSwallowsExhaustedFailure(t *testing.T) {
	inner := &flakyNotifier{failures: 10}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := NewRetryingNotifier(inner, retry.Policy{
		MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2,
	}, logger)

	err := n.Notify(context.Background(), sample())

	assert.NoError(t, err, "delivery failure must not reach the settlement path")
	assert.Equal(t, 3, inner.calls)
}

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSNotifierPublishesJSON(t *testing.T) {
	client := &fakeSQS{}
	n := NewSQSNotifierWithClient(client, "https://sqs.test/payee-notifications")

	msg := sample()
	require.NoError(t, n.Notify(context.Background(), msg))
	require.Len(t, client.inputs, 1)

	in := client.inputs[0]
	assert.Equal(t, "https://sqs.test/payee-notifications", *in.QueueUrl)

	var decoded Notification
	require.NoError(t, json.Unmarshal([]byte(*in.MessageBody), &decoded))
	assert.Equal(t, msg.PayeeID, decoded.PayeeID)
	assert.Equal(t, msg.Kind, decoded.Kind)
	assert.Equal(t, msg.Amount, decoded.Amount)

	attr, ok := in.MessageAttributes["kind"]
	require.True(t, ok)
	assert.Equal(t, string(KindPaymentReceived), *attr.StringValue)
}

func TestSQSNotifierSurfacesSendFailure(t *testing.T) {
	client := &fakeSQS{err: errors.New("throttled")}
	n := NewSQSNotifierWithClient(client, "https://sqs.test/payee-notifications")

	err := n.Notify(context.Background(), sample())

	assert.Error(t, err)
}
