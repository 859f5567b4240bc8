package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSQSClient struct {
	sendMessageFunc func(ctx context.Context, input *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

func (m *mockSQSClient) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if m.sendMessageFunc != nil {
		return m.sendMessageFunc(ctx, params, optFns...)
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSPublisher_StandardQueue(t *testing.T) {
	var sent *sqs.SendMessageInput
	p := NewSQSPublisher(&mockSQSClient{
		sendMessageFunc: func(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
			sent = in
			return &sqs.SendMessageOutput{}, nil
		},
	}, "https://sqs.local/000/releases")

	e := New(SignatureRequested, "user", "release", "sr1", "sr2")
	require.NoError(t, p.Publish(context.Background(), e))

	require.NotNil(t, sent)
	assert.Equal(t, "https://sqs.local/000/releases", aws.ToString(sent.QueueUrl))
	assert.Nil(t, sent.MessageGroupId)
	assert.Equal(t, "signature.requested", aws.ToString(sent.MessageAttributes["type"].StringValue))

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(sent.MessageBody)), &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, []string{"sr1", "sr2"}, decoded.RequestIDs)
}

func TestSQSPublisher_FifoQueue(t *testing.T) {
	var sent *sqs.SendMessageInput
	p := NewSQSPublisher(&mockSQSClient{
		sendMessageFunc: func(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
			sent = in
			return &sqs.SendMessageOutput{}, nil
		},
	}, "https://sqs.local/000/releases.fifo")

	e := New(ReleaseSaved, "user-1", "release")
	require.NoError(t, p.Publish(context.Background(), e))

	assert.Equal(t, "user-1", aws.ToString(sent.MessageGroupId))
	assert.Equal(t, e.ID, aws.ToString(sent.MessageDeduplicationId))
}

func TestSQSPublisher_SendError(t *testing.T) {
	p := NewSQSPublisher(&mockSQSClient{
		sendMessageFunc: func(context.Context, *sqs.SendMessageInput, ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
			return nil, errors.New("throttled")
		},
	}, "q")

	err := p.Publish(context.Background(), New(ReleaseDeleted, "u", "r"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send SQS message")
}

func TestNew_StampsIDAndTime(t *testing.T) {
	a := New(ReleaseSaved, "u", "r")
	b := New(ReleaseSaved, "u", "r")
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.OccurredAt.IsZero())
	assert.NoError(t, Nop{}.Publish(context.Background(), a))
}
