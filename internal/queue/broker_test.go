package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelBroker_EnqueueDequeueAck(t *testing.T) {
	b := NewChannelBroker(4, time.Minute)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Enqueue(ctx, "job-1"))

	token, jobID, err := b.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, 1, b.InFlight())

	require.NoError(t, b.Ack(token))
	assert.Equal(t, 0, b.InFlight())
}

func TestChannelBroker_AckUnknownToken(t *testing.T) {
	b := NewChannelBroker(4, time.Minute)
	defer b.Close()

	err := b.Ack("not-a-real-token")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestChannelBroker_NackRequeueRedelivers(t *testing.T) {
	b := NewChannelBroker(4, time.Minute)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Enqueue(ctx, "job-1"))

	token, _, err := b.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Nack(token, true))

	_, jobID, err := b.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
}

func TestChannelBroker_NackDiscardDoesNotRedeliver(t *testing.T) {
	b := NewChannelBroker(4, time.Minute)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Enqueue(ctx, "job-1"))

	token, _, err := b.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Nack(token, false))

	ctx2, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, _, err = b.Dequeue(ctx2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannelBroker_VisibilityTimeoutRedelivers(t *testing.T) {
	b := NewChannelBroker(4, 20*time.Millisecond)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Enqueue(ctx, "job-1"))

	_, _, err := b.Dequeue(ctx)
	require.NoError(t, err)

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, jobID, err := b.Dequeue(ctx2)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
}

func TestChannelBroker_DequeueAfterCloseReturnsErrClosed(t *testing.T) {
	b := NewChannelBroker(1, time.Minute)
	b.Close()

	ctx := context.Background()
	_, _, err := b.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}
