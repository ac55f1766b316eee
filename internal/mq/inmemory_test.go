package mq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cozy-creator/xray-classifier/internal/config"
)

func TestInMemoryPublishReceive(t *testing.T) {
	q, err := NewInMemoryMQ(2)
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, "events", []byte("a")))
	require.NoError(t, q.Publish(ctx, "events", []byte("b")))
	assert.ErrorIs(t, q.Publish(ctx, "events", []byte("c")), ErrQueueFull)

	for _, want := range []string{"a", "b"} {
		msg, err := q.Receive(ctx, "events")
		require.NoError(t, err)
		data, err := q.GetMessageData(msg)
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
		assert.NoError(t, q.Ack("events", msg))
	}
}

func TestInMemoryReceiveHonoursContext(t *testing.T) {
	q, _ := NewInMemoryMQ(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Receive(ctx, "empty")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInMemoryClose(t *testing.T) {
	q, _ := NewInMemoryMQ(1)
	assert.ErrorIs(t, q.CloseTopic("unknown"), ErrTopicNotExists)

	require.NoError(t, q.Publish(context.Background(), "t", []byte("x")))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Publish(context.Background(), "t", []byte("y")), ErrQueueClosed)
}

func TestNewMQDefaultsToInMemory(t *testing.T) {
	q, err := NewMQ(nil)
	require.NoError(t, err)
	assert.IsType(t, &InMemoryMQ{}, q)

	q, err = NewMQ(&config.EventsConfig{QueueSize: 3, Pulsar: &config.PulsarConfig{}})
	require.NoError(t, err)
	assert.Equal(t, 3, q.(*InMemoryMQ).maxSize)
}
