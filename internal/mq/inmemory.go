package mq

import (
	"context"
	"fmt"
	"sync"
)

type InMemoryMQ struct {
	maxSize   int
	topics    sync.Map
	closeCh   chan struct{}
	closeOnce sync.Once
}

func NewInMemoryMQ(maxSize int) (*InMemoryMQ, error) {
	return &InMemoryMQ{
		maxSize: maxSize,
		closeCh: make(chan struct{}),
	}, nil
}

func (q *InMemoryMQ) topic(name string) chan []byte {
	value, _ := q.topics.LoadOrStore(name, make(chan []byte, q.maxSize))
	return value.(chan []byte)
}

func (q *InMemoryMQ) Publish(ctx context.Context, topic string, message []byte) error {
	ch := q.topic(topic)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeCh:
		return ErrQueueClosed
	default:
	}

	select {
	case ch <- message:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *InMemoryMQ) Receive(ctx context.Context, topic string) (interface{}, error) {
	ch := q.topic(topic)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.closeCh:
		return nil, ErrQueueClosed
	case data, ok := <-ch:
		if !ok {
			q.topics.Delete(topic)
			return nil, ErrTopicClosed
		}
		return data, nil
	}
}

func (q *InMemoryMQ) GetMessageData(message interface{}) ([]byte, error) {
	data, ok := message.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected message type %T", message)
	}
	return data, nil
}

// Ack is a no-op: in-memory messages are gone once received.
func (q *InMemoryMQ) Ack(topic string, message interface{}) error {
	return nil
}

func (q *InMemoryMQ) CloseTopic(topic string) error {
	value, ok := q.topics.Load(topic)
	if !ok {
		return ErrTopicNotExists
	}

	close(value.(chan []byte))
	return nil
}

func (q *InMemoryMQ) Close() error {
	q.closeOnce.Do(func() { close(q.closeCh) })
	return nil
}
