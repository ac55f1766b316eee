package mq

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/cozy-creator/xray-classifier/internal/config"
)

type PulsarMQ struct {
	client    pulsar.Client
	producers sync.Map
	consumers sync.Map
}

func NewPulsarMQ(config *config.PulsarConfig) (*PulsarMQ, error) {
	client, err := newPulsarClient(config)
	if err != nil {
		return nil, err
	}

	return &PulsarMQ{
		client: client,
	}, nil
}

func (mq *PulsarMQ) Publish(ctx context.Context, topic string, message []byte) error {
	producer, err := mq.getProducer(topic)
	if err != nil {
		return err
	}

	_, err = producer.Send(ctx, &pulsar.ProducerMessage{Payload: message})
	return err
}

func (mq *PulsarMQ) Receive(ctx context.Context, topic string) (interface{}, error) {
	consumer, err := mq.getConsumer(topic)
	if err != nil {
		return nil, err
	}

	return consumer.Receive(ctx)
}

func (mq *PulsarMQ) GetMessageData(message interface{}) ([]byte, error) {
	msg, ok := message.(pulsar.Message)
	if !ok {
		return nil, fmt.Errorf("unexpected message type %T", message)
	}
	return msg.Payload(), nil
}

func (mq *PulsarMQ) CloseTopic(topic string) error {
	if producer, ok := mq.producers.LoadAndDelete(topic); ok {
		producer.(pulsar.Producer).Close()
	}

	if consumer, ok := mq.consumers.LoadAndDelete(topic); ok {
		consumer.(pulsar.Consumer).Close()
	}

	return nil
}

func (mq *PulsarMQ) Close() error {
	mq.producers.Range(func(key, value any) bool {
		value.(pulsar.Producer).Close()
		return true
	})
	mq.consumers.Range(func(key, value any) bool {
		value.(pulsar.Consumer).Close()
		return true
	})
	mq.client.Close()
	return nil
}

func (mq *PulsarMQ) Ack(topic string, message interface{}) error {
	consumer, err := mq.getConsumer(topic)
	if err != nil {
		return err
	}

	msg, ok := message.(pulsar.Message)
	if !ok {
		return fmt.Errorf("unexpected message type %T", message)
	}
	return consumer.Ack(msg)
}

func (mq *PulsarMQ) getProducer(topic string) (pulsar.Producer, error) {
	if value, ok := mq.producers.Load(topic); ok {
		return value.(pulsar.Producer), nil
	}

	producer, err := newProducer(mq.client, topic)
	if err != nil {
		return nil, err
	}

	if existing, loaded := mq.producers.LoadOrStore(topic, producer); loaded {
		producer.Close()
		return existing.(pulsar.Producer), nil
	}
	return producer, nil
}

func (mq *PulsarMQ) getConsumer(topic string) (pulsar.Consumer, error) {
	if value, ok := mq.consumers.Load(topic); ok {
		return value.(pulsar.Consumer), nil
	}

	consumer, err := newConsumer(mq.client, topic)
	if err != nil {
		return nil, err
	}

	if existing, loaded := mq.consumers.LoadOrStore(topic, consumer); loaded {
		consumer.Close()
		return existing.(pulsar.Consumer), nil
	}
	return consumer, nil
}

func newPulsarClient(config *config.PulsarConfig) (pulsar.Client, error) {
	options := pulsar.ClientOptions{
		URL: config.URL,
	}

	return pulsar.NewClient(options)
}

func newProducer(client pulsar.Client, topic string) (pulsar.Producer, error) {
	options := pulsar.ProducerOptions{
		Topic: topic,
	}

	return client.CreateProducer(options)
}

func newConsumer(client pulsar.Client, topic string) (pulsar.Consumer, error) {
	options := pulsar.ConsumerOptions{
		Topic:            topic,
		Type:             pulsar.Exclusive,
		SubscriptionName: strings.ReplaceAll(topic, "/", "-"),
	}

	return client.Subscribe(options)
}
