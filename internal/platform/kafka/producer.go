// Package kafka wraps a franz-go client for fire-and-forget event publishing.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"punchclock/internal/platform/config"
)

// Message is a single record to publish.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
}

// DeliveryFunc is called once per message after the broker acknowledges or rejects it.
type DeliveryFunc func(msg Message, err error)

// Producer publishes records asynchronously. Produce never blocks on the broker.
type Producer struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

type Option func(*producerOptions)

type producerOptions struct {
	logger          *slog.Logger
	deliveryTimeout time.Duration
	linger          time.Duration
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *producerOptions) {
		o.logger = logger
	}
}

// WithDeliveryTimeout bounds how long a record may wait for acknowledgement.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(o *producerOptions) {
		o.deliveryTimeout = d
	}
}

// NewProducer builds a producer for the configured brokers.
// Returns nil if no brokers are configured.
func NewProducer(cfg config.KafkaConfig, opts ...Option) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	o := producerOptions{
		logger:          slog.Default(),
		deliveryTimeout: 10 * time.Second,
		linger:          5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&o)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerLinger(o.linger),
		kgo.RecordDeliveryTimeout(o.deliveryTimeout),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Producer{client: client, topic: cfg.Topic, logger: o.logger}, nil
}

// Topic is the default topic records are produced to.
func (p *Producer) Topic() string {
	return p.topic
}

// EnsureTopic creates the default topic if it does not exist.
func (p *Producer) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	adm := kadm.NewClient(p.client)
	resps, err := adm.CreateTopics(ctx, partitions, replication, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	for _, resp := range resps {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}

// Produce enqueues msg and returns immediately. done may be nil.
// The record is detached from ctx cancellation so a finished request does not abort delivery.
func (p *Producer) Produce(ctx context.Context, msg Message, done DeliveryFunc) {
	topic := msg.Topic
	if topic == "" {
		topic = p.topic
	}
	record := &kgo.Record{Topic: topic, Key: msg.Key, Value: msg.Value}
	p.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.WarnContext(ctx, "kafka delivery failed",
				"topic", r.Topic,
				"key", string(r.Key),
				"error", err,
			)
		}
		if done != nil {
			done(Message{Topic: r.Topic, Key: r.Key, Value: r.Value}, err)
		}
	})
}

// Health pings the cluster.
func (p *Producer) Health(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes buffered records then closes the client.
func (p *Producer) Close(ctx context.Context) error {
	err := p.client.Flush(ctx)
	p.client.Close()
	return err
}
