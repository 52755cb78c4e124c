package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/chat-moderation/internal/infra/config"
)

const clientID = "chat-moderation"

// ErrNoBrokers is returned when the producer is built without any broker address.
var ErrNoBrokers = errors.New("kafka: no brokers configured")

// Producer sends moderation events asynchronously. Delivery failures are
// logged and counted; they never propagate back to the admin request.
type Producer struct {
	producer sarama.AsyncProducer
	logger   *zap.Logger
	prefix   string
	failures atomic.Uint64
	stopped  chan struct{}
}

// NewProducer dials the configured brokers.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, newSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	logger.Info("kafka producer connected",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
	)
	return newProducer(producer, cfg, logger), nil
}

// newSaramaConfig keys messages by target so every event about one user or
// address lands on the same partition in order.
func newSaramaConfig() *sarama.Config {
	c := sarama.NewConfig()
	c.Version = sarama.V3_5_0_0
	c.ClientID = clientID

	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Partitioner = sarama.NewHashPartitioner
	c.Producer.Compression = sarama.CompressionSnappy
	c.Producer.Flush.Frequency = 50 * time.Millisecond
	c.Producer.Retry.Max = 5
	c.Producer.Return.Successes = false
	c.Producer.Return.Errors = true

	c.Metadata.Retry.Max = 3
	c.Metadata.Retry.Backoff = 250 * time.Millisecond
	return c
}

func newProducer(producer sarama.AsyncProducer, cfg config.KafkaSettings, logger *zap.Logger) *Producer {
	p := &Producer{
		producer: producer,
		logger:   logger,
		prefix:   cfg.TopicPrefix,
		stopped:  make(chan struct{}),
	}
	go p.drainErrors()
	return p
}

// drainErrors runs until the async producer closes its error channel.
func (p *Producer) drainErrors() {
	defer close(p.stopped)
	for perr := range p.producer.Errors() {
		if perr == nil {
			continue
		}
		p.failures.Add(1)
		topic := ""
		if perr.Msg != nil {
			topic = perr.Msg.Topic
		}
		p.logger.Error("moderation event delivery failed",
			zap.String("topic", topic),
			zap.Error(perr.Err),
		)
	}
}

// Send enqueues value on the prefixed topic for eventType.
func (p *Producer) Send(ctx context.Context, eventType, key string, value []byte) error {
	message := &sarama.ProducerMessage{
		Topic: p.TopicName(eventType),
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failures reports how many messages the brokers rejected after retries.
func (p *Producer) Failures() uint64 {
	return p.failures.Load()
}

// Close flushes buffered messages and waits for the error drain to finish.
func (p *Producer) Close() error {
	p.logger.Info("closing kafka producer")
	err := p.producer.Close()
	<-p.stopped
	if err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// TopicName returns the full topic name with prefix
func (p *Producer) TopicName(eventType string) string {
	if p.prefix == "" {
		return eventType
	}

	prefix := p.prefix + "."
	if strings.HasPrefix(eventType, prefix) {
		return eventType
	}
	return prefix + eventType
}
