package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shiplane/wallet-ledger/internal/config"
)

// DeadLetterProducer streams compensation entries that exhausted their retry
// budget to a dead-letter topic for operator review. Writes are synchronous:
// a dead-lettered refund is money owed to a tenant and must not be lost in an
// async buffer on shutdown.
type DeadLetterProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// NewDeadLetterProducer creates a dead-letter producer and ensures the topic
// exists. Returns a nil producer if cfg.DLQTopic is empty (dead-letter
// streaming disabled); callers treat nil as a no-op sink.
func NewDeadLetterProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*DeadLetterProducer, error) {
	if cfg.DLQTopic == "" {
		logger.Info("Dead-letter topic is not configured, dead-letter streaming disabled")
		return nil, nil
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for dead-letter producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.DLQTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure dead-letter topic %s exists: %w", cfg.DLQTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.DLQTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &DeadLetterProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.DLQTopic,
	}, nil
}

// Publish emits a dead-lettered compensation entry keyed by tenant. The entry
// payload is embedded verbatim so operators can replay it by hand.
func (p *DeadLetterProducer) Publish(ctx context.Context, key string, entryValue []byte, reason string) error {
	if p == nil || p.writer == nil {
		return nil
	}

	payload := struct {
		Entry     json.RawMessage `json:"entry"`
		Reason    string          `json:"reason"`
		Timestamp string          `json:"timestamp"`
	}{
		Entry:     entryValue,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}

	jsonValue, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal dead-letter payload: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
		Headers: []kafka.Header{
			{Key: "dead-letter-reason", Value: []byte(reason)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish dead-letter entry",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish dead-letter entry to %s: %w", p.topic, err)
	}

	p.logger.Info("Published dead-letter entry",
		"topic", p.topic,
		"key", key,
		"reason", reason,
	)
	return nil
}

func (p *DeadLetterProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	p.logger.Info("Closing dead-letter producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
