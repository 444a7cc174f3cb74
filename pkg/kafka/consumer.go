// Package kafka carries snapshot announcements between the index builder and
// the search service over segmentio/kafka-go. A build publishes a
// SnapshotEvent after storing an index; searchers consume the topic and
// reload when the announced key is the one they serve.
package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/config"
	"github.com/segmentio/kafka-go"
)

// MessageHandler processes one message. Returning an error leaves the
// message uncommitted.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic and dispatches each message to a MessageHandler.
type Consumer struct {
	reader       messageReader
	handler      MessageHandler
	fetchBackoff time.Duration
	logger       *slog.Logger
}

// NewConsumer creates a Consumer in cfg.ConsumerGroup. Only messages
// published after the group first joins are read: an announcement older
// than the searcher's startup load describes a snapshot it already has.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		MaxWait:     time.Second,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r messageReader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:       r,
		handler:      handler,
		fetchBackoff: time.Second,
		logger:       slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Run consumes until ctx is cancelled, then closes the reader. Fetch errors
// are logged and retried after a pause.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.fetchBackoff):
			}
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}
