// Package consumer feeds the memory core from Kafka: dialogue messages keep
// the short-term buffer current, extracted fact candidates flow into
// long-term storage.
package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"mnemo/internal/database/kafka"
	"mnemo/internal/ltm"
	"mnemo/internal/models"
	"mnemo/internal/shortterm"
	"mnemo/pkg/logger"
)

// KafkaConsumer runs one consume loop per topic.
type KafkaConsumer struct {
	kafkaClient *kafka.Client
	memory      *ltm.Manager
	history     *shortterm.History
	logger      *logger.Logger
}

// NewKafkaConsumer creates a consumer over the shared Kafka client. The
// history may be nil when Redis is unavailable; dialogue messages are then
// dropped with a warning.
func NewKafkaConsumer(kafkaClient *kafka.Client, memory *ltm.Manager, history *shortterm.History, logger *logger.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		kafkaClient: kafkaClient,
		memory:      memory,
		history:     history,
		logger:      logger,
	}
}

// Start launches the consume loops and returns immediately. The loops exit
// when ctx is cancelled.
func (c *KafkaConsumer) Start(ctx context.Context) {
	cfg := c.kafkaClient.Config
	go c.consume(ctx, cfg.MessagesTopic, c.handleMessage)
	go c.consume(ctx, cfg.CandidatesTopic, c.handleCandidate)
}

func (c *KafkaConsumer) consume(ctx context.Context, topic string, handle func(context.Context, []byte) error) {
	reader := c.kafkaClient.NewReader(topic)
	defer reader.Close()

	c.logger.WithPayload(map[string]interface{}{"topic": topic}).Info("kafka consumer started")
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				c.logger.WithPayload(map[string]interface{}{"topic": topic}).Info("kafka consumer stopped")
				return
			}
			c.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("failed to fetch message")
			continue
		}

		if err := handle(ctx, msg.Value); err != nil {
			// Uncommitted, the message is redelivered after a restart.
			c.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("failed to process message")
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			c.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("failed to commit message")
		}
	}
}

func (c *KafkaConsumer) handleMessage(ctx context.Context, value []byte) error {
	var msg models.ChatMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return err
	}
	if c.history == nil {
		c.logger.Warn("dropping dialogue message: short-term history unavailable")
		return nil
	}
	return c.history.Append(ctx, msg)
}

func (c *KafkaConsumer) handleCandidate(ctx context.Context, value []byte) error {
	var cand models.CandidateFact
	if err := json.Unmarshal(value, &cand); err != nil {
		return err
	}
	_, err := c.memory.IngestCandidate(ctx, cand)
	if errors.Is(err, ltm.ErrFactRejected) {
		// Rejected candidates are consumed, not retried.
		return nil
	}
	return err
}
