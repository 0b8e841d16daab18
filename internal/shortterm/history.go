// Package shortterm keeps the rolling per-conversation message buffer in
// Redis. Each chat is one list capped at a fixed number of recent messages.
package shortterm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"mnemo/internal/models"
)

const keyPrefix = "chat:history:"

// History is the short-term conversation buffer.
type History struct {
	client      *redis.Client
	maxMessages int
}

// NewHistory wraps a Redis client as a capped message history. maxMessages
// bounds the list length per chat; values <= 0 default to 50.
func NewHistory(client *redis.Client, maxMessages int) *History {
	if maxMessages <= 0 {
		maxMessages = 50
	}
	return &History{client: client, maxMessages: maxMessages}
}

// Append pushes one message onto the chat's list and trims it to the cap,
// discarding the oldest entries first.
func (h *History) Append(ctx context.Context, msg models.ChatMessage) error {
	if msg.ChatID == "" {
		return fmt.Errorf("shortterm: message has no chat id")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("shortterm: marshal message: %w", err)
	}

	key := keyPrefix + msg.ChatID
	pipe := h.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, int64(-h.maxMessages), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("shortterm: append message: %w", err)
	}
	return nil
}

// Recent returns the chat's buffered messages, oldest first. An unknown chat
// id yields an empty slice.
func (h *History) Recent(ctx context.Context, chatID string) ([]models.ChatMessage, error) {
	raw, err := h.client.LRange(ctx, keyPrefix+chatID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("shortterm: read history: %w", err)
	}

	msgs := make([]models.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
