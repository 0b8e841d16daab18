package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"mnemo/internal/config"
)

// Client holds the shared Kafka admin connection and hands out per-topic
// readers. Ingestion topics are created on first use when the broker allows
// auto-creation to be driven from the client.
type Client struct {
	Conn   *kafka.Conn
	Config *config.KafkaConfig
}

var (
	client  *Client
	once    sync.Once
	initErr error
)

// GetClient initializes and returns the shared Kafka client. On first call
// it dials the cluster and creates any configured topic that does not exist
// yet.
func GetClient(cfg *config.KafkaConfig) (*Client, error) {
	once.Do(func() {
		if len(cfg.Brokers) == 0 {
			initErr = fmt.Errorf("no kafka brokers configured")
			return
		}

		conn, err := kafka.Dial("tcp", cfg.Brokers[0])
		if err != nil {
			initErr = fmt.Errorf("dial kafka: %w", err)
			return
		}

		partitions, err := conn.ReadPartitions()
		if err != nil {
			conn.Close()
			initErr = fmt.Errorf("read kafka partitions: %w", err)
			return
		}
		existing := make(map[string]struct{})
		for _, p := range partitions {
			existing[p.Topic] = struct{}{}
		}

		var toCreate []kafka.TopicConfig
		for _, topic := range []string{cfg.MessagesTopic, cfg.CandidatesTopic} {
			if topic == "" {
				continue
			}
			if _, ok := existing[topic]; !ok {
				toCreate = append(toCreate, kafka.TopicConfig{
					Topic:             topic,
					NumPartitions:     1,
					ReplicationFactor: 1,
				})
			}
		}
		if len(toCreate) > 0 {
			if err := conn.CreateTopics(toCreate...); err != nil {
				conn.Close()
				initErr = fmt.Errorf("create kafka topics: %w", err)
				return
			}
		}

		client = &Client{Conn: conn, Config: cfg}
	})

	return client, initErr
}

// NewReader builds a consumer-group reader for one topic.
func (c *Client) NewReader(topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.Config.Brokers,
		GroupID:     c.Config.GroupID,
		Topic:       topic,
		MinBytes:    10e3,
		MaxBytes:    10e6,
		MaxAttempts: 10,
		Dialer: &kafka.Dialer{
			Timeout: 10 * time.Second,
		},
	})
}

// Close shuts down the shared admin connection.
func (c *Client) Close() error {
	if c == nil || c.Conn == nil {
		return nil
	}
	return c.Conn.Close()
}

// HealthCheck verifies the cluster controller is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c == nil || c.Conn == nil {
		return fmt.Errorf("kafka client not initialized")
	}
	_, err := c.Conn.Controller()
	return err
}
