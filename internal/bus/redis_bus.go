package bus

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
)

// FeedbackChannel is the pub/sub channel feedback notices travel on.
const FeedbackChannel = "radcase:feedback"

// RedisBus provides Redis pub/sub-based feedback notifications
type RedisBus struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisBus creates a new Redis bus instance
func NewRedisBus(redisURL string, logger *log.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = log.New(log.Writer(), "[RedisBus] ", log.LstdFlags)
	}

	return &RedisBus{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (rb *RedisBus) Close() error {
	return rb.client.Close()
}

// PublishFeedbackReady announces new feedback on the feedback channel
func (rb *RedisBus) PublishFeedbackReady(ctx context.Context, notice FeedbackNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback notice: %w", err)
	}

	if err := rb.client.Publish(ctx, FeedbackChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish feedback notice: %w", err)
	}

	rb.logger.Printf("Published feedback notice for report %s", notice.ReportID)
	return nil
}

// SubscribeFeedback blocks on the feedback channel, decoding each message and
// handing it to handler. Malformed messages are logged and skipped.
func (rb *RedisBus) SubscribeFeedback(ctx context.Context, handler func(ctx context.Context, notice FeedbackNotice) error) error {
	sub := rb.client.Subscribe(ctx, FeedbackChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("feedback subscription closed")
			}
			var notice FeedbackNotice
			if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
				rb.logger.Printf("Skipping malformed feedback notice: %v", err)
				continue
			}
			if err := handler(ctx, notice); err != nil {
				rb.logger.Printf("Feedback handler error for report %s: %v", notice.ReportID, err)
			}
		}
	}
}

// HealthCheck performs a health check on the Redis connection
func (rb *RedisBus) HealthCheck(ctx context.Context) error {
	return rb.client.Ping(ctx).Err()
}
