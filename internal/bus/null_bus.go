package bus

import (
	"context"
	"log"
)

// NullBus is a no-op implementation of the bus interface for when Redis is disabled
type NullBus struct {
	logger *log.Logger
}

// NewNullBus creates a new null bus instance
func NewNullBus(logger *log.Logger) *NullBus {
	if logger == nil {
		logger = log.New(log.Writer(), "[NullBus] ", log.LstdFlags)
	}

	return &NullBus{
		logger: logger,
	}
}

// Close is a no-op for null bus
func (nb *NullBus) Close() error {
	return nil
}

// PublishFeedbackReady logs the notice but doesn't actually publish it
func (nb *NullBus) PublishFeedbackReady(ctx context.Context, notice FeedbackNotice) error {
	nb.logger.Printf("Would publish feedback notice for report %s (Redis disabled)", notice.ReportID)
	return nil
}

// SubscribeFeedback is a no-op for null bus (never delivers)
func (nb *NullBus) SubscribeFeedback(ctx context.Context, handler func(ctx context.Context, notice FeedbackNotice) error) error {
	nb.logger.Printf("Would subscribe to feedback channel (Redis disabled)")
	// Block until context is cancelled since this would normally be a blocking operation
	<-ctx.Done()
	return ctx.Err()
}

// HealthCheck always returns nil for null bus
func (nb *NullBus) HealthCheck(ctx context.Context) error {
	return nil
}
