package bus

import (
	"context"
	"io"
	"log"
)

// FeedbackNotice announces that feedback became available for a report.
type FeedbackNotice struct {
	ReportID  string `json:"report_id"`
	CaseID    int    `json:"case_id"`
	Timestamp int64  `json:"timestamp"`
}

// Bus defines the interface for feedback notification backends
type Bus interface {
	// PublishFeedbackReady announces new feedback on the feedback channel
	PublishFeedbackReady(ctx context.Context, notice FeedbackNotice) error

	// SubscribeFeedback blocks, invoking handler for each notice until the
	// context is cancelled
	SubscribeFeedback(ctx context.Context, handler func(ctx context.Context, notice FeedbackNotice) error) error

	// HealthCheck performs a health check on the bus connection
	HealthCheck(ctx context.Context) error

	// Close closes the bus connection
	Close() error
}

// NewBus creates a new bus instance based on the Redis URL
// If redisURL is empty or invalid, returns a NullBus
func NewBus(redisURL string, logger *log.Logger) Bus {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if redisURL == "" {
		return NewNullBus(logger)
	}

	// Try to create Redis bus
	if redisBus, err := NewRedisBus(redisURL, logger); err == nil {
		return redisBus
	}

	// Fall back to null bus if Redis fails
	return NewNullBus(logger)
}
