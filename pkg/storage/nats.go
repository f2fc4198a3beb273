package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Publisher is the part of *nats.Conn used to publish documents
type Publisher interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

// NATSDestination publishes documents on a subject. The name passed to Save
// travels in the Kage-Name header together with the metadata.
type NATSDestination struct {
	pub        Publisher
	subject    string
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewNATSDestination creates a destination publishing on subject
func NewNATSDestination(pub Publisher, subject string, logger *zap.Logger) *NATSDestination {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSDestination{
		pub:        pub,
		subject:    subject,
		maxRetries: 3,
		retryDelay: time.Second,
		logger:     logger,
	}
}

// WithRetry sets how often a failed publish is retried
func (d *NATSDestination) WithRetry(maxRetries int, delay time.Duration) *NATSDestination {
	d.maxRetries = maxRetries
	d.retryDelay = delay
	return d
}

// Save publishes data and flushes the connection
func (d *NATSDestination) Save(ctx context.Context, name string, data []byte, metadata map[string]string) (string, error) {
	if d.pub == nil {
		return "", fmt.Errorf("NATS connection not initialized")
	}
	if d.subject == "" {
		return "", fmt.Errorf("subject is required")
	}

	msg := nats.NewMsg(d.subject)
	msg.Data = data
	msg.Header.Set("Kage-Name", name)
	for k, v := range metadata {
		msg.Header.Set(headerName(k), v)
	}

	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("publish cancelled: %w", ctx.Err())
			case <-time.After(d.retryDelay):
			}
		}
		if lastErr = d.pub.PublishMsg(msg); lastErr != nil {
			d.logger.Warn("Publish failed",
				zap.String("subject", d.subject),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
			continue
		}
		if lastErr = d.pub.FlushWithContext(ctx); lastErr != nil {
			continue
		}
		d.logger.Debug("Published document",
			zap.String("subject", d.subject),
			zap.String("name", name),
			zap.Int("size_bytes", len(data)))
		return d.subject, nil
	}
	return "", fmt.Errorf("publish to %s failed after %d attempts: %w", d.subject, d.maxRetries+1, lastErr)
}

// headerName turns run_id into Kage-Run-Id
func headerName(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' })
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return "Kage-" + strings.Join(parts, "-")
}

var (
	_ Destination = (*NATSDestination)(nil)
	_ Publisher   = (*nats.Conn)(nil)
)
