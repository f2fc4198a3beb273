package cli

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	internalnats "github.com/wehubfusion/kage/internal/nats"
	"github.com/wehubfusion/kage/pkg/storage"
)

// publisher owns the destination run records are sent to
type publisher struct {
	name  string
	dest  storage.Destination
	close func()
}

// newPublisher connects the destination named in the config. It returns nil
// when nothing is configured.
func newPublisher(ctx context.Context, cfg PublishConfig, logger *zap.Logger) (*publisher, error) {
	name := cfg.Name
	if name == "" {
		name = "kage"
	}
	switch {
	case cfg.Azure != nil && cfg.NATS != nil:
		return nil, fmt.Errorf("publish: configure either azure or nats, not both")
	case cfg.Azure != nil:
		client, err := storage.NewAzureBlobClient(cfg.Azure.ConnectionString, cfg.Azure.Container, logger)
		if err != nil {
			return nil, fmt.Errorf("publish: %w", err)
		}
		return &publisher{
			name:  name,
			dest:  storage.NewAzureBlobDestination(client, cfg.Azure.Prefix),
			close: func() {},
		}, nil
	case cfg.NATS != nil:
		if cfg.NATS.Subject == "" {
			return nil, fmt.Errorf("publish: nats subject is required")
		}
		conn, err := internalnats.Connect(ctx, internalnats.DefaultConnectionConfig(cfg.NATS.URL), logger)
		if err != nil {
			return nil, fmt.Errorf("publish: %w", err)
		}
		dest := storage.NewNATSDestination(conn, cfg.NATS.Subject, logger)
		if cfg.NATS.MaxRetries > 0 {
			dest = dest.WithRetry(cfg.NATS.MaxRetries, 200*time.Millisecond)
		}
		return &publisher{
			name: name,
			dest: dest,
			close: func() {
				if err := internalnats.Close(conn); err != nil {
					logger.Warn("Failed to drain NATS connection", zap.Error(err))
				}
			},
		}, nil
	}
	return nil, nil
}

func (p *publisher) publish(ctx context.Context, rec *storage.RunRecord) (string, error) {
	if rec == nil {
		return "", nil
	}
	return storage.SaveRecord(ctx, p.dest, p.name, rec)
}
