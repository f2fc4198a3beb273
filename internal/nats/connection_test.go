package nats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDefaultConnectionConfig(t *testing.T) {
	cfg := DefaultConnectionConfig("nats://localhost:4222")
	assert.Equal(t, "kage", cfg.Name)
	assert.Equal(t, 10, cfg.MaxReconnects)
	assert.Equal(t, 2*time.Second, cfg.ReconnectWait)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestOptions(t *testing.T) {
	cfg := DefaultConnectionConfig("nats://localhost:4222")
	base := len(cfg.Options(nil))

	cfg.Token = "s3cret"
	cfg.Username, cfg.Password = "kage", "pw"
	assert.Len(t, cfg.Options(zaptest.NewLogger(t)), base+1)

	cfg.Token = ""
	assert.Len(t, cfg.Options(nil), base+1)

	cfg.Password = ""
	assert.Len(t, cfg.Options(nil), base)
}

func TestConnectRejectsBadConfig(t *testing.T) {
	_, err := Connect(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be nil")

	_, err = Connect(context.Background(), DefaultConnectionConfig(""), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "URL cannot be empty")
}

func TestCloseNil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
