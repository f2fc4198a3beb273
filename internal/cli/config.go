package cli

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wehubfusion/kage/pkg/concurrency"
	"github.com/wehubfusion/kage/pkg/engine"
)

// FileConfig is the optional YAML configuration file. Flags override it and
// it overrides the environment.
type FileConfig struct {
	Strategy    string `yaml:"strategy"`
	Workers     int    `yaml:"workers"`
	Strict      bool   `yaml:"strict"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
	SentryDSN   string `yaml:"sentry_dsn"`

	Tracing *TracingFileConfig `yaml:"tracing"`
	Publish PublishConfig      `yaml:"publish"`
}

// TracingFileConfig enables OTLP tracing
type TracingFileConfig struct {
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
	Environment string  `yaml:"environment"`
}

// PublishConfig selects where run records go after each run
type PublishConfig struct {
	Name  string              `yaml:"name"`
	Azure *AzurePublishConfig `yaml:"azure"`
	NATS  *NATSPublishConfig  `yaml:"nats"`
}

// AzurePublishConfig targets a blob container
type AzurePublishConfig struct {
	ConnectionString string `yaml:"connection_string"`
	Container        string `yaml:"container"`
	Prefix           string `yaml:"prefix"`
}

// NATSPublishConfig targets a subject
type NATSPublishConfig struct {
	URL        string `yaml:"url"`
	Subject    string `yaml:"subject"`
	MaxRetries int    `yaml:"max_retries"`
}

// LoadFileConfig reads a config file. An empty path yields an empty config.
func LoadFileConfig(path string) (*FileConfig, error) {
	cfg := &FileConfig{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.SentryDSN == "" {
		cfg.SentryDSN = os.Getenv("KAGE_SENTRY_DSN")
	}
	if cfg.Publish.Azure != nil && cfg.Publish.Azure.ConnectionString == "" {
		cfg.Publish.Azure.ConnectionString = os.Getenv("AZURE_STORAGE_CONNECTION_STRING")
	}
	return cfg, nil
}

// concurrencyConfig layers the file's strategy and workers over the
// environment
func (c *FileConfig) concurrencyConfig() *concurrency.Config {
	env := concurrency.LoadConfig()
	if env.Strategy == "" && c.Strategy != "" {
		env.Strategy = strings.ToLower(c.Strategy)
	}
	if c.Workers > 0 && env.Source != concurrency.ConfigSourceEnvVar {
		env.MaxWorkers = c.Workers
	}
	return env
}

func (c *FileConfig) tracingConfig() *engine.TracingConfig {
	if c.Tracing == nil {
		return nil
	}
	name := c.Tracing.ServiceName
	if name == "" {
		name = "kage"
	}
	tc := engine.DefaultTracingConfig(name)
	if c.Tracing.Endpoint != "" {
		tc.OTLPEndpoint = c.Tracing.Endpoint
	}
	tc.Insecure = c.Tracing.Insecure || tc.Insecure
	if c.Tracing.SampleRatio > 0 {
		tc.SampleRatio = c.Tracing.SampleRatio
	}
	if c.Tracing.Environment != "" {
		tc.Environment = c.Tracing.Environment
	}
	tc.ServiceVersion = Version
	return &tc
}

// newLogger builds a console logger for debug and a JSON logger otherwise
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	var cfg zap.Config
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
