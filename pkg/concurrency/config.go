package concurrency

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Environment variables read by LoadConfig
const (
	EnvStrategy         = "KAGE_STRATEGY"
	EnvMaxWorkers       = "KAGE_MAX_WORKERS"
	EnvWorkerMultiplier = "KAGE_WORKER_MULTIPLIER"
)

// ConfigSource indicates where the configuration came from
type ConfigSource string

const (
	ConfigSourceEnvVar     ConfigSource = "environment_variable"
	ConfigSourceAutoDetect ConfigSource = "auto_detect"
	ConfigSourceDefault    ConfigSource = "default"
)

// Config holds execution concurrency settings
type Config struct {
	// Strategy is the raw strategy name; validation happens where strategies
	// are defined
	Strategy      string
	MaxWorkers    int
	Source        ConfigSource
	IsKubernetes  bool
	EffectiveCPUs int
}

// LoadConfig loads configuration with priority: env vars > auto-detection > defaults
func LoadConfig() *Config {
	config := &Config{
		IsKubernetes:  isKubernetes(),
		EffectiveCPUs: runtime.GOMAXPROCS(0),
		Strategy:      strings.ToLower(strings.TrimSpace(os.Getenv(EnvStrategy))),
	}

	if workers := getEnvInt(EnvMaxWorkers, 0); workers > 0 {
		config.MaxWorkers = workers
		config.Source = ConfigSourceEnvVar
	} else if multiplier := getEnvInt(EnvWorkerMultiplier, 0); multiplier > 0 {
		config.MaxWorkers = config.EffectiveCPUs * multiplier
		config.Source = ConfigSourceEnvVar
	} else {
		config.MaxWorkers = getDefaultMaxWorkers(config.IsKubernetes, config.EffectiveCPUs)
		config.Source = ConfigSourceAutoDetect
	}

	if config.MaxWorkers < 1 {
		config.MaxWorkers = 1
		config.Source = ConfigSourceDefault
	}
	return config
}

// isKubernetes detects if the application is running in Kubernetes
func isKubernetes() bool {
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// getDefaultMaxWorkers: one worker per CPU in Kubernetes, two elsewhere
func getDefaultMaxWorkers(isK8s bool, cpus int) int {
	if isK8s {
		return max(cpus, 2)
	}
	return max(cpus*2, 4)
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// String returns a formatted string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Strategy: %q, MaxWorkers: %d, IsK8s: %t, CPUs: %d, Source: %s}",
		c.Strategy,
		c.MaxWorkers,
		c.IsKubernetes,
		c.EffectiveCPUs,
		c.Source,
	)
}
