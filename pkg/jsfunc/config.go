// Package jsfunc turns JavaScript snippets into binding callables. Scripts
// run on pooled goja runtimes inside a sandbox.
package jsfunc

import (
	"fmt"
	"regexp"
	"time"
)

// Security levels
const (
	SecurityLevelStrict     = "strict"
	SecurityLevelStandard   = "standard"
	SecurityLevelPermissive = "permissive"
)

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Config describes one JavaScript callable. Script is a function body; each
// parameter is in scope under its own name and the body's return value is
// the binding's result.
type Config struct {
	Name          string        `json:"name" yaml:"name"`
	Params        []string      `json:"params" yaml:"params"`
	Script        string        `json:"script" yaml:"script"`
	Timeout       time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	SecurityLevel string        `json:"security_level,omitempty" yaml:"security_level,omitempty"`
}

// ApplyDefaults sets default values for configuration fields
func (c *Config) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.SecurityLevel == "" {
		c.SecurityLevel = SecurityLevelStandard
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Script == "" {
		return fmt.Errorf("script is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if !validLevel(c.SecurityLevel) {
		return fmt.Errorf("invalid security level: %s", c.SecurityLevel)
	}
	seen := make(map[string]bool, len(c.Params))
	for _, p := range c.Params {
		if !identifier.MatchString(p) {
			return fmt.Errorf("parameter '%s' is not a valid JavaScript identifier", p)
		}
		if seen[p] {
			return fmt.Errorf("parameter '%s' is declared twice", p)
		}
		seen[p] = true
	}
	return nil
}

func validLevel(level string) bool {
	switch level {
	case SecurityLevelStrict, SecurityLevelStandard, SecurityLevelPermissive:
		return true
	}
	return false
}
