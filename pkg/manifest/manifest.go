// Package manifest loads binding graphs described in YAML. Each entry is a
// JavaScript function or a builtin, plus the mapping that wires it.
package manifest

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wehubfusion/kage/pkg/binding"
	"github.com/wehubfusion/kage/pkg/builtin"
	"github.com/wehubfusion/kage/pkg/iteration"
	"github.com/wehubfusion/kage/pkg/jsfunc"
)

// Manifest lists bindings in registration order
type Manifest struct {
	SecurityLevel string            `yaml:"security_level,omitempty"`
	Pool          jsfunc.PoolConfig `yaml:"pool,omitempty"`
	Bindings      []Entry           `yaml:"bindings"`
}

// Entry is one binding. Exactly one of Script and Builtin is set.
type Entry struct {
	jsfunc.Config `yaml:",inline"`

	Builtin string          `yaml:"builtin,omitempty"`
	Options builtin.Options `yaml:"options,omitempty"`

	// Each calls the function once per element of an array parameter
	Each *iteration.Config `yaml:"each,omitempty"`

	Inputs    map[string]string `yaml:"inputs"`
	Output    string            `yaml:"output,omitempty"`
	DependsOn []string          `yaml:"depends_on,omitempty"`
}

// Registrar is satisfied by binding.Registry and engine.Engine
type Registrar interface {
	Add(c binding.Callable, inputs map[string]string, opts ...binding.Option) (*binding.Binding, error)
}

// Parse decodes a YAML (or JSON) manifest
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(m.Bindings) == 0 {
		return nil, fmt.Errorf("manifest declares no bindings")
	}
	for i, e := range m.Bindings {
		switch {
		case e.Name == "":
			return nil, fmt.Errorf("binding %d: name is required", i)
		case e.Script != "" && e.Builtin != "":
			return nil, fmt.Errorf("binding %d (%s): script and builtin are mutually exclusive", i, e.Name)
		case e.Script == "" && e.Builtin == "":
			return nil, fmt.Errorf("binding %d (%s): script or builtin is required", i, e.Name)
		}
	}
	return &m, nil
}

// Load reads and decodes a manifest file
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return Parse(data)
}

// Compiled holds the callables built from a manifest
type Compiled struct {
	Callables []binding.Callable
	pools     []*jsfunc.Pool
}

// Close releases every script runtime pool
func (c *Compiled) Close() error {
	var first error
	for _, p := range c.pools {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	c.pools = nil
	return first
}

// Compile builds every callable. Scripts whose security level matches the
// manifest's share one runtime pool.
func (m *Manifest) Compile(logger *zap.Logger) (*Compiled, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	level := m.SecurityLevel
	if level == "" {
		level = jsfunc.SecurityLevelStandard
	}
	shared, err := jsfunc.NewPool(level, m.Pool, logger)
	if err != nil {
		return nil, err
	}

	out := &Compiled{pools: []*jsfunc.Pool{shared}}
	for i, e := range m.Bindings {
		c, err := m.compileEntry(e, level, shared, logger, out)
		if err == nil && e.Each != nil {
			c, err = iteration.Each(c, *e.Each)
		}
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("binding %d (%s): %w", i, e.Name, err)
		}
		out.Callables = append(out.Callables, c)
	}
	return out, nil
}

func (m *Manifest) compileEntry(e Entry, level string, shared *jsfunc.Pool, logger *zap.Logger, out *Compiled) (binding.Callable, error) {
	if e.Builtin != "" {
		return builtin.New(e.Builtin, e.Name, e.Options)
	}
	cfg := e.Config
	opts := []jsfunc.Option{jsfunc.WithLogger(logger)}
	if cfg.SecurityLevel == "" || cfg.SecurityLevel == level {
		cfg.SecurityLevel = level
		opts = append(opts, jsfunc.WithPool(shared))
	}
	fn, err := jsfunc.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if fn.Pool() != shared {
		out.pools = append(out.pools, fn.Pool())
	}
	return fn, nil
}

// Register compiles the manifest and adds each binding to r in order. The
// caller closes the result once it no longer runs the bindings.
func (m *Manifest) Register(r Registrar, logger *zap.Logger) (*Compiled, error) {
	compiled, err := m.Compile(logger)
	if err != nil {
		return nil, err
	}
	for i, e := range m.Bindings {
		var opts []binding.Option
		if e.Output != "" {
			opts = append(opts, binding.Output(e.Output))
		}
		if len(e.DependsOn) > 0 {
			opts = append(opts, binding.DependsOn(e.DependsOn...))
		}
		if _, err := r.Add(compiled.Callables[i], e.Inputs, opts...); err != nil {
			_ = compiled.Close()
			return nil, err
		}
	}
	return compiled, nil
}
