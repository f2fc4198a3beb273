package jsfunc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// PoolConfig sizes a runtime pool
type PoolConfig struct {
	MaxSize       int `yaml:"max_size,omitempty"`        // Maximum number of idle runtimes kept
	MaxReuseCount int `yaml:"max_reuse_count,omitempty"` // Uses before a runtime is replaced
}

// DefaultPoolConfig returns the default pool configuration
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSize:       16,
		MaxReuseCount: 1000,
	}
}

// PoolStats reports pool activity
type PoolStats struct {
	Idle          int   `json:"idle"`
	MaxSize       int   `json:"max_size"`
	TotalCreated  int64 `json:"total_created"`
	TotalAcquired int64 `json:"total_acquired"`
	TotalReleased int64 `json:"total_released"`
}

// Pool hands out sandboxed runtimes for one security level. A runtime is
// used by one call at a time.
type Pool struct {
	idle          chan *runtime
	level         string
	maxSize       int
	maxReuseCount int
	logger        *zap.Logger

	totalCreated  int64
	totalAcquired int64
	totalReleased int64

	mu     sync.Mutex
	closed bool
}

type runtime struct {
	vm       *goja.Runtime
	uses     int
	baseline goja.Value // global names present after sandboxing
}

const resetScript = `
(function(keep) {
	var names = Object.getOwnPropertyNames(this);
	for (var i = 0; i < names.length; i++) {
		if (keep.indexOf(names[i]) === -1) {
			try { delete this[names[i]]; } catch (e) {}
		}
	}
})
`

// NewPool creates an empty pool. Runtimes are created on demand.
func NewPool(level string, cfg PoolConfig, logger *zap.Logger) (*Pool, error) {
	if level == "" {
		level = SecurityLevelStandard
	}
	if !validLevel(level) {
		return nil, fmt.Errorf("invalid security level: %s", level)
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultPoolConfig().MaxSize
	}
	if cfg.MaxReuseCount <= 0 {
		cfg.MaxReuseCount = DefaultPoolConfig().MaxReuseCount
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		idle:          make(chan *runtime, cfg.MaxSize),
		level:         level,
		maxSize:       cfg.MaxSize,
		maxReuseCount: cfg.MaxReuseCount,
		logger:        logger,
	}, nil
}

// Level returns the pool's security level
func (p *Pool) Level() string {
	return p.level
}

// acquire takes an idle runtime or creates one
func (p *Pool) acquire(ctx context.Context) (*runtime, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("pool is closed")
	}

	atomic.AddInt64(&p.totalAcquired, 1)
	select {
	case rt, ok := <-p.idle:
		if !ok {
			return nil, fmt.Errorf("pool is closed")
		}
		rt.uses++
		if rt.uses < p.maxReuseCount {
			rt.vm.ClearInterrupt()
			return rt, nil
		}
	default:
	}
	return p.create()
}

// release resets a runtime and keeps it for reuse when there is room
func (p *Pool) release(rt *runtime) {
	atomic.AddInt64(&p.totalReleased, 1)
	rt.vm.ClearInterrupt()
	if err := p.reset(rt); err != nil {
		p.logger.Debug("Discarding runtime that failed to reset", zap.Error(err))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.idle <- rt:
	default:
	}
}

func (p *Pool) create() (*runtime, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if err := secure(vm, p.level, p.logger); err != nil {
		return nil, fmt.Errorf("failed to create secure context: %w", err)
	}
	baseline, err := vm.RunString("Object.getOwnPropertyNames(globalThis)")
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot globals: %w", err)
	}
	atomic.AddInt64(&p.totalCreated, 1)
	return &runtime{vm: vm, baseline: baseline}, nil
}

func (p *Pool) reset(rt *runtime) error {
	val, err := rt.vm.RunString(resetScript)
	if err != nil {
		return fmt.Errorf("failed to compile reset script: %w", err)
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return fmt.Errorf("reset script is not a function")
	}
	_, err = fn(rt.vm.GlobalObject(), rt.baseline)
	return err
}

// Close drops every idle runtime. Later calls fail.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.idle)
	for range p.idle {
	}
	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Idle:          len(p.idle),
		MaxSize:       p.maxSize,
		TotalCreated:  atomic.LoadInt64(&p.totalCreated),
		TotalAcquired: atomic.LoadInt64(&p.totalAcquired),
		TotalReleased: atomic.LoadInt64(&p.totalReleased),
	}
}
