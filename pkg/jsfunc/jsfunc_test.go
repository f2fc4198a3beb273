package jsfunc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wehubfusion/kage/pkg/binding"
)

func mustNew(t *testing.T, cfg Config, opts ...Option) *Function {
	t.Helper()
	fn, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fn.Close() })
	return fn
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"missing name", Config{Script: "return 1"}, "name is required"},
		{"missing script", Config{Name: "f"}, "script is required"},
		{"bad level", Config{Name: "f", Script: "return 1", SecurityLevel: "open"}, "invalid security level"},
		{"bad param", Config{Name: "f", Script: "return 1", Params: []string{"a-b"}}, "not a valid JavaScript identifier"},
		{"duplicate param", Config{Name: "f", Script: "return 1", Params: []string{"a", "a"}}, "declared twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.ApplyDefaults()
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	cfg := Config{Name: "f", Script: "return 1"}
	cfg.ApplyDefaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, SecurityLevelStandard, cfg.SecurityLevel)
}

func TestFunctionCall(t *testing.T) {
	fn := mustNew(t, Config{
		Name:   "greet",
		Params: []string{"name", "age"},
		Script: `return {text: "Hello, " + name, age: age + 1};`,
	})

	assert.Equal(t, "greet", fn.Name())
	assert.Equal(t, []string{"name", "age"}, fn.Params())

	out, err := fn.Call(context.Background(), binding.Args{"name": "Alice", "age": 27})
	require.NoError(t, err)
	m, ok := out.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Hello, Alice", m["text"])
	assert.EqualValues(t, 28, m["age"])
}

func TestFunctionConvertsJSONNumbers(t *testing.T) {
	fn := mustNew(t, Config{Name: "add", Params: []string{"a", "b"}, Script: "return a + b;"})
	out, err := fn.Call(context.Background(), binding.Args{"a": json.Number("1"), "b": json.Number("0.5")})
	require.NoError(t, err)
	assert.Equal(t, 1.5, out)

	fn = mustNew(t, Config{Name: "sum", Params: []string{"xs"}, Script: "return xs[0] + xs[1].n;"})
	out, err = fn.Call(context.Background(), binding.Args{"xs": []interface{}{json.Number("2"), map[string]interface{}{"n": json.Number("3")}}})
	require.NoError(t, err)
	assert.EqualValues(t, 5, out)
}

func TestFunctionReturnsNilForUndefined(t *testing.T) {
	fn := mustNew(t, Config{Name: "noop", Script: "var x = 1;"})
	out, err := fn.Call(context.Background(), binding.Args{})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.NotNil(t, fn.Params())
}

func TestFunctionSyntaxError(t *testing.T) {
	_, err := New(Config{Name: "broken", Script: "return {;"})
	require.Error(t, err)
	var jsErr *JSError
	require.True(t, errors.As(err, &jsErr))
	assert.Equal(t, ErrorTypeSyntax, jsErr.Type)
}

func TestFunctionRuntimeError(t *testing.T) {
	fn := mustNew(t, Config{Name: "boom", Script: `throw new Error("kaput");`})
	_, err := fn.Call(context.Background(), binding.Args{})
	require.Error(t, err)
	var jsErr *JSError
	require.True(t, errors.As(err, &jsErr))
	assert.Equal(t, ErrorTypeRuntime, jsErr.Type)
	assert.Contains(t, jsErr.Message, "kaput")
}

func TestFunctionTimeout(t *testing.T) {
	fn := mustNew(t, Config{Name: "spin", Script: "while (true) {}", Timeout: 50 * time.Millisecond})
	_, err := fn.Call(context.Background(), binding.Args{})
	require.Error(t, err)
	var jsErr *JSError
	require.True(t, errors.As(err, &jsErr))
	assert.Equal(t, ErrorTypeTimeout, jsErr.Type)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// the runtime is usable again after an interrupt
	ok := mustNew(t, Config{Name: "ok", Script: "return 7;"}, WithPool(fn.pool))
	out, err := ok.Call(context.Background(), binding.Args{})
	require.NoError(t, err)
	assert.EqualValues(t, 7, out)
}

func TestFunctionHonorsCancellation(t *testing.T) {
	fn := mustNew(t, Config{Name: "spin", Script: "while (true) {}", Timeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := fn.Call(ctx, binding.Args{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSandbox(t *testing.T) {
	t.Run("node globals are removed", func(t *testing.T) {
		fn := mustNew(t, Config{Name: "probe", Script: `return typeof require + "," + typeof process;`})
		out, err := fn.Call(context.Background(), binding.Args{})
		require.NoError(t, err)
		assert.Equal(t, "undefined,undefined", out)
	})

	t.Run("strict forbids eval", func(t *testing.T) {
		fn := mustNew(t, Config{Name: "ev", Script: `return eval("1+1");`, SecurityLevel: SecurityLevelStrict})
		_, err := fn.Call(context.Background(), binding.Args{})
		require.Error(t, err)
		var jsErr *JSError
		require.True(t, errors.As(err, &jsErr))
		assert.Equal(t, ErrorTypeSecurity, jsErr.Type)
	})

	t.Run("standard freezes builtins", func(t *testing.T) {
		fn := mustNew(t, Config{Name: "tamper", Script: `Math.pi2 = 6.28; return Math.pi2 === undefined;`})
		out, err := fn.Call(context.Background(), binding.Args{})
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("permissive leaves builtins writable", func(t *testing.T) {
		fn := mustNew(t, Config{Name: "tamper", Script: `Math.pi2 = 6.28; return Math.pi2;`, SecurityLevel: SecurityLevelPermissive})
		out, err := fn.Call(context.Background(), binding.Args{})
		require.NoError(t, err)
		assert.Equal(t, 6.28, out)
	})
}

func TestPoolResetsGlobals(t *testing.T) {
	pool, err := NewPool(SecurityLevelStandard, PoolConfig{MaxSize: 1}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pool.Close()

	set := mustNew(t, Config{Name: "set", Script: "leaked = 42; return leaked;"}, WithPool(pool))
	get := mustNew(t, Config{Name: "get", Script: "return typeof leaked;"}, WithPool(pool))

	_, err = set.Call(context.Background(), binding.Args{})
	require.NoError(t, err)
	out, err := get.Call(context.Background(), binding.Args{})
	require.NoError(t, err)
	assert.Equal(t, "undefined", out)

	stats := pool.Stats()
	assert.Equal(t, int64(1), stats.TotalCreated)
	assert.Equal(t, int64(2), stats.TotalAcquired)
	assert.Equal(t, int64(2), stats.TotalReleased)
	assert.Equal(t, 1, stats.Idle)
}

func TestPoolClosed(t *testing.T) {
	pool, err := NewPool("", PoolConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, SecurityLevelStandard, pool.Level())
	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())

	fn := mustNew(t, Config{Name: "f", Script: "return 1;"}, WithPool(pool))
	_, err = fn.Call(context.Background(), binding.Args{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool is closed")

	_, err = NewPool("open", PoolConfig{}, nil)
	assert.Error(t, err)
}

func TestFunctionConcurrentCalls(t *testing.T) {
	fn := mustNew(t, Config{Name: "double", Params: []string{"n"}, Script: "return n * 2;"})

	var wg sync.WaitGroup
	results := make([]interface{}, 20)
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fn.Call(context.Background(), binding.Args{"n": i})
		}(i)
	}
	wg.Wait()
	for i := 0; i < 20; i++ {
		require.NoError(t, errs[i])
		assert.EqualValues(t, i*2, results[i])
	}
}
