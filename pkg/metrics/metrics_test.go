package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/kage/pkg/binding"
	"github.com/wehubfusion/kage/pkg/executor"
)

// counter sums every series of a counter family matching the given labels
func counter(t *testing.T, c *Collector, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestCollectorRecordsExecution(t *testing.T) {
	c := New("")
	r := binding.NewRegistry().
		Register(binding.Wrap("ok", func() int { return 1 }), nil).
		Register(binding.Wrap("bad", func(v int) (int, error) { return 0, errors.New("no") }, "v"), map[string]string{"v": "ok"}).
		Register(binding.Wrap("never", func(v int) int { return v }, "v"), map[string]string{"v": "bad"})
	require.NoError(t, r.Err())

	err := executor.New(executor.WithMetrics(c)).
		Execute(context.Background(), r.Bindings(), map[string]interface{}{}, executor.NewState())
	require.Error(t, err)

	assert.Equal(t, 1.0, counter(t, c, "kage_binding_invocations_total", map[string]string{"binding": "ok", "strategy": "sequential"}))
	assert.Equal(t, 1.0, counter(t, c, "kage_binding_errors_total", map[string]string{"binding": "bad"}))
	assert.Equal(t, 1.0, counter(t, c, "kage_binding_skipped_total", map[string]string{"binding": "never"}))
	assert.Equal(t, 1.0, counter(t, c, "kage_runs_total", map[string]string{"status": "error"}))

	totals := c.GetMetrics()
	assert.Equal(t, int64(1), totals.TotalRuns)
	assert.Equal(t, int64(1), totals.FailedRuns)
	assert.Equal(t, int64(2), totals.TotalInvocations)
	assert.Equal(t, int64(1), totals.TotalSkipped)
}

func TestCollectorReset(t *testing.T) {
	c := New("custom")
	c.RecordError("x", executor.Parallel)
	c.RecordRun(executor.Parallel, 0, nil)
	require.Equal(t, 1.0, counter(t, c, "custom_binding_errors_total", nil))

	c.Reset()
	assert.Equal(t, 0.0, counter(t, c, "custom_binding_errors_total", nil))
	assert.Equal(t, executor.Metrics{}, c.GetMetrics())
}

func TestHandlerServesMetrics(t *testing.T) {
	c := New("")
	c.RecordRun(executor.Cooperative, 0, nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `kage_runs_total{status="success",strategy="cooperative"} 1`)
}
