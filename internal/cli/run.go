package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wehubfusion/kage/pkg/engine"
	"github.com/wehubfusion/kage/pkg/executor"
	"github.com/wehubfusion/kage/pkg/manifest"
	"github.com/wehubfusion/kage/pkg/metrics"
	"github.com/wehubfusion/kage/pkg/storage"
)

type runOptions struct {
	input          string
	schema         string
	outputSchema   string
	validateOutput bool
	bindings       string
	outputJSON     string
	strategy       string
	workers        int
	strict         bool
	sets           []string
	query          string
	watch          bool
	metricsAddr    string
}

func newRunCommand(a *app) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Validate the input and execute the bindings manifest",
		Example: `  kage run --input order.json --schema order.schema.yaml --bindings bindings.yaml
  kage run --input order.json --schema schema.json --bindings b.yaml --strategy parallel --set order.tax_rate=0.2
  kage run --input order.json --schema schema.json --bindings b.yaml --watch`,
		Args: cobra.NoArgs,
		RunE: a.wrap(func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), o)
		}),
	}

	f := cmd.Flags()
	f.StringVarP(&o.input, "input", "i", "", "Input document (JSON, YAML, TOML or HCL)")
	f.StringVarP(&o.schema, "schema", "s", "", "Input schema document")
	f.StringVar(&o.outputSchema, "output-schema", "", "Output schema document")
	f.BoolVar(&o.validateOutput, "validate-output", false, "Validate the output against --output-schema")
	f.StringVarP(&o.bindings, "bindings", "b", "", "Bindings manifest (YAML)")
	f.StringVarP(&o.outputJSON, "output-json", "o", "", "Write the output document to this file")
	f.StringVar(&o.strategy, "strategy", "", "Execution strategy (sequential, parallel, cooperative)")
	f.IntVar(&o.workers, "workers", 0, "Worker cap for the parallel strategy")
	f.BoolVar(&o.strict, "strict", false, "Reject keys the schema does not declare")
	f.StringArrayVar(&o.sets, "set", nil, "Override an input value (path=value, repeatable)")
	f.StringVarP(&o.query, "query", "q", "", "Print only the output value at this path")
	f.BoolVarP(&o.watch, "watch", "w", false, "Re-run when the input, schema or manifest changes")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

// wrap reports failures and releases resources when the command errors,
// since post-run hooks only fire on success
func (a *app) wrap(fn func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if err != nil {
			a.report(err)
			a.close()
		}
		return err
	}
}

func (a *app) run(ctx context.Context, o *runOptions) error {
	logger := a.log()
	collector := metrics.New("kage")

	addr := o.metricsAddr
	if addr == "" {
		addr = a.cfg.MetricsAddr
	}
	if addr != "" {
		srv := serveMetrics(addr, collector, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	pub, err := newPublisher(ctx, a.cfg.Publish, logger)
	if err != nil {
		return err
	}
	if pub != nil {
		defer pub.close()
	}

	once := func() error {
		rendered, err := a.runOnce(ctx, o, collector, pub)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.stdout, rendered)
		return err
	}

	if !o.watch {
		return once()
	}

	if err := once(); err != nil {
		logger.Error("Run failed", zap.Error(err))
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
	}
	return watch(ctx, watchedFiles(o), logger, func() {
		if err := once(); err != nil {
			a.report(err)
			logger.Error("Run failed", zap.Error(err))
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
		}
	})
}

// runOnce builds a fresh engine, executes it and returns the rendered
// output. On failure the output file, when requested, receives an error
// document instead.
func (a *app) runOnce(ctx context.Context, o *runOptions, collector *metrics.Collector, pub *publisher) (string, error) {
	rendered, e, err := a.execute(ctx, o, collector)
	if e != nil && pub != nil {
		if loc, perr := pub.publish(ctx, e.Record()); perr != nil {
			a.log().Warn("Failed to publish run record", zap.Error(perr))
		} else {
			a.log().Info("Run record published", zap.String("location", loc))
		}
	}
	if err != nil {
		if o.outputJSON != "" {
			dest := storage.NewFileDestination("", a.log())
			if _, werr := dest.Save(ctx, o.outputJSON, errorDocument(err), nil); werr != nil {
				return "", errors.Join(err, werr)
			}
		}
		return "", err
	}
	if o.outputJSON != "" {
		if err := e.SaveOutputFile(o.outputJSON); err != nil {
			return "", err
		}
	}
	if o.query != "" {
		return query(rendered, o.query)
	}
	return rendered, nil
}

func (a *app) execute(ctx context.Context, o *runOptions, collector *metrics.Collector) (string, *engine.Engine, error) {
	e, closer, err := a.newEngine(o, collector)
	if err != nil {
		return "", nil, err
	}
	defer func() {
		if closer != nil {
			_ = closer()
		}
		_ = e.Close()
	}()

	if _, err := e.Execute(ctx); err != nil {
		return "", e, err
	}
	rendered, err := e.ToJSON()
	return rendered, e, err
}

// newEngine loads the documents, builds an engine and registers the
// manifest's bindings. The returned closer releases script runtimes.
func (a *app) newEngine(o *runOptions, collector executor.MetricsCollector) (*engine.Engine, func() error, error) {
	input, err := loadInput(o.input, o.sets)
	if err != nil {
		return nil, nil, err
	}
	schemaSrc, err := schemaSource(o.schema)
	if err != nil {
		return nil, nil, err
	}

	opts := []engine.Option{
		engine.WithLogger(a.log()),
		engine.WithConfig(a.cfg.concurrencyConfig()),
		engine.WithStrictValidation(o.strict || a.cfg.Strict),
	}
	if o.strategy != "" {
		s, err := executor.ParseStrategy(o.strategy)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, engine.WithStrategy(s))
	}
	if o.workers > 0 {
		opts = append(opts, engine.WithWorkers(o.workers))
	}
	if o.outputSchema != "" {
		outSrc, err := schemaSource(o.outputSchema)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, engine.WithOutputSchema(outSrc), engine.WithOutputValidation(o.validateOutput))
	}
	if collector != nil {
		opts = append(opts, engine.WithMetrics(collector))
	}
	if tc := a.cfg.tracingConfig(); tc != nil {
		opts = append(opts, engine.WithTracing(*tc))
	}

	e, err := engine.New(input, schemaSrc, opts...)
	if err != nil {
		return nil, nil, err
	}
	if o.bindings == "" {
		return e, nil, nil
	}

	m, err := manifest.Load(o.bindings)
	if err != nil {
		_ = e.Close()
		return nil, nil, err
	}
	compiled, err := m.Register(e, a.log())
	if err != nil {
		_ = e.Close()
		return nil, nil, err
	}
	return e, compiled.Close, nil
}

func serveMetrics(addr string, collector *metrics.Collector, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
