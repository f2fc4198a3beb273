// Package cli implements the kage command line tool
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wehubfusion/kage/pkg/concurrency"
)

// Version is set at build time with -ldflags
var Version = "dev"

type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	sentryDSN  string

	cfg      *FileConfig
	logger   *zap.Logger
	undo     func()
	reporter bool
}

// NewRootCommand builds the kage command tree writing to the given streams
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "kage",
		Short: "Validate a document and run a graph of bindings over it",
		Long: `kage validates an input document against a schema, runs the bindings
declared in a manifest in dependency order and assembles an output document.`,
		Version:            Version,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.sentryDSN, "sentry-dsn", "", "Report failures to Sentry")

	root.AddCommand(
		newRunCommand(a),
		newValidateCommand(a),
		newGraphCommand(a),
		newVersionCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := LoadFileConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := a.logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	if level == "" {
		level = "warn"
	}
	if a.logger, err = newLogger(level); err != nil {
		return err
	}
	a.undo = concurrency.InitializeForKubernetes(a.logger)

	dsn := a.sentryDSN
	if dsn == "" {
		dsn = cfg.SentryDSN
	}
	if dsn != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:     dsn,
			Release: "kage@" + Version,
		})
		if err != nil {
			a.logger.Warn("Failed to initialize Sentry", zap.Error(err))
		} else {
			a.reporter = true
		}
	}
	a.logger.Debug("CLI initialized", zap.String("command", cmd.Name()), zap.String("config", a.configPath))
	return nil
}

func (a *app) teardown(*cobra.Command, []string) error {
	a.close()
	return nil
}

func (a *app) close() {
	if a.reporter {
		sentry.Flush(2 * time.Second)
		a.reporter = false
	}
	if a.undo != nil {
		a.undo()
		a.undo = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) report(err error) {
	if a.reporter && err != nil {
		sentry.CaptureException(err)
	}
}

func (a *app) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

// Execute runs the CLI and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, NewRootCommand(os.Stdout, os.Stderr), os.Args[1:])
}

func run(ctx context.Context, root *cobra.Command, args []string) int {
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(a.stdout, "kage %s\n", Version)
			return err
		},
	}
}
