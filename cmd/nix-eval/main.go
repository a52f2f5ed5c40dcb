package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/nix-runtime/config"
	"github.com/wippyai/nix-runtime/engine"
	"github.com/wippyai/nix-runtime/errors"
	"github.com/wippyai/nix-runtime/resource"
	"github.com/wippyai/nix-runtime/runtime"
)

var errorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FF6B6B"))

// openEngine selects the evaluator backend. Tests replace it.
var openEngine = func(ctx context.Context, cfg *config.Config) (engine.Engine, error) {
	switch cfg.Engine {
	case config.EngineWasm:
		data, err := os.ReadFile(cfg.WasmPath)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseEngine, errors.KindNotFound, err, "read evaluator module")
		}
		wcfg := cfg.WasmConfig()
		wcfg.Stderr = os.Stderr
		return engine.NewWasmEngine(ctx, data, wcfg)
	default:
		return engine.Native()
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		printError(os.Stderr, err, term.IsTerminal(int(os.Stderr.Fd())))
		os.Exit(1)
	}
}

type options struct {
	expr        string
	store       string
	engine      string
	wasm        string
	configPath  string
	logLevel    string
	flakeRef    string
	interactive bool
	stats       bool
}

func newRootCommand() *cobra.Command {
	var o options

	cmd := &cobra.Command{
		Use:   "nix-eval [file]",
		Short: "Evaluate a Nix expression",
		Long: `Evaluate a Nix expression and print the result.

The expression is read from the file argument, from --expr, or from
standard input when neither is given. Relative paths in a file resolve
against the file's directory.`,
		Example: `  # Evaluate an expression
  nix-eval -e '1 + 1'

  # Evaluate a file against an in-memory store
  nix-eval --store dummy ./default.nix

  # Read from stdin
  echo '"hello"' | nix-eval

  # Canonicalize a flake reference
  nix-eval --flake-ref nixpkgs`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := o.run(cmd, args)
			if errors.IsKind(err, errors.KindArgument) {
				fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.expr, "expr", "e", "", "expression text to evaluate")
	f.BoolVarP(&o.interactive, "interactive", "i", false, "start an interactive session")
	f.StringVar(&o.store, "store", "", "store to evaluate against (auto, dummy, daemon, local, a path or a URI)")
	f.StringVar(&o.engine, "engine", "", "evaluator backend (native or wasm)")
	f.StringVar(&o.wasm, "wasm", "", "evaluator module for the wasm backend")
	f.StringVar(&o.configPath, "config", "", "YAML configuration file")
	f.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.BoolVar(&o.stats, "stats", false, "print handle metrics to stderr after evaluating")
	f.StringVar(&o.flakeRef, "flake-ref", "", "print the canonical form of a flake reference and exit")

	return cmd
}

// loadConfig reads the config file, if any, and applies flags over it.
func (o *options) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Defaults()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}

	f := cmd.Flags()
	if f.Changed("store") {
		cfg.Store = o.store
	}
	if f.Changed("engine") {
		cfg.Engine = o.engine
	}
	if f.Changed("wasm") {
		cfg.WasmPath = o.wasm
		if !f.Changed("engine") {
			cfg.Engine = config.EngineWasm
		}
	}
	if f.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *options) run(cmd *cobra.Command, args []string) error {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Level())
	defer func() { _ = logger.Sync() }()
	runtime.SetLogger(logger)
	engine.SetLogger(logger)

	var in *input
	flake := cmd.Flags().Changed("flake-ref")
	switch {
	case flake:
		if len(args) > 0 || cmd.Flags().Changed("expr") || o.interactive {
			return errors.Argument("--flake-ref takes no file, --expr or --interactive")
		}
	case o.interactive:
		if len(args) > 0 || cmd.Flags().Changed("expr") {
			return errors.Argument("--interactive takes no file or --expr")
		}
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.Argument("--interactive needs a terminal")
		}
	default:
		// resolved before the engine is opened, so bad input never reaches it
		in, err = resolveInput(args, o.expr, cmd.Flags().Changed("expr"), cmd.InOrStdin())
		if err != nil {
			return err
		}
	}

	eng, err := openEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics, err := resource.NewMetricsObserver("nix_runtime", reg)
	if err != nil {
		_ = eng.Close()
		return err
	}

	opts := append(cfg.SessionOptions(), runtime.WithObserver(metrics))
	rt, err := runtime.New(eng, opts...)
	if err != nil {
		_ = eng.Close()
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("engine close failed", zap.Error(err))
		}
	}()

	switch {
	case flake:
		err = printFlakeRef(cmd.OutOrStdout(), rt, o.flakeRef)
	case o.interactive:
		err = runInteractive(rt)
	default:
		err = evaluate(cmd.OutOrStdout(), rt, in)
	}

	if o.stats {
		if serr := writeStats(cmd.ErrOrStderr(), reg); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

func evaluate(w io.Writer, rt *runtime.Runtime, in *input) error {
	var opts []runtime.Option
	if in.basePath != "" {
		opts = append(opts, runtime.WithBasePath(in.basePath))
	}
	out, err := rt.Evaluate(in.text, opts...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func printFlakeRef(w io.Writer, rt *runtime.Runtime, url string) error {
	out, err := rt.ParseFlakeRef(url, "")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func newLogger(w io.Writer, level zapcore.Level) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(zapcore.AddSync(w)),
		level,
	)
	return zap.New(core)
}

// writeStats prints the handle metrics in the prometheus text format.
func writeStats(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// printError writes the diagnostic for err. Errors carrying an engine message
// print just that message.
func printError(w io.Writer, err error, styled bool) {
	line := "error: " + message(err)
	if styled {
		line = errorStyle.Render(line)
	}
	fmt.Fprintln(w, line)
}
