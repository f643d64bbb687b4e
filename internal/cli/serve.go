package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/roach88/mallet/internal/config"
	"github.com/roach88/mallet/internal/control"
	"github.com/roach88/mallet/internal/engine"
	"github.com/roach88/mallet/internal/journal"
	"github.com/roach88/mallet/internal/relay"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string

	// Flag overrides, applied only when set on the command line.
	Listen    string
	Upstream  string
	Control   string
	Journal   string
	Intercept bool

	// Ready is called with the bound relay and control addresses once both
	// listeners are open (for testing). The control address is empty when
	// the API is disabled.
	Ready func(relayAddr, controlAddr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the intercepting relay and control API",
		Long: `Accept client connections, relay each to the upstream server, and hold
every event for the control API to execute or drop.

Configuration comes from --config (YAML), then MALLET_* environment
variables, then flags.

Example:
  mallet serve --listen 127.0.0.1:8070 --upstream example.com:80
  mallet serve --config mallet.yaml --journal ./decisions.db --verbose
  mallet serve --upstream db:5432 --intercept=false`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "client-facing listen address")
	cmd.Flags().StringVar(&opts.Upstream, "upstream", "", "upstream server address")
	cmd.Flags().StringVar(&opts.Control, "control", "", "control API address (empty string disables)")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite decision journal")
	cmd.Flags().BoolVar(&opts.Intercept, "intercept", true, "hold events for the control actor")

	return cmd
}

// loadServeConfig merges the config file, environment and changed flags.
func loadServeConfig(opts *ServeOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen = opts.Listen
	}
	if flags.Changed("upstream") {
		cfg.Upstream = opts.Upstream
	}
	if flags.Changed("control") {
		cfg.Control = opts.Control
	}
	if flags.Changed("journal") {
		cfg.Journal = opts.Journal
	}
	if flags.Changed("intercept") {
		cfg.Intercept = opts.Intercept
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadServeConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := newLogger(cmd.ErrOrStderr(), level, opts.Verbose)
	slog.SetDefault(logger)

	metrics, err := engine.NewMetrics(otel.GetMeterProvider().Meter("github.com/roach88/mallet"))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create metrics", err)
	}

	regOpts := []engine.RegistryOption{
		engine.WithRegistryMetrics(metrics),
		engine.WithRegistryLogger(logger.With("component", "registry")),
	}
	var ctlOpts []control.Option

	if cfg.Journal != "" {
		slog.Info("opening journal", "path", cfg.Journal)
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()
		regOpts = append(regOpts, engine.WithGateOptions(engine.WithJournal(j)))
		ctlOpts = append(ctlOpts, control.WithJournal(j))
	}

	reg := engine.NewRegistry(nil, regOpts...)
	r := relay.New(relay.Options{
		Upstream:     cfg.Upstream,
		Intercept:    cfg.Intercept,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ReadBuffer:   cfg.ReadBuffer,
		Logger:       logger.With("component", "relay"),
	}, reg)

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	controlAddr := ""
	errc := make(chan error, 2)
	if cfg.Control != "" {
		ctlLn, err := net.Listen("tcp", cfg.Control)
		if err != nil {
			ln.Close()
			return WrapExitError(ExitCommandError, "failed to listen for control API", err)
		}
		controlAddr = ctlLn.Addr().String()

		ctlOpts = append(ctlOpts, control.WithLogger(logger.With("component", "control")))
		e := control.NewServer(reg, ctlOpts...).Echo()
		e.Listener = ctlLn
		go func() {
			if err := e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("control API: %w", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.Shutdown(shutdownCtx); err != nil {
				slog.Error("control API shutdown", "error", err)
			}
		}()
		slog.Info("control API listening", "addr", controlAddr)
	}

	relayCtx, cancelRelay := context.WithCancel(ctx)
	defer cancelRelay()
	go func() {
		errc <- r.Serve(relayCtx, ln)
	}()

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Relaying %s -> %s (intercept=%t)\n", ln.Addr(), cfg.Upstream, cfg.Intercept)
	if controlAddr != "" {
		fmt.Fprintf(w, "Control API on http://%s\n", controlAddr)
	}
	fmt.Fprintln(w, "Press Ctrl-C to stop.")
	if opts.Ready != nil {
		opts.Ready(ln.Addr().String(), controlAddr)
	}

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		cancelRelay()
		if err := <-errc; err != nil {
			return WrapExitError(ExitFailure, "relay error", err)
		}
	case err := <-errc:
		if err != nil {
			return WrapExitError(ExitFailure, "relay error", err)
		}
	}

	slog.Info("relay stopped gracefully")
	return nil
}
