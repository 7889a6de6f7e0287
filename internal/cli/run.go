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

	"github.com/roach88/bypassd/internal/config"
	"github.com/roach88/bypassd/internal/events"
	"github.com/roach88/bypassd/internal/metrics"
	"github.com/roach88/bypassd/internal/store"
	"github.com/roach88/bypassd/internal/supervisor"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MetricsAddr string

	// SessionIDs allows overriding the session id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	SessionIDs supervisor.SessionIDGenerator
}

// EventLine is one streamed notification in run output.
type EventLine struct {
	Session string       `json:"session"`
	Time    time.Time    `json:"time"`
	Kind    events.Kind  `json:"kind"`
	Event   events.Event `json:"event"`
}

// Text renders the event as the engine would print it, with a timestamp.
func (e EventLine) Text() string {
	return fmt.Sprintf("%s %s\n", e.Time.Format("15:04:05"), e.Event)
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine and learn from its output",
		Long: `Prepare artifacts, start the engine, and stream recognized events until
interrupted. Learned locks and strategy history are persisted as they
change and once more on shutdown.

Exit codes:
  0 - Stopped by SIGINT/SIGTERM
  1 - Engine failed to start or exited on its own
  2 - Config invalid or required artifacts missing

Examples:
  bypassd run --config /etc/bypassd/bypassd.yaml
  bypassd run --metrics-addr 127.0.0.1:9477 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts.RootOptions, func(cfg *config.Config, st *store.Store) error {
				return runEngine(opts, cmd, cfg, st)
			})
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command, cfg *config.Config, st *store.Store) error {
	out := opts.formatter(cmd)
	m := metrics.New()

	supOpts := []supervisor.Option{
		supervisor.WithLogger(slog.Default()),
		supervisor.WithMetrics(m),
		supervisor.WithLineSink(func(n supervisor.Notification) {
			if !n.Recognized() {
				slog.Debug("engine output", "line", n.Line)
			}
		}),
	}
	if opts.SessionIDs != nil {
		supOpts = append(supOpts, supervisor.WithSessionIDs(opts.SessionIDs))
	}
	sup := supervisor.New(cfg, st, supOpts...)

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing)
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	if _, err := sup.Start(ctx); err != nil {
		if supervisor.IsConfigError(err) {
			return prepareError(out, err)
		}
		return WrapExitError(ExitFailure, "failed to start engine", err)
	}
	slog.Info("engine running", "session", sup.SessionID())

	addr := opts.MetricsAddr
	if addr == "" {
		addr = cfg.MetricsAddr
	}
	if addr != "" {
		srv, err := serveMetrics(addr, m)
		if err != nil {
			sup.Stop()
			return WrapExitError(ExitCommandError, "failed to serve metrics", err)
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	emit := func(n supervisor.Notification) {
		if err := out.Emit(EventLine{Session: n.Session, Time: n.Time, Kind: n.Event.Kind(), Event: n.Event}); err != nil {
			slog.Warn("write event", "error", err)
		}
	}
	drain := func() {
		for {
			select {
			case n := <-sup.Notifications():
				emit(n)
			default:
				return
			}
		}
	}

	for {
		select {
		case n := <-sup.Notifications():
			emit(n)

		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			sup.Stop()
			drain()
			return nil

		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
			sup.Stop()
			drain()
			return nil

		case <-sup.Done():
			drain()
			return NewExitError(ExitFailure, "engine exited")
		}
	}
}

// serveMetrics listens on addr and serves m at /metrics in the background.
func serveMetrics(addr string, m *metrics.Metrics) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}
