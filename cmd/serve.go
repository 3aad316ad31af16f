package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/ait/internal/api"
	"github.com/joescharf/ait/internal/classify"
	"github.com/joescharf/ait/internal/daemon"
	"github.com/joescharf/ait/internal/dashboard"
	"github.com/joescharf/ait/internal/mcp"
	"github.com/joescharf/ait/internal/output"
	"github.com/joescharf/ait/internal/tracker"
)

const shutdownTimeout = 10 * time.Second

var serveStopForce bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server (dashboard, REST API and MCP)",
	Long: `Start an HTTP server in the foreground that serves:

  /          read-only dashboard (auto-refreshes every 30s)
  /health    health check
  /api/v1/   REST API
  /mcp       MCP streamable HTTP transport

By default it listens on port 3000. Use --port, AIT_PORT or PORT to change it.
The server shuts down gracefully on SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 3000, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))

	serveStopCmd.Flags().BoolVar(&serveStopForce, "force", false, "Kill the server instead of asking it to shut down")

	serveCmd.AddCommand(serveStatusCmd)
	serveCmd.AddCommand(serveStopCmd)
	rootCmd.AddCommand(serveCmd)
}

// pidFile returns the PID file manager for the server.
func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "ait.pid"))
}

// newLogger returns the process logger. Debug level with --verbose.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func serveRun(ctx context.Context) error {
	ctx = orBackground(ctx)
	slog.SetDefault(newLogger(os.Stderr))

	port := viper.GetInt("port")

	t, err := getTracker(ctx)
	if err != nil {
		return err
	}

	handler, err := newServeHandler(t, getSuggester(), buildVersion)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would serve %s on port %d", dataStore.Location(), port)
		return nil
	}

	pf := pidFile()
	if err := pf.Acquire(daemon.Record{Port: port, Store: dataStore.Location()}); err != nil {
		return err
	}
	defer func() {
		if err := pf.Release(); err != nil {
			slog.Warn("release PID file", "path", pf.Path, "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	slog.Info("server started",
		"addr", fmt.Sprintf("http://localhost:%d", port),
		"store", dataStore.Location(),
		"issues", t.Len(),
		"policy", t.Policy(),
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newServeHandler mounts the dashboard, REST API and MCP transport on one mux.
func newServeHandler(t *tracker.Tracker, suggester classify.Suggester, version string) (http.Handler, error) {
	dash, err := dashboard.New(t)
	if err != nil {
		return nil, fmt.Errorf("initialize dashboard: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", api.NewServer(t, suggester).Router())
	mux.Handle("/mcp", mcp.NewServer(t, suggester, version).HTTPHandler())
	mux.Handle("/", dash)
	return requestLogger(mux), nil
}

// requestLogger logs each request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func serveStatusRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		ui.Info("Server is %s", output.Yellow("not running"))
		return nil
	}

	rec, err := pf.Read()
	if err != nil {
		return err
	}
	ui.Success("Server is %s (pid %d)", output.Green("running"), pid)
	if rec.Port > 0 {
		fmt.Fprintf(ui.Out, "  URL:     http://localhost:%d\n", rec.Port)
	}
	if rec.Store != "" {
		fmt.Fprintf(ui.Out, "  Store:   %s\n", rec.Store)
	}
	if !rec.StartedAt.IsZero() {
		fmt.Fprintf(ui.Out, "  Started: %s\n", rec.StartedAt.Local().Format(time.DateTime))
	}
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		return fmt.Errorf("server is not running")
	}

	sig := sigTERM()
	if serveStopForce {
		sig = sigKILL()
	}

	if dryRun {
		ui.DryRunMsg("Would send %v to pid %d", sig, pid)
		return nil
	}

	if err := pf.Signal(sig); err != nil {
		return fmt.Errorf("signal server: %w", err)
	}
	if serveStopForce {
		// A killed server cannot release its own PID file.
		_ = pf.Remove()
	}
	ui.Success("Sent %v to server (pid %d)", sig, pid)
	return nil
}
