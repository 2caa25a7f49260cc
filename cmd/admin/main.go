// Command admin serves the space administration UI and API. Storage and
// blob drivers are selected through SPACECORE_* environment variables; a
// .env file in the working directory is loaded first when present.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"spacecore/internal/blob"
	"spacecore/internal/core"
	"spacecore/internal/httpapi"
	"spacecore/internal/projection"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stderr))
}

func cli(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		host     string
		port     int
		viewsDir string
	)
	fs.StringVar(&host, "host", "127.0.0.1", "listen address")
	fs.IntVar(&port, "port", 5000, "listen port")
	fs.StringVar(&viewsDir, "views", ".", "directory for derived view files")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := run(host, port, viewsDir); err != nil {
		fmt.Fprintf(stderr, "admin: %v\n", err)
		return 1
	}
	return 0
}

func run(host string, port int, viewsDir string) error {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := core.OpenPersistentStore(core.DefaultRulesEngine(), logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	blobs, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	service := core.NewService(store,
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithProjectionWriter(projection.NewWriter(viewsDir, logger)),
	)

	server := httpapi.NewServer(service, blobs, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", server.Router())

	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
