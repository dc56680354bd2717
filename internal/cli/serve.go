package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nhlutterodt/localrag/internal/collection"
	"github.com/nhlutterodt/localrag/internal/config"
	"github.com/nhlutterodt/localrag/internal/httpapi"
	"github.com/nhlutterodt/localrag/internal/ingest"
	"github.com/nhlutterodt/localrag/internal/logging"
	"github.com/nhlutterodt/localrag/internal/query"
	"github.com/nhlutterodt/localrag/internal/queue"
	"github.com/nhlutterodt/localrag/internal/querylog"
	"github.com/nhlutterodt/localrag/internal/upstream"
	"github.com/nhlutterodt/localrag/pkg/version"
)

// shutdownGracePeriod bounds how long an in-flight /api/chat SSE stream is
// allowed to finish before the listener is forced closed, matching spec.md
// §5's "allow in-flight requests to finish or close after a grace period."
const shutdownGracePeriod = 5 * time.Second

func newServeCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ragd HTTP server (the default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *dataDir)
		},
	}
}

// runServe loads configuration rooted at projectDir, wires every
// collaborator, and blocks until ctx is cancelled (SIGINT/SIGTERM) or a
// component fails.
func runServe(ctx context.Context, projectDir string) error {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	cfg.DataDir = resolveDir(projectDir, cfg.DataDir)
	cfg.LogsDir = resolveDir(projectDir, cfg.LogsDir)

	logCfg := logging.DefaultConfig(cfg.LogsDir)
	logger, cleanupLog, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer cleanupLog()

	printBanner(os.Stdout)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// A single advisory lock file prevents two `ragd serve` processes
	// pointed at the same dataDir from racing queue.json and the vector
	// store's atomic-rename saves against each other.
	lock := flock.New(filepath.Join(cfg.DataDir, ".ragd.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire data directory lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("data directory %s is already in use by another ragd serve process", cfg.DataDir)
	}
	defer lock.Unlock()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := collection.New(cfg.DataDir, logger)
	upstreamClient := upstream.New(cfg.OllamaURL)

	ingestProcessor := ingest.New(registry, upstreamClient, cfg, logger)
	q, err := queue.New(cfg.DataDir, ingestProcessor, logger)
	if err != nil {
		return fmt.Errorf("create ingestion queue: %w", err)
	}
	if err := q.Load(); err != nil {
		return fmt.Errorf("load ingestion queue: %w", err)
	}

	ql, err := querylog.New(cfg.LogsDir, logger)
	if err != nil {
		return fmt.Errorf("create query logger: %w", err)
	}

	pipeline := query.New(registry, upstreamClient, upstreamClient, ql, cfg, logger)
	api := httpapi.New(cfg, registry, q, pipeline, upstreamClient, ql, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	q.Start(gctx)

	g.Go(func() error {
		logger.Info("ragd listening", "port", cfg.Port, "dataDir", cfg.DataDir)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	wireWatchers(gctx, g, cfg, q, logger)

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful HTTP shutdown failed, forcing close", "error", err)
			_ = httpServer.Close()
		}

		q.Stop()
		if err := ql.Flush(); err != nil {
			logger.Warn("failed to flush query log on shutdown", "error", err)
		}
		logger.Info("ragd stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}

// printBanner writes a one-line startup banner only when stdout is an
// interactive terminal, mirroring the teacher's isatty-gated UI selection:
// a piped/redirected stdout (the common case for a supervised service)
// gets no decoration.
func printBanner(w *os.File) {
	if !isatty.IsTerminal(w.Fd()) && !isatty.IsCygwinTerminal(w.Fd()) {
		return
	}
	fmt.Fprintf(w, "ragd %s — offline retrieval-augmented chat server\n", version.Short())
}
