package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"neomap/core-go/internal/config"
	"neomap/core-go/internal/controller"
	"neomap/core-go/internal/graphdb"
	"neomap/core-go/internal/httpapi"
	"neomap/core-go/internal/metrics"
	"neomap/core-go/internal/refreshworker"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the layer HTTP API.

Stored layers are loaded from the configured store (DATABASE_URL, REDIS_ADDR,
SQLITE_PATH or memory) and LAYERS_FILE seeds are added on top.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	logger := httpapi.NewLogger(httpapi.LogOptions{Level: cfg.LogLevel, Version: Version})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	m := metrics.New()
	opts := httpapi.Options{
		Metrics: m,
		Ready:   be.ready,
		// Leave room for the fetch plus the store write.
		RequestTimeout: cfg.FetchTimeout + 30*time.Second,
	}
	if cfg.UpdateRate > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(cfg.UpdateRate), cfg.UpdateBurst)
	}

	var reg *controller.Registry
	if cfg.Neo4jURI != "" {
		graph, err := graphdb.Open(ctx, logger, graphdb.Options{
			URI:             cfg.Neo4jURI,
			Username:        cfg.Neo4jUsername,
			Password:        cfg.Neo4jPassword,
			Database:        cfg.Neo4jDatabase,
			CatalogCacheTTL: cfg.CatalogCacheTTL,
		})
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = graph.Close(closeCtx)
		}()

		reg = controller.NewRegistry(logger, graph, be.store, controller.Options{
			FetchTimeout:   cfg.FetchTimeout,
			CatalogRetries: cfg.CatalogRetries,
			Metrics:        m,
		})
		if err := hydrateRegistry(ctx, logger, reg, be.store, cfg.LayersFile); err != nil {
			return err
		}
		opts.Catalog = graph
		opts.Ready = append(opts.Ready, httpapi.ReadyCheck{Name: "neo4j", Ping: graph.Ping})

		if cfg.RefreshInterval > 0 {
			worker := refreshworker.New(logger, reg, refreshworker.Options{
				Interval: cfg.RefreshInterval,
				Workers:  cfg.RefreshWorkers,
			})
			go worker.Run(ctx)
		}
	} else {
		logger.Warn().Msg("NEO4J_URI not set; layer routes are disabled")
	}

	h := httpapi.NewHandler(logger, reg, opts)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("store", be.name).Msg("neomap listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error().Err(err).Msg("http server error")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
	return nil
}
