package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/M3-org/clanktank-sub000/internal/adapters/http/api"
	"github.com/M3-org/clanktank-sub000/internal/adapters/http/swagger"
	service "github.com/M3-org/clanktank-sub000/internal/app"
	"github.com/M3-org/clanktank-sub000/internal/config"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scoring HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}

	svc := service.New(serviceOptions(cfg, log)...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(ctx, cfg, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		startServiceMetricsUpdater(gctx, svc)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		if err := svc.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("service stop: %w", err))
		}
		log.Info(context.Background(), "server stopped")
		return errors.Join(errs...)
	})
	return g.Wait()
}

// setup loads configuration and initializes the global logger from it.
func setup(ctx context.Context) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(logger.WithWriter(os.Stdout), logger.WithFormat(cfg.LogFormat)); err != nil {
		return nil, nil, fmt.Errorf("initialize logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, log, nil
}

func serviceOptions(cfg *config.Config, log logger.Logger) []service.Option {
	return []service.Option{
		service.WithLogger(log),
		service.WithStoreDriver(cfg.StoreDriver, cfg.StoreDSN),
		service.WithAutoMigrate(cfg.AutoMigrate),
		service.WithRoster(cfg.RosterVersion, cfg.Judges),
		service.WithJudgeWeights(cfg.JudgeWeights),
		service.WithRevisionBound(cfg.RevisionBound),
		service.WithMaxTokenWeight(cfg.MaxTokenWeight),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithQueueSize(cfg.NotifyQueueSize),
		service.WithWorkerCount(cfg.NotifyWorkers),
		service.WithNATS(cfg.NatsURL),
		service.WithTopic(cfg.NotifyTopic),
		service.WithMaxPageSize(cfg.MaxPageSize),
	}
}

func newRouter(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) http.Handler {
	r := chi.NewRouter()
	swagger.Register(ctx, r)
	api.NewServer(svc,
		api.WithWriteRateLimit(cfg.WriteRateLimit, cfg.WriteRateBurst),
		api.WithLogger(log.Named("api")),
	).Register(ctx, r)
	return r
}

// startServiceMetricsUpdater refreshes service gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.Stats(ctx)
		}
	}
}
