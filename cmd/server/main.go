package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openadtrack/internal/adevents"
	"github.com/patrickwarner/openadtrack/internal/analytics"
	"github.com/patrickwarner/openadtrack/internal/api"
	"github.com/patrickwarner/openadtrack/internal/config"
	"github.com/patrickwarner/openadtrack/internal/conversions"
	"github.com/patrickwarner/openadtrack/internal/creatives"
	"github.com/patrickwarner/openadtrack/internal/db"
	"github.com/patrickwarner/openadtrack/internal/diagnostics"
	"github.com/patrickwarner/openadtrack/internal/eligibility"
	"github.com/patrickwarner/openadtrack/internal/engine"
	"github.com/patrickwarner/openadtrack/internal/geoip"
	"github.com/patrickwarner/openadtrack/internal/kvstore"
	"github.com/patrickwarner/openadtrack/internal/models"
	"github.com/patrickwarner/openadtrack/internal/observability"
	"github.com/patrickwarner/openadtrack/internal/serverhosts"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName,
			cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	metricsRegistry := observability.NewPrometheusRegistry()

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns,
		cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	eventTable := adevents.NewTable(pg.DB, cfg.EventRetention, metricsRegistry)
	catalog := creatives.NewCatalog(pg.DB)
	if err := pg.MigrateAll(ctx, eventTable, creatives.AdsTable{}, creatives.ConversionsTable{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	var store kvstore.Store
	if cfg.QueueStateBackend == "redis" {
		redisStore, err := kvstore.InitRedis(cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		fileStore, err := kvstore.NewFileStore(cfg.QueueStatePath)
		if err != nil {
			return fmt.Errorf("init state dir: %w", err)
		}
		store = fileStore
	}

	mirror, err := analytics.InitClickHouse(cfg.ClickHouseDSN, cfg.CHMaxOpenConns, metricsRegistry)
	if err != nil {
		return fmt.Errorf("failed to connect clickhouse: %w", err)
	}
	defer mirror.Close()

	geoSvc, err := geoip.Open(cfg.GeoIPDB)
	if err != nil {
		logger.Warn("geoip unavailable, country enrichment disabled", zap.Error(err))
		geoSvc = nil
	} else {
		defer func() { _ = geoSvc.Close() }()
	}

	confirmHost, err := serverhosts.Get(serverhosts.Environment(cfg.Environment), serverhosts.HostTypeAnonymous)
	if err != nil {
		return fmt.Errorf("resolve confirmation host: %w", err)
	}
	confirmer := newLoggingConfirmer(logger, confirmHost)

	queue := conversions.NewQueue(store, conversions.NewWallTimers(), confirmer,
		metricsRegistry, logger, cfg.ConversionDelayMean, cfg.OverdueDelayMax)
	if err := queue.Load(ctx); err != nil {
		return fmt.Errorf("restore conversion queue: %w", err)
	}

	diag := diagnostics.NewLog(cfg.DiagnosticLogPath, cfg.DiagnosticLogMaxBytes,
		cfg.DiagnosticLogMaxLines, logger)
	defer diag.Close()

	cache := adevents.NewCache(cfg.CacheRetention, metricsRegistry)
	pipeline := eligibility.NewPipeline(metricsRegistry, logger)
	eng := engine.New(cache, eventTable, catalog, queue, mirror, pipeline,
		metricsRegistry, logger, cfg.DailyServeCap)

	srvDeps := api.NewServer(logger, eng, queue, eventTable, catalog, geoSvc,
		diag, metricsRegistry, cfg)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      srvDeps.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Ad tracker running", zap.String("addr", addr))
	diag.Append("server started")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	diag.Append("server stopped")
	logger.Info("Ad tracker stopped")
	return nil
}

// loggingConfirmer reports confirmed actions. Dispatching the confirmation to
// the ad network is the embedding host's job; this binary records the outcome
// and the host it would target.
type loggingConfirmer struct {
	logger *zap.Logger
	host   string
}

func newLoggingConfirmer(logger *zap.Logger, host string) *loggingConfirmer {
	return &loggingConfirmer{logger: logger, host: host}
}

func (c *loggingConfirmer) ConfirmAction(_ context.Context, placementID, creativeSetID string, confirmationType models.ConfirmationType) error {
	c.logger.Info("confirm action",
		zap.String("host", c.host),
		zap.String("placement_id", placementID),
		zap.String("creative_set_id", creativeSetID),
		zap.String("confirmation_type", confirmationType.String()))
	return nil
}
