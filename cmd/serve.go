package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pixora/internal/api"
	"pixora/internal/catalog"
	"pixora/internal/config"
	"pixora/internal/events"
	fileutil "pixora/internal/file"
	"pixora/internal/poller"
	"pixora/internal/session"
	"pixora/internal/telemetry"
	"pixora/internal/usage"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Example: `  pixora serve
  pixora serve --port 9090 --config /etc/pixora.yml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, cat, err := root.load()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Port = port
			}
			return serve(cmd.Context(), cfg, cat)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides config)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, cat *catalog.Catalog) error {
	if err := fileutil.EnsureDir(cfg.DataDir); err != nil {
		return fmt.Errorf("ensure data dir %s: %w", cfg.DataDir, err)
	}

	gate, closeGate, err := buildGate(cfg)
	if err != nil {
		return err
	}
	defer closeGate()

	publisher, err := buildPublisher(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("close publisher")
		}
	}()

	metrics := telemetry.NewMetrics()
	p := poller.New(poller.NewHTTPProber(cfg.Poller.RequestTimeout), poller.Options{
		MaxAttempts: cfg.Poller.MaxAttempts,
		Interval:    cfg.Poller.Interval,
	})
	manager := session.NewManager(cat, p, session.Options{
		DataDir:     cfg.DataDir,
		HistorySize: cfg.HistorySize,
		Gate:        gate,
		Publisher:   publisher,
		Metrics:     metrics,
	})
	if err := manager.LoadFromDisk(); err != nil {
		log.Warn().Err(err).Msg("restore sessions")
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	manager.SetBaseContext(baseCtx)

	router := setupRouter()
	api.NewAPI(manager, gate).RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Int("tools", cat.Len()).Str("usage_mode", cfg.Usage.Mode).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		baseCancel()
		return fmt.Errorf("http server: %w", err)
	}
	gracefulShutdown(srv, baseCancel, manager)
	return nil
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.ZerologLogger())
	return r
}

func buildGate(cfg config.Config) (usage.Gate, func(), error) {
	switch cfg.Usage.Mode {
	case config.UsageOff:
		return usage.Unlimited{}, func() {}, nil
	case config.UsageRemote:
		return usage.NewClient(cfg.Usage.RemoteURL), func() {}, nil
	default:
		ledger, err := openLedger(cfg)
		if err != nil {
			return nil, nil, err
		}
		return ledger, func() {
			if err := ledger.Close(); err != nil {
				log.Warn().Err(err).Msg("close usage ledger")
			}
		}, nil
	}
}

func openLedger(cfg config.Config) (*usage.Ledger, error) {
	if err := fileutil.EnsureDir(filepath.Dir(cfg.UsageDBPath())); err != nil {
		return nil, err
	}
	ledger, err := usage.OpenLedger(cfg.UsageDBPath(), usage.Limits{
		usage.PlanFree: cfg.Usage.FreeLimit,
		usage.PlanPro:  cfg.Usage.ProLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("open usage ledger: %w", err)
	}
	return ledger, nil
}

func buildPublisher(cfg config.Config) (events.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.LogPublisher{}, nil
	}
	p, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: %w", err)
	}
	log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing job events to kafka")
	return p, nil
}

func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, manager *session.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	cancelBase()
	if !manager.WaitAll(ctx) {
		log.Warn().Msg("poll loops did not finish before timeout")
	}
	log.Info().Msg("server exited cleanly")
}
