// Command connectivity runs the connectivity-service supervisor: one
// client.BaseClient per connection, with its admin HTTP surface and
// gRPC health service, wired exactly as pkg/supervisor.New expects.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-connectivity/pkg/client"
	"github.com/illmade-knight/go-connectivity/pkg/connectorconfig"
	"github.com/illmade-knight/go-connectivity/pkg/metrics"
	"github.com/illmade-knight/go-connectivity/pkg/signalbus"
	"github.com/illmade-knight/go-connectivity/pkg/supervisor"
)

func main() {
	cfg := connectorconfig.LoadWithEnv()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("service", cfg.ServiceName).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := metrics.New(cfg.MetricsWindows)

	var bus signalbus.Bus
	if cfg.SignalBus.ProjectID != "" {
		pubsubBus, err := signalbus.NewPubsubBus(ctx, cfg.SignalBus, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to construct signal bus.")
		}
		defer pubsubBus.Close()
		bus = pubsubBus
	}

	var reachabilityCache client.ReachabilityCache
	if cfg.Redis.Addr != "" {
		redisCache, err := client.NewRedisReachabilityCache(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to construct Redis reachability cache.")
		}
		defer redisCache.Close()
		reachabilityCache = redisCache
	}

	sup := supervisor.New(ctx, supervisor.Config{
		Registry:          registry,
		Bus:               bus,
		MQTTConfig:        cfg.MQTT,
		HTTPPushConfig:    cfg.HTTPPush,
		HTTPClient:        &http.Client{Timeout: cfg.HTTPPush.Timeout},
		ReachabilityCache: reachabilityCache,
		InstanceSuffix:    cfg.InstanceSuffix,
		Logger:            logger,
	})

	adminServer := supervisor.NewAdminServer(cfg.HTTPPort, registry, sup, logger)
	if err := adminServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start admin HTTP server.")
	}

	healthServer := supervisor.NewGRPCHealthServer(cfg.GRPCPort, logger)
	if err := healthServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start gRPC health server.")
	}

	logger.Info().Str("http_addr", adminServer.Addr()).Str("grpc_addr", cfg.GRPCPort).Msg("Connectivity service started.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal.")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()

	healthServer.Stop()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Admin server shutdown reported an error.")
	}
	sup.Shutdown(shutdownCtx)
	cancel()

	logger.Info().Msg("Connectivity service stopped.")
}
