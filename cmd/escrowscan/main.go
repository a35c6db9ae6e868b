package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"escrowscan/config"
	"escrowscan/escrow"
	"escrowscan/gateway"
	"escrowscan/gateway/middleware"
	"escrowscan/observability/logging"
	telemetry "escrowscan/observability/otel"
	"escrowscan/rpc"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "escrowscan.toml", "path to viewer configuration")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ESCROWSCAN_ENV"))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.Setup("escrowscan", env, nil).Error("load config", "error", err)
		os.Exit(1)
	}

	var rotate *logging.RotationConfig
	if strings.TrimSpace(cfg.Log.Path) != "" {
		rotate = &logging.RotationConfig{
			Path:       cfg.Log.Path,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		}
	}
	logger := logging.Setup("escrowscan", env, rotate)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if otlpEndpoint == "" {
		otlpEndpoint = cfg.Telemetry.Endpoint
	}
	insecure := cfg.Telemetry.Insecure
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	var shutdownTelemetry func(context.Context) error
	if cfg.Telemetry.Metrics || cfg.Telemetry.Traces {
		shutdownTelemetry, err = telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: "escrowscan",
			Environment: env,
			Endpoint:    otlpEndpoint,
			Insecure:    insecure,
			Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", "error", err)
			os.Exit(1)
		}
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	registry := prometheus.NewRegistry()
	rpcMetrics := rpc.NewMetrics(registry)

	clients := make(map[string]*rpc.Client, len(cfg.Networks))
	for _, network := range cfg.Networks {
		name := strings.ToLower(strings.TrimSpace(network.Name))
		clients[name] = rpc.NewClient(network.RPCURL, network.Passphrase,
			rpc.WithRateLimit(10, 20),
			rpc.WithMetrics(rpcMetrics),
		)
		logger.Info("configured network", "network", name, logging.EndpointAttr("endpoint", network.RPCURL))
	}

	loader := escrow.NewLoader(clients)
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "escrowscan",
		LogRequests: true,
	}, logger, registry)
	limiter := middleware.NewRateLimiter(middleware.RateLimit{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
	}, logger)

	server := gateway.NewServer(cfg, loader, logger, obs, limiter)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("viewer listening", "address", cfg.ListenAddress, "default_network", cfg.DefaultNetwork)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
