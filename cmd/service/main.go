package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aldikf/airfare-price-service/internal/cache"
	"github.com/aldikf/airfare-price-service/internal/circuitbreaker"
	"github.com/aldikf/airfare-price-service/internal/config"
	httphandler "github.com/aldikf/airfare-price-service/internal/http"
	"github.com/aldikf/airfare-price-service/internal/lifecycle"
	"github.com/aldikf/airfare-price-service/internal/observability"
	"github.com/aldikf/airfare-price-service/internal/pipeline"
	"github.com/aldikf/airfare-price-service/internal/resources"
	"github.com/aldikf/airfare-price-service/internal/service"
	"github.com/aldikf/airfare-price-service/internal/traffic"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	res := resources.New(cfg.AirportsPath, cfg.ModelPath)
	if err := res.Load(); err != nil {
		logger.Fatal("reference data", zap.Error(err),
			zap.String("airports_path", cfg.AirportsPath),
			zap.String("model_path", cfg.ModelPath))
	}
	dir, _ := res.Airports()
	fareModel, _ := res.Model()
	info := fareModel.Info()
	airportsPath, modelPath := res.Paths()
	logger.Info("reference data loaded",
		zap.String("airports_path", airportsPath),
		zap.String("model_path", modelPath),
		zap.Int("airports", dir.Len()),
		zap.String("model", info.Name),
		zap.String("model_version", info.Version))

	cacheOpts := cache.Options{
		MemcachedAddrs:        cfg.MemcachedAddrs,
		MemcachedTimeout:      cfg.MemcachedTimeout,
		MemcachedMaxIdleConns: cfg.MemcachedMaxIdleConns,
		RedisAddr:             cfg.RedisAddr,
		RedisPassword:         cfg.RedisPassword,
		RedisDB:               cfg.RedisDB,
		RedisTimeout:          cfg.RedisTimeout,
	}
	if cache.IsRemote(cfg.CacheBackend) && cfg.CircuitBreakerEnabled {
		cacheOpts.Breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Name:             cfg.CacheBackend,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(name, from.String(), to.String(), int(to))
				logger.Warn("circuit breaker transition",
					zap.String("component", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		observability.CircuitBreakerState.WithLabelValues(cfg.CacheBackend).Set(0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}
	predictionCache, err := cache.New(cfg.CacheBackend, cacheOpts)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend), zap.Duration("ttl", cfg.CacheTTL))

	predictions := service.NewPredictionService(pipeline.New(dir, fareModel), predictionCache, cfg.CacheTTL, logger)

	tracker := traffic.New()
	monitor := lifecycle.NewMonitor(tracker, res.Ready, lifecycle.Thresholds{
		RateLimitRPS:         cfg.RateLimitRPS,
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
	})
	observability.RegisterRateLimitGauges(tracker, cfg.OverloadWindow)
	if len(cfg.TrackedRoutes) > 0 {
		observability.SetTrackedRoutes(cfg.TrackedRoutes)
	}

	handlerOpts := httphandler.Options{Currency: cfg.Currency}
	if p, ok := predictionCache.(cache.Pinger); ok {
		handlerOpts.CachePing = p.Ping
	}
	handler := httphandler.NewHandler(predictions, dir, monitor, logger, handlerOpts)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	inFlight := &httphandler.InFlightTracker{}
	router := httphandler.NewRouter(handler, httphandler.RouterOptions{
		Logger:         logger,
		Limiter:        limiter,
		Tracker:        tracker,
		InFlight:       inFlight,
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httphandler.WithCORS(router, cfg.CORSAllowedOrigins),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	monitor.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := inFlight.WaitForZero(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if c, ok := predictionCache.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Error("cache close", zap.String("backend", cfg.CacheBackend), zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
