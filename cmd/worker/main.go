package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-sales/internal/config"
	"github.com/noah-isme/backend-sales/internal/obs"
	"github.com/noah-isme/backend-sales/internal/persistq"
	"github.com/noah-isme/backend-sales/internal/resilience"
	"github.com/noah-isme/backend-sales/internal/salesapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "sales"), nil)

	backend := &salesapi.Client{
		BaseURL: cfg.SalesAPIBaseURL,
		Token:   cfg.SalesAPIToken,
		HTTP: resilience.HTTPClient{
			Client: &http.Client{
				Timeout:   cfg.SalesAPITimeout,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
			Breaker:     resilience.NewBreaker("sales-api", cfg.BreakerFailureThreshold, cfg.BreakerOpenFor, logger),
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.SalesAPIMaxAttempts,
			Jitter:      float64(cfg.RetryJitterPercent) / 100,
			Timeout:     cfg.SalesAPITimeout,
		},
		Logger: logger.With().Str("component", "salesapi").Logger(),
	}

	asynqOpts, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}

	srv := asynq.NewServer(asynqOpts, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{cfg.PersistQueue: 1},
		Logger:      asynqLogger{logger},
	})

	mux := asynq.NewServeMux()
	mux.Handle(persistq.TypeOrderPersist, persistq.Worker{
		Store:  backend,
		Logger: logger.With().Str("component", "persistq").Logger(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down worker")
		srv.Shutdown()
	}()

	logger.Info().Str("queue", cfg.PersistQueue).Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker exited unexpectedly")
	}
}

// asynqLogger adapts zerolog to asynq's logging interface.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
