package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pdp/internal/cache"
	"pdp/internal/decisionlog"
	"pdp/internal/enforcer"
	"pdp/internal/engine"
	"pdp/internal/filter"
	"pdp/internal/gateway"
	"pdp/internal/mapping"
	"pdp/internal/platform/config"
	"pdp/internal/platform/httpserver"
	"pdp/internal/platform/logger"
	"pdp/internal/statistics"
	"pdp/internal/token"
	httptransport "pdp/internal/transport/http"
	"pdp/pkg/platform/middleware/auth"
)

// main wires dependencies from config and runs the server, the statistics
// consumer and the decision-log sink under one errgroup. Business logic
// lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("pdp exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.New(cfg.Cache)
	if err != nil {
		return err
	}

	sink, err := buildSink(ctx, cfg.DecisionLog, log)
	if err != nil {
		return err
	}

	matcher, err := buildMatcher(cfg.MappingRulesFile, log)
	if err != nil {
		return err
	}

	routes, err := buildRoutes(cfg.KongRoutesFile)
	if err != nil {
		return err
	}

	tracker := statistics.New(log,
		statistics.WithInterval(cfg.Statistics.Interval),
		statistics.WithThreshold(cfg.Statistics.Threshold),
		statistics.WithQueueSize(cfg.Statistics.QueueSize),
	)

	engineClient := engine.New(cfg.Engine, log)
	enforcerService := enforcer.NewService(
		engineClient,
		cfg.Engine,
		store,
		cfg.Cache.TTL,
		tracker,
		sink,
		matcher,
		log,
		enforcer.NewMetrics(),
	)
	filterMetrics := filter.NewMetrics()
	filterService := filter.NewService(engineClient, cfg.Filter, log, filterMetrics)

	router := httptransport.NewRouter(httptransport.Deps{
		Enforcer:  enforcer.NewHandler(enforcerService, tracker, log),
		Filter:    filter.NewHandler(filterService, log, filterMetrics),
		Gateway:   gateway.NewHandler(enforcerService, routes, log),
		Validator: buildValidator(cfg),
		Logger:    log,
	})
	srv := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting pdp", "addr", cfg.Addr, "engine", cfg.Engine.URL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Statistics.Enabled {
		group.Go(func() error {
			return tracker.Run(ctx)
		})
	}

	group.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown failed", "error", err)
		}
		return sink.Close(shutdownCtx)
	})

	return group.Wait()
}

func buildValidator(cfg config.Config) auth.TokenValidator {
	if cfg.JWTSigningKey != "" {
		return token.NewJWTValidator(cfg.JWTSigningKey)
	}
	return token.NewAPIKeyValidator(cfg.APIKey)
}

func buildSink(ctx context.Context, cfg config.DecisionLog, log *slog.Logger) (decisionlog.Sink, error) {
	slogSink := decisionlog.NewSlogSink(log, cfg.Debug)
	if len(cfg.KafkaBrokers) == 0 {
		return slogSink, nil
	}
	kafkaSink, err := decisionlog.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, log)
	if err != nil {
		return nil, err
	}
	return decisionlog.MultiSink{slogSink, kafkaSink}, nil
}

func buildMatcher(path string, log *slog.Logger) (*mapping.Matcher, error) {
	if path == "" {
		return mapping.NewMatcher(nil, log), nil
	}
	rules, err := mapping.LoadRules(path)
	if err != nil {
		return nil, err
	}
	return mapping.NewMatcher(rules, log), nil
}

func buildRoutes(path string) (*gateway.RouteTable, error) {
	if path == "" {
		return gateway.NewRouteTable(nil)
	}
	routes, err := gateway.LoadRoutes(path)
	if err != nil {
		return nil, err
	}
	return gateway.NewRouteTable(routes)
}
