package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/mvaleed/acs/internal/authn"
	"github.com/mvaleed/acs/internal/config"
	"github.com/mvaleed/acs/internal/dispatch"
	"github.com/mvaleed/acs/internal/eval"
	"github.com/mvaleed/acs/internal/event"
	"github.com/mvaleed/acs/internal/graph"
	"github.com/mvaleed/acs/internal/obs"
	"github.com/mvaleed/acs/internal/persistence"
	"github.com/mvaleed/acs/internal/persistence/postgres"
	"github.com/mvaleed/acs/internal/resilience"
	grpcTransport "github.com/mvaleed/acs/internal/transport/grpc"
	httpTransport "github.com/mvaleed/acs/internal/transport/http"
)

func main() {
	cfg := config.Load()

	logger, err := obs.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("application error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *obs.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event publisher first: the resilience guard's state-change hook and
	// every dispatcher-accepted mutation both publish through it.
	var publisher event.Publisher
	if cfg.IsDevelopment() {
		publisher = event.NewLoggingPublisher(logger)
	} else {
		// TODO: wire a real broker-backed Publisher once one is chosen;
		// logging remains a correct (if unscaled) publisher in the meantime.
		publisher = event.NewLoggingPublisher(logger)
	}
	defer publisher.Close()

	g := graph.New(logger)
	evaluator := eval.New(g, eval.Config{
		Strategy: eval.DenyOverrides,
		CacheTTL: cfg.EvaluatorCacheTTL,
		CacheMax: cfg.EvaluatorCacheMax,
		Logger:   logger,
	})

	classConfigs := resilience.DefaultClassConfigs()
	if dbc, ok := classConfigs[resilience.ClassDatabase]; ok {
		dbc.FailureThreshold = cfg.BreakerDatabaseFailureThreshold
		dbc.RecoveryWindow = cfg.BreakerRecoveryWindow
		dbc.MaxRetries = cfg.RetryMaxAttempts
		dbc.BaseDelay = cfg.RetryBaseDelay
		dbc.CapDelay = cfg.RetryCapDelay
		classConfigs[resilience.ClassDatabase] = dbc
	}
	if extc, ok := classConfigs[resilience.ClassExternal]; ok {
		extc.FailureThreshold = cfg.BreakerExternalFailureThreshold
		extc.RecoveryWindow = cfg.BreakerRecoveryWindow
		extc.MaxRetries = cfg.RetryMaxAttempts
		extc.BaseDelay = cfg.RetryBaseDelay
		extc.CapDelay = cfg.RetryCapDelay
		classConfigs[resilience.ClassExternal] = extc
	}
	if netc, ok := classConfigs[resilience.ClassNetwork]; ok {
		netc.FailureThreshold = cfg.BreakerNetworkFailureThreshold
		netc.RecoveryWindow = cfg.BreakerRecoveryWindow
		netc.MaxRetries = cfg.RetryMaxAttempts
		netc.BaseDelay = cfg.RetryBaseDelay
		netc.CapDelay = cfg.RetryCapDelay
		classConfigs[resilience.ClassNetwork] = netc
	}

	guard := resilience.New(prometheus.NewRegistry(),
		resilience.WithClassConfigs(classConfigs),
		resilience.WithLogger(logger),
		resilience.WithOnStateChange(func(class string, from, to resilience.BreakerState) {
			if err := publisher.Publish(ctx, event.New(event.TypeCircuitStateChanged, 0, "", map[string]any{
				"class": class, "from": string(from), "to": string(to),
			})); err != nil {
				logger.Warn("circuit state event publish failed", zap.String("class", class), zap.Error(err))
			}
		}),
	)

	logger.Info("connecting to database")
	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer store.Close()
	logger.Info("database connected")

	dlq := persistence.NewDeadLetterQueue(logger,
		persistence.WithMaxAttempts(cfg.DeadLetterMaxAttempts),
		persistence.WithBaseBackoff(cfg.DeadLetterBaseBackoff),
		persistence.WithEntryTTL(cfg.DeadLetterEntryTTL),
	)

	coordinator := persistence.NewCoordinator(store, dlq,
		persistence.WithGuard(guard),
		persistence.WithLogger(logger),
		persistence.WithOpTimeout(cfg.PersistenceOpTimeout),
	)

	dispatcher := dispatch.New(g, evaluator,
		dispatch.WithPersister(coordinator),
		dispatch.WithEvents(publisher),
		dispatch.WithLogger(logger),
		dispatch.WithQueueCapacity(cfg.DispatcherQueueCapacity),
	)

	authnManager := authn.NewManager(authn.Config{
		SecretKey:      cfg.JWTSecretKey,
		AccessTokenTTL: cfg.AccessTokenTTL,
		Issuer:         "acs",
		Audience:       []string{},
	})

	logger.Info("hydrating entity graph from persisted snapshot")
	snap, err := store.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}
	if err := g.Hydrate(snap); err != nil {
		return fmt.Errorf("hydrating graph: %w", err)
	}
	logger.Info("graph hydrated")

	errChan := make(chan error, 2)

	httpServer := httpTransport.NewServer(dispatcher, evaluator, authnManager, guard, logger)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		logger.Info("starting HTTP server", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	grpcServer, healthSampler := grpcTransport.NewServer(dispatcher, guard)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.GRPCPort)
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			errChan <- fmt.Errorf("gRPC listen: %w", err)
			return
		}
		logger.Info("starting gRPC server", zap.String("addr", addr))
		if err := grpcServer.Serve(listener); err != nil && err != grpc.ErrServerStopped {
			errChan <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go healthSampler.Run(ctx)

	sampler := resilience.NewSampler(guard, cfg.HealthSampleInterval, logger)
	go sampler.Run(ctx)

	go dlq.Run(ctx, coordinator.RetryMutation)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("server error", zap.Error(err))
		return err
	}

	logger.Info("initiating graceful shutdown")

	if err := dispatcher.Shutdown(cfg.DispatcherShutdownWait); err != nil {
		logger.Warn("dispatcher shutdown error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	grpcServer.GracefulStop()

	cancel()

	logger.Info("shutdown complete")
	return nil
}
