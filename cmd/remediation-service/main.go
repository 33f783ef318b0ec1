// Command remediation-service is the composition root: it loads
// configuration, wires every collaborator spec.md §4.7 names into an
// issue.Machine, starts the orchestrator consuming the signal bus, and
// serves the httpapi query/approval surface until told to stop. Grounded on
// the teacher's cmd/*/main.go idiom (load config, construct collaborators
// bottom-up, install an OS-signal-triggered graceful shutdown).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/analyzer"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/approval"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/audit"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/breaker"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/config"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/executor"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/fingerprint"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/httpapi"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/issue"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/kv"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/logging"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/orchestrator"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/ratelimit"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/signalbus"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/store"
)

func main() {
	if err := run(); err != nil {
		logging.New("json", "error").Error("remediation-service exited", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging.Format, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kvStore, err := kv.NewRedis(kv.Options{URL: cfg.KV.URL, Namespace: cfg.KV.Namespace, Logger: logger})
	if err != nil {
		return err
	}

	durable, err := store.Open(ctx, cfg.Store.DSN, logger)
	if err != nil {
		return err
	}
	defer durable.Close()

	fpCache := fingerprint.New(cfg.Fingerprint.TTL, kvStore)
	defer fpCache.Close()

	limiter := ratelimit.New(kvStore, cfg.RateLimit.Window, cfg.RateLimit.DefaultLimit, cfg.RateLimit.FlagDuration,
		ratelimit.WithLogger(logger),
		ratelimit.WithDegradationListener(func(_ context.Context, merchant string, actionType domain.ActionType, err error) {
			logger.Warn("rate limiter degraded, failing open", map[string]interface{}{
				"merchant": merchant, "action_type": string(actionType), "error": err.Error(),
			})
		}),
	)

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		Logger:           logger,
	})

	analyzerClient := analyzer.NewHTTPClient(cfg.Analyzer.BaseURL, cfg.Analyzer.Timeout)
	dispatcher := executor.NewHTTPDispatcher(cfg.Executor.BaseURL, cfg.Executor.Timeout)
	exec := executor.New(dispatcher, breakers.Get(executor.DependencyName), limiter)

	approvals := approval.New(approval.WithLogger(logger))
	auditLog := audit.New(durable)

	machine := issue.New(durable, fpCache, analyzerClient, exec, approvals, auditLog, issue.WithLogger(logger))

	bus, err := signalbus.Dial(signalbus.Config{
		URL:          cfg.Bus.URL,
		Queue:        cfg.Bus.Topic,
		RoutingKey:   cfg.Bus.Topic,
		PrefetchSize: cfg.Bus.BatchMax,
	}, logger)
	if err != nil {
		return err
	}

	orch := orchestrator.New(bus, durable, machine, approvals,
		orchestrator.WithPoolSize(cfg.Pool.Size),
		orchestrator.WithDrainWindow(cfg.Pool.DrainWindow),
		orchestrator.WithBatchMax(cfg.Bus.BatchMax),
		orchestrator.WithLogger(logger),
	)
	if err := orch.Start(ctx); err != nil {
		return err
	}

	api := httpapi.New(bus, durable, approvals, auditLog, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTP.ListenAddr,
		Handler: api.Handler("remediation-service"),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", map[string]interface{}{"addr": cfg.HTTP.ListenAddr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received", nil)
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server failed", map[string]interface{}{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	orch.Stop()
	return nil
}
