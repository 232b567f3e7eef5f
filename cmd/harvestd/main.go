package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rendis/harvest/internal/action"
	"github.com/rendis/harvest/internal/bus"
	"github.com/rendis/harvest/internal/coordinator"
	"github.com/rendis/harvest/internal/ledger"
	"github.com/rendis/harvest/internal/logging"
	"github.com/rendis/harvest/internal/policy"
	"github.com/rendis/harvest/internal/scheduler"
	"github.com/rendis/harvest/internal/scorer"
	"github.com/rendis/harvest/internal/server"
	"github.com/rendis/harvest/internal/status"
	"github.com/rendis/harvest/internal/store"
	"github.com/rendis/harvest/internal/worklist"
)

func main() {
	os.Exit(run())
}

// run launches harvestd and returns an exit code.
func run() int {
	configPath := flag.String("config", "harvest.yaml", "path to harvestd config")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		logger.Error("open store failed", "error", err)
		return 1
	}
	defer st.Close()
	if err := st.Migrate(context.Background()); err != nil {
		logger.Error("migrate failed", "error", err)
		return 1
	}

	led, closeLedger, err := buildLedger(cfg, st)
	if err != nil {
		logger.Error("ledger setup failed", "error", err)
		return 1
	}
	defer closeLedger()

	provider, err := buildWorklist(cfg)
	if err != nil {
		logger.Error("worklist setup failed", "error", err)
		return 1
	}

	sc, err := buildScorer(cfg)
	if err != nil {
		logger.Error("scorer setup failed", "error", err)
		return 1
	}

	rule, err := policy.Compile(cfg.DecisionRule)
	if err != nil {
		logger.Error("decision rule invalid", "error", err)
		return 1
	}

	vault, err := buildVault(cfg)
	if err != nil {
		logger.Error("vault setup failed", "error", err)
		return 1
	}

	eventBus := bus.New()
	snapshot := status.New()

	coord, err := coordinator.New(coordinator.Config{
		Worklist:       provider,
		Scorer:         sc,
		Rule:           rule,
		Vault:          vault,
		Ledger:         led,
		Bus:            eventBus,
		Snapshot:       snapshot,
		Store:          st,
		Logger:         logger,
		MaxTransitions: cfg.MaxTransitions,
	})
	if err != nil {
		logger.Error("coordinator setup failed", "error", err)
		return 1
	}

	var portfolio ledger.Summarizer
	if s, ok := led.(ledger.Summarizer); ok {
		portfolio = s
	}

	api := server.New(server.Deps{
		Coordinator: coord,
		Bus:         eventBus,
		Snapshot:    snapshot,
		Store:       st,
		Portfolio:   portfolio,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sched *scheduler.Scheduler
	if cfg.Schedule != "" {
		sched, err = scheduler.New(cfg.Schedule, coord, logger)
		if err != nil {
			logger.Error("scheduler setup failed", "error", err)
			return 1
		}
		if err := sched.Start(ctx); err != nil {
			logger.Error("scheduler start failed", "error", err)
			return 1
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	if sched != nil {
		_ = sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	if err := coord.Close(shutdownCtx); err != nil {
		logger.Warn("run did not stop before shutdown deadline", "error", err)
	}
	return 0
}

// newLogger builds the process logger with context correlation injection.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func buildWorklist(cfg Config) (worklist.Provider, error) {
	if cfg.Worklist.File != "" {
		return worklist.NewFile(cfg.Worklist.File)
	}
	return worklist.NewStatic(cfg.Worklist.Items), nil
}

func buildScorer(cfg Config) (scorer.Scorer, error) {
	if cfg.Scorer.Endpoint == "" {
		return scorer.Deterministic{}, nil
	}
	return scorer.NewHTTPScorer(scorer.HTTPConfig{
		Endpoint:  cfg.Scorer.Endpoint,
		ScorePath: cfg.Scorer.ScorePath,
	})
}

func buildVault(cfg Config) (action.Executor, error) {
	if cfg.Vault.Endpoint == "" {
		return &action.DryRun{}, nil
	}
	return action.NewHTTPVault(action.HTTPConfig{Endpoint: cfg.Vault.Endpoint})
}

// buildLedger assembles the acquisition ledger. The TigerBeetle backend
// mirrors transfers into the cluster and still records through the SQL
// ledger so portfolio summaries stay available.
func buildLedger(cfg Config, st store.Store) (ledger.Ledger, func(), error) {
	sqlLedger := ledger.NewSQL(st)
	if cfg.Ledger.Backend != "tigerbeetle" {
		return sqlLedger, func() {}, nil
	}

	clusterID, err := parseClusterID(cfg.Ledger.ClusterID)
	if err != nil {
		return nil, nil, err
	}
	pool, err := ledger.NewClientPool(clusterID, cfg.Ledger.Addresses, cfg.Ledger.Sessions)
	if err != nil {
		return nil, nil, err
	}
	tb := ledger.NewTigerBeetle(pool, sqlLedger)
	return tb, func() { _ = tb.Close() }, nil
}
