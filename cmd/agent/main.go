package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/callvox/salesagent/internal/crm"
	"github.com/callvox/salesagent/internal/engine"
	"github.com/callvox/salesagent/internal/metrics"
	"github.com/callvox/salesagent/internal/resilience"
	"github.com/callvox/salesagent/internal/trace"
	"github.com/callvox/salesagent/internal/usage"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()
	if err := cfg.validate(); err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	roomBreaker := newBreaker("room", 5, 60*time.Second)
	dbBreaker := newBreaker("database", 3, 30*time.Second)
	modelBreaker := newBreaker("model_backend", 10, 120*time.Second)

	var traceStore *trace.Store
	if cfg.traceDatabaseURL != "" {
		store, err := trace.Open(cfg.traceDatabaseURL)
		if err != nil {
			slog.Error("trace store unavailable, tracing disabled", "error", err)
		} else {
			traceStore = store
			defer traceStore.Close()
		}
	}

	var crmStore *crm.Store
	if cfg.crmDatabaseURL != "" {
		store, err := crm.Open(cfg.crmDatabaseURL)
		if err != nil {
			slog.Error("crm store unavailable, crm tools disabled", "error", err)
		} else {
			crmStore = store
			defer crmStore.Close()
		}
	}

	tracker := usage.NewTracker()
	eng := engine.NewModelEngine(nil, cfg.model, cfg.maxTokens, modelBreaker)

	callCtx, cancelCalls := context.WithCancel(context.Background())
	defer cancelCalls()

	d := &deps{
		cfg:         cfg,
		tracker:     tracker,
		engine:      eng,
		traceStore:  traceStore,
		crmStore:    crmStore,
		roomBreaker: roomBreaker,
		dbBreaker:   dbBreaker,
		callCtx:     callCtx,
		calls:       &sync.WaitGroup{},
	}

	mux := http.NewServeMux()
	registerRoutes(mux, d)

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(ctx)

		// cancel in-flight calls; each session still finalizes before exiting
		cancelCalls()
		done := make(chan struct{})
		go func() {
			d.calls.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			slog.Warn("shutdown timeout with calls still active", "active", tracker.Active())
		}
	}()

	slog.Info("agent starting", "addr", addr, "model", cfg.model, "max_concurrent", cfg.maxConcurrentCalls)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("agent stopped")
}

func newBreaker(name string, threshold int, recovery time.Duration) *resilience.Breaker {
	return resilience.NewBreaker(resilience.BreakerConfig{
		Name:             name,
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
		OnStateChange:    recordBreakerState,
	})
}

func recordBreakerState(name string, state resilience.BreakerState) {
	var v float64
	switch state {
	case resilience.StateHalfOpen:
		v = 1
	case resilience.StateOpen:
		v = 2
		metrics.BreakerTrips.WithLabelValues(name).Inc()
	}
	metrics.BreakerState.WithLabelValues(name).Set(v)
}
