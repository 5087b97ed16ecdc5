// Command engine wires together the core strategy/backtest/runner
// stack and exposes a minimal HTTP control surface over it. It is
// wiring, not a product: configuration shapes ambient behavior only
// (log level/format, runner tick interval, metrics port) — no
// credential plumbing, no persistence. Every runner it registers at
// startup is built in-process from hardcoded demo parameters,
// standing in for the out-of-scope front-end that would normally
// supply them.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/quantcore/engine/internal/config"
	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/exchange"
	"github.com/quantcore/engine/internal/runner"
	"github.com/quantcore/engine/internal/strategy"
	"github.com/quantcore/engine/pkg/observability"
)

func main() {
	cfg := loadConfig()

	logger := observability.NewLogger(observability.LoggerConfig{
		ServiceName: cfg.Service.Name,
		LogLevel:    cfg.Observability.LogLevel,
		LogFormat:   cfg.Observability.LogFormat,
	})
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(observability.MetricsConfig{
			ServiceName: cfg.Service.Name,
			Namespace:   cfg.Observability.MetricsNS,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := newRegistry()
	for _, run := range demoRunners(cfg, logger, metrics) {
		reg.register(run)
	}

	for _, run := range reg.all() {
		if err := run.Start(ctx); err != nil {
			logger.Error(ctx, "failed to start demo runner", err, map[string]interface{}{"runner_id": run.ID()})
		}
	}

	control := newControlServer(reg, logger)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})

	addr := fmt.Sprintf("%s:%s", envOr("ENGINE_HOST", "0.0.0.0"), envOr("ENGINE_PORT", "8090"))
	server := &http.Server{
		Addr:         addr,
		Handler:      c.Handler(control.routes()),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var metricsServer *http.Server
	if metrics != nil {
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", envOr("ENGINE_HOST", "0.0.0.0"), cfg.Observability.MetricsPort),
			Handler: metrics.Handler(),
		}
	}

	go func() {
		logger.Info(ctx, "starting control server", map[string]interface{}{"address": addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "control server failed", err)
			os.Exit(1)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info(ctx, "starting metrics server", map[string]interface{}{"address": metricsServer.Addr})
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error(ctx, "metrics server failed", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info(ctx, "shutdown signal received", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	for _, run := range reg.all() {
		if run.Status() == runner.StatusStopped {
			continue
		}
		if err := run.Stop(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "runner failed to stop cleanly", map[string]interface{}{"runner_id": run.ID(), "error": err.Error()})
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "control server shutdown failed", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "metrics server shutdown failed", err)
		}
	}

	logger.Info(shutdownCtx, "shutdown complete", nil)
}

// loadConfig reads CONFIG_FILE if set, otherwise falls back to
// config.Default(). A bad config file is fatal — this binary has
// nothing sensible to run without valid runner tunables.
func loadConfig() *config.Config {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config from %s: %v\n", path, err)
		os.Exit(1)
	}
	return cfg
}

// demoRunners builds the small fixed set of runners this binary starts
// with: one backtest over a synthetic price series and one paper-mode
// grid runner. Real deployments would construct runners from whatever
// the (out-of-scope) front-end's configuration loader produced instead.
func demoRunners(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) []*runner.Runner {
	pair, err := core.ParseTradingPair("BTC-USDT")
	if err != nil {
		logger.Error(context.Background(), "invalid demo pair", err)
		return nil
	}

	runners := make([]*runner.Runner, 0, 2)

	if bt := demoBacktestRunner(pair, cfg, logger, metrics); bt != nil {
		runners = append(runners, bt)
	}
	if gr := demoGridRunner(pair, cfg, logger, metrics); gr != nil {
		runners = append(runners, gr)
	}

	return runners
}

func demoBacktestRunner(pair core.TradingPair, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) *runner.Runner {
	strat, err := strategy.NewDualMA(10, 30)
	if err != nil {
		logger.Error(context.Background(), "failed to build demo strategy", err)
		return nil
	}

	buf := syntheticCandleBuffer(pair, 500, 30000, 0.002, 42)
	btCfg := core.BacktestConfig{
		Pair:           pair,
		Timeframe:      core.Timeframe1m,
		InitialCapital: core.DecimalFromInt(10000),
		CommissionRate: core.DecimalFromFloat(0.001),
	}

	return runner.NewRunner(runner.KindBacktest, cfg.Runner.TickInterval, logger, metrics, runner.NewBacktestJob(strat, btCfg, buf))
}

func demoGridRunner(pair core.TradingPair, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) *runner.Runner {
	grid, err := strategy.NewGridStrategy(strategy.GridConfig{
		UpperPrice:    core.DecimalFromInt(33000),
		LowerPrice:    core.DecimalFromInt(27000),
		GridCount:     20,
		OrderSize:     core.DecimalFromFloat(0.01),
		TakeProfitPct: core.DecimalFromFloat(1.0),
		EnableLong:    true,
		MaxPosition:   core.DecimalFromFloat(1.0),
	})
	if err != nil {
		logger.Error(context.Background(), "failed to build demo grid strategy", err)
		return nil
	}

	var provider exchange.DataProvider
	factory := runner.NewGridJob(grid, runner.GridModePaper, provider, pair, core.DecimalFromInt(30000), 0.01, 7)
	return runner.NewRunner(runner.KindGrid, 2*cfg.Runner.TickInterval, logger, metrics, factory)
}

// syntheticCandleBuffer seeds a deterministic pseudo-random walk — this
// binary is wiring, not a market-data source, so a real feed's
// HistoricalCandles call would replace this in any deployment that
// wires in a concrete DataProvider.
func syntheticCandleBuffer(pair core.TradingPair, n int, start float64, volatility float64, seed int64) *core.CandleBuffer {
	rng := rand.New(rand.NewSource(seed))
	buf := core.NewCandleBuffer(pair, core.Timeframe1m)

	price := start
	for i := 0; i < n; i++ {
		price *= 1 + (rng.Float64()*2-1)*volatility
		d := core.DecimalFromFloat(price)
		_ = buf.Append(core.Candle{
			Timestamp: core.Timestamp(int64(i+1) * 60000),
			Open:      d, High: d, Low: d, Close: d,
			Volume: core.OneDecimal,
		})
	}
	return buf
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
