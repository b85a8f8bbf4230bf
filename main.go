// bybitMaker quotes one bid and one ask around the level-1 mid of a Bybit
// linear perpetual and cancels everything on the way out.
package main

import (
	"context"
	"errors"
	"log"
	"syscall"

	"bybitMaker/config"
	"bybitMaker/exchange"
	"bybitMaker/exchange/httpClient"
	"bybitMaker/logger"
	"bybitMaker/metrics"
	"bybitMaker/server"
	"bybitMaker/strategy"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(config.GetEnv("API_CONFIG", ""))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Logger); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.With(ctx, "symbol", cfg.Symbol)
	logger.Info(ctx, "starting quoter", "config", cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(cfg.Symbol)
	if err := m.Register(reg); err != nil {
		logger.Fatal(ctx, "failed to register metrics", "error", err)
	}

	newRest := func() *httpClient.Client {
		return httpClient.NewClient(httpClient.NewSign(cfg.Key, cfg.Secret),
			httpClient.WithBaseURL(cfg.RestURL),
			httpClient.WithTimeout(cfg.HTTPTimeout),
			httpClient.WithRateLimit(cfg.RateLimit),
			httpClient.WithMetrics(m),
		)
	}
	rest := newRest()

	tick := resolveTickSize(ctx, rest, cfg)

	client := exchange.NewBybitClient(rest)
	if open, err := client.OpenOrders(ctx, cfg.Symbol); err != nil {
		logger.Warn(ctx, "failed to list open orders", "error", err)
	} else if len(open) > 0 {
		logger.Info(ctx, "resting orders at startup, first requote cancels them", "count", len(open))
	}

	ob := exchange.NewOrderBook(cfg.Symbol)
	feed := exchange.NewFeed(cfg.WSURL, []string{cfg.Topic()}, ob, m)
	feed.PingInterval = cfg.PingInterval

	strat := strategy.NewStrategy(strategy.Config{
		Symbol:     cfg.Symbol,
		Qty:        cfg.Qty,
		EdgeBps:    cfg.EdgeBps,
		RequoteBps: cfg.RequoteBps,
		TickSize:   tick,
		Refresh:    cfg.Refresh,
	}, ob, client, m)

	shutdown := strategy.NewShutdown(cfg.Symbol, func() strategy.Canceller { return newRest() }, m)
	shutdown.Halt = strat.Halt
	shutdown.Install(syscall.SIGINT, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := feed.Run(gctx)
		if errors.Is(err, exchange.ErrFeedClosed) {
			shutdown.Trigger("feed closed", 1)
		}
		return err
	})
	g.Go(func() error {
		strat.Run(gctx)
		return nil
	})
	if cfg.OpsAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		ops := server.NewOpsServer(cfg.OpsAddr, feed, ob, strat, reg)
		g.Go(func() error { return ops.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "quoter stopped", "error", err)
		shutdown.Trigger("fatal error", 1)
	}
}

func resolveTickSize(ctx context.Context, rest *httpClient.Client, cfg *config.Config) decimal.Decimal {
	if cfg.TickSize.IsPositive() {
		return cfg.TickSize
	}
	tick, err := rest.InstrumentTickSize(ctx, cfg.Symbol)
	if err != nil || !tick.IsPositive() {
		tick = decimal.RequireFromString(config.DefaultTickSize)
		logger.Warn(ctx, "tick size lookup failed, using default", "tick_size", tick.String(), "error", err)
		return tick
	}
	logger.Info(ctx, "tick size", "tick_size", tick.String())
	return tick
}
