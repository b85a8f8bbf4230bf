// Package server exposes a read-only ops endpoint: health, current quotes and metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bybitMaker/exchange"
	"bybitMaker/logger"
	"bybitMaker/strategy"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type feedState interface {
	State() exchange.FeedState
}

type quoted interface {
	Quoted() strategy.Quote
}

type OpsServer struct {
	srv *http.Server
}

func NewOpsServer(addr string, feed feedState, ob *exchange.OrderBook, quoter quoted, gatherer prometheus.Gatherer) *OpsServer {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		state := feed.State()
		status, code := "healthy", http.StatusOK
		if state != exchange.StateRunning {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"feed":      state.String(),
			"symbol":    ob.Symbol,
			"timestamp": time.Now().Unix(),
		})
	})

	router.GET("/quote", func(c *gin.Context) {
		bid, ask := ob.Snapshot()
		q := quoter.Quoted()
		c.JSON(http.StatusOK, gin.H{
			"symbol":     ob.Symbol,
			"best_bid":   bid.String(),
			"best_ask":   ask.String(),
			"my_bid":     q.Bid.String(),
			"my_ask":     q.Ask.String(),
			"updated_at": ob.UpdatedAt(),
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return &OpsServer{srv: &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}}
}

func (o *OpsServer) Handler() http.Handler { return o.srv.Handler }

// Run serves until ctx is done.
func (o *OpsServer) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info(ctx, "starting ops server", "addr", o.srv.Addr)
		if err := o.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return o.srv.Shutdown(shutdownCtx)
}
