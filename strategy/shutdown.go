package strategy

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"time"

	"bybitMaker/exchange/httpClient"
	"bybitMaker/logger"
	"bybitMaker/metrics"
)

// Canceller is the one venue call the shutdown path needs.
type Canceller interface {
	CancelAll(ctx context.Context, inst string) (*httpClient.Response, error)
}

// Shutdown cancels every resting order for Symbol and exits. It builds its own
// client on demand and does not rely on the quoter or feed being alive.
type Shutdown struct {
	Symbol    string
	NewClient func() Canceller
	Exit      func(code int)
	Timeout   time.Duration
	// Halt, when set, runs before the cancel-all so no other order traffic
	// reaches the venue after it. A failing Halt does not stop the cancel-all.
	Halt func(ctx context.Context) error

	metrics *metrics.Metrics
	once    sync.Once
}

func NewShutdown(symbol string, newClient func() Canceller, m *metrics.Metrics) *Shutdown {
	if m == nil {
		m = metrics.New(symbol)
	}
	return &Shutdown{
		Symbol:    symbol,
		NewClient: newClient,
		Exit:      os.Exit,
		Timeout:   10 * time.Second,
		metrics:   m,
	}
}

// Install starts listening for sigs; the first one triggers cancel-all and exit 0.
func (s *Shutdown) Install(sigs ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	go s.Listen(ch)
}

func (s *Shutdown) Listen(ch <-chan os.Signal) {
	for sig := range ch {
		go s.Trigger("signal "+sig.String(), 0)
	}
}

// Trigger runs the cancel-all at most once per process, then calls Exit(code).
func (s *Shutdown) Trigger(reason string, code int) {
	s.once.Do(func() {
		ctx := logger.With(context.Background(), "component", "shutdown", "symbol", s.Symbol)
		logger.Info(ctx, "cancelling orders", "reason", reason)

		if s.Halt != nil {
			haltCtx, cancel := context.WithTimeout(ctx, s.Timeout)
			if err := s.Halt(haltCtx); err != nil {
				logger.Warn(ctx, "quoter did not go idle, cancelling anyway", "error", err)
			}
			cancel()
		}

		ctx, cancel := context.WithTimeout(ctx, s.Timeout)
		defer cancel()

		s.metrics.ShutdownCancel.Inc()
		resp, err := s.NewClient().CancelAll(ctx, s.Symbol)
		switch {
		case err != nil:
			logger.Error(ctx, "cancel all failed", "error", err)
		case resp.Err() != nil:
			logger.Error(ctx, "cancel all rejected", "status", resp.StatusCode, "body", resp.Body)
		default:
			logger.Info(ctx, "orders cancelled")
		}
		s.Exit(code)
	})
}
