package strategy

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bybitMaker/exchange"
	"bybitMaker/exchange/httpClient"
	"bybitMaker/logger"
	"bybitMaker/metrics"

	"github.com/shopspring/decimal"
)

type Config struct {
	Symbol     string          // e.g. "BTCUSDT"
	Qty        decimal.Decimal // per order size
	EdgeBps    int64           // half-spread from mid in bps (1/10000)
	RequoteBps decimal.Decimal // re-quote when mid moves more than this; 0 = any move
	TickSize   decimal.Decimal // venue price grid
	Refresh    time.Duration   // how often to look at the book
}

func DefaultConfig() Config {
	return Config{
		Symbol:     "BTCUSDT",
		Qty:        decimal.RequireFromString("0.001"),
		EdgeBps:    10, // 0.001
		RequoteBps: decimal.Zero,
		TickSize:   decimal.RequireFromString("0.1"),
		Refresh:    50 * time.Millisecond,
	}
}

var (
	one      = decimal.NewFromInt(1)
	two      = decimal.NewFromInt(2)
	bpsScale = int32(-4)
)

// Quote is a bid/ask pair.
type Quote struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// Mid returns (Bid+Ask)/2.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(two)
}

// PendingQuote places bid and ask symmetrically around mid at the given edge fraction.
func PendingQuote(mid, edge decimal.Decimal) Quote {
	return Quote{
		Bid: mid.Mul(one.Sub(edge)),
		Ask: mid.Mul(one.Add(edge)),
	}
}

// RoundToTick snaps px to the nearest multiple of tick, ties to even.
func RoundToTick(px, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return px
	}
	return px.Div(tick).RoundBank(0).Mul(tick)
}

// FormatPrice renders px on the tick grid with as many decimals as the tick has.
func FormatPrice(px, tick decimal.Decimal) string {
	var places int32
	if s := tick.String(); strings.Contains(s, ".") {
		places = int32(len(s) - strings.IndexByte(s, '.') - 1)
	}
	return RoundToTick(px, tick).StringFixed(places)
}

// Strategy keeps one bid and one ask around the level-1 mid.
type Strategy struct {
	cfg       Config
	ob        *exchange.OrderBook
	ex        exchange.ExchangeClient
	metrics   *metrics.Metrics
	edge      decimal.Decimal
	threshold decimal.Decimal

	// quoter state: pair believed to be resting, unrounded
	myBid decimal.Decimal
	myAsk decimal.Decimal

	published atomic.Pointer[Quote]

	// round is held for a whole decision round; once halted is set no venue call starts
	round  sync.Mutex
	halted atomic.Bool
}

func NewStrategy(cfg Config, ob *exchange.OrderBook, ex exchange.ExchangeClient, m *metrics.Metrics) *Strategy {
	if m == nil {
		m = metrics.New(cfg.Symbol)
	}
	s := &Strategy{
		cfg:       cfg,
		ob:        ob,
		ex:        ex,
		metrics:   m,
		edge:      decimal.New(cfg.EdgeBps, bpsScale),
		threshold: cfg.RequoteBps.Shift(bpsScale),
	}
	s.published.Store(&Quote{})
	return s
}

func (s *Strategy) Run(ctx context.Context) {
	ctx = logger.With(ctx, "component", "quoter", "symbol", s.cfg.Symbol)
	t := time.NewTicker(s.cfg.Refresh)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick(ctx)
			if s.halted.Load() {
				logger.Info(ctx, "quoter halted")
				return
			}
		}
	}
}

// Quoted returns the pair last submitted to the venue.
func (s *Strategy) Quoted() Quote {
	return *s.published.Load()
}

// tick runs one decision round and reports whether a re-quote was issued.
func (s *Strategy) tick(ctx context.Context) bool {
	s.round.Lock()
	defer s.round.Unlock()
	if s.halted.Load() {
		return false
	}

	bb, ba := s.ob.Snapshot()
	if bb.IsZero() || ba.IsZero() {
		s.metrics.SkippedTotal.WithLabelValues("no_book").Inc()
		return false
	}
	if bb.GreaterThanOrEqual(ba) {
		s.metrics.SkippedTotal.WithLabelValues("inverted").Inc()
		logger.Warn(ctx, "inverted book, skipping", "bid", bb.String(), "ask", ba.String())
		return false
	}

	mid := bb.Add(ba).Div(two)
	myMid := Quote{Bid: s.myBid, Ask: s.myAsk}.Mid()
	if !s.needRequote(mid, myMid) {
		return false
	}

	q := PendingQuote(mid, s.edge)
	bidPx := FormatPrice(q.Bid, s.cfg.TickSize)
	askPx := FormatPrice(q.Ask, s.cfg.TickSize)
	qty := s.cfg.Qty.String()
	logger.Info(ctx, "requote", "mid", mid.String(), "prev_mid", myMid.String(), "bid", bidPx, "ask", askPx)

	defer logger.LogDuration(ctx, "requote round")()
	if !s.call(ctx, "cancel_all", func() (*httpClient.Response, error) {
		return s.ex.CancelAll(ctx, s.cfg.Symbol)
	}) {
		return false
	}
	if !s.call(ctx, "place_bid", func() (*httpClient.Response, error) {
		return s.ex.PlaceOrder(ctx, s.cfg.Symbol, bidPx, qty, true)
	}) {
		return false
	}
	if !s.call(ctx, "place_ask", func() (*httpClient.Response, error) {
		return s.ex.PlaceOrder(ctx, s.cfg.Symbol, askPx, qty, false)
	}) {
		return false
	}

	// best effort: the pair is recorded even if a call failed
	s.myBid, s.myAsk = q.Bid, q.Ask
	s.published.Store(&q)
	s.metrics.RequotesTotal.Inc()
	s.metrics.QuotedBid.Set(q.Bid.InexactFloat64())
	s.metrics.QuotedAsk.Set(q.Ask.InexactFloat64())
	return true
}

func (s *Strategy) needRequote(mid, myMid decimal.Decimal) bool {
	if myMid.IsZero() {
		return !mid.IsZero()
	}
	if mid.Equal(myMid) {
		return false
	}
	// |mid-myMid|/myMid > threshold, without the division
	return mid.Sub(myMid).Abs().GreaterThan(s.threshold.Mul(myMid.Abs()))
}

// Halt stops the quoter from touching the venue. It returns once no call of the
// current round is in flight, or with ctx's error if that takes too long.
func (s *Strategy) Halt(ctx context.Context) error {
	s.halted.Store(true)
	idle := make(chan struct{})
	go func() {
		s.round.Lock()
		s.round.Unlock()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs one venue request unless the quoter has been halted.
func (s *Strategy) call(ctx context.Context, op string, do func() (*httpClient.Response, error)) bool {
	if s.halted.Load() {
		logger.Info(ctx, "halted, round abandoned", "op", op)
		return false
	}
	resp, err := do()
	s.report(ctx, op, resp, err)
	return true
}

func (s *Strategy) report(ctx context.Context, op string, resp *httpClient.Response, err error) {
	if err != nil {
		s.metrics.OrderErrors.WithLabelValues(op).Inc()
		logger.Error(ctx, "order call failed", "op", op, "error", err)
		return
	}
	if apiErr := resp.Err(); apiErr != nil {
		s.metrics.OrderErrors.WithLabelValues(op).Inc()
		logger.Error(ctx, "order call rejected", "op", op, "status", resp.StatusCode, "body", resp.Body)
		return
	}
	logger.Debug(ctx, "order call accepted", "op", op)
}
