package strategy

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"bybitMaker/exchange"
	"bybitMaker/exchange/httpClient"
	"bybitMaker/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	Op    string
	Inst  string
	Price string
	Qty   string
	Buy   bool
}

type fakeExchange struct {
	mu       sync.Mutex
	calls    []call
	err      error
	response *httpClient.Response
}

func (f *fakeExchange) record(c call) (*httpClient.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if f.err != nil {
		return nil, f.err
	}
	if f.response != nil {
		return f.response, nil
	}
	return &httpClient.Response{StatusCode: http.StatusOK, Body: `{"retCode":0,"retMsg":"OK"}`}, nil
}

func (f *fakeExchange) PlaceOrder(_ context.Context, inst, price, qty string, isBuy bool) (*httpClient.Response, error) {
	return f.record(call{Op: "place", Inst: inst, Price: price, Qty: qty, Buy: isBuy})
}

func (f *fakeExchange) CancelAll(_ context.Context, inst string) (*httpClient.Response, error) {
	return f.record(call{Op: "cancel_all", Inst: inst})
}

func (f *fakeExchange) OpenOrders(context.Context, string) ([]exchange.Order, error) {
	return nil, nil
}

func (f *fakeExchange) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeExchange) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setBook(ob *exchange.OrderBook, bid, ask string) {
	ob.Apply(exchange.Level1{Bid: d(bid), HasBid: true, Ask: d(ask), HasAsk: true})
}

func newTestStrategy(cfg Config) (*Strategy, *exchange.OrderBook, *fakeExchange, *metrics.Metrics) {
	ob := exchange.NewOrderBook(cfg.Symbol)
	ex := &fakeExchange{}
	m := metrics.New(cfg.Symbol)
	return NewStrategy(cfg, ob, ex, m), ob, ex, m
}

func TestFirstQuote(t *testing.T) {
	s, ob, ex, m := newTestStrategy(DefaultConfig())
	setBook(ob, "29999.5", "30000.5") // mid 30000

	require.True(t, s.tick(context.Background()))

	assert.Equal(t, []call{
		{Op: "cancel_all", Inst: "BTCUSDT"},
		{Op: "place", Inst: "BTCUSDT", Price: "29970.0", Qty: "0.001", Buy: true},
		{Op: "place", Inst: "BTCUSDT", Price: "30030.0", Qty: "0.001", Buy: false},
	}, ex.Calls())

	// state holds the unrounded pair
	assert.True(t, s.myBid.Equal(d("30000").Mul(d("0.999"))), s.myBid.String())
	assert.True(t, s.myAsk.Equal(d("30000").Mul(d("1.001"))), s.myAsk.String())
	assert.True(t, s.Quoted().Bid.Equal(s.myBid))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequotesTotal))
}

func TestUnchangedMidIssuesNoCalls(t *testing.T) {
	s, ob, ex, _ := newTestStrategy(DefaultConfig())
	setBook(ob, "29999.5", "30000.5")
	require.True(t, s.tick(context.Background()))
	ex.Reset()

	// same mid from a different bid/ask pair
	setBook(ob, "29999", "30001")
	for i := 0; i < 5; i++ {
		assert.False(t, s.tick(context.Background()))
	}
	assert.Empty(t, ex.Calls())
}

func TestRequoteOnMove(t *testing.T) {
	s, ob, ex, _ := newTestStrategy(DefaultConfig())
	setBook(ob, "29999.5", "30000.5")
	require.True(t, s.tick(context.Background()))
	ex.Reset()

	setBook(ob, "29999.6", "30000.5") // mid 30000.05
	require.True(t, s.tick(context.Background()))

	calls := ex.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "cancel_all", calls[0].Op)
	assert.Equal(t, "29970.0", calls[1].Price)
	assert.Equal(t, "30030.1", calls[2].Price)
	assert.True(t, s.myBid.Equal(d("29970.04995")))
	assert.True(t, s.myAsk.Equal(d("30030.05005")))
}

// the decision uses the unrounded mid, so equal rounded prices still re-quote
func TestRequoteEvenWhenRoundedPricesRepeat(t *testing.T) {
	s, ob, ex, _ := newTestStrategy(DefaultConfig())
	setBook(ob, "29999.5", "30000.5")
	require.True(t, s.tick(context.Background()))
	ex.Reset()

	setBook(ob, "29999.5", "30000.52") // mid 30000.01
	require.True(t, s.tick(context.Background()))
	calls := ex.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "29970.0", calls[1].Price)
	assert.Equal(t, "30030.0", calls[2].Price)
}

func TestRequoteThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequoteBps = d("1") // 0.0001
	s, ob, ex, _ := newTestStrategy(cfg)
	setBook(ob, "29999.5", "30000.5")
	require.True(t, s.tick(context.Background()))
	ex.Reset()

	// +2.5 on 30000 is 0.83 bps: below threshold
	setBook(ob, "30002", "30003")
	assert.False(t, s.tick(context.Background()))
	// exactly 1 bp is not strictly greater
	setBook(ob, "30002.5", "30003.5")
	assert.False(t, s.tick(context.Background()))
	// +4 is 1.33 bps
	setBook(ob, "30003.5", "30004.5")
	assert.True(t, s.tick(context.Background()))
	assert.Len(t, ex.Calls(), 3)
}

func TestSkipsEmptyAndInvertedBooks(t *testing.T) {
	s, ob, ex, m := newTestStrategy(DefaultConfig())

	assert.False(t, s.tick(context.Background()))
	ob.Apply(exchange.Level1{Bid: d("100"), HasBid: true})
	assert.False(t, s.tick(context.Background()))

	setBook(ob, "101", "100")
	assert.False(t, s.tick(context.Background()))
	setBook(ob, "100", "100")
	assert.False(t, s.tick(context.Background()))

	assert.Empty(t, ex.Calls())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SkippedTotal.WithLabelValues("no_book")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SkippedTotal.WithLabelValues("inverted")))
}

func TestFailuresDoNotStopQuoting(t *testing.T) {
	s, ob, ex, m := newTestStrategy(DefaultConfig())
	ex.err = errors.New("connection reset")
	setBook(ob, "29999.5", "30000.5")

	require.True(t, s.tick(context.Background()))
	assert.Len(t, ex.Calls(), 3)
	assert.False(t, s.myBid.IsZero(), "state is updated even when calls fail")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrderErrors.WithLabelValues("place_bid")))

	// same mid: nothing is retried
	assert.False(t, s.tick(context.Background()))
	assert.Len(t, ex.Calls(), 3)
}

func TestRejectedCallsAreCounted(t *testing.T) {
	s, ob, ex, m := newTestStrategy(DefaultConfig())
	ex.response = &httpClient.Response{StatusCode: http.StatusOK, Body: `{"retCode":10001,"retMsg":"params error"}`}
	setBook(ob, "29999.5", "30000.5")

	require.True(t, s.tick(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrderErrors.WithLabelValues("cancel_all")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrderErrors.WithLabelValues("place_ask")))
}

func TestPendingQuoteScenarios(t *testing.T) {
	edge := decimal.New(10, -4)
	tick := d("0.1")

	q := PendingQuote(d("30000.00"), edge)
	assert.True(t, q.Bid.Equal(d("29970.00")))
	assert.True(t, q.Ask.Equal(d("30030.00")))
	assert.Equal(t, "29970.0", FormatPrice(q.Bid, tick))
	assert.Equal(t, "30030.0", FormatPrice(q.Ask, tick))

	q = PendingQuote(d("30000.05"), edge)
	assert.True(t, q.Bid.Equal(d("29970.04995")))
	assert.True(t, q.Ask.Equal(d("30030.05005")))
	assert.Equal(t, "29970.0", FormatPrice(q.Bid, tick))
	assert.Equal(t, "30030.1", FormatPrice(q.Ask, tick))
}

func TestRoundToTick(t *testing.T) {
	cases := []struct {
		px, tick, want string
	}{
		{"100.26", "0.5", "100.5"},
		{"100.24", "0.5", "100"},
		{"100.25", "0.1", "100.2"}, // tie to even
		{"100.35", "0.1", "100.4"},
		{"1.23456", "0.0001", "1.2346"},
		{"7", "0", "7"},
	}
	for _, c := range cases {
		got := RoundToTick(d(c.px), d(c.tick))
		assert.True(t, got.Equal(d(c.want)), "%s on %s: got %s", c.px, c.tick, got)
	}
	assert.Equal(t, "100.50", FormatPrice(d("100.5"), d("0.01")))
	assert.Equal(t, "101", FormatPrice(d("100.6"), d("1")))
}

func TestRunStopsOnCancel(t *testing.T) {
	s, ob, ex, _ := newTestStrategy(DefaultConfig())
	setBook(ob, "29999.5", "30000.5")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return len(ex.Calls()) == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.Len(t, ex.Calls(), 3)
}

func TestHaltStopsVenueCalls(t *testing.T) {
	s, ob, ex, _ := newTestStrategy(DefaultConfig())
	setBook(ob, "29999.5", "30000.5")

	require.NoError(t, s.Halt(context.Background()))
	assert.False(t, s.tick(context.Background()))
	assert.Empty(t, ex.Calls())
}

// blockingExchange parks every call until release is closed.
type blockingExchange struct {
	fakeExchange
	entered chan struct{}
	release chan struct{}
}

func (b *blockingExchange) CancelAll(ctx context.Context, inst string) (*httpClient.Response, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.fakeExchange.CancelAll(ctx, inst)
}

func TestHaltWaitsForRoundInFlight(t *testing.T) {
	ex := &blockingExchange{entered: make(chan struct{}, 1), release: make(chan struct{})}
	cfg := DefaultConfig()
	ob := exchange.NewOrderBook(cfg.Symbol)
	s := NewStrategy(cfg, ob, ex, nil)
	setBook(ob, "29999.5", "30000.5")

	ticked := make(chan bool, 1)
	go func() { ticked <- s.tick(context.Background()) }()
	<-ex.entered

	// the round is stuck in cancel-all, so Halt cannot finish
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Halt(ctx), context.DeadlineExceeded)

	halted := make(chan error, 1)
	go func() { halted <- s.Halt(context.Background()) }()
	close(ex.release)
	require.NoError(t, <-halted)

	// the in-flight cancel-all completes, the two places are never sent
	assert.False(t, <-ticked)
	assert.Equal(t, []call{{Op: "cancel_all", Inst: "BTCUSDT"}}, ex.Calls())
}

func TestRunReturnsAfterHalt(t *testing.T) {
	s, _, _, _ := newTestStrategy(DefaultConfig())
	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	require.NoError(t, s.Halt(context.Background()))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("quoter kept running after halt")
	}
}
