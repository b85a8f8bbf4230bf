package exchange

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const LEVEL1_TOPIC_PREFIX = "orderbook.1."

// WSMsg covers both topic pushes and op replies of the v5 public stream.
type WSMsg struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Ts    int64  `json:"ts"`
	Data  struct {
		S   string     `json:"s"`
		B   [][]string `json:"b"`
		A   [][]string `json:"a"`
		U   int64      `json:"u"`
		Seq int64      `json:"seq"`
	} `json:"data"`

	Op      string `json:"op"`
	Success *bool  `json:"success"`
	RetMsg  string `json:"ret_msg"`
	ConnID  string `json:"conn_id"`
}

type subscribeMsg struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// Level1 is one parsed top-of-book update. A side without a usable entry is left unset.
type Level1 struct {
	Bid, Ask       decimal.Decimal
	HasBid, HasAsk bool
}

var ErrBadLevel = errors.New("bad price level")

// ParseLevel1 picks, per side, the first entry whose size is not "0" and otherwise
// the second entry.
func ParseLevel1(m *WSMsg) (Level1, error) {
	var l Level1
	var err error
	if px, ok := pickLevel(m.Data.B); ok {
		if l.Bid, err = decimal.NewFromString(px); err != nil {
			return Level1{}, fmt.Errorf("%w: bid %q", ErrBadLevel, px)
		}
		l.HasBid = true
	}
	if px, ok := pickLevel(m.Data.A); ok {
		if l.Ask, err = decimal.NewFromString(px); err != nil {
			return Level1{}, fmt.Errorf("%w: ask %q", ErrBadLevel, px)
		}
		l.HasAsk = true
	}
	return l, nil
}

func pickLevel(levels [][]string) (string, bool) {
	if len(levels) > 0 && len(levels[0]) >= 2 && levels[0][1] != "0" {
		return levels[0][0], true
	}
	if len(levels) > 1 && len(levels[1]) >= 1 {
		return levels[1][0], true
	}
	return "", false
}

// ===================== OrderBook (top-of-book) =====================

// OrderBook is the shared best bid/ask. The feed is the only writer.
type OrderBook struct {
	Symbol  string
	mu      sync.RWMutex
	bid1    decimal.Decimal
	ask1    decimal.Decimal
	updated time.Time
}

func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{Symbol: strings.ToUpper(symbol)}
}

// Snapshot returns bid and ask from the same update.
func (ob *OrderBook) Snapshot() (bid, ask decimal.Decimal) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.bid1, ob.ask1
}

// Mid returns (bid+ask)/2, or false until both sides are known.
func (ob *OrderBook) Mid() (decimal.Decimal, bool) {
	bid, ask := ob.Snapshot()
	if bid.IsZero() || ask.IsZero() {
		return decimal.Zero, false
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2)), true
}

// Apply publishes both sides of one update under a single lock.
func (ob *OrderBook) Apply(l Level1) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	if l.HasBid {
		ob.bid1 = l.Bid
	}
	if l.HasAsk {
		ob.ask1 = l.Ask
	}
	if l.HasBid || l.HasAsk {
		ob.updated = time.Now()
	}
}

func (ob *OrderBook) UpdatedAt() time.Time {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.updated
}

func (ob *OrderBook) Clear() {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.bid1 = decimal.Zero
	ob.ask1 = decimal.Zero
	ob.updated = time.Time{}
}
