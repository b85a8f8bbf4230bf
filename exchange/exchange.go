package exchange

import (
	"context"
	"time"

	"bybitMaker/exchange/httpClient"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID     string
	LinkID string
	Side   string
	Px     decimal.Decimal
	Sz     decimal.Decimal
	Inst   string
	Status string
	TS     time.Time
}

// ExchangeClient is what the quoter needs from the venue. A non-nil response
// with a nil error may still carry a rejection; see httpClient.Response.Err.
type ExchangeClient interface {
	PlaceOrder(ctx context.Context, inst, price, qty string, isBuy bool) (*httpClient.Response, error)
	CancelAll(ctx context.Context, inst string) (*httpClient.Response, error)
	OpenOrders(ctx context.Context, inst string) ([]Order, error)
}
