package exchange

import (
	"context"
	"strconv"
	"time"

	"bybitMaker/exchange/httpClient"
	"bybitMaker/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BybitClient adapts the signed REST transport to ExchangeClient.
type BybitClient struct {
	rest *httpClient.Client
}

func NewBybitClient(rest *httpClient.Client) *BybitClient {
	return &BybitClient{rest: rest}
}

func (m *BybitClient) PlaceOrder(ctx context.Context, inst, price, qty string, isBuy bool) (*httpClient.Response, error) {
	req := httpClient.NewLimitOrder(inst, price, qty, isBuy)
	req.OrderLinkId = uuid.NewString()
	logger.Debug(ctx, "post order", "side", req.Side, "price", req.Price, "qty", req.Qty, "link_id", req.OrderLinkId)
	return m.rest.Order(ctx, req)
}

func (m *BybitClient) CancelAll(ctx context.Context, inst string) (*httpClient.Response, error) {
	logger.Debug(ctx, "cancel all", "symbol", inst)
	return m.rest.CancelAll(ctx, inst)
}

func (m *BybitClient) OpenOrders(ctx context.Context, inst string) ([]Order, error) {
	list, err := m.rest.OpenOrders(ctx, inst)
	if err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(list))
	for _, o := range list {
		px, _ := decimal.NewFromString(o.Price)
		sz, _ := decimal.NewFromString(o.Qty)
		var ts time.Time
		if ms, err := strconv.ParseInt(o.CreatedTime, 10, 64); err == nil {
			ts = time.UnixMilli(ms)
		}
		out = append(out, Order{
			ID:     o.OrderId,
			LinkID: o.OrderLinkId,
			Side:   o.Side,
			Px:     px,
			Sz:     sz,
			Inst:   o.Symbol,
			Status: o.OrderStatus,
			TS:     ts,
		})
	}
	return out, nil
}
