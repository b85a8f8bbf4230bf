package httpClient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderRequest is the body of /v5/order/create. Field order is the serialization order.
type OrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	PositionIdx int    `json:"positionIdx"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price"`
	TimeInForce string `json:"timeInForce"`
	OrderLinkId string `json:"orderLinkId,omitempty"`
}

type CancelAllRequest struct {
	Category string `json:"category"`
	Symbol   string `json:"symbol"`
}

// NewLimitOrder builds a GTC linear limit order in one-way mode.
func NewLimitOrder(symbol, price, qty string, isBuy bool) OrderRequest {
	side := SIDE_SELL
	if isBuy {
		side = SIDE_BUY
	}
	return OrderRequest{
		Category:    CATEGORY_LINEAR,
		Symbol:      symbol,
		Side:        side,
		PositionIdx: POSITION_IDX_ONE_WAY,
		OrderType:   ORDER_TYPE_LIMIT,
		Qty:         qty,
		Price:       price,
		TimeInForce: TIF_GTC,
	}
}

func (c *Client) Order(ctx context.Context, req OrderRequest) (*Response, error) {
	return c.Post(ctx, PLACE_ORDER_ENDPOINT, req)
}

func (c *Client) CancelAll(ctx context.Context, symbol string) (*Response, error) {
	return c.Post(ctx, CANCEL_ALL_ENDPOINT, CancelAllRequest{Category: CATEGORY_LINEAR, Symbol: symbol})
}

// OpenOrder is one entry of /v5/order/realtime.
type OpenOrder struct {
	OrderId     string `json:"orderId"`
	OrderLinkId string `json:"orderLinkId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Qty         string `json:"qty"`
	OrderStatus string `json:"orderStatus"`
	CreatedTime string `json:"createdTime"`
}

// OpenOrders lists active linear orders for symbol. Unlike the order calls it turns
// a rejected response into an error since there is nothing to place on failure.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	resp, err := c.Get(ctx, OPEN_ORDERS_ENDPOINT, Params{
		{Key: "category", Value: CATEGORY_LINEAR},
		{Key: "symbol", Value: symbol},
	}, true)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	env, err := resp.Envelope()
	if err != nil {
		return nil, err
	}
	var result struct {
		List []OpenOrder `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	return result.List, nil
}

// InstrumentTickSize reads priceFilter.tickSize from the public instruments endpoint.
func (c *Client) InstrumentTickSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	resp, err := c.Get(ctx, INSTRUMENTS_INFO_ENDPOINT, Params{
		{Key: "category", Value: CATEGORY_LINEAR},
		{Key: "symbol", Value: symbol},
	}, false)
	if err != nil {
		return decimal.Zero, err
	}
	if err := resp.Err(); err != nil {
		return decimal.Zero, err
	}
	env, err := resp.Envelope()
	if err != nil {
		return decimal.Zero, err
	}
	var result struct {
		List []struct {
			Symbol      string `json:"symbol"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return decimal.Zero, fmt.Errorf("decode instruments info: %w", err)
	}
	for _, inst := range result.List {
		if inst.Symbol != symbol {
			continue
		}
		tick, err := decimal.NewFromString(inst.PriceFilter.TickSize)
		if err != nil {
			return decimal.Zero, fmt.Errorf("tick size %q: %w", inst.PriceFilter.TickSize, err)
		}
		if !tick.IsPositive() {
			return decimal.Zero, fmt.Errorf("tick size %s for %s is not positive", tick, symbol)
		}
		return tick, nil
	}
	return decimal.Zero, fmt.Errorf("instrument %s not found", symbol)
}
