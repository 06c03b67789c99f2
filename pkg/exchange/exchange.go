// Package exchange defines the trading API used by the dispatcher and its
// Kraken Futures implementation.
package exchange

import (
	"context"
	"fmt"
)

// Payload is a provider-defined response passed through to the model
// unmodified.
type Payload map[string]interface{}

// OrderRequest is a fully specified order for SendOrder.
type OrderRequest struct {
	OrderType  string
	Symbol     string
	Side       string
	Size       float64
	LimitPrice *float64
	StopPrice  *float64
	ReduceOnly bool
}

// EditRequest changes an open order.
type EditRequest struct {
	OrderID    string
	Size       float64
	LimitPrice float64
}

// Client has one method per exchange command of the vocabulary. Read methods
// take optional filters; an empty string means unfiltered.
type Client interface {
	GetInstruments(ctx context.Context) (Payload, error)
	GetTickers(ctx context.Context) (Payload, error)
	GetNotifications(ctx context.Context) (Payload, error)
	GetAccounts(ctx context.Context) (Payload, error)
	GetAccountLog(ctx context.Context) (Payload, error)
	GetOpenPositions(ctx context.Context) (Payload, error)
	GetOpenOrders(ctx context.Context) (Payload, error)
	GetOrderbook(ctx context.Context, symbol string) (Payload, error)
	GetHistory(ctx context.Context, symbol, lastTime string) (Payload, error)
	GetRecentOrders(ctx context.Context, symbol string) (Payload, error)
	GetHistoricalPriceData(ctx context.Context, pair string, interval int, since int64) (Payload, error)
	GetFills(ctx context.Context, lastTime string) (Payload, error)
	GetTransfers(ctx context.Context, lastTime string) (Payload, error)

	SendOrder(ctx context.Context, order OrderRequest) (Payload, error)
	EditOrder(ctx context.Context, edit EditRequest) (Payload, error)
	CancelOrder(ctx context.Context, orderID string) (Payload, error)
	CancelAllOrders(ctx context.Context, symbol string) (Payload, error)
	CancelAllOrdersAfter(ctx context.Context, timeoutSeconds int) (Payload, error)
	BatchOrder(ctx context.Context, batchJSON string) (Payload, error)
}

// Error is returned for transport, auth and exchange-reported failures.
// Status is the HTTP status, or 0 when the request never got a response.
type Error struct {
	Status   int
	Message  string
	Endpoint string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("exchange %s: %s", e.Endpoint, e.Message)
	}
	return fmt.Sprintf("exchange %s (status %d): %s", e.Endpoint, e.Status, e.Message)
}

// AvailableMargin returns the flex (multi-collateral) account from
// GetAccounts. A response without one is an *Error.
func AvailableMargin(ctx context.Context, c Client) (Payload, error) {
	accounts, err := c.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}

	all, ok := accounts["accounts"].(map[string]interface{})
	if !ok {
		return nil, &Error{Endpoint: "/accounts", Message: "response has no accounts"}
	}
	flex, ok := all["flex"].(map[string]interface{})
	if !ok {
		return nil, &Error{Endpoint: "/accounts", Message: "response has no flex account"}
	}
	return Payload(flex), nil
}
