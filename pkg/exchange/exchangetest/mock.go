// Package exchangetest provides a testify mock of exchange.Client.
package exchangetest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/harun/tradebrain/pkg/exchange"
)

// MockClient is a mock implementation of exchange.Client
type MockClient struct {
	mock.Mock
}

var _ exchange.Client = (*MockClient)(nil)

func payload(args mock.Arguments) (exchange.Payload, error) {
	p, _ := args.Get(0).(exchange.Payload)
	return p, args.Error(1)
}

func (m *MockClient) GetInstruments(ctx context.Context) (exchange.Payload, error) {
	return payload(m.Called(ctx))
}

func (m *MockClient) GetTickers(ctx context.Context) (exchange.Payload, error) {
	return payload(m.Called(ctx))
}

func (m *MockClient) GetNotifications(ctx context.Context) (exchange.Payload, error) {
	return payload(m.Called(ctx))
}

func (m *MockClient) GetAccounts(ctx context.Context) (exchange.Payload, error) {
	return payload(m.Called(ctx))
}

func (m *MockClient) GetAccountLog(ctx context.Context) (exchange.Payload, error) {
	return payload(m.Called(ctx))
}

func (m *MockClient) GetOpenPositions(ctx context.Context) (exchange.Payload, error) {
	return payload(m.Called(ctx))
}

func (m *MockClient) GetOpenOrders(ctx context.Context) (exchange.Payload, error) {
	return payload(m.Called(ctx))
}

func (m *MockClient) GetOrderbook(ctx context.Context, symbol string) (exchange.Payload, error) {
	return payload(m.Called(ctx, symbol))
}

func (m *MockClient) GetHistory(ctx context.Context, symbol, lastTime string) (exchange.Payload, error) {
	return payload(m.Called(ctx, symbol, lastTime))
}

func (m *MockClient) GetRecentOrders(ctx context.Context, symbol string) (exchange.Payload, error) {
	return payload(m.Called(ctx, symbol))
}

func (m *MockClient) GetHistoricalPriceData(ctx context.Context, pair string, interval int, since int64) (exchange.Payload, error) {
	return payload(m.Called(ctx, pair, interval, since))
}

func (m *MockClient) GetFills(ctx context.Context, lastTime string) (exchange.Payload, error) {
	return payload(m.Called(ctx, lastTime))
}

func (m *MockClient) GetTransfers(ctx context.Context, lastTime string) (exchange.Payload, error) {
	return payload(m.Called(ctx, lastTime))
}

func (m *MockClient) SendOrder(ctx context.Context, order exchange.OrderRequest) (exchange.Payload, error) {
	return payload(m.Called(ctx, order))
}

func (m *MockClient) EditOrder(ctx context.Context, edit exchange.EditRequest) (exchange.Payload, error) {
	return payload(m.Called(ctx, edit))
}

func (m *MockClient) CancelOrder(ctx context.Context, orderID string) (exchange.Payload, error) {
	return payload(m.Called(ctx, orderID))
}

func (m *MockClient) CancelAllOrders(ctx context.Context, symbol string) (exchange.Payload, error) {
	return payload(m.Called(ctx, symbol))
}

func (m *MockClient) CancelAllOrdersAfter(ctx context.Context, timeoutSeconds int) (exchange.Payload, error) {
	return payload(m.Called(ctx, timeoutSeconds))
}

func (m *MockClient) BatchOrder(ctx context.Context, batchJSON string) (exchange.Payload, error) {
	return payload(m.Called(ctx, batchJSON))
}
