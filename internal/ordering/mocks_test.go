package ordering

import (
	"context"
	"errors"

	"github.com/appetiteclub/comanda/internal/backend"
)

// MockOrderService implements OrderService for testing
type MockOrderService struct {
	GetOrderFunc   func(ctx context.Context, id string) (*backend.Order, error)
	AddItemFunc    func(ctx context.Context, orderID string, payload backend.AddItemRequest) (*backend.AddItemResult, error)
	RemoveItemFunc func(ctx context.Context, itemID string) error
	CheckoutFunc   func(ctx context.Context, orderID string) (*backend.Order, error)

	GetOrderCalls int
}

func (m *MockOrderService) GetOrder(ctx context.Context, id string) (*backend.Order, error) {
	m.GetOrderCalls++
	if m.GetOrderFunc != nil {
		return m.GetOrderFunc(ctx, id)
	}
	return &backend.Order{ID: id, Status: "open"}, nil
}

func (m *MockOrderService) AddItem(ctx context.Context, orderID string, payload backend.AddItemRequest) (*backend.AddItemResult, error) {
	if m.AddItemFunc != nil {
		return m.AddItemFunc(ctx, orderID, payload)
	}
	return nil, errors.New("not implemented")
}

func (m *MockOrderService) RemoveItem(ctx context.Context, itemID string) error {
	if m.RemoveItemFunc != nil {
		return m.RemoveItemFunc(ctx, itemID)
	}
	return errors.New("not implemented")
}

func (m *MockOrderService) Checkout(ctx context.Context, orderID string) (*backend.Order, error) {
	if m.CheckoutFunc != nil {
		return m.CheckoutFunc(ctx, orderID)
	}
	return nil, errors.New("not implemented")
}

// MockKitchenService implements KitchenService for testing
type MockKitchenService struct {
	SendToKitchenFunc func(ctx context.Context, orderID string) error
}

func (m *MockKitchenService) SendToKitchen(ctx context.Context, orderID string) error {
	if m.SendToKitchenFunc != nil {
		return m.SendToKitchenFunc(ctx, orderID)
	}
	return nil
}

// MockHistory implements HistoryRefresher for testing
type MockHistory struct {
	RefreshCalls int
}

func (m *MockHistory) Refresh(ctx context.Context) error {
	m.RefreshCalls++
	return nil
}
