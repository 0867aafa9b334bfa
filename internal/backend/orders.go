package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// OrderDataAccess centralizes decoding of order endpoint responses.
type OrderDataAccess struct {
	client *Client
}

func NewOrderDataAccess(client *Client) *OrderDataAccess {
	return &OrderDataAccess{client: client}
}

func (da *OrderDataAccess) ListOrders(ctx context.Context) ([]Order, error) {
	if da == nil || da.client == nil {
		return nil, ErrNotConfigured
	}

	resp, err := da.client.Do(ctx, http.MethodGet, "/orders", nil)
	if err != nil {
		return nil, err
	}

	var orders []Order
	if err := decodeSuccessResponse(resp, &orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// ListArchivedOrders returns cancelled and closed orders. Only supervisors
// are allowed to read them.
func (da *OrderDataAccess) ListArchivedOrders(ctx context.Context) ([]Order, error) {
	if da == nil || da.client == nil {
		return nil, ErrNotConfigured
	}

	resp, err := da.client.Do(ctx, http.MethodGet, "/orders/trash", nil)
	if err != nil {
		return nil, err
	}

	var orders []Order
	if err := decodeSuccessResponse(resp, &orders); err != nil {
		return nil, err
	}

	return orders, nil
}

func (da *OrderDataAccess) GetOrder(ctx context.Context, id string) (*Order, error) {
	if da == nil || da.client == nil {
		return nil, ErrNotConfigured
	}
	if id == "" {
		return nil, NewValidationError("missing order id")
	}

	resp, err := da.client.Do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var order Order
	if err := decodeSuccessResponse(resp, &order); err != nil {
		return nil, err
	}

	return &order, nil
}

func (da *OrderDataAccess) AddItem(ctx context.Context, orderID string, payload AddItemRequest) (*AddItemResult, error) {
	if da == nil || da.client == nil {
		return nil, ErrNotConfigured
	}
	if orderID == "" {
		return nil, NewValidationError("missing order id")
	}

	path := fmt.Sprintf("/orders/%s/items", url.PathEscape(orderID))
	resp, err := da.client.Do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}

	var result AddItemResult
	if err := decodeSuccessResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (da *OrderDataAccess) RemoveItem(ctx context.Context, itemID string) error {
	if da == nil || da.client == nil {
		return ErrNotConfigured
	}
	if itemID == "" {
		return NewValidationError("missing item id")
	}

	_, err := da.client.Do(ctx, http.MethodDelete, "/orders/items/"+url.PathEscape(itemID), nil)
	return err
}

// Checkout moves the order to pending payment.
func (da *OrderDataAccess) Checkout(ctx context.Context, orderID string) (*Order, error) {
	if da == nil || da.client == nil {
		return nil, ErrNotConfigured
	}
	if orderID == "" {
		return nil, NewValidationError("missing order id")
	}

	path := fmt.Sprintf("/orders/%s/checkout", url.PathEscape(orderID))
	resp, err := da.client.Do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, err
	}

	var order Order
	if err := decodeSuccessResponse(resp, &order); err != nil {
		return nil, err
	}

	return &order, nil
}

func (da *OrderDataAccess) GetInvoice(ctx context.Context, orderID string) (*Invoice, error) {
	if da == nil || da.client == nil {
		return nil, ErrNotConfigured
	}
	if orderID == "" {
		return nil, NewValidationError("missing order id")
	}

	path := fmt.Sprintf("/orders/%s/invoice", url.PathEscape(orderID))
	resp, err := da.client.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var invoice Invoice
	if err := decodeSuccessResponse(resp, &invoice); err != nil {
		return nil, err
	}

	return &invoice, nil
}
