package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// KitchenDataAccess wraps the kitchen dispatch endpoints of an order.
type KitchenDataAccess struct {
	client *Client
}

func NewKitchenDataAccess(client *Client) *KitchenDataAccess {
	return &KitchenDataAccess{client: client}
}

// SendToKitchen dispatches every pending item of the order as a new batch.
func (da *KitchenDataAccess) SendToKitchen(ctx context.Context, orderID string) error {
	if da == nil || da.client == nil {
		return ErrNotConfigured
	}
	if orderID == "" {
		return NewValidationError("missing order id")
	}

	path := fmt.Sprintf("/orders/%s/kitchen", url.PathEscape(orderID))
	_, err := da.client.Do(ctx, http.MethodPost, path, nil)
	return err
}

// KitchenHistory returns every batch recorded for the order.
func (da *KitchenDataAccess) KitchenHistory(ctx context.Context, orderID string) ([]KitchenBatch, error) {
	if da == nil || da.client == nil {
		return nil, ErrNotConfigured
	}
	if orderID == "" {
		return nil, NewValidationError("missing order id")
	}

	path := fmt.Sprintf("/orders/%s/kitchen-history", url.PathEscape(orderID))
	resp, err := da.client.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var batches []KitchenBatch
	if err := decodeSuccessResponse(resp, &batches); err != nil {
		return nil, err
	}

	return batches, nil
}
