package backend

import (
	"context"
	"net/http"
)

// TableDataAccess reads the floor plan.
type TableDataAccess struct {
	client *Client
}

func NewTableDataAccess(client *Client) *TableDataAccess {
	return &TableDataAccess{client: client}
}

func (da *TableDataAccess) ListTables(ctx context.Context) ([]Table, error) {
	if da == nil || da.client == nil {
		return nil, ErrNotConfigured
	}

	resp, err := da.client.Do(ctx, http.MethodGet, "/tables", nil)
	if err != nil {
		return nil, err
	}

	var tables []Table
	if err := decodeSuccessResponse(resp, &tables); err != nil {
		return nil, err
	}

	return tables, nil
}

// ProductDataAccess reads the product catalog.
type ProductDataAccess struct {
	client *Client
}

func NewProductDataAccess(client *Client) *ProductDataAccess {
	return &ProductDataAccess{client: client}
}

func (da *ProductDataAccess) ListProducts(ctx context.Context) ([]Product, error) {
	if da == nil || da.client == nil {
		return nil, ErrNotConfigured
	}

	resp, err := da.client.Do(ctx, http.MethodGet, "/products", nil)
	if err != nil {
		return nil, err
	}

	var products []Product
	if err := decodeSuccessResponse(resp, &products); err != nil {
		return nil, err
	}

	return products, nil
}
