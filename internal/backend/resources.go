package backend

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID         string          `json:"id"`
	Number     string          `json:"order_number"`
	TableID    *string         `json:"table_id,omitempty"`
	TableLabel string          `json:"table_label,omitempty"`
	Status     string          `json:"status"`
	Items      []LineItem      `json:"items"`
	Total      decimal.Decimal `json:"total"`
	WaiterID   string          `json:"waiter_id,omitempty"`
	WaiterName string          `json:"waiter_name,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ItemIDs returns the ids of every line item currently on the order.
func (o *Order) ItemIDs() []string {
	if o == nil {
		return nil
	}
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

type LineItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Subtotal is quantity times unit price.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type AddItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes,omitempty"`
}

// AddItemResult carries the created item and an optional stock warning.
type AddItemResult struct {
	Item    LineItem `json:"item"`
	Warning string   `json:"warning,omitempty"`
}

// KitchenBatch is one backend-recorded dispatch. A batch with number zero
// and no send time is the pending batch, when the backend reports one.
type KitchenBatch struct {
	Number     int         `json:"batch_number"`
	SentAt     *time.Time  `json:"sent_at,omitempty"`
	Items      []BatchItem `json:"items"`
	WaiterID   string      `json:"waiter_id,omitempty"`
	WaiterName string      `json:"waiter_name,omitempty"`
}

type BatchItem struct {
	ItemID      string `json:"item_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Notes       string `json:"notes,omitempty"`
}

type Table struct {
	ID      string  `json:"id"`
	Number  string  `json:"number"`
	Status  string  `json:"status"`
	Seats   int     `json:"seats,omitempty"`
	OrderID *string `json:"order_id,omitempty"`
}

// Product stock states.
const (
	ProductAvailable  = "available"
	ProductLowStock   = "low_stock"
	ProductOutOfStock = "out_of_stock"
)

type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Status   string          `json:"status"`
}

type Invoice struct {
	Number        string          `json:"number"`
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	TableLabel    string          `json:"table_label,omitempty"`
	Lines         []InvoiceLine   `json:"lines"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Taxes         []TaxLine       `json:"taxes,omitempty"`
	Total         decimal.Decimal `json:"total"`
	IssuerTaxID   string          `json:"issuer_tax_id,omitempty"`
	CustomerName  string          `json:"customer_name,omitempty"`
	CustomerTaxID string          `json:"customer_tax_id,omitempty"`
	CashierName   string          `json:"cashier_name,omitempty"`
	QRPayload     string          `json:"qr_payload,omitempty"`
	IssuedAt      time.Time       `json:"issued_at"`
}

type InvoiceLine struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

type TaxLine struct {
	Name   string          `json:"name"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
