package ordering

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/appetiteclub/comanda/internal/backend"
	"github.com/appetiteclub/comanda/internal/metrics"
	"github.com/appetiteclub/comanda/internal/notify"
	"github.com/aquamarinepk/aqm"
)

// ErrSyncing is returned when a mutation is attempted while another one on
// the same order is still in flight.
var ErrSyncing = errors.New("order is syncing")

// OrderService is the slice of the backend the aggregate mutates through.
type OrderService interface {
	GetOrder(ctx context.Context, id string) (*backend.Order, error)
	AddItem(ctx context.Context, orderID string, payload backend.AddItemRequest) (*backend.AddItemResult, error)
	RemoveItem(ctx context.Context, itemID string) error
	Checkout(ctx context.Context, orderID string) (*backend.Order, error)
}

type KitchenService interface {
	SendToKitchen(ctx context.Context, orderID string) error
}

// HistoryRefresher reloads the kitchen dispatch history after a dispatch.
type HistoryRefresher interface {
	Refresh(ctx context.Context) error
}

type Notifier interface {
	Success(title, message string) notify.Notification
	Warning(title, message string) notify.Notification
	Error(title, message string) notify.Notification
}

// Aggregate holds one in-progress order. Every mutation is followed by a
// full refetch so the local copy is always server truth.
type Aggregate struct {
	orderID  string
	orders   OrderService
	kitchen  KitchenService
	history  HistoryRefresher
	notifier Notifier
	metrics  *metrics.Collector
	logger   aqm.Logger

	mu      sync.Mutex
	order   *backend.Order
	syncing bool
}

type Option func(*Aggregate)

func WithNotifier(n Notifier) Option {
	return func(a *Aggregate) {
		a.notifier = n
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(a *Aggregate) {
		a.metrics = m
	}
}

func WithLogger(logger aqm.Logger) Option {
	return func(a *Aggregate) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func New(orderID string, orders OrderService, kitchen KitchenService, opts ...Option) *Aggregate {
	a := &Aggregate{
		orderID:  orderID,
		orders:   orders,
		kitchen:  kitchen,
		notifier: notify.NewCenter(0, nil, nil),
		logger:   aqm.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("order_id", orderID)
	return a
}

// SetHistory attaches the kitchen history view refreshed after dispatches.
func (a *Aggregate) SetHistory(h HistoryRefresher) {
	a.mu.Lock()
	a.history = h
	a.mu.Unlock()
}

func (a *Aggregate) ID() string {
	return a.orderID
}

// Fetch loads the full order graph and replaces the local copy.
func (a *Aggregate) Fetch(ctx context.Context) (*backend.Order, error) {
	if a.orders == nil {
		return nil, backend.ErrNotConfigured
	}

	order, err := a.orders.GetOrder(ctx, a.orderID)
	if err != nil {
		a.logger.Debug("fetch order failed", "error", err)
		return nil, err
	}

	a.mu.Lock()
	a.order = order
	a.mu.Unlock()

	return cloneOrder(order), nil
}

// AddItem adds quantity units of a product. A stock warning from the
// backend is surfaced as a notification and does not fail the call.
func (a *Aggregate) AddItem(ctx context.Context, productID string, quantity int, notes string) (*backend.LineItem, error) {
	var msgs []string
	if strings.TrimSpace(productID) == "" {
		msgs = append(msgs, "product is required")
	}
	if quantity < 1 {
		msgs = append(msgs, "quantity must be at least 1")
	}
	if len(msgs) > 0 {
		err := backend.NewValidationError(msgs...)
		a.fail("add_item", "Could not add item", err)
		return nil, err
	}
	if a.orders == nil {
		return nil, backend.ErrNotConfigured
	}

	if err := a.begin(); err != nil {
		return nil, err
	}
	defer a.end()

	result, err := a.orders.AddItem(ctx, a.orderID, backend.AddItemRequest{
		ProductID: productID,
		Quantity:  quantity,
		Notes:     strings.TrimSpace(notes),
	})
	if err != nil {
		a.fail("add_item", "Could not add item", err)
		return nil, err
	}
	a.metrics.Mutation("add_item", nil)

	if result.Warning != "" {
		a.notifier.Warning("Stock warning", result.Warning)
	}

	a.refetch(ctx)

	item := result.Item
	return &item, nil
}

// RemoveItem deletes a line item. The order is refetched whether or not
// the delete succeeded.
func (a *Aggregate) RemoveItem(ctx context.Context, itemID string) error {
	if a.orders == nil {
		return backend.ErrNotConfigured
	}
	if err := a.begin(); err != nil {
		return err
	}
	defer a.end()

	err := a.orders.RemoveItem(ctx, itemID)
	a.refetch(ctx)

	if err != nil {
		a.fail("remove_item", "Could not remove item", err)
		return err
	}
	a.metrics.Mutation("remove_item", nil)
	return nil
}

// SendToKitchen dispatches the pending batch of orderID. An empty orderID
// means this aggregate's order.
func (a *Aggregate) SendToKitchen(ctx context.Context, orderID string) error {
	if orderID == "" {
		orderID = a.orderID
	}
	if a.kitchen == nil {
		return backend.ErrNotConfigured
	}

	if err := a.begin(); err != nil {
		return err
	}
	defer a.end()

	if err := a.kitchen.SendToKitchen(ctx, orderID); err != nil {
		a.fail("send_to_kitchen", "Could not send to kitchen", err)
		return err
	}
	a.metrics.Mutation("send_to_kitchen", nil)

	if orderID == a.orderID {
		a.refetch(ctx)

		a.mu.Lock()
		history := a.history
		a.mu.Unlock()
		if history != nil {
			if err := history.Refresh(ctx); err != nil {
				a.logger.Error("refresh kitchen history failed", "error", err)
			}
		}
	}

	a.notifier.Success("Sent to kitchen", "Pending items were sent to the kitchen")
	return nil
}

// Checkout moves the order to pending payment. Totals stay server side.
func (a *Aggregate) Checkout(ctx context.Context) (*backend.Order, error) {
	if a.orders == nil {
		return nil, backend.ErrNotConfigured
	}
	if err := a.begin(); err != nil {
		return nil, err
	}
	defer a.end()

	order, err := a.orders.Checkout(ctx, a.orderID)
	if err != nil {
		a.fail("checkout", "Could not check out", err)
		return nil, err
	}
	a.metrics.Mutation("checkout", nil)

	a.mu.Lock()
	a.order = order
	a.mu.Unlock()

	if fresh := a.refetch(ctx); fresh != nil {
		order = fresh
	}
	return cloneOrder(order), nil
}

// Syncing reports whether a mutation is in flight.
func (a *Aggregate) Syncing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.syncing
}

// Snapshot returns a copy of the last fetched order, or nil.
func (a *Aggregate) Snapshot() *backend.Order {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneOrder(a.order)
}

// ShouldLeave reports whether err means the order view must be closed.
func ShouldLeave(err error) bool {
	return errors.Is(err, backend.ErrNotFound) || errors.Is(err, backend.ErrForbidden)
}

func (a *Aggregate) begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.syncing {
		return ErrSyncing
	}
	a.syncing = true
	return nil
}

func (a *Aggregate) end() {
	a.mu.Lock()
	a.syncing = false
	a.mu.Unlock()
}

// refetch replaces the local order with server truth. Failures are logged
// and reported, and the previous copy is kept.
func (a *Aggregate) refetch(ctx context.Context) *backend.Order {
	if a.orders == nil {
		return nil
	}
	order, err := a.orders.GetOrder(ctx, a.orderID)
	if err != nil {
		a.logger.Error("refetch order failed", "error", err)
		a.notifier.Error("Could not refresh order", backend.Message(err))
		return nil
	}

	a.mu.Lock()
	a.order = order
	a.mu.Unlock()
	return order
}

func (a *Aggregate) fail(op, title string, err error) {
	a.metrics.Mutation(op, err)
	a.logger.Info("order mutation failed", "operation", op, "error", err)
	a.notifier.Error(title, backend.Message(err))
}

func cloneOrder(o *backend.Order) *backend.Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]backend.LineItem(nil), o.Items...)
	if o.TableID != nil {
		id := *o.TableID
		c.TableID = &id
	}
	return &c
}
