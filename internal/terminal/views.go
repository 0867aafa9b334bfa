package terminal

import (
	"context"
	"sync"

	"github.com/appetiteclub/comanda/internal/collections"
	"github.com/appetiteclub/comanda/internal/kitchen"
	"github.com/appetiteclub/comanda/internal/ordering"
)

// View pairs an order aggregate with its kitchen batch view. Invalidations
// only flag it; the next read refetches.
type View struct {
	Order   *ordering.Aggregate
	Batches *kitchen.Batcher

	mu           sync.Mutex
	orderStale   bool
	historyStale bool
	stop         []func()
}

func newView(order *ordering.Aggregate, batches *kitchen.Batcher, reg *collections.Registry) *View {
	v := &View{
		Order:        order,
		Batches:      batches,
		orderStale:   true,
		historyStale: true,
	}
	order.SetHistory(batches)

	if reg != nil {
		v.stop = append(v.stop,
			reg.Watch(collections.Orders, func() { v.mark(true, false) }),
			reg.Watch(collections.KitchenHistory, func() { v.mark(false, true) }),
		)
	}
	return v
}

func (v *View) mark(order, history bool) {
	v.mu.Lock()
	v.orderStale = v.orderStale || order
	v.historyStale = v.historyStale || history
	v.mu.Unlock()
}

// Load fetches the order graph. The stale flag is cleared before the fetch
// so an invalidation that lands while it is in flight survives it.
func (v *View) Load(ctx context.Context) error {
	v.mu.Lock()
	v.orderStale = false
	v.mu.Unlock()

	if _, err := v.Order.Fetch(ctx); err != nil {
		v.mark(true, false)
		return err
	}
	return nil
}

// Sync refetches whatever was invalidated since the last read. The order
// goes first because the pending batch is derived from it.
func (v *View) Sync(ctx context.Context) error {
	v.mu.Lock()
	orderStale := v.orderStale
	v.mu.Unlock()

	if orderStale {
		if err := v.Load(ctx); err != nil {
			return err
		}
		v.mark(false, true)
	}

	v.mu.Lock()
	historyStale := v.historyStale
	v.historyStale = false
	v.mu.Unlock()

	if historyStale {
		if err := v.Batches.Refresh(ctx); err != nil {
			v.mark(false, true)
			return err
		}
	}
	return nil
}

func (v *View) close() {
	v.mu.Lock()
	stop := v.stop
	v.stop = nil
	v.mu.Unlock()

	for _, fn := range stop {
		fn()
	}
}

// Views holds the open order views of one session.
type Views struct {
	build func(orderID string) *View

	mu    sync.Mutex
	views map[string]*View
}

func newViews(build func(orderID string) *View) *Views {
	return &Views{build: build, views: make(map[string]*View)}
}

// Open returns the view for orderID, creating it on first use.
func (vs *Views) Open(orderID string) *View {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if v, ok := vs.views[orderID]; ok {
		return v
	}
	v := vs.build(orderID)
	vs.views[orderID] = v
	return v
}

func (vs *Views) Get(orderID string) (*View, bool) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	v, ok := vs.views[orderID]
	return v, ok
}

// Close drops the view for orderID.
func (vs *Views) Close(orderID string) {
	vs.mu.Lock()
	v, ok := vs.views[orderID]
	delete(vs.views, orderID)
	vs.mu.Unlock()

	if ok {
		v.close()
	}
}

// CloseAll drops every view.
func (vs *Views) CloseAll() {
	vs.mu.Lock()
	views := vs.views
	vs.views = make(map[string]*View)
	vs.mu.Unlock()

	for _, v := range views {
		v.close()
	}
}

func (vs *Views) Len() int {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return len(vs.views)
}
