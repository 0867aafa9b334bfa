package kitchen

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/appetiteclub/comanda/internal/backend"
	"github.com/appetiteclub/comanda/internal/metrics"
	"github.com/aquamarinepk/aqm"
)

var (
	ErrUnknownBatch   = errors.New("unknown batch")
	ErrNothingPending = errors.New("no pending items to send")
	ErrNoDispatcher   = errors.New("kitchen dispatch not configured")
)

type HistorySource interface {
	KitchenHistory(ctx context.Context, orderID string) ([]backend.KitchenBatch, error)
}

// Dispatcher sends the pending batch of an order to the kitchen. An empty
// order id means the dispatcher's own order.
type Dispatcher interface {
	SendToKitchen(ctx context.Context, orderID string) error
}

// OrderView exposes the last fetched order, used to compute pending items.
type OrderView interface {
	Snapshot() *backend.Order
}

// PrintResult reports what printing a batch did. Dispatched is set when the
// pending batch was sent to the kitchen instead of printed.
type PrintResult struct {
	Batch      Batch `json:"batch"`
	Dispatched bool  `json:"dispatched"`
}

// Batcher is the kitchen batch view of one order with a single selection.
type Batcher struct {
	orderID    string
	source     HistorySource
	view       OrderView
	dispatcher Dispatcher
	metrics    *metrics.Collector
	logger     aqm.Logger

	mu       sync.RWMutex
	batches  []Batch
	selected int
	seen     map[int]string
	gen      int
	diverged int
}

type Option func(*Batcher)

func WithMetrics(m *metrics.Collector) Option {
	return func(b *Batcher) {
		b.metrics = m
	}
}

func WithLogger(logger aqm.Logger) Option {
	return func(b *Batcher) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func NewBatcher(orderID string, source HistorySource, view OrderView, dispatcher Dispatcher, opts ...Option) *Batcher {
	b := &Batcher{
		orderID:    orderID,
		source:     source,
		view:       view,
		dispatcher: dispatcher,
		logger:     aqm.NewNoopLogger(),
		seen:       make(map[int]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("order_id", orderID)
	return b
}

// Refresh refetches the dispatch history and rebuilds the batch list. The
// selection survives when its batch still exists.
func (b *Batcher) Refresh(ctx context.Context) error {
	if b.source == nil {
		return backend.ErrNotConfigured
	}

	history, err := b.source.KitchenHistory(ctx, b.orderID)
	if err != nil {
		return err
	}

	var order *backend.Order
	if b.view != nil {
		order = b.view.Snapshot()
	}
	batches := Derive(history, order)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, batch := range batches {
		if batch.Pending() {
			continue
		}
		fp := fingerprint(batch)
		if prev, ok := b.seen[batch.Number]; ok && prev != fp {
			b.logger.Error("confirmed kitchen batch changed on refetch", "batch_number", batch.Number)
			b.metrics.HistoryDiverged()
			b.diverged++
		}
		b.seen[batch.Number] = fp
	}

	selected := batches[0].Number
	for _, batch := range batches {
		if b.gen > 0 && batch.Number == b.selected {
			selected = b.selected
			break
		}
	}

	b.batches = batches
	b.selected = selected
	b.gen++
	return nil
}

// Batches returns the sorted batch list.
func (b *Batcher) Batches() []Batch {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Batch(nil), b.batches...)
}

// Empty reports whether no batch holds any item.
func (b *Batcher) Empty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, batch := range b.batches {
		if !batch.Empty() {
			return false
		}
	}
	return true
}

// Divergences counts confirmed batches seen to change between refetches.
func (b *Batcher) Divergences() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.diverged
}

func (b *Batcher) Selected() (Batch, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.findLocked(b.selected)
}

func (b *Batcher) Select(number int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.findLocked(number); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBatch, number)
	}
	b.selected = number
	return nil
}

// Print returns the batch to print. Asking for the pending batch sends it
// to the kitchen and reports the newly confirmed batch instead.
func (b *Batcher) Print(ctx context.Context, number int) (PrintResult, error) {
	b.mu.RLock()
	batch, ok := b.findLocked(number)
	gen := b.gen
	b.mu.RUnlock()

	if !ok {
		return PrintResult{}, fmt.Errorf("%w: %d", ErrUnknownBatch, number)
	}
	if !batch.Pending() {
		return PrintResult{Batch: batch}, nil
	}
	if batch.Empty() {
		return PrintResult{}, ErrNothingPending
	}
	if b.dispatcher == nil {
		return PrintResult{}, ErrNoDispatcher
	}

	if err := b.dispatcher.SendToKitchen(ctx, b.orderID); err != nil {
		return PrintResult{}, err
	}

	b.mu.RLock()
	refreshed := b.gen != gen
	b.mu.RUnlock()
	if !refreshed {
		if err := b.Refresh(ctx); err != nil {
			return PrintResult{Dispatched: true}, err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	newest, ok := b.newestLocked()
	if !ok {
		return PrintResult{Dispatched: true}, nil
	}
	b.selected = newest.Number
	return PrintResult{Batch: newest, Dispatched: true}, nil
}

func (b *Batcher) findLocked(number int) (Batch, bool) {
	for _, batch := range b.batches {
		if batch.Number == number {
			return batch, true
		}
	}
	return Batch{}, false
}

func (b *Batcher) newestLocked() (Batch, bool) {
	var newest Batch
	found := false
	for _, batch := range b.batches {
		if batch.Pending() {
			continue
		}
		if !found || batch.Number > newest.Number {
			newest, found = batch, true
		}
	}
	return newest, found
}
