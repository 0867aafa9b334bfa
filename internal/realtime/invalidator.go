package realtime

import (
	"context"
	"encoding/json"

	"github.com/appetiteclub/comanda/internal/collections"
	"github.com/appetiteclub/comanda/internal/metrics"
	"github.com/appetiteclub/comanda/internal/notify"
	"github.com/appetiteclub/comanda/pkg/event"
	"github.com/aquamarinepk/aqm"
)

// TopicCollections maps each pushed topic to the collections it stales.
var TopicCollections = map[string][]string{
	event.TopicTableStatusChanged:   {collections.Tables, collections.Orders, collections.Trash},
	event.TopicKitchenNewOrder:      {collections.Orders, collections.KitchenHistory},
	event.TopicProductStatusChanged: {collections.Products},
}

// InvalidateFunc observes accepted invalidations.
type InvalidateFunc func(topic string, names []string)

// Invalidator turns realtime events into collection invalidations and
// notifications. It never patches cached data.
type Invalidator struct {
	registry  *collections.Registry
	notifier  *notify.Center
	debouncer *Debouncer
	metrics   *metrics.Collector
	logger    aqm.Logger
	observer  InvalidateFunc
}

func NewInvalidator(registry *collections.Registry, notifier *notify.Center, debouncer *Debouncer, m *metrics.Collector, logger aqm.Logger) *Invalidator {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	if debouncer == nil {
		debouncer = NewDebouncer(DefaultDebounce, nil)
	}
	return &Invalidator{
		registry:  registry,
		notifier:  notifier,
		debouncer: debouncer,
		metrics:   m,
		logger:    logger,
	}
}

// OnInvalidate registers fn to observe accepted invalidations.
func (i *Invalidator) OnInvalidate(fn InvalidateFunc) {
	i.observer = fn
}

// Handle processes one raw envelope. Malformed input is logged and dropped.
func (i *Invalidator) Handle(ctx context.Context, msg []byte) error {
	var env event.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		i.logger.Error("failed to unmarshal realtime envelope", "error", err)
		return nil
	}
	i.metrics.EventReceived(env.Topic)

	switch env.Topic {
	case event.TopicNotification:
		return i.handleNotification(env)
	case event.TopicTableStatusChanged, event.TopicKitchenNewOrder, event.TopicProductStatusChanged:
		return i.handleInvalidation(env)
	default:
		i.logger.Debug("ignoring unknown realtime topic", "topic", env.Topic)
		return nil
	}
}

func (i *Invalidator) handleNotification(env event.Envelope) error {
	var evt event.NotificationEvent
	if err := json.Unmarshal(env.Payload, &evt); err != nil {
		i.logger.Error("failed to unmarshal notification", "error", err)
		return nil
	}
	if i.notifier != nil {
		i.notifier.FromEvent(evt)
	}
	return nil
}

func (i *Invalidator) handleInvalidation(env event.Envelope) error {
	if !i.debouncer.Allow(env.Topic) {
		i.metrics.EventDebounced(env.Topic)
		i.logger.Debug("realtime event debounced", "topic", env.Topic)
		return nil
	}
	if i.registry == nil {
		return nil
	}

	names := i.registry.Invalidate(TopicCollections[env.Topic]...)
	for _, name := range names {
		i.metrics.Invalidated(name)
	}
	i.logger.Debug("collections invalidated", "topic", env.Topic, "collections", names)

	if i.observer != nil && len(names) > 0 {
		i.observer(env.Topic, names)
	}
	return nil
}
