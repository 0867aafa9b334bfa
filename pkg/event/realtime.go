package event

import (
	"encoding/json"
	"time"
)

// Topics pushed by the backend over the realtime channel.
const (
	TopicTableStatusChanged   = "table_status_changed"
	TopicKitchenNewOrder      = "kitchen_new_order"
	TopicProductStatusChanged = "product_status_changed"
	TopicNotification         = "notification"
)

// SubjectPrefix namespaces realtime topics when they travel over NATS.
const SubjectPrefix = "comanda."

// Topics lists every topic a terminal subscribes to.
var Topics = []string{
	TopicTableStatusChanged,
	TopicKitchenNewOrder,
	TopicProductStatusChanged,
	TopicNotification,
}

// Subject returns the NATS subject carrying topic.
func Subject(topic string) string {
	return SubjectPrefix + topic
}

// Envelope is the frame every realtime message is wrapped in.
type Envelope struct {
	Topic      string          `json:"topic"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEnvelope marshals payload into an envelope for topic.
func NewEnvelope(topic string, payload interface{}, at time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Topic: topic, Payload: raw, OccurredAt: at}, nil
}

// TableStatusChangedEvent reports an authoritative table status change.
type TableStatusChangedEvent struct {
	TableID        string `json:"table_id"`
	TableNumber    string `json:"table_number"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	OrderID        string `json:"order_id,omitempty"`
}

// KitchenNewOrderEvent is emitted when a pending batch is dispatched.
type KitchenNewOrderEvent struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	TableLabel  string `json:"table_label,omitempty"`
	BatchNumber int    `json:"batch_number"`
	WaiterName  string `json:"waiter_name,omitempty"`
}

// ProductStatusChangedEvent reports stock or availability changes.
type ProductStatusChangedEvent struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Stock     int    `json:"stock"`
}

// Notification types understood by the terminal.
const (
	NotificationInfo    = "info"
	NotificationSuccess = "success"
	NotificationWarning = "warning"
	NotificationError   = "error"
)

// NotificationEvent is a user-facing toast pushed by the backend.
type NotificationEvent struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	ActionURL string    `json:"actionUrl,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
