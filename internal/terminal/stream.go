package terminal

import (
	"context"
	"sync"

	"github.com/aquamarinepk/aqm"
)

// Stream event types.
const (
	EventNotification = "notification"
	EventInvalidate   = "invalidate"
	EventConnection   = "connection"
	EventSession      = "session"
)

const subscriberBuffer = 100

// Event is one message on the terminal feed.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Stream fans terminal events out to feed subscribers.
type Stream struct {
	logger aqm.Logger

	mu          sync.RWMutex
	subscribers map[string]chan Event
}

func NewStream(logger aqm.Logger) *Stream {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Stream{
		logger:      logger,
		subscribers: make(map[string]chan Event),
	}
}

// Publish sends evt to every subscriber. Slow subscribers miss it.
func (s *Stream) Publish(evt Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- evt:
		default:
			s.logger.Info("subscriber channel full, dropping event", "subscriber_id", id, "type", evt.Type)
		}
	}
}

func (s *Stream) Subscribe(subscriberID string) <-chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	s.subscribers[subscriberID] = ch
	s.logger.Debug("feed subscriber added", "subscriber_id", subscriberID, "total_subscribers", len(s.subscribers))
	return ch
}

func (s *Stream) Unsubscribe(subscriberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subscribers[subscriberID]; ok {
		close(ch)
		delete(s.subscribers, subscriberID)
		s.logger.Debug("feed subscriber removed", "subscriber_id", subscriberID, "total_subscribers", len(s.subscribers))
	}
}

func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

func (s *Stream) Start(ctx context.Context) error {
	return nil
}

// Stop closes every subscriber channel.
func (s *Stream) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return nil
}
