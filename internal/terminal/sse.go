package terminal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"
)

const keepaliveInterval = 30 * time.Second

// SSEHandler serves the terminal feed as Server-Sent Events.
type SSEHandler struct {
	stream *Stream
	logger aqm.Logger
}

func NewSSEHandler(stream *Stream, logger aqm.Logger) *SSEHandler {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &SSEHandler{stream: stream, logger: logger}
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	subscriberID := uuid.New().String()
	events := h.stream.Subscribe(subscriberID)
	defer h.stream.Unsubscribe(subscriberID)
	h.logger.Info("new SSE connection", "subscriber_id", subscriberID)

	fmt.Fprintf(w, ": connected\n\n")
	fmt.Fprintf(w, "retry: 2000\n\n")
	flush(w)

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE client disconnected", "subscriber_id", subscriberID)
			return

		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flush(w)

		case evt, ok := <-events:
			if !ok {
				h.logger.Info("feed closed", "subscriber_id", subscriberID)
				return
			}
			if err := sendSSEEvent(w, evt); err != nil {
				h.logger.Error("failed to encode feed event", "type", evt.Type, "error", err)
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, evt Event) error {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "event: %s\n", evt.Type)
	fmt.Fprintf(w, "data: %s\n\n", data)
	flush(w)
	return nil
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
