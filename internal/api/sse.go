package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseSessionBuffer is how many push messages an SSE connection may lag
// behind before messages are dropped. The poll channel recovers anything
// lost here.
const sseSessionBuffer = 256

// sseSession adapts one SSE connection to the transport session interface.
// Send never blocks: a full buffer drops the message.
type sseSession struct {
	ch chan any
}

func newSSESession() *sseSession {
	return &sseSession{ch: make(chan any, sseSessionBuffer)}
}

func (s *sseSession) Send(msg any) error {
	select {
	case s.ch <- msg:
	default:
		// lossy by contract
	}
	return nil
}

// StreamEvents handles GET /v1/run/events: the push channel. Every log
// write, progress change, status transition, and terminal notification is
// delivered as a server-sent event for as long as the connection lasts.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		if logger != nil {
			logger.Error("streaming not supported by response writer")
		}
		respondError(w, r, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	requestID := GetRequestID(r.Context())
	fmt.Fprintf(w, "event: connected\ndata: {\"request_id\":%q}\n\n", requestID)
	flusher.Flush()

	session := newSSESession()
	detach := h.hub.Attach(session)
	defer detach()

	if logger != nil {
		logger.Info("event stream attached")
	}

	for {
		select {
		case <-r.Context().Done():
			if logger != nil {
				logger.Info("event stream closed")
			}
			return
		case msg := <-session.ch:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
