// Package transport carries run output to observing sessions over a dual
// push+poll channel. Push delivery is best effort; the poll channel plus the
// terminal notification are the correctness backstop.
package transport

import (
	"sync"

	"github.com/lei/pipehost/internal/models"
)

// Message type discriminators (wire format).
const (
	TypeLogBatch    = "log_batch"
	TypeProgress    = "progress"
	TypeStatus      = "status"
	TypeRunFinished = "run_finished"
	TypeResultReady = "result_ready"
)

// LogPush is the best-effort push form of a log write.
type LogPush struct {
	Type    string           `json:"type"`
	Content string           `json:"content"`
	Status  models.RunStatus `json:"status"`
}

// LogBatch is the poll response: the buffer suffix from the requested
// offset plus the new total length.
type LogBatch struct {
	Type      string           `json:"type"`
	Content   string           `json:"content"`
	NewOffset int              `json:"new_offset"`
	Status    models.RunStatus `json:"status"`
}

// ProgressUpdate pushes a progress snapshot as steps change.
type ProgressUpdate struct {
	Type     string                  `json:"type"`
	Progress models.ProgressSnapshot `json:"progress"`
}

// StatusUpdate pushes a run status transition.
type StatusUpdate struct {
	Type    string           `json:"type"`
	Status  models.RunStatus `json:"status"`
	Message string           `json:"message"`
}

// RunFinished is the guaranteed last word of a run: the terminal status and
// the complete log buffer, independent of whether earlier pushes were lost.
type RunFinished struct {
	Type   string           `json:"type"`
	Status models.RunStatus `json:"status"`
	Logs   string           `json:"logs"`
}

// ResultReady announces the packaged result payload.
type ResultReady struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Data string `json:"data"`
}

// Session is one attached observer. Send must not block; implementations
// drop messages they cannot accept.
type Session interface {
	Send(msg any) error
}

// Hub fans out push messages to every attached session. Send errors are
// swallowed: a failed push never affects the run.
type Hub struct {
	mu       sync.Mutex
	sessions map[Session]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[Session]struct{})}
}

// Attach registers a session and returns its detach function.
func (h *Hub) Attach(s Session) func() {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.sessions, s)
		h.mu.Unlock()
	}
}

// Broadcast sends msg to every attached session, best effort.
func (h *Hub) Broadcast(msg any) {
	h.mu.Lock()
	sessions := make([]Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		_ = s.Send(msg)
	}
}

// Count returns the number of attached sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
