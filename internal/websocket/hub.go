package websocket

import (
	"context"
	"sync"
)

// Hub tracks the sessions connected to this server.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	running  sync.WaitGroup
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]*Session)}
}

func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s.client.ID] = s
	h.mu.Unlock()
	h.running.Add(1)
}

func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.client.ID]
	delete(h.sessions, s.client.ID)
	h.mu.Unlock()
	if ok {
		h.running.Done()
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// PeerCount returns how many connected clients are currently in a call.
func (h *Hub) PeerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, s := range h.sessions {
		if s.PeerID() != "" {
			n++
		}
	}
	return n
}

// CloseAll disconnects every client. Each session then runs its own
// disconnect cleanup.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.client.Close()
	}
}

// Shutdown closes every client and waits until their sessions have finished
// disconnect cleanup, or ctx is done.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.CloseAll()
	done := make(chan struct{})
	go func() {
		h.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
