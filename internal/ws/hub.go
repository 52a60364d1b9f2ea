package ws

import (
	"encoding/json"
	"log"
	"sync"

	"messenger-service/internal/models"
)

// Hub maintains the per-user delivery channels: the set of live sessions
// addressed by a user id. Multiple sessions may share one channel; pushes
// fan out to all of them.
type Hub struct {
	channels map[int]map[*Session]bool
	mu       sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{channels: make(map[int]map[*Session]bool)}
}

// Register joins a session to its bound user's delivery channel.
func (h *Hub) Register(s *Session) {
	userID := s.UserID()
	if userID == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.channels[userID]; !ok {
		h.channels[userID] = make(map[*Session]bool)
	}
	h.channels[userID][s] = true
}

// Unregister removes a session from its user's delivery channel.
func (h *Hub) Unregister(s *Session) {
	userID := s.UserID()
	if userID == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if sessions, ok := h.channels[userID]; ok {
		delete(sessions, s)
		if len(sessions) == 0 {
			delete(h.channels, userID)
		}
	}
}

// Push enqueues an event to every session in the user's channel. The
// enqueue is non-blocking; a session with a saturated buffer drops the
// event rather than stalling the caller. Returns whether at least one
// session accepted it.
func (h *Hub) Push(userID int, event models.ServerEvent) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return false
	}

	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.channels[userID]))
	for s := range h.channels[userID] {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	delivered := false
	for _, s := range sessions {
		if s.enqueue(payload) {
			delivered = true
		}
	}
	return delivered
}

// Broadcast enqueues an event to every registered session except those
// bound to exceptUserID.
func (h *Hub) Broadcast(event models.ServerEvent, exceptUserID int) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}

	h.mu.RLock()
	var sessions []*Session
	for userID, chans := range h.channels {
		if userID == exceptUserID {
			continue
		}
		for s := range chans {
			sessions = append(sessions, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.enqueue(payload)
	}
}
