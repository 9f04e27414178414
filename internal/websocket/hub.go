package websocket

import (
	"encoding/json"
	"sync"
)

// SyncUpdate is pushed to a business's connected clients as a sync run
// starts and finishes.
type SyncUpdate struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
	Imported  int    `json:"imported,omitempty"`
	Updated   int    `json:"updated,omitempty"`
	Removed   int    `json:"removed,omitempty"`
	Skipped   int    `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
}

const (
	StatusStarted  = "started"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// Hub fans sync progress out to websocket clients, keyed by business so one
// business never sees another's accounts.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(businessID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[businessID] == nil {
		h.clients[businessID] = make(map[*Client]struct{})
	}
	h.clients[businessID][client] = struct{}{}
}

func (h *Hub) Unregister(businessID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[businessID] == nil {
		return
	}
	delete(h.clients[businessID], client)
	if len(h.clients[businessID]) == 0 {
		delete(h.clients, businessID)
	}
}

// BroadcastSync delivers to every client of the business. A client whose
// buffer is full is skipped; progress updates are not worth blocking for.
func (h *Hub) BroadcastSync(businessID string, update SyncUpdate) {
	payload, _ := json.Marshal(update)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[businessID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
