package sim

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// wsClient wraps a connection with a write lock so the broadcast path
// and the per-connection pong reply never interleave frames.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// hub fans task events out to every subscriber of that task.
type hub struct {
	mu    sync.Mutex
	conns map[string]map[*wsClient]bool // task id -> subscribers
}

func newHub() *hub {
	return &hub{conns: make(map[string]map[*wsClient]bool)}
}

func (h *hub) add(taskID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[taskID] == nil {
		h.conns[taskID] = make(map[*wsClient]bool)
	}
	h.conns[taskID][c] = true
	log.Printf("sim: websocket connected for task %s", taskID)
}

func (h *hub) remove(taskID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs := h.conns[taskID]; subs != nil {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.conns, taskID)
		}
	}
	log.Printf("sim: websocket disconnected for task %s", taskID)
}

// broadcast sends v as JSON to every subscriber of taskID, dropping
// connections whose writes fail.
func (h *hub) broadcast(taskID string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("sim: marshal broadcast for task %s: %v", taskID, err)
		return
	}

	h.mu.Lock()
	subs := make([]*wsClient, 0, len(h.conns[taskID]))
	for c := range h.conns[taskID] {
		subs = append(subs, c)
	}
	h.mu.Unlock()

	for _, c := range subs {
		if err := c.writeText(data); err != nil {
			log.Printf("sim: dropping websocket for task %s: %v", taskID, err)
			_ = c.conn.Close()
			h.remove(taskID, c)
		}
	}
}
