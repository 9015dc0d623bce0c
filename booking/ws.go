package booking

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"bulkhaul/mq"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// origins are enforced by the CORS layer
		return true
	},
}

// allDates subscribers receive updates for every date.
const allDates = "*"

type WSMessage struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Date    string `json:"date,omitempty"`
	SlotID  string `json:"slotId,omitempty"`
	OrderID string `json:"orderId,omitempty"`
}

const (
	writeWait  = 5 * time.Second
	sendBuffer = 16
)

// subscriber owns one websocket. Only its writer goroutine writes to conn.
// send is closed only after the subscriber has left the hub, under h.mu.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.send)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

func (s *subscriber) writeLoop() {
	for msg := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			// unblocks the reader in HandleWS, which unsubscribes
			s.conn.Close()
			return
		}
	}
}

// Hub fans schedule changes out to websocket subscribers keyed by date.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string][]*subscriber
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string][]*subscriber)}
}

// HandleWS subscribes the caller to ?date=YYYY-MM-DD, or every date when omitted.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	key := r.URL.Query().Get("date")
	if key == "" {
		key = allDates
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(key, sub)
	go sub.writeLoop()

	for {
		// keep the connection alive until the client disconnects
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(key, sub)
	sub.close()
}

func (h *Hub) add(key string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[key] = append(h.subscribers[key], sub)
}

func (h *Hub) remove(key string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.subscribers[key]
	kept := make([]*subscriber, 0, len(conns))
	for _, c := range conns {
		if c != sub {
			kept = append(kept, c)
		}
	}
	h.subscribers[key] = kept
}

// Publish forwards slot events; order-only events carry no date and are skipped.
func (h *Hub) Publish(e mq.Event) {
	if e.Date == "" {
		return
	}
	data, err := json.Marshal(WSMessage{Type: "update", Event: e.Type, Date: e.Date, SlotID: e.SlotID, OrderID: e.OrderID})
	if err != nil {
		return
	}
	h.broadcast(e.Date, data)
	h.broadcast(allDates, data)
}

// broadcast never blocks on a client.
func (h *Hub) broadcast(key string, val []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.subscribers[key]
	kept := conns[:0]
	for _, sub := range conns {
		select {
		case sub.send <- val:
			kept = append(kept, sub)
		default:
			log.Printf("[WS] dropping slow subscriber on %s", key)
			sub.close()
		}
	}
	h.subscribers[key] = kept
}

// Subscribers reports how many connections watch key.
func (h *Hub) Subscribers(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[key])
}
