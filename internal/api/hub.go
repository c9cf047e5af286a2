package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/pipeline"
	"github.com/kestrel-optics/pursuit.camera/internal/timeutil"
)

const (
	// writeWait bounds a single websocket write; clients slower than
	// this are disconnected rather than allowed to stall the hub.
	writeWait = 10 * time.Second

	// DefaultStreamInterval is the snapshot broadcast cadence. The
	// stream is for dashboards, not control, so it runs well below
	// the tick rate.
	DefaultStreamInterval = 250 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamMessage is one websocket frame: the engine snapshot plus the
// live target list.
type StreamMessage struct {
	Type         string            `json:"type"`
	ServerTimeMs int64             `json:"server_time_ms"`
	Engine       pipeline.Snapshot `json:"engine"`
	Targets      []pursuit.Target  `json:"targets"`
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub fans engine snapshots out to websocket subscribers. Writes are
// serialized per connection; a failed or overdue write drops that
// subscriber only.
type Hub struct {
	engine *pipeline.Engine
	clock  timeutil.Clock

	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	nextID      atomic.Uint64
}

func NewHub(engine *pipeline.Engine, clock timeutil.Clock) *Hub {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Hub{
		engine:      engine,
		clock:       clock,
		subscribers: make(map[uint64]*subscriber),
	}
}

// HandleWS upgrades the request, sends one immediate snapshot, then
// keeps the connection subscribed until the client goes away.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed: %v", err)
		return
	}

	id := h.nextID.Add(1)
	sub := &subscriber{conn: conn}

	h.mu.Lock()
	h.subscribers[id] = sub
	count := len(h.subscribers)
	h.mu.Unlock()
	log.Printf("Websocket client %d connected (%d total)", id, count)

	if err := h.send(sub, h.message()); err != nil {
		h.disconnect(id)
		return
	}

	// Read loop exists only to observe the close; inbound frames are
	// discarded.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.disconnect(id)
				return
			}
		}
	}()
}

// Run broadcasts snapshots at the given interval until ctx is done.
// A non-positive interval uses the default cadence.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultStreamInterval
	}
	ticker := h.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C():
			h.Broadcast()
		}
	}
}

// Broadcast sends the current snapshot to every subscriber, dropping
// the ones whose write fails.
func (h *Hub) Broadcast() {
	h.mu.Lock()
	if len(h.subscribers) == 0 {
		h.mu.Unlock()
		return
	}
	subs := make(map[uint64]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	h.mu.Unlock()

	data, err := json.Marshal(h.message())
	if err != nil {
		log.Printf("Failed to marshal stream message: %v", err)
		return
	}

	for id, sub := range subs {
		sub.mu.Lock()
		sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := sub.conn.WriteMessage(websocket.TextMessage, data)
		sub.mu.Unlock()
		if err != nil {
			log.Printf("Dropping websocket client %d: %v", id, err)
			h.disconnect(id)
		}
	}
}

// Subscribers returns the live connection count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) message() StreamMessage {
	return StreamMessage{
		Type:         "snapshot",
		ServerTimeMs: h.clock.Now().UnixMilli(),
		Engine:       h.engine.Snapshot(),
		Targets:      h.engine.VisibleTargets(),
	}
}

func (h *Hub) send(sub *subscriber, msg StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return sub.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Hub) disconnect(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
	if ok {
		sub.conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[uint64]*subscriber)
	h.mu.Unlock()
	for _, sub := range subs {
		sub.conn.Close()
	}
}
