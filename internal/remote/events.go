package remote

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

// wsEvent is one message pushed to /ws/events subscribers: a bus topic
// the operator dashboard cares about, and its raw JSON payload.
type wsEvent struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// eventBroadcaster fans display/telemetry events out to any number of
// /ws/events clients. Grounded on the same per-client buffered-channel
// shape as frameBroadcaster, carrying structured events instead of
// raw frames.
type eventBroadcaster struct {
	mu      sync.Mutex
	clients map[int]chan wsEvent
	nextID  int
}

func newEventBroadcaster() *eventBroadcaster {
	return &eventBroadcaster{clients: make(map[int]chan wsEvent)}
}

func (b *eventBroadcaster) subscribe() (int, <-chan wsEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan wsEvent, 16)
	b.clients[id] = ch
	return id, ch
}

func (b *eventBroadcaster) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
	}
}

func (b *eventBroadcaster) publish(ev wsEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// handleWSEvents upgrades one request and streams display/telemetry
// events to it until the client disconnects. The connection is
// send-only from the server's side; any inbound frame is read and
// discarded, matching the teacher's pattern of a dedicated read loop
// to notice client-initiated close.
func (s *Server) handleWSEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("ws upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	id, ch := s.events.subscribe()
	defer s.events.unsubscribe(id)

	s.logger.Debug("ws/events client connected", "remote", r.RemoteAddr)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	initial := wsEvent{Topic: "status", Payload: mustMarshal(s.snapshot.Snapshot())}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(initial); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("ws/events write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
