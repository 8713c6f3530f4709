package fanout

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iliyamo/live-room-interactions/internal/queue"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second
	// pingPeriod must be shorter than the read deadline the handler sets.
	pingPeriod = 50 * time.Second
	// sendBuffer is the per-subscriber outbound queue; subscribers that
	// fall further behind are dropped rather than allowed to block the
	// room.
	sendBuffer = 64
)

// Envelope is the wire frame delivered to websocket subscribers.  Exactly
// one of the payload fields is set, matching Type.
type Envelope struct {
	Type     string              `json:"type"` // "row", "cue" or "snapshot"
	Row      *queue.RowEvent     `json:"row,omitempty"`
	Cue      *Cue                `json:"cue,omitempty"`
	Snapshot []queue.RequestRow  `json:"snapshot,omitempty"`
}

// Subscriber is one websocket client attached to a room.
type Subscriber struct {
	UserID uint64

	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

// Send queues an already-marshalled frame.  It never blocks; a full buffer
// closes the subscriber because a client that cannot keep up will
// reconcile via the one-shot pull on reconnect anyway.
func (s *Subscriber) Send(frame []byte) bool {
	select {
	case s.send <- frame:
		return true
	default:
		s.close()
		return false
	}
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// Done is closed when the subscriber is finished.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// writePump drains the send queue onto the websocket connection.  It is the
// connection's only writer; pings go through it too.
func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.close()
				return
			}
		}
	}
}

// Hub fans both feeds out to the websocket subscribers of each room.  All
// coordination between clients happens through the durable store and the
// two channels; the hub only forwards, it owns no domain state.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uint64]map[*Subscriber]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[uint64]map[*Subscriber]struct{})}
}

// Register attaches a websocket connection to a room and starts its write
// pump.  The caller keeps reading the connection to detect disconnects and
// must call Unregister when done.
func (h *Hub) Register(roomID uint64, userID uint64, conn *websocket.Conn) *Subscriber {
	sub := &Subscriber{
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[*Subscriber]struct{})
		h.rooms[roomID] = room
	}
	room[sub] = struct{}{}
	h.mu.Unlock()
	go sub.writePump()
	return sub
}

// Unregister detaches a subscriber from a room.
func (h *Hub) Unregister(roomID uint64, sub *Subscriber) {
	h.mu.Lock()
	if room, ok := h.rooms[roomID]; ok {
		delete(room, sub)
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Rooms returns the ids of rooms that currently have subscribers.
func (h *Hub) Rooms() []uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]uint64, 0, len(h.rooms))
	for id := range h.rooms {
		out = append(out, id)
	}
	return out
}

// ForwardRow delivers a change-feed event to the room's subscribers.
func (h *Hub) ForwardRow(ev queue.RowEvent) {
	h.broadcast(ev.RoomID, Envelope{Type: "row", Row: &ev})
}

// ForwardCue delivers an ephemeral cue to the room's subscribers.  Cues
// addressed to one participant are only sent to that participant's
// connections; the suspense delay for response_ready has already elapsed
// by the time the cue is published.
func (h *Hub) ForwardCue(cue Cue) {
	if cue.ForParticipantID != 0 {
		h.broadcastTo(cue.RoomID, cue.ForParticipantID, Envelope{Type: "cue", Cue: &cue})
		return
	}
	h.broadcast(cue.RoomID, Envelope{Type: "cue", Cue: &cue})
}

// SendSnapshot delivers a pending-queue snapshot to a single subscriber,
// typically right after it connects.
func (h *Hub) SendSnapshot(sub *Subscriber, rows []queue.RequestRow) {
	frame, err := json.Marshal(Envelope{Type: "snapshot", Snapshot: rows})
	if err != nil {
		log.Printf("fanout: marshal snapshot failed: %v", err)
		return
	}
	sub.Send(frame)
}

func (h *Hub) broadcast(roomID uint64, env Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		log.Printf("fanout: marshal envelope failed: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.rooms[roomID] {
		sub.Send(frame)
	}
}

func (h *Hub) broadcastTo(roomID, userID uint64, env Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		log.Printf("fanout: marshal envelope failed: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.rooms[roomID] {
		if sub.UserID == userID {
			sub.Send(frame)
		}
	}
}
