package fanout

import (
	"context"
	"log"
	"time"

	"github.com/iliyamo/live-room-interactions/internal/model"
	"github.com/iliyamo/live-room-interactions/internal/queue"
)

// SnapshotSource pulls the current pending requests of a room's active
// session straight from the durable store.
type SnapshotSource interface {
	PendingByRoom(ctx context.Context, roomID uint64) ([]model.Request, error)
}

// Poller is the degraded-mode fallback: when the broker or the cue bus is
// unreachable, subscribed clients would otherwise see nothing new until
// they reconnect.  The poller re-pulls the pending set for every room with
// subscribers and pushes it as a snapshot frame.  Requests are never lost
// in degraded mode, only delayed, because the durable store stays
// authoritative.
type Poller struct {
	hub      *Hub
	source   SnapshotSource
	interval time.Duration
}

// NewPoller builds a poller over the given hub and store.
func NewPoller(hub *Hub, source SnapshotSource, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Poller{hub: hub, source: source, interval: interval}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	for _, roomID := range p.hub.Rooms() {
		reqs, err := p.source.PendingByRoom(ctx, roomID)
		if err != nil {
			log.Printf("fanout: poll room %d failed: %v", roomID, err)
			continue
		}
		rows := make([]queue.RequestRow, 0, len(reqs))
		for i := range reqs {
			ev := queue.RequestEvent(queue.OpUpdate, roomID, &reqs[i])
			rows = append(rows, *ev.Request)
		}
		p.hub.broadcast(roomID, Envelope{Type: "snapshot", Snapshot: rows})
	}
}
