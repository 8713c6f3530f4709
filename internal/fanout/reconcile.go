package fanout

import (
	"sort"
	"sync"

	"github.com/iliyamo/live-room-interactions/internal/model"
)

// WorkingQueue is a client's reconciled view of a session's pending
// requests.  The one-shot pull, the change-feed and the cue bus can all
// eventually describe the same row, so merge-by-id is the only correctness
// mechanism: a request appears at most once no matter how many channels
// delivered it or how often.
//
// A locally-issued command may add a provisional entry tagged with its
// command uuid before the durable store has echoed the row.  The echo for
// the same command supersedes and clears the provisional entry, which
// preserves optimistic responsiveness without double-counting.
type WorkingQueue struct {
	mu          sync.Mutex
	byID        map[uint64]model.Request
	provisional map[string]model.Request // keyed by command id, no durable id yet
}

// NewWorkingQueue returns an empty queue.
func NewWorkingQueue() *WorkingQueue {
	return &WorkingQueue{
		byID:        make(map[uint64]model.Request),
		provisional: make(map[string]model.Request),
	}
}

// AddProvisional records a locally-issued submission before its durable
// echo arrives.  Re-adding the same command id replaces the placeholder.
func (q *WorkingQueue) AddProvisional(commandID string, req model.Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.provisional[commandID] = req
}

// Merge folds durable rows into the view.  Duplicates collapse by request
// id, keeping the newer row (terminal beats live, higher ids of the same
// status win nothing: per-row monotonicity makes any later echo at least as
// advanced).  A merged row whose command id matches a provisional entry
// clears that entry.
func (q *WorkingQueue) Merge(reqs ...model.Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, req := range reqs {
		if req.CommandID != "" {
			delete(q.provisional, req.CommandID)
		}
		existing, ok := q.byID[req.ID]
		if ok && model.TerminalStatus(existing.Status) && !model.TerminalStatus(req.Status) {
			// Stale redelivery of a pre-terminal state; the terminal
			// row already won.
			continue
		}
		q.byID[req.ID] = req
	}
}

// Pending returns the visible pending entries in creation order, durable
// rows first, then provisional placeholders in insertion-agnostic order by
// command id.  Every request id appears at most once.
func (q *WorkingQueue) Pending() []model.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.Request, 0, len(q.byID)+len(q.provisional))
	for _, req := range q.byID {
		if req.Status == model.StatusPending {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	commands := make([]string, 0, len(q.provisional))
	for id := range q.provisional {
		commands = append(commands, id)
	}
	sort.Strings(commands)
	for _, id := range commands {
		out = append(out, q.provisional[id])
	}
	return out
}

// Get returns the reconciled row for a request id.
func (q *WorkingQueue) Get(id uint64) (model.Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	req, ok := q.byID[id]
	return req, ok
}

// Len returns the number of durable rows held (any status).
func (q *WorkingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byID)
}
