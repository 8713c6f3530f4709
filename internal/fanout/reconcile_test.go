package fanout

import (
	"testing"
	"time"

	"github.com/iliyamo/live-room-interactions/internal/model"
)

func pending(id uint64, createdAt time.Time, commandID string) model.Request {
	return model.Request{
		ID:        id,
		SessionID: 1,
		Kind:      model.TierPurchase{Tier: "gold"},
		Status:    model.StatusPending,
		CommandID: commandID,
		CreatedAt: createdAt,
	}
}

func TestMergeCollapsesDuplicates(t *testing.T) {
	t.Parallel()

	q := NewWorkingQueue()
	base := time.Now().UTC()
	row := pending(1, base, "cmd-1")

	// Pull, change-feed and a redelivery all describe the same row.
	q.Merge(row)
	q.Merge(row)
	q.Merge(row, row)

	if got := q.Pending(); len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("pending = %+v, want exactly one entry", got)
	}
}

func TestMergeOrdersByCreation(t *testing.T) {
	t.Parallel()

	q := NewWorkingQueue()
	base := time.Now().UTC()
	// Delivered out of order.
	q.Merge(pending(3, base.Add(2*time.Second), ""))
	q.Merge(pending(1, base, ""))
	q.Merge(pending(2, base.Add(time.Second), ""))

	got := q.Pending()
	if len(got) != 3 {
		t.Fatalf("pending = %d entries", len(got))
	}
	for i, want := range []uint64{1, 2, 3} {
		if got[i].ID != want {
			t.Errorf("position %d holds request %d, want %d", i, got[i].ID, want)
		}
	}
}

func TestTerminalRowNeverRegresses(t *testing.T) {
	t.Parallel()

	q := NewWorkingQueue()
	base := time.Now().UTC()
	row := pending(1, base, "")
	q.Merge(row)

	declined := row
	declined.Status = model.StatusDeclined
	q.Merge(declined)

	// Stale redelivery of the pre-terminal state arrives afterwards.
	q.Merge(row)

	got, ok := q.Get(1)
	if !ok || got.Status != model.StatusDeclined {
		t.Fatalf("status = %s, want DECLINED to stick", got.Status)
	}
	if len(q.Pending()) != 0 {
		t.Error("declined request still visible as pending")
	}
}

func TestProvisionalClearedByDurableEcho(t *testing.T) {
	t.Parallel()

	q := NewWorkingQueue()
	base := time.Now().UTC()

	// Locally-issued command shows up immediately.
	local := model.Request{
		SessionID: 1,
		Kind:      model.CustomRequest{Text: "sing"},
		Status:    model.StatusPending,
		CommandID: "cmd-9",
	}
	q.AddProvisional("cmd-9", local)
	if got := q.Pending(); len(got) != 1 {
		t.Fatalf("provisional not visible: %+v", got)
	}

	// The durable echo for the same command replaces the placeholder.
	echo := pending(5, base, "cmd-9")
	q.Merge(echo)

	got := q.Pending()
	if len(got) != 1 {
		t.Fatalf("pending = %+v, want the echo only", got)
	}
	if got[0].ID != 5 {
		t.Errorf("entry = %+v, want durable id 5", got[0])
	}
}

func TestProvisionalOrderedAfterDurable(t *testing.T) {
	t.Parallel()

	q := NewWorkingQueue()
	base := time.Now().UTC()
	q.Merge(pending(1, base, ""))
	q.AddProvisional("cmd-b", model.Request{Status: model.StatusPending, CommandID: "cmd-b", Kind: model.Vote{Choice: "a"}})
	q.AddProvisional("cmd-a", model.Request{Status: model.StatusPending, CommandID: "cmd-a", Kind: model.Vote{Choice: "b"}})

	got := q.Pending()
	if len(got) != 3 {
		t.Fatalf("pending = %d entries", len(got))
	}
	if got[0].ID != 1 {
		t.Error("durable rows come first")
	}
	if got[1].CommandID != "cmd-a" || got[2].CommandID != "cmd-b" {
		t.Errorf("provisional order = %s, %s", got[1].CommandID, got[2].CommandID)
	}
}
