package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Request statuses.  ANSWERED, DECLINED and EXPIRED are terminal; a request
// never regresses out of a terminal state.  Which edges are legal depends on
// the request kind and is enforced by the ledger package.
const (
	StatusPending  = "PENDING"
	StatusServed   = "SERVED"
	StatusAccepted = "ACCEPTED"
	StatusAnswered = "ANSWERED"
	StatusDeclined = "DECLINED"
	StatusExpired  = "EXPIRED"
)

// Request kind discriminators as stored in requests.kind.
const (
	KindTier   = "TIER"
	KindCustom = "CUSTOM"
	KindTip    = "TIP"
	KindVote   = "VOTE"
)

// TerminalStatus reports whether the given status is terminal for every
// kind.  ACCEPTED is additionally terminal for non-servable kinds; use
// KindTerminal when the kind is known.
func TerminalStatus(status string) bool {
	switch status {
	case StatusAnswered, StatusDeclined, StatusExpired:
		return true
	}
	return false
}

// KindTerminal reports whether status is terminal for the given kind.
// Tips and votes settle at ACCEPTED: there is no serve step to follow.
func KindTerminal(kind Kind, status string) bool {
	if TerminalStatus(status) {
		return true
	}
	return kind != nil && !kind.Servable() && status == StatusAccepted
}

// Kind is the closed set of paid interaction variants.  Exactly one concrete
// type implements it per requests.kind value; the ledger switches over the
// concrete types exhaustively instead of inspecting optional fields.
type Kind interface {
	// KindName returns the discriminator stored in requests.kind.
	KindName() string
	// Servable reports whether this kind goes through the host serve
	// flow.  Tips and votes never occupy the serve slot.
	Servable() bool
}

// TierPurchase is a purchase of one named tier from the session's menu.
type TierPurchase struct {
	Tier string `json:"tier"`
}

func (TierPurchase) KindName() string { return KindTier }
func (TierPurchase) Servable() bool   { return true }

// CustomRequest is a free-form paid request (e.g. a custom dare).
type CustomRequest struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (CustomRequest) KindName() string { return KindCustom }
func (CustomRequest) Servable() bool   { return true }

// Tip is a direct monetary gift with an optional note.  Tips carry no host
// performance obligation and are accepted immediately.
type Tip struct {
	AmountCents uint32 `json:"amount_cents"`
	Note        string `json:"note"`
}

func (Tip) KindName() string { return KindTip }
func (Tip) Servable() bool   { return false }

// Vote is a paid choice in a room poll.  Like tips, votes are accepted
// immediately and only ever aggregated.
type Vote struct {
	Choice string `json:"choice"`
}

func (Vote) KindName() string { return KindVote }
func (Vote) Servable() bool   { return false }

// Request represents one paid interaction attempt as stored in the
// `requests` table.  The amount is fixed at creation and never re-derived;
// the status only ever moves forward through the state machine.
//
// Fields:
//  ID            – primary key identifier.
//  SessionID     – session the request was submitted into.
//  SubmitterID   – participant who paid for the request.
//  SubmitterName – display name snapshot taken at submission time.
//  Kind          – tagged variant (requests.kind + requests.payload JSON).
//  AmountCents   – amount charged at creation; immutable.
//  Status        – state machine position (see status constants).
//  CommandID     – client-generated uuid used to reconcile the provisional
//                  local entry with its durable echo.
//  ResponseText  – host-authored response, set on the ANSWERED transition.
//  PaymentRef    – opaque reference from the payment authorization.
//  CreatedAt     – creation timestamp; serve order is (created_at, id).
//  TerminalAt    – when the request reached a terminal status (nullable).
type Request struct {
	ID            uint64    // requests.id
	SessionID     uint64    // requests.session_id
	SubmitterID   uint64    // requests.submitter_id
	SubmitterName string    // requests.submitter_name
	Kind          Kind      // requests.kind + requests.payload
	AmountCents   uint32    // requests.amount_cents
	Status        string    // requests.status
	CommandID     string    // requests.command_id
	ResponseText  *string   // requests.response_text (nullable)
	PaymentRef    *string   // requests.payment_ref (nullable)
	CreatedAt     time.Time // requests.created_at
	TerminalAt    *time.Time // requests.terminal_at (nullable)
}

// Terminal reports whether the request has reached a terminal status for
// its kind.
func (r *Request) Terminal() bool { return KindTerminal(r.Kind, r.Status) }

// MarshalKind serializes a kind into its (discriminator, payload) pair for
// storage.
func MarshalKind(k Kind) (string, []byte, error) {
	if k == nil {
		return "", nil, fmt.Errorf("nil request kind")
	}
	payload, err := json.Marshal(k)
	if err != nil {
		return "", nil, err
	}
	return k.KindName(), payload, nil
}

// UnmarshalKind rebuilds the tagged union from the stored discriminator and
// payload.  Unknown discriminators are an error: the set of kinds is closed.
func UnmarshalKind(name string, payload []byte) (Kind, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	switch name {
	case KindTier:
		var k TierPurchase
		if err := json.Unmarshal(payload, &k); err != nil {
			return nil, err
		}
		return k, nil
	case KindCustom:
		var k CustomRequest
		if err := json.Unmarshal(payload, &k); err != nil {
			return nil, err
		}
		return k, nil
	case KindTip:
		var k Tip
		if err := json.Unmarshal(payload, &k); err != nil {
			return nil, err
		}
		return k, nil
	case KindVote:
		var k Vote
		if err := json.Unmarshal(payload, &k); err != nil {
			return nil, err
		}
		return k, nil
	}
	return nil, fmt.Errorf("unknown request kind %q", name)
}
