package ledger

import (
	"errors"
	"testing"

	"github.com/iliyamo/live-room-interactions/internal/model"
)

func TestCanTransitionServableKinds(t *testing.T) {
	t.Parallel()

	for _, kind := range []model.Kind{model.TierPurchase{Tier: "gold"}, model.CustomRequest{Text: "dare"}} {
		cases := []struct {
			name string
			from string
			to   string
			want error
		}{
			{"pending to served", model.StatusPending, model.StatusServed, nil},
			{"served to accepted", model.StatusServed, model.StatusAccepted, nil},
			{"accepted to answered", model.StatusAccepted, model.StatusAnswered, nil},
			{"pending declined", model.StatusPending, model.StatusDeclined, nil},
			{"pending expired", model.StatusPending, model.StatusExpired, nil},
			{"served expired", model.StatusServed, model.StatusExpired, nil},
			{"accepted expired", model.StatusAccepted, model.StatusExpired, nil},
			{"same status is a no-op", model.StatusServed, model.StatusServed, nil},

			{"pending cannot skip to accepted", model.StatusPending, model.StatusAccepted, ErrInvalidTransition},
			{"pending cannot skip to answered", model.StatusPending, model.StatusAnswered, ErrInvalidTransition},
			{"served cannot be declined", model.StatusServed, model.StatusDeclined, ErrInvalidTransition},
			{"accepted cannot be declined", model.StatusAccepted, model.StatusDeclined, ErrInvalidTransition},
			{"no regression served to pending", model.StatusServed, model.StatusPending, ErrInvalidTransition},

			{"answered is terminal", model.StatusAnswered, model.StatusExpired, ErrAlreadyTerminal},
			{"declined is terminal", model.StatusDeclined, model.StatusServed, ErrAlreadyTerminal},
			{"expired is terminal", model.StatusExpired, model.StatusPending, ErrAlreadyTerminal},
		}
		for _, tc := range cases {
			got := CanTransition(kind, tc.from, tc.to)
			if !errors.Is(got, tc.want) && got != tc.want {
				t.Errorf("%s/%s: CanTransition(%s -> %s) = %v, want %v",
					kind.KindName(), tc.name, tc.from, tc.to, got, tc.want)
			}
		}
	}
}

func TestCanTransitionAggregatedKinds(t *testing.T) {
	t.Parallel()

	for _, kind := range []model.Kind{model.Tip{AmountCents: 500}, model.Vote{Choice: "a"}} {
		cases := []struct {
			from string
			to   string
			want error
		}{
			{model.StatusPending, model.StatusAccepted, nil},
			{model.StatusPending, model.StatusExpired, nil},
			{model.StatusPending, model.StatusServed, ErrInvalidTransition},
			{model.StatusPending, model.StatusDeclined, ErrInvalidTransition},
			{model.StatusPending, model.StatusAnswered, ErrInvalidTransition},
			{model.StatusAccepted, model.StatusAnswered, ErrAlreadyTerminal},
			{model.StatusAccepted, model.StatusExpired, ErrAlreadyTerminal},
		}
		for _, tc := range cases {
			got := CanTransition(kind, tc.from, tc.to)
			if got != tc.want {
				t.Errorf("%s: CanTransition(%s -> %s) = %v, want %v",
					kind.KindName(), tc.from, tc.to, got, tc.want)
			}
		}
	}
}

func TestTipsAndVotesTerminalAtAccepted(t *testing.T) {
	t.Parallel()

	// Accepted is terminal for tips and votes only because nothing may
	// leave it; TerminalStatus itself stays kind-agnostic.
	if model.TerminalStatus(model.StatusAccepted) {
		t.Fatal("ACCEPTED must not be globally terminal")
	}
	if err := CanTransition(model.Tip{}, model.StatusAccepted, model.StatusAnswered); err != ErrAlreadyTerminal {
		t.Fatalf("tip out of ACCEPTED = %v, want ErrAlreadyTerminal", err)
	}
}

func TestCreditCategory(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind model.Kind
		want string
	}{
		{model.TierPurchase{}, model.LedgerTier},
		{model.CustomRequest{}, model.LedgerCustom},
		{model.Tip{}, model.LedgerTip},
		{model.Vote{}, model.LedgerVote},
	}
	for _, tc := range cases {
		if got := creditCategory(tc.kind); got != tc.want {
			t.Errorf("creditCategory(%s) = %q, want %q", tc.kind.KindName(), got, tc.want)
		}
	}
}
