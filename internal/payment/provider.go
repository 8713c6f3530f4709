// Package payment wraps the external payment collaborator and the standing
// access (entitlement) checks that gate paid submissions.  The payment
// provider itself is opaque: it either reserves an amount and returns a
// reference, or it declines.  Nothing in this package retries or settles;
// capture and settlement happen entirely on the provider side.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"
)

// ErrPaymentDeclined is returned when the provider refuses to authorize an
// amount.  It is user-facing and retryable; no state has been written when
// it is returned.
var ErrPaymentDeclined = errors.New("payment declined")

// Provider is the payment primitive used by the ledger.  Authorize must be
// atomic per (participant, amount): it either reserves funds and returns a
// reference exactly once, or reserves nothing.
type Provider interface {
	Authorize(ctx context.Context, participantID uint64, amountCents uint32) (string, error)
	// Void releases a previously authorized amount.  Used when the
	// request row could not be created after a successful authorization.
	Void(ctx context.Context, ref string) error
}

// NoopProvider authorizes everything and voids nothing.  Dev only.
type NoopProvider struct{}

func (NoopProvider) Authorize(ctx context.Context, participantID uint64, amountCents uint32) (string, error) {
	return "", nil
}

func (NoopProvider) Void(ctx context.Context, ref string) error { return nil }

// HTTPProvider talks to the hosted payment API.  Responses other than 200
// with granted=true are treated as declines; transport failures are
// returned as-is so callers can distinguish "declined" from "unreachable".
type HTTPProvider struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewHTTPProvider builds a provider for the given base URL with a bounded
// request timeout.  The token, when set, is sent as a bearer credential.
func NewHTTPProvider(baseURL, token string) *HTTPProvider {
	return &HTTPProvider{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *HTTPProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}
}

type authorizeReq struct {
	ParticipantID uint64 `json:"participant_id"`
	AmountCents   uint32 `json:"amount_cents"`
}

type authorizeResp struct {
	Granted bool   `json:"granted"`
	Ref     string `json:"ref"`
}

// Authorize reserves amountCents against the participant's payment method.
// Zero-amount authorizations short-circuit: free actions never hit the
// provider.
func (p *HTTPProvider) Authorize(ctx context.Context, participantID uint64, amountCents uint32) (string, error) {
	if amountCents == 0 {
		return "", nil
	}
	body, err := json.Marshal(authorizeReq{ParticipantID: participantID, AmountCents: amountCents})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/authorize", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	p.setHeaders(req)
	resp, err := p.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("payment: authorize: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusPaymentRequired {
		return "", ErrPaymentDeclined
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("payment: authorize: unexpected status %d", resp.StatusCode)
	}
	var out authorizeResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if !out.Granted {
		return "", ErrPaymentDeclined
	}
	return out.Ref, nil
}

// Void releases a prior authorization.  Failures are logged and returned;
// the caller treats them as non-fatal since voids are compensation only.
func (p *HTTPProvider) Void(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	body, err := json.Marshal(map[string]string{"ref": ref})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/void", bytes.NewReader(body))
	if err != nil {
		return err
	}
	p.setHeaders(req)
	resp, err := p.Client.Do(req)
	if err != nil {
		log.Printf("payment: void %s failed: %v", ref, err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		log.Printf("payment: void %s: unexpected status %d", ref, resp.StatusCode)
		return fmt.Errorf("payment: void: unexpected status %d", resp.StatusCode)
	}
	return nil
}
