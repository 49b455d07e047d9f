// Package paymenttest provides an in-memory Processor and signed webhook
// payloads for tests.
package paymenttest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/richardliu001/bookmarket-service/internal/payment"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Processor records every call and collapses transfers that reuse an
// idempotency key, the way a real processor does.
type Processor struct {
	mu sync.Mutex

	SessionURL     string
	CheckoutErr    error
	TransferErr    error
	AccountErr     error
	LinkErr        error
	ChargeErr      error
	BlockTransfers bool

	Checkouts        []payment.CheckoutRequest
	TransferAttempts []payment.TransferRequest
	Transfers        map[string]payment.Transfer
	Accounts         map[uint64]string
	BalanceCalls     int
}

func NewProcessor() *Processor {
	return &Processor{
		SessionURL: "https://checkout.example.test/session",
		Transfers:  map[string]payment.Transfer{},
		Accounts:   map[uint64]string{},
	}
}

func (p *Processor) CreateCheckoutSession(_ context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CheckoutErr != nil {
		return nil, p.CheckoutErr
	}
	p.Checkouts = append(p.Checkouts, req)
	if p.SessionURL == "" {
		return nil, payment.ErrNoRedirectURL
	}
	return &payment.CheckoutSession{ID: fmt.Sprintf("cs_test_%d", len(p.Checkouts)), URL: p.SessionURL}, nil
}

func (p *Processor) CreateTransfer(ctx context.Context, req payment.TransferRequest) (*payment.Transfer, error) {
	if p.BlockTransfers {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TransferAttempts = append(p.TransferAttempts, req)
	if p.TransferErr != nil {
		return nil, p.TransferErr
	}
	if t, ok := p.Transfers[req.IdempotencyKey]; ok {
		return &t, nil
	}
	t := payment.Transfer{ID: fmt.Sprintf("tr_test_%d", len(p.Transfers)+1), Amount: req.Amount}
	p.Transfers[req.IdempotencyKey] = t
	return &t, nil
}

// ChargeForPaymentIntent maps pi_<x> to ch_<x>.
func (p *Processor) ChargeForPaymentIntent(_ context.Context, paymentIntentID string) (string, error) {
	if p.ChargeErr != nil {
		return "", p.ChargeErr
	}
	return "ch_" + strings.TrimPrefix(paymentIntentID, "pi_"), nil
}

func (p *Processor) CreateConnectedAccount(_ context.Context, userID uint64, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.AccountErr != nil {
		return "", p.AccountErr
	}
	id := fmt.Sprintf("acct_test_%d", userID)
	p.Accounts[userID] = id
	return id, nil
}

func (p *Processor) CreateOnboardingLink(_ context.Context, accountID string) (string, error) {
	if p.LinkErr != nil {
		return "", p.LinkErr
	}
	return "https://connect.example.test/onboarding/" + accountID, nil
}

func (p *Processor) CreateDashboardLink(_ context.Context, accountID string) (string, error) {
	if p.LinkErr != nil {
		return "", p.LinkErr
	}
	return "https://connect.example.test/dashboard/" + accountID, nil
}

func (p *Processor) GetBalance(context.Context) (*payment.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.BalanceCalls++
	return &payment.Balance{
		Available: []payment.Amount{{Amount: 12000, Currency: "usd"}},
		Pending:   []payment.Amount{{Amount: 3000, Currency: "usd"}},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// EffectiveTransfers counts distinct transfers after idempotency collapsing.
func (p *Processor) EffectiveTransfers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Transfers)
}

// ErrUpstream is a generic processor failure for tests.
var ErrUpstream = errors.New("processor unavailable")

// Sign returns a Stripe-Signature header for payload.
func Sign(secret string, payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	}).Header
}

// CheckoutCompleted builds a checkout.session.completed event body.
func CheckoutCompleted(eventID string, metadata map[string]string, paid bool) []byte {
	status := "paid"
	if !paid {
		status = "unpaid"
	}
	return eventBody(eventID, payment.EventCheckoutCompleted, map[string]interface{}{
		"id":             "cs_" + eventID,
		"object":         "checkout.session",
		"amount_total":   1000,
		"payment_status": status,
		"payment_intent": "pi_" + eventID,
		"metadata":       metadata,
	})
}

// AccountUpdated builds an account.updated event body.
func AccountUpdated(eventID, accountID string, detailsSubmitted, chargesEnabled bool) []byte {
	return eventBody(eventID, payment.EventAccountUpdated, map[string]interface{}{
		"id":                accountID,
		"object":            "account",
		"details_submitted": detailsSubmitted,
		"charges_enabled":   chargesEnabled,
	})
}

// Generic builds an event of any kind with an empty object.
func Generic(eventID, eventType string) []byte {
	return eventBody(eventID, eventType, map[string]interface{}{"id": "obj_" + eventID})
}

func eventBody(eventID, eventType string, object map[string]interface{}) []byte {
	body, err := json.Marshal(map[string]interface{}{
		"id":          eventID,
		"object":      "event",
		"api_version": "2023-10-16",
		"created":     time.Now().Unix(),
		"type":        eventType,
		"data":        map[string]interface{}{"object": object},
	})
	if err != nil {
		panic(err)
	}
	return body
}
