package payment

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidSignature rejects webhook deliveries that fail verification,
	// including when no secret is configured.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedEvent marks an authentic event whose content cannot be used.
	ErrMalformedEvent = errors.New("malformed payment event")
	// ErrNoRedirectURL means the processor created a session without a usable URL.
	ErrNoRedirectURL = errors.New("processor returned no redirect url")
	// ErrNoCharge means a payment intent has no charge to fund a transfer from.
	ErrNoCharge = errors.New("payment intent has no charge")
)

// Event kinds this service understands. Anything else is acknowledged and ignored.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventPaymentSucceeded      = "payment_intent.succeeded"
	EventAccountUpdated        = "account.updated"
)

// Checkout metadata keys carried from session creation to the webhook.
const (
	MetaBuyerID       = "buyerId"
	MetaBookID        = "bookId"
	MetaSellerID      = "sellerId"
	MetaCapturedPrice = "capturedPrice"
	MetaTransferGroup = "transferGroup"
)

// Processor is the contract a payment-processor integration must satisfy.
type Processor interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	ChargeForPaymentIntent(ctx context.Context, paymentIntentID string) (string, error)
	CreateConnectedAccount(ctx context.Context, userID uint64, email string) (string, error)
	CreateOnboardingLink(ctx context.Context, accountID string) (string, error)
	CreateDashboardLink(ctx context.Context, accountID string) (string, error)
	GetBalance(ctx context.Context) (*Balance, error)
}

// EventVerifier authenticates a raw webhook body and decodes it.
type EventVerifier interface {
	ConstructEvent(payload []byte, signature string) (*Event, error)
}

// CheckoutRequest describes a single-item checkout.
type CheckoutRequest struct {
	ItemName      string
	UnitAmount    int64
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	// Inline settlement: set both to have the processor take the fee and
	// route the rest at capture time.
	ApplicationFee int64
	Destination    string
	TransferGroup  string
	Metadata       map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type TransferRequest struct {
	Amount         int64
	Currency       string
	Destination    string
	TransferGroup  string
	IdempotencyKey string
	Metadata       map[string]string

	// SourceTransaction funds the transfer from the buyer's charge once it settles.
	SourceTransaction string
}

type Transfer struct {
	ID     string
	Amount int64
}

type Amount struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Balance struct {
	Available []Amount  `json:"available"`
	Pending   []Amount  `json:"pending"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Event is a verified processor notification, reduced to what this service needs.
type Event struct {
	ID       string
	Type     string
	Checkout *CheckoutCompleted
	Account  *AccountUpdated
}

type CheckoutCompleted struct {
	SessionID       string
	PaymentIntentID string
	AmountTotal     int64
	Paid            bool
	Metadata        map[string]string
}

type AccountUpdated struct {
	AccountID        string
	DetailsSubmitted bool
	ChargesEnabled   bool
}
