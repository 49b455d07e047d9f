package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StripeOptions configures the Stripe-backed Processor.
type StripeOptions struct {
	SecretKey         string
	APIURL            string
	Timeout           time.Duration
	MaxNetworkRetries int64
	// FrontendURL is the base for onboarding return/refresh pages.
	FrontendURL string
}

// StripeProcessor implements Processor on top of a per-instance Stripe client.
type StripeProcessor struct {
	sc          *client.API
	timeout     time.Duration
	frontendURL string
}

// NewStripeProcessor builds a client bound to its own backends; nothing is
// written to stripe-go's package-level state. A nil httpClient gets one with
// opts.Timeout.
func NewStripeProcessor(opts StripeOptions, httpClient *http.Client, log *zap.SugaredLogger) *StripeProcessor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	stripeLog := log.Desugar().WithOptions(zap.IncreaseLevel(zapcore.WarnLevel)).Sugar()
	backendConfig := func() *stripe.BackendConfig {
		cfg := &stripe.BackendConfig{
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripe.Int64(opts.MaxNetworkRetries),
			LeveledLogger:     stripeLog,
		}
		if opts.APIURL != "" {
			cfg.URL = stripe.String(opts.APIURL)
		}
		return cfg
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig()),
	}
	return &StripeProcessor{
		sc:          client.New(opts.SecretKey, backends),
		timeout:     opts.Timeout,
		frontendURL: opts.FrontendURL,
	}
}

func (p *StripeProcessor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// CreateCheckoutSession opens a hosted single-item payment page.
func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail: stripe.String(req.CustomerEmail),
		SuccessURL:    stripe.String(req.SuccessURL),
		CancelURL:     stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ItemName),
					},
					UnitAmount: stripe.Int64(req.UnitAmount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	params.Context = ctx
	if req.TransferGroup != "" {
		params.PaymentIntentData.TransferGroup = stripe.String(req.TransferGroup)
	}
	if req.Destination != "" {
		params.PaymentIntentData.ApplicationFeeAmount = stripe.Int64(req.ApplicationFee)
		params.PaymentIntentData.TransferData = &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
			Destination: stripe.String(req.Destination),
		}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := p.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	if s.URL == "" {
		return nil, ErrNoRedirectURL
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// CreateTransfer moves funds to a connected account. Stripe collapses
// requests sharing an idempotency key into the first one.
func (p *StripeProcessor) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.Destination),
	}
	params.Context = ctx
	if req.TransferGroup != "" {
		params.TransferGroup = stripe.String(req.TransferGroup)
	}
	if req.SourceTransaction != "" {
		params.SourceTransaction = stripe.String(req.SourceTransaction)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	t, err := p.sc.Transfers.New(params)
	if err != nil {
		return nil, fmt.Errorf("create transfer: %w", err)
	}
	return &Transfer{ID: t.ID, Amount: t.Amount}, nil
}

// ChargeForPaymentIntent returns the id of the latest charge on a payment intent.
func (p *StripeProcessor) ChargeForPaymentIntent(ctx context.Context, paymentIntentID string) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.sc.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return "", fmt.Errorf("get payment intent: %w", err)
	}
	if pi.LatestCharge == nil || pi.LatestCharge.ID == "" {
		return "", fmt.Errorf("%w: %s", ErrNoCharge, paymentIntentID)
	}
	return pi.LatestCharge.ID, nil
}

// CreateConnectedAccount opens an Express account for a seller.
func (p *StripeProcessor) CreateConnectedAccount(ctx context.Context, userID uint64, email string) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	uid := strconv.FormatUint(userID, 10)
	params := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx
	params.SetIdempotencyKey("seller-account-" + uid)
	params.AddMetadata("userId", uid)

	acct, err := p.sc.Accounts.New(params)
	if err != nil {
		return "", fmt.Errorf("create connected account: %w", err)
	}
	return acct.ID, nil
}

// CreateOnboardingLink returns a one-time hosted onboarding URL.
func (p *StripeProcessor) CreateOnboardingLink(ctx context.Context, accountID string) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(p.frontendURL + "/refresh/" + accountID),
		ReturnURL:  stripe.String(p.frontendURL + "/return/" + accountID),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := p.sc.AccountLinks.New(params)
	if err != nil {
		return "", fmt.Errorf("create account link: %w", err)
	}
	if link.URL == "" {
		return "", ErrNoRedirectURL
	}
	return link.URL, nil
}

// CreateDashboardLink returns a login link to the Express dashboard.
func (p *StripeProcessor) CreateDashboardLink(ctx context.Context, accountID string) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	params := &stripe.LoginLinkParams{Account: stripe.String(accountID)}
	params.Context = ctx

	link, err := p.sc.LoginLinks.New(params)
	if err != nil {
		return "", fmt.Errorf("create login link: %w", err)
	}
	if link.URL == "" {
		return "", ErrNoRedirectURL
	}
	return link.URL, nil
}

// GetBalance reads the platform account balance.
func (p *StripeProcessor) GetBalance(ctx context.Context) (*Balance, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	params := &stripe.BalanceParams{}
	params.Context = ctx

	b, err := p.sc.Balance.Get(params)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	out := &Balance{FetchedAt: time.Now().UTC()}
	for _, a := range b.Available {
		out.Available = append(out.Available, Amount{Amount: a.Amount, Currency: string(a.Currency)})
	}
	for _, a := range b.Pending {
		out.Pending = append(out.Pending, Amount{Amount: a.Amount, Currency: string(a.Currency)})
	}
	return out, nil
}

// StripeVerifier checks the Stripe-Signature header against the endpoint secret.
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// ConstructEvent verifies payload exactly as received and decodes the
// objects of the event kinds this service acts on.
func (v *StripeVerifier) ConstructEvent(payload []byte, signature string) (*Event, error) {
	if v.secret == "" || signature == "" {
		return nil, ErrInvalidSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}
	switch out.Type {
	case EventCheckoutCompleted, EventAsyncPaymentSucceeded:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: checkout session: %v", ErrMalformedEvent, err)
		}
		cc := &CheckoutCompleted{
			SessionID:   s.ID,
			AmountTotal: s.AmountTotal,
			Metadata:    s.Metadata,
			Paid: s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
				s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired,
		}
		if s.PaymentIntent != nil {
			cc.PaymentIntentID = s.PaymentIntent.ID
		}
		out.Checkout = cc
	case EventAccountUpdated:
		var a stripe.Account
		if err := json.Unmarshal(ev.Data.Raw, &a); err != nil {
			return nil, fmt.Errorf("%w: account: %v", ErrMalformedEvent, err)
		}
		out.Account = &AccountUpdated{
			AccountID:        a.ID,
			DetailsSubmitted: a.DetailsSubmitted,
			ChargesEnabled:   a.ChargesEnabled,
		}
	}
	return out, nil
}
