package payment_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/h2non/gock"
	"github.com/richardliu001/bookmarket-service/internal/payment"
	"github.com/richardliu001/bookmarket-service/internal/payment/paymenttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

const stripeAPI = "https://api.stripe.com"

func newStripe(t *testing.T) *payment.StripeProcessor {
	t.Helper()
	httpClient := &http.Client{}
	gock.InterceptClient(httpClient)
	t.Cleanup(func() {
		gock.RestoreClient(httpClient)
		gock.Off()
	})
	return payment.NewStripeProcessor(payment.StripeOptions{
		SecretKey:   "sk_test_123",
		Timeout:     2 * time.Second,
		FrontendURL: "https://books.example.test",
	}, httpClient, zap.NewNop().Sugar())
}

func TestStripeProcessor_CreateCheckoutSession(t *testing.T) {
	tests := []struct {
		name    string
		reply   func()
		wantURL string
		wantErr error
	}{
		{
			name: "Success",
			reply: func() {
				gock.New(stripeAPI).
					Post("/v1/checkout/sessions").
					Reply(200).
					JSON(map[string]interface{}{"id": "cs_1", "object": "checkout.session", "url": "https://checkout.stripe.test/cs_1"})
			},
			wantURL: "https://checkout.stripe.test/cs_1",
		},
		{
			name: "MissingURL",
			reply: func() {
				gock.New(stripeAPI).
					Post("/v1/checkout/sessions").
					Reply(200).
					JSON(map[string]interface{}{"id": "cs_2", "object": "checkout.session"})
			},
			wantErr: payment.ErrNoRedirectURL,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newStripe(t)
			tt.reply()

			s, err := p.CreateCheckoutSession(context.Background(), payment.CheckoutRequest{
				ItemName:       "Go in Practice",
				UnitAmount:     1000,
				Currency:       "usd",
				CustomerEmail:  "buyer@example.test",
				SuccessURL:     "https://books.example.test/checkout/success",
				CancelURL:      "https://books.example.test/checkout/cancel",
				ApplicationFee: 140,
				Destination:    "acct_seller",
				Metadata:       map[string]string{payment.MetaBuyerID: "7"},
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantURL, s.URL)
			}
			assert.True(t, gock.IsDone())
		})
	}
}

func TestStripeProcessor_CreateTransfer_SendsIdempotencyKey(t *testing.T) {
	p := newStripe(t)
	gock.New(stripeAPI).
		Post("/v1/transfers").
		MatchHeader("Idempotency-Key", "settle-purchase-42").
		BodyString("source_transaction=ch_buyer_1").
		Reply(200).
		JSON(map[string]interface{}{"id": "tr_1", "object": "transfer", "amount": 860})

	tr, err := p.CreateTransfer(context.Background(), payment.TransferRequest{
		Amount:            860,
		Currency:          "usd",
		Destination:       "acct_seller",
		TransferGroup:     "purchase-7-3-1700000000",
		IdempotencyKey:    "settle-purchase-42",
		SourceTransaction: "ch_buyer_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "tr_1", tr.ID)
	assert.Equal(t, int64(860), tr.Amount)
	assert.True(t, gock.IsDone())
}

func TestStripeProcessor_ChargeForPaymentIntent(t *testing.T) {
	tests := []struct {
		name       string
		reply      map[string]interface{}
		wantCharge string
		wantErr    error
	}{
		{
			name:       "LatestCharge",
			reply:      map[string]interface{}{"id": "pi_1", "object": "payment_intent", "latest_charge": "ch_1"},
			wantCharge: "ch_1",
		},
		{
			name:    "NotCharged",
			reply:   map[string]interface{}{"id": "pi_1", "object": "payment_intent"},
			wantErr: payment.ErrNoCharge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newStripe(t)
			gock.New(stripeAPI).
				Get("/v1/payment_intents/pi_1").
				Reply(200).
				JSON(tt.reply)

			charge, err := p.ChargeForPaymentIntent(context.Background(), "pi_1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantCharge, charge)
			}
			assert.True(t, gock.IsDone())
		})
	}
}

func TestStripeProcessor_CreateTransfer_UpstreamError(t *testing.T) {
	p := newStripe(t)
	gock.New(stripeAPI).
		Post("/v1/transfers").
		Reply(400).
		JSON(map[string]interface{}{"error": map[string]interface{}{
			"type":    "invalid_request_error",
			"message": "No such destination: 'acct_missing'",
		}})

	_, err := p.CreateTransfer(context.Background(), payment.TransferRequest{
		Amount: 860, Currency: "usd", Destination: "acct_missing", IdempotencyKey: "settle-purchase-1",
	})
	require.Error(t, err)
	var stripeErr *stripe.Error
	assert.True(t, errors.As(err, &stripeErr))
}

func TestStripeProcessor_SellerLinks(t *testing.T) {
	p := newStripe(t)
	gock.New(stripeAPI).
		Post("/v1/accounts").
		Reply(200).
		JSON(map[string]interface{}{"id": "acct_new", "object": "account"})
	gock.New(stripeAPI).
		Post("/v1/account_links").
		Reply(200).
		JSON(map[string]interface{}{"object": "account_link", "url": "https://connect.stripe.test/setup/acct_new"})
	gock.New(stripeAPI).
		Post("/v1/accounts/acct_new/login_links").
		Reply(200).
		JSON(map[string]interface{}{"object": "login_link", "url": "https://connect.stripe.test/express/acct_new"})

	ctx := context.Background()
	acct, err := p.CreateConnectedAccount(ctx, 9, "seller@example.test")
	require.NoError(t, err)
	assert.Equal(t, "acct_new", acct)

	onboarding, err := p.CreateOnboardingLink(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, "https://connect.stripe.test/setup/acct_new", onboarding)

	dashboard, err := p.CreateDashboardLink(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, "https://connect.stripe.test/express/acct_new", dashboard)
	assert.True(t, gock.IsDone())
}

func TestStripeProcessor_GetBalance(t *testing.T) {
	p := newStripe(t)
	gock.New(stripeAPI).
		Get("/v1/balance").
		Reply(200).
		JSON(map[string]interface{}{
			"object":    "balance",
			"available": []map[string]interface{}{{"amount": 12000, "currency": "usd"}},
			"pending":   []map[string]interface{}{{"amount": 3000, "currency": "usd"}},
		})

	b, err := p.GetBalance(context.Background())
	require.NoError(t, err)
	require.Len(t, b.Available, 1)
	assert.Equal(t, payment.Amount{Amount: 12000, Currency: "usd"}, b.Available[0])
	require.Len(t, b.Pending, 1)
	assert.Equal(t, int64(3000), b.Pending[0].Amount)
}

func TestStripeVerifier_ConstructEvent(t *testing.T) {
	const secret = "whsec_test"
	meta := map[string]string{
		payment.MetaBuyerID:       "7",
		payment.MetaBookID:        "3",
		payment.MetaSellerID:      "2",
		payment.MetaCapturedPrice: "1000",
	}
	body := paymenttest.CheckoutCompleted("evt_1", meta, true)

	t.Run("Valid", func(t *testing.T) {
		ev, err := payment.NewStripeVerifier(secret).ConstructEvent(body, paymenttest.Sign(secret, body))
		require.NoError(t, err)
		assert.Equal(t, "evt_1", ev.ID)
		assert.Equal(t, payment.EventCheckoutCompleted, ev.Type)
		require.NotNil(t, ev.Checkout)
		assert.True(t, ev.Checkout.Paid)
		assert.Equal(t, "pi_evt_1", ev.Checkout.PaymentIntentID)
		assert.Equal(t, meta, ev.Checkout.Metadata)
	})

	t.Run("Unpaid", func(t *testing.T) {
		unpaid := paymenttest.CheckoutCompleted("evt_2", meta, false)
		ev, err := payment.NewStripeVerifier(secret).ConstructEvent(unpaid, paymenttest.Sign(secret, unpaid))
		require.NoError(t, err)
		assert.False(t, ev.Checkout.Paid)
	})

	t.Run("AccountUpdated", func(t *testing.T) {
		acct := paymenttest.AccountUpdated("evt_3", "acct_1", true, true)
		ev, err := payment.NewStripeVerifier(secret).ConstructEvent(acct, paymenttest.Sign(secret, acct))
		require.NoError(t, err)
		require.NotNil(t, ev.Account)
		assert.Equal(t, "acct_1", ev.Account.AccountID)
		assert.True(t, ev.Account.DetailsSubmitted)
	})

	rejects := []struct {
		name   string
		secret string
		body   []byte
		sig    string
	}{
		{"TamperedBody", secret, append([]byte(nil), body[:len(body)-1]...), paymenttest.Sign(secret, body)},
		{"WrongSecret", secret, body, paymenttest.Sign("whsec_other", body)},
		{"MissingSignature", secret, body, ""},
		{"SecretUnconfigured", "", body, paymenttest.Sign(secret, body)},
		{"GarbageHeader", secret, body, "t=1,v1=deadbeef"},
	}
	for _, tt := range rejects {
		t.Run(tt.name, func(t *testing.T) {
			_, err := payment.NewStripeVerifier(tt.secret).ConstructEvent(tt.body, tt.sig)
			assert.ErrorIs(t, err, payment.ErrInvalidSignature)
		})
	}
}
