package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/richardliu001/bookmarket-service/internal/config"
	"github.com/richardliu001/bookmarket-service/internal/metrics"
	"github.com/richardliu001/bookmarket-service/internal/model"
	"github.com/richardliu001/bookmarket-service/internal/payment"
	"github.com/richardliu001/bookmarket-service/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WebhookService consumes signed processor events. It records purchases,
// settles seller payouts and tracks seller onboarding.
type WebhookService struct {
	repo     repo.RepositoryInterface
	proc     payment.Processor
	verifier payment.EventVerifier
	opts     SettlementOptions
	metrics  *metrics.Metrics
	log      *zap.SugaredLogger
}

// settlementTimeout is used when no payments timeout is configured.
const settlementTimeout = 15 * time.Second

func NewWebhookService(r repo.RepositoryInterface, p payment.Processor, v payment.EventVerifier, opts SettlementOptions, m *metrics.Metrics, logger *zap.SugaredLogger) *WebhookService {
	if opts.Timeout <= 0 {
		opts.Timeout = settlementTimeout
	}
	return &WebhookService{repo: r, proc: p, verifier: v, opts: opts, metrics: m, log: logger}
}

// checkoutOrder is the metadata captured at checkout and echoed back by the
// processor on completion.
type checkoutOrder struct {
	BuyerID       uint64
	BookID        uint64
	SellerID      uint64
	CapturedPrice int64
	TransferGroup string

	// PaymentIntentID comes from the session itself, not its metadata.
	PaymentIntentID string
}

type purchaseRecorded struct {
	PurchaseID    uint64          `json:"purchase_id"`
	BuyerID       uint64          `json:"buyer_id"`
	BookID        uint64          `json:"book_id"`
	SellerID      uint64          `json:"seller_id,omitempty"`
	PriceCents    int64           `json:"price_cents"`
	Price         decimal.Decimal `json:"price"`
	Settlement    int64           `json:"settlement"`
	Fee           int64           `json:"fee"`
	Currency      string          `json:"currency"`
	Strategy      string          `json:"strategy"`
	PaymentID     string          `json:"payment_id"`
	TransferGroup string          `json:"transfer_group,omitempty"`
	EventID       string          `json:"event_id"`
}

type settlementRecord struct {
	PurchaseID        uint64 `json:"purchase_id"`
	BuyerID           uint64 `json:"buyer_id"`
	BookID            uint64 `json:"book_id"`
	SellerID          uint64 `json:"seller_id,omitempty"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	Destination       string `json:"destination,omitempty"`
	TransferGroup     string `json:"transfer_group,omitempty"`
	IdempotencyKey    string `json:"idempotency_key"`
	TransferID        string `json:"transfer_id,omitempty"`
	SourceTransaction string `json:"source_transaction,omitempty"`
	EventID           string `json:"event_id"`
	Error             string `json:"error,omitempty"`
}

// HandleEvent verifies rawBody against signature and dispatches it. A nil
// return means the delivery may be acknowledged, including duplicates and
// event types this service ignores. Errors other than invalid signature or
// malformed payload are transient and the processor should redeliver.
func (s *WebhookService) HandleEvent(ctx context.Context, rawBody []byte, signature string) error {
	ev, err := s.verifier.ConstructEvent(rawBody, signature)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			s.metrics.SignatureFailures.Inc()
			s.log.Warnw("webhook signature rejected", "error", err)
		}
		return err
	}
	s.metrics.WebhookEvents.WithLabelValues(ev.Type).Inc()

	switch ev.Type {
	case payment.EventCheckoutCompleted, payment.EventAsyncPaymentSucceeded:
		return s.handleCheckoutCompleted(ctx, ev)
	case payment.EventAccountUpdated:
		return s.handleAccountUpdated(ctx, ev)
	default:
		s.log.Debugw("ignoring webhook event", "event_id", ev.ID, "type", ev.Type)
		return nil
	}
}

func (s *WebhookService) handleCheckoutCompleted(ctx context.Context, ev *payment.Event) error {
	cc := ev.Checkout
	if cc == nil {
		return fmt.Errorf("%w: %s without checkout session", ErrMalformedEvent, ev.Type)
	}
	if !cc.Paid {
		// async methods complete later with checkout.session.async_payment_succeeded
		s.log.Infow("checkout completed without payment, waiting",
			"event_id", ev.ID, "session_id", cc.SessionID)
		return nil
	}
	order, err := parseCheckoutMetadata(cc.Metadata)
	if err != nil {
		s.log.Warnw("malformed checkout metadata", "event_id", ev.ID, "session_id", cc.SessionID, "error", err)
		return err
	}

	order.PaymentIntentID = cc.PaymentIntentID
	paymentID := cc.PaymentIntentID
	if paymentID == "" {
		paymentID = cc.SessionID
	}
	split, err := payment.SplitAmount(order.CapturedPrice, s.opts.FeeRate)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var (
		recorded  *model.Purchase
		duplicate bool
	)
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.repo.RecordPurchase(ctx, tx, &model.Purchase{
			BuyerID:       order.BuyerID,
			BookID:        order.BookID,
			PriceCents:    order.CapturedPrice,
			PaymentStatus: true,
			PaymentID:     paymentID,
		})
		if errors.Is(err, repo.ErrAlreadyExists) {
			recorded, duplicate = p, true
			return nil
		}
		if err != nil {
			return err
		}
		recorded = p

		payload, _ := json.Marshal(purchaseRecorded{
			PurchaseID:    p.ID,
			BuyerID:       p.BuyerID,
			BookID:        p.BookID,
			SellerID:      order.SellerID,
			PriceCents:    p.PriceCents,
			Price:         payment.MinorToMajor(p.PriceCents),
			Settlement:    split.Settlement,
			Fee:           split.Fee,
			Currency:      s.opts.Currency,
			Strategy:      s.opts.Strategy,
			PaymentID:     paymentID,
			TransferGroup: order.TransferGroup,
			EventID:       ev.ID,
		})
		return s.repo.CreateOutboxEvent(ctx, tx, &model.OutboxEvent{
			Aggregate:   "purchase",
			AggregateID: p.ID,
			EventType:   model.EventPurchaseRecorded,
			Payload:     string(payload),
		})
	})
	if err != nil {
		s.log.Errorw("record purchase",
			"event_id", ev.ID, "buyer_id", order.BuyerID, "book_id", order.BookID, "error", err)
		return fmt.Errorf("record purchase: %w", err)
	}
	if duplicate {
		s.metrics.DuplicateDeliveries.Inc()
		s.log.Infow("purchase already recorded, acknowledging redelivery",
			"event_id", ev.ID, "purchase_id", recorded.ID, "buyer_id", order.BuyerID, "book_id", order.BookID)
		return nil
	}
	s.metrics.PurchasesRecorded.Inc()
	s.log.Infow("purchase recorded",
		"event_id", ev.ID, "purchase_id", recorded.ID, "buyer_id", recorded.BuyerID,
		"book_id", recorded.BookID, "amount", recorded.PriceCents)

	if s.opts.Strategy == config.SettlementTransfer {
		// the purchase is committed; settlement outlives the inbound request
		s.settle(context.WithoutCancel(ctx), recorded, order, split.Settlement, ev.ID)
	}
	return nil
}

// settle transfers the seller's share of a committed purchase. Failures are
// reported through the log and the outbox; they never undo the purchase.
func (s *WebhookService) settle(ctx context.Context, p *model.Purchase, order checkoutOrder, amount int64, eventID string) {
	group := order.TransferGroup
	if group == "" {
		group = TransferGroup(p.BuyerID, p.BookID, p.CreatedAt)
	}
	rec := settlementRecord{
		PurchaseID:     p.ID,
		BuyerID:        p.BuyerID,
		BookID:         p.BookID,
		SellerID:       order.SellerID,
		Amount:         amount,
		Currency:       s.opts.Currency,
		TransferGroup:  group,
		IdempotencyKey: p.SettlementKey(),
		EventID:        eventID,
	}
	if amount <= 0 {
		s.log.Infow("nothing to settle", "purchase_id", p.ID, "amount", amount)
		return
	}

	seller, err := s.repo.GetSellerByID(ctx, order.SellerID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.settlementFailed(ctx, rec, ErrSellerNotFound)
		return
	case err != nil:
		s.settlementFailed(ctx, rec, err)
		return
	case !seller.HasPayoutAccount():
		s.settlementFailed(ctx, rec, ErrPayoutNotConfigured)
		return
	}
	rec.Destination = seller.PayoutAccountID

	tctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	if order.PaymentIntentID != "" {
		charge, err := s.proc.ChargeForPaymentIntent(tctx, order.PaymentIntentID)
		if err != nil {
			s.settlementFailed(ctx, rec, fmt.Errorf("resolve charge: %w", err))
			return
		}
		rec.SourceTransaction = charge
	}
	t, err := s.proc.CreateTransfer(tctx, payment.TransferRequest{
		Amount:            rec.Amount,
		Currency:          rec.Currency,
		Destination:       rec.Destination,
		TransferGroup:     rec.TransferGroup,
		IdempotencyKey:    rec.IdempotencyKey,
		SourceTransaction: rec.SourceTransaction,
		Metadata: map[string]string{
			"purchaseId":        strconv.FormatUint(p.ID, 10),
			payment.MetaBuyerID: strconv.FormatUint(p.BuyerID, 10),
			payment.MetaBookID:  strconv.FormatUint(p.BookID, 10),
		},
	})
	if err != nil {
		s.settlementFailed(ctx, rec, err)
		return
	}
	rec.TransferID = t.ID
	s.metrics.Settlements.WithLabelValues("completed").Inc()
	s.log.Infow("settlement transferred",
		"purchase_id", p.ID, "transfer_id", t.ID, "amount", rec.Amount,
		"destination", rec.Destination, "source_transaction", rec.SourceTransaction,
		"idempotency_key", rec.IdempotencyKey)
	s.writeSettlementEvent(ctx, model.EventSettlementCompleted, rec)
}

func (s *WebhookService) settlementFailed(ctx context.Context, rec settlementRecord, cause error) {
	rec.Error = cause.Error()
	s.metrics.Settlements.WithLabelValues("failed").Inc()
	s.log.Errorw("settlement failed, purchase kept for reconciliation",
		"purchase_id", rec.PurchaseID,
		"buyer_id", rec.BuyerID,
		"book_id", rec.BookID,
		"amount", rec.Amount,
		"currency", rec.Currency,
		"destination", rec.Destination,
		"idempotency_key", rec.IdempotencyKey,
		"event_id", rec.EventID,
		"error", cause)
	s.writeSettlementEvent(ctx, model.EventSettlementFailed, rec)
}

func (s *WebhookService) writeSettlementEvent(ctx context.Context, eventType string, rec settlementRecord) {
	payload, _ := json.Marshal(rec)
	err := s.repo.CreateOutboxEvent(ctx, s.repo.DB(ctx), &model.OutboxEvent{
		Aggregate:   "purchase",
		AggregateID: rec.PurchaseID,
		EventType:   eventType,
		Payload:     string(payload),
	})
	if err != nil {
		s.log.Errorw("write settlement outbox event",
			"purchase_id", rec.PurchaseID, "event_type", eventType, "error", err)
	}
}

func (s *WebhookService) handleAccountUpdated(ctx context.Context, ev *payment.Event) error {
	a := ev.Account
	if a == nil || a.AccountID == "" {
		return fmt.Errorf("%w: %s without account", ErrMalformedEvent, ev.Type)
	}
	if !a.DetailsSubmitted || !a.ChargesEnabled {
		return nil
	}
	changed, err := s.repo.MarkSellerOnboarded(ctx, a.AccountID)
	if err != nil {
		return fmt.Errorf("mark seller onboarded: %w", err)
	}
	if changed {
		s.log.Infow("seller onboarding completed", "event_id", ev.ID, "destination", a.AccountID)
	}
	return nil
}

func parseCheckoutMetadata(md map[string]string) (checkoutOrder, error) {
	var (
		o   checkoutOrder
		err error
	)
	if o.BuyerID, err = metadataID(md, payment.MetaBuyerID); err != nil {
		return o, err
	}
	if o.BookID, err = metadataID(md, payment.MetaBookID); err != nil {
		return o, err
	}
	raw, ok := md[payment.MetaCapturedPrice]
	if !ok || raw == "" {
		return o, fmt.Errorf("%w: missing %s", ErrMalformedEvent, payment.MetaCapturedPrice)
	}
	if o.CapturedPrice, err = strconv.ParseInt(raw, 10, 64); err != nil || o.CapturedPrice < 0 {
		return o, fmt.Errorf("%w: bad %s %q", ErrMalformedEvent, payment.MetaCapturedPrice, raw)
	}
	if _, ok := md[payment.MetaSellerID]; ok {
		if o.SellerID, err = metadataID(md, payment.MetaSellerID); err != nil {
			return o, err
		}
	}
	o.TransferGroup = md[payment.MetaTransferGroup]
	return o, nil
}

func metadataID(md map[string]string, key string) (uint64, error) {
	raw, ok := md[key]
	if !ok || raw == "" {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedEvent, key)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: bad %s %q", ErrMalformedEvent, key, raw)
	}
	return id, nil
}
