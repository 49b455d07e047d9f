package service

import (
	"context"
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

// SettlementOptions are shared by checkout and webhook handling; both sides
// must agree on the fee rate and strategy.
type SettlementOptions struct {
	Currency    string
	FeeRate     decimal.Decimal
	Strategy    string
	FrontendURL string
	// Timeout bounds a post-hoc transfer after the purchase is committed.
	Timeout time.Duration
}

// CheckoutService turns a buyer's intent to buy one book into a hosted
// checkout session. It never writes a purchase.
type CheckoutService struct {
	repo    repo.RepositoryInterface
	proc    payment.Processor
	opts    SettlementOptions
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
	now     func() time.Time
}

func NewCheckoutService(r repo.RepositoryInterface, p payment.Processor, opts SettlementOptions, m *metrics.Metrics, logger *zap.SugaredLogger) *CheckoutService {
	return &CheckoutService{repo: r, proc: p, opts: opts, metrics: m, log: logger, now: time.Now}
}

// CheckoutResult is what the buyer is redirected to.
type CheckoutResult struct {
	SessionID   string
	RedirectURL string
}

// CreateCheckout validates the book and its seller, captures the price into
// the session metadata and asks the processor for a checkout session.
func (s *CheckoutService) CreateCheckout(ctx context.Context, buyer *model.User, bookID uint64) (*CheckoutResult, error) {
	if buyer == nil || buyer.ID == 0 {
		return nil, ErrUnauthorized
	}
	if buyer.Email == "" {
		return nil, validationf("buyer has no email for the receipt")
	}
	if bookID == 0 {
		return nil, validationf("bookId is required")
	}

	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	if !book.IsPublished {
		return nil, ErrBookNotFound
	}
	if book.PriceCents <= 0 {
		return nil, validationf("book %d is free and needs no checkout", book.ID)
	}

	owned, err := s.repo.HasPurchase(ctx, buyer.ID, book.ID)
	if err != nil {
		return nil, err
	}
	if owned {
		return nil, ErrAlreadyPurchased
	}

	seller, err := s.repo.GetSellerByUserID(ctx, book.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSellerNotFound
		}
		return nil, err
	}
	if !seller.HasPayoutAccount() {
		return nil, ErrPayoutNotConfigured
	}

	split, err := payment.SplitAmount(book.PriceCents, s.opts.FeeRate)
	if err != nil {
		return nil, validationf("book price: %v", err)
	}
	transferGroup := TransferGroup(buyer.ID, book.ID, s.now())

	req := payment.CheckoutRequest{
		ItemName:      book.Title,
		UnitAmount:    book.PriceCents,
		Currency:      s.opts.Currency,
		CustomerEmail: buyer.Email,
		SuccessURL:    s.opts.FrontendURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     s.opts.FrontendURL + "/checkout/cancel",
		Metadata: map[string]string{
			payment.MetaBuyerID:       strconv.FormatUint(buyer.ID, 10),
			payment.MetaBookID:        strconv.FormatUint(book.ID, 10),
			payment.MetaSellerID:      strconv.FormatUint(seller.ID, 10),
			payment.MetaCapturedPrice: strconv.FormatInt(book.PriceCents, 10),
			payment.MetaTransferGroup: transferGroup,
		},
	}
	switch s.opts.Strategy {
	case config.SettlementTransfer:
		req.TransferGroup = transferGroup
	default:
		req.ApplicationFee = split.Fee
		req.Destination = seller.PayoutAccountID
	}

	session, err := s.proc.CreateCheckoutSession(ctx, req)
	if err != nil {
		s.metrics.CheckoutSessions.WithLabelValues("failed").Inc()
		s.log.Errorw("create checkout session",
			"buyer_id", buyer.ID, "book_id", book.ID, "amount", book.PriceCents, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrCheckoutCreationFailed, err)
	}
	s.metrics.CheckoutSessions.WithLabelValues("created").Inc()
	s.log.Infow("checkout session created",
		"session_id", session.ID, "buyer_id", buyer.ID, "book_id", book.ID,
		"amount", book.PriceCents, "fee", split.Fee, "strategy", s.opts.Strategy)
	return &CheckoutResult{SessionID: session.ID, RedirectURL: session.URL}, nil
}

// TransferGroup correlates the checkout, its payment and any transfer for
// one logical purchase.
func TransferGroup(buyerID, bookID uint64, at time.Time) string {
	return fmt.Sprintf("purchase-%d-%d-%d", buyerID, bookID, at.Unix())
}
