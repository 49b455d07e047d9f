package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/richardliu001/bookmarket-service/internal/config"
	"github.com/richardliu001/bookmarket-service/internal/metrics"
	"github.com/richardliu001/bookmarket-service/internal/model"
	"github.com/richardliu001/bookmarket-service/internal/payment"
	"github.com/richardliu001/bookmarket-service/internal/payment/paymenttest"
	"github.com/richardliu001/bookmarket-service/internal/repo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test_secret"

type fixture struct {
	db      *gorm.DB
	repo    *repo.Repository
	proc    *paymenttest.Processor
	metrics *metrics.Metrics
	opts    SettlementOptions

	buyer  model.User
	owner  model.User
	book   model.Book
	seller model.Seller

	checkout *CheckoutService
	webhook  *WebhookService
}

func newFixture(t *testing.T, strategy string) *fixture {
	t.Helper()
	return newFixtureDSN(t, strategy, "")
}

// newFixtureWithForeignKeys enforces every constraint AutoMigrate creates.
func newFixtureWithForeignKeys(t *testing.T, strategy string) *fixture {
	t.Helper()
	return newFixtureDSN(t, strategy, "&_foreign_keys=on")
}

func newFixtureDSN(t *testing.T, strategy, params string) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared%s", strings.ReplaceAll(t.Name(), "/", "_"), params)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Book{}, &model.Seller{}, &model.Purchase{}, &model.OutboxEvent{}))

	f := &fixture{
		db:      db,
		repo:    repo.NewRepository(db, nil, nil, zap.NewNop().Sugar()),
		proc:    paymenttest.NewProcessor(),
		metrics: metrics.New(nil),
		opts: SettlementOptions{
			Currency:    "usd",
			FeeRate:     decimal.RequireFromString(config.PlatformFeeRateV1),
			Strategy:    strategy,
			FrontendURL: "https://books.example.test",
		},
		buyer: model.User{Username: "reader", Email: "reader@example.test"},
		owner: model.User{Username: "author", FullName: "Ada Author", Email: "author@example.test"},
	}
	require.NoError(t, db.Create(&f.buyer).Error)
	require.NoError(t, db.Create(&f.owner).Error)
	f.book = model.Book{UserID: f.owner.ID, Title: "Distributed Ledgers", PriceCents: 1000, IsPublished: true}
	require.NoError(t, db.Create(&f.book).Error)
	f.seller = model.Seller{UserID: f.owner.ID, PayoutAccountID: "acct_seller_1"}
	require.NoError(t, db.Create(&f.seller).Error)

	log := zap.NewNop().Sugar()
	f.checkout = NewCheckoutService(f.repo, f.proc, f.opts, f.metrics, log)
	f.webhook = NewWebhookService(f.repo, f.proc, payment.NewStripeVerifier(testWebhookSecret), f.opts, f.metrics, log)
	return f
}

// orderMetadata is what checkout would have attached for buyer and book.
func (f *fixture) orderMetadata() map[string]string {
	return map[string]string{
		payment.MetaBuyerID:       fmt.Sprint(f.buyer.ID),
		payment.MetaBookID:        fmt.Sprint(f.book.ID),
		payment.MetaSellerID:      fmt.Sprint(f.seller.ID),
		payment.MetaCapturedPrice: fmt.Sprint(f.book.PriceCents),
		payment.MetaTransferGroup: fmt.Sprintf("purchase-%d-%d-1700000000", f.buyer.ID, f.book.ID),
	}
}

func (f *fixture) outboxTypes(t *testing.T) []string {
	t.Helper()
	var evts []model.OutboxEvent
	require.NoError(t, f.db.Order("id").Find(&evts).Error)
	out := make([]string, 0, len(evts))
	for _, e := range evts {
		out = append(out, e.EventType)
	}
	return out
}
