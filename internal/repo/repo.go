package repo

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/bookmarket-service/internal/model"
	"github.com/richardliu001/bookmarket-service/internal/payment"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrAlreadyExists is returned when a uniqueness constraint absorbed the insert.
	ErrAlreadyExists = errors.New("already exists")
	// ErrCacheDisabled is returned by cache reads when no Redis client is wired.
	ErrCacheDisabled = errors.New("cache disabled")
)

// RepositoryInterface restricts Repo methods so services can be tested against fakes.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	GetUser(ctx context.Context, id uint64) (*model.User, error)
	GetBook(ctx context.Context, id uint64) (*model.Book, error)
	CreateBook(ctx context.Context, b *model.Book) error
	UpdateBook(ctx context.Context, b *model.Book) error

	CreateSeller(ctx context.Context, s *model.Seller) error
	GetSellerByID(ctx context.Context, id uint64) (*model.Seller, error)
	GetSellerByUserID(ctx context.Context, userID uint64) (*model.Seller, error)
	MarkSellerOnboarded(ctx context.Context, payoutAccountID string) (bool, error)

	RecordPurchase(ctx context.Context, tx *gorm.DB, p *model.Purchase) (*model.Purchase, error)
	GetPurchase(ctx context.Context, buyerID, bookID uint64) (*model.Purchase, error)
	HasPurchase(ctx context.Context, buyerID, bookID uint64) (bool, error)
	CountPurchases(ctx context.Context, buyerID, bookID uint64) (int64, error)
	ListPurchasesByBuyer(ctx context.Context, q PurchaseQuery) ([]model.Purchase, int64, error)

	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error

	CacheBalance(ctx context.Context, b *payment.Balance, ttl time.Duration) error
	GetCachedBalance(ctx context.Context) (*payment.Balance, error)
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo. rdb and w may be nil for processes that
// neither cache nor publish.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }
