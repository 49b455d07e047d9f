package repo

import (
	"context"

	"github.com/richardliu001/bookmarket-service/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PurchaseQuery pages through one buyer's purchases.
type PurchaseQuery struct {
	BuyerID uint64
	Page    int
	Limit   int
	Asc     bool
}

// RecordPurchase inserts p in a single statement guarded by the
// (buyer_id, book_id) unique index. When the row already exists the insert
// is a no-op, the stored purchase is returned and the error is ErrAlreadyExists.
func (r *Repository) RecordPurchase(ctx context.Context, tx *gorm.DB, p *model.Purchase) (*model.Purchase, error) {
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "buyer_id"}, {Name: "book_id"}},
			DoNothing: true,
		}).
		Create(p)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var existing model.Purchase
		if err := tx.WithContext(ctx).
			Where("buyer_id = ? AND book_id = ?", p.BuyerID, p.BookID).
			First(&existing).Error; err != nil {
			return nil, err
		}
		return &existing, ErrAlreadyExists
	}
	return p, nil
}

// GetPurchase loads buyerID's purchase of bookID with the book attached.
func (r *Repository) GetPurchase(ctx context.Context, buyerID, bookID uint64) (*model.Purchase, error) {
	var p model.Purchase
	err := r.db.WithContext(ctx).
		Preload("Book").
		Where("buyer_id = ? AND book_id = ?", buyerID, bookID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// HasPurchase reports whether buyerID already owns bookID.
func (r *Repository) HasPurchase(ctx context.Context, buyerID, bookID uint64) (bool, error) {
	n, err := r.CountPurchases(ctx, buyerID, bookID)
	return n > 0, err
}

func (r *Repository) CountPurchases(ctx context.Context, buyerID, bookID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Purchase{}).
		Where("buyer_id = ? AND book_id = ?", buyerID, bookID).
		Count(&n).Error
	return n, err
}

// ListPurchasesByBuyer returns one page of purchases with book and book
// owner loaded, plus the buyer's total purchase count.
func (r *Repository) ListPurchasesByBuyer(ctx context.Context, q PurchaseQuery) ([]model.Purchase, int64, error) {
	var total int64
	base := r.db.WithContext(ctx).Model(&model.Purchase{}).Where("buyer_id = ?", q.BuyerID)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at desc, id desc"
	if q.Asc {
		order = "created_at asc, id asc"
	}
	var items []model.Purchase
	err := r.db.WithContext(ctx).
		Preload("Book.Owner").
		Where("buyer_id = ?", q.BuyerID).
		Order(order).
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&items).Error
	return items, total, err
}
