package repo

import (
	"context"
	"errors"

	"github.com/richardliu001/bookmarket-service/internal/model"
	"gorm.io/gorm"
)

// CreateSeller inserts a seller; a second profile for the same user or
// payout account yields ErrAlreadyExists.
func (r *Repository) CreateSeller(ctx context.Context, s *model.Seller) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	return err
}

func (r *Repository) GetSellerByID(ctx context.Context, id uint64) (*model.Seller, error) {
	var s model.Seller
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) GetSellerByUserID(ctx context.Context, userID uint64) (*model.Seller, error) {
	var s model.Seller
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// MarkSellerOnboarded flips the onboarding flag once. It reports whether a
// row changed.
func (r *Repository) MarkSellerOnboarded(ctx context.Context, payoutAccountID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Seller{}).
		Where("payout_account_id = ? AND onboarding_completed = ?", payoutAccountID, false).
		Update("onboarding_completed", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
