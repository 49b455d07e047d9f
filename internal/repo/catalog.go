package repo

import (
	"context"

	"github.com/richardliu001/bookmarket-service/internal/model"
)

// GetUser loads a user by id.
func (r *Repository) GetUser(ctx context.Context, id uint64) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetBook loads a book by id regardless of publish state.
func (r *Repository) GetBook(ctx context.Context, id uint64) (*model.Book, error) {
	var b model.Book
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBook inserts record.
func (r *Repository) CreateBook(ctx context.Context, b *model.Book) error {
	return r.db.WithContext(ctx).Create(b).Error
}

// UpdateBook writes the owner-editable columns of b.
func (r *Repository) UpdateBook(ctx context.Context, b *model.Book) error {
	return r.db.WithContext(ctx).
		Model(b).
		Select("title", "description", "author", "category", "language", "price_cents", "is_free", "is_published").
		Updates(b).Error
}
