package service

import (
	"context"
	"errors"
	"strings"

	"github.com/richardliu001/bookmarket-service/internal/model"
	"github.com/richardliu001/bookmarket-service/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewBook is the input for listing a book.
type NewBook struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Author      string `json:"author"`
	Category    string `json:"category"`
	Language    string `json:"language"`
	PriceCents  int64  `json:"priceCents"`
	IsPublished bool   `json:"isPublished"`
}

// CatalogService manages the books sellers list.
type CatalogService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

func NewCatalogService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *CatalogService {
	return &CatalogService{repo: r, log: logger}
}

func (s *CatalogService) CreateBook(ctx context.Context, owner *model.User, in NewBook) (*model.Book, error) {
	if owner == nil || owner.ID == 0 {
		return nil, ErrUnauthorized
	}
	b := &model.Book{UserID: owner.ID}
	model.BookUpdate{
		Title:       &in.Title,
		Description: &in.Description,
		Author:      &in.Author,
		Category:    &in.Category,
		Language:    &in.Language,
		PriceCents:  &in.PriceCents,
		IsPublished: &in.IsPublished,
	}.Apply(b)
	if err := validateBook(b); err != nil {
		return nil, err
	}
	if err := s.repo.CreateBook(ctx, b); err != nil {
		return nil, err
	}
	s.log.Infow("book created", "book_id", b.ID, "user_id", owner.ID, "amount", b.PriceCents)
	return b, nil
}

// GetPublishedBook hides unpublished books behind ErrBookNotFound.
func (s *CatalogService) GetPublishedBook(ctx context.Context, id uint64) (*model.Book, error) {
	b, err := s.getBook(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.IsPublished {
		return nil, ErrBookNotFound
	}
	return b, nil
}

// UpdateBook applies u to a book owned by user.
func (s *CatalogService) UpdateBook(ctx context.Context, user *model.User, id uint64, u model.BookUpdate) (*model.Book, error) {
	if user == nil || user.ID == 0 {
		return nil, ErrUnauthorized
	}
	b, err := s.getBook(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.UserID != user.ID {
		return nil, ErrForbidden
	}
	u.Apply(b)
	if err := validateBook(b); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateBook(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *CatalogService) getBook(ctx context.Context, id uint64) (*model.Book, error) {
	b, err := s.repo.GetBook(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return b, nil
}

func validateBook(b *model.Book) error {
	b.Title = strings.TrimSpace(b.Title)
	if b.Title == "" {
		return validationf("title is required")
	}
	if b.PriceCents < 0 {
		return validationf("price must not be negative")
	}
	return nil
}
