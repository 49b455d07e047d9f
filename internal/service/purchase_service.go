package service

import (
	"context"
	"errors"

	"github.com/richardliu001/bookmarket-service/internal/model"
	"github.com/richardliu001/bookmarket-service/internal/repo"
	"gorm.io/gorm"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// PurchasePage is one page of a buyer's library.
type PurchasePage struct {
	Items      []model.Purchase `json:"items"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"totalPages"`
}

// PurchaseService reads the purchase ledger. Writes happen only in
// WebhookService.
type PurchaseService struct {
	repo repo.RepositoryInterface
}

func NewPurchaseService(r repo.RepositoryInterface) *PurchaseService {
	return &PurchaseService{repo: r}
}

// ListPurchases pages through buyerID's purchases, newest first unless
// sort is "asc". Page defaults to 1 and limit to 10.
func (s *PurchaseService) ListPurchases(ctx context.Context, buyerID uint64, page, limit int, sort string) (*PurchasePage, error) {
	if buyerID == 0 {
		return nil, ErrUnauthorized
	}
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = defaultPageLimit
	}
	if page < 1 {
		return nil, validationf("page must be positive")
	}
	if limit < 1 || limit > maxPageLimit {
		return nil, validationf("limit must be between 1 and %d", maxPageLimit)
	}
	var asc bool
	switch sort {
	case "", "desc":
	case "asc":
		asc = true
	default:
		return nil, validationf("sort must be asc or desc")
	}

	items, total, err := s.repo.ListPurchasesByBuyer(ctx, repo.PurchaseQuery{
		BuyerID: buyerID, Page: page, Limit: limit, Asc: asc,
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Purchase{}
	}
	return &PurchasePage{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

// GetPurchase returns buyerID's purchase of bookID.
func (s *PurchaseService) GetPurchase(ctx context.Context, buyerID, bookID uint64) (*model.Purchase, error) {
	if buyerID == 0 {
		return nil, ErrUnauthorized
	}
	p, err := s.repo.GetPurchase(ctx, buyerID, bookID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}
	return p, nil
}
