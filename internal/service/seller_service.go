package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/richardliu001/bookmarket-service/internal/model"
	"github.com/richardliu001/bookmarket-service/internal/payment"
	"github.com/richardliu001/bookmarket-service/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SellerService maps users to payout accounts at the processor.
type SellerService struct {
	repo repo.RepositoryInterface
	proc payment.Processor
	log  *zap.SugaredLogger
}

func NewSellerService(r repo.RepositoryInterface, p payment.Processor, logger *zap.SugaredLogger) *SellerService {
	return &SellerService{repo: r, proc: p, log: logger}
}

// RegisterSeller opens a connected account for user and stores the seller
// profile. A user has at most one seller profile.
func (s *SellerService) RegisterSeller(ctx context.Context, user *model.User) (*model.Seller, error) {
	if user == nil || user.ID == 0 {
		return nil, ErrUnauthorized
	}
	_, err := s.repo.GetSellerByUserID(ctx, user.ID)
	if err == nil {
		return nil, ErrSellerExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	accountID, err := s.proc.CreateConnectedAccount(ctx, user.ID, user.Email)
	if err != nil {
		s.log.Errorw("create connected account", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	seller := &model.Seller{UserID: user.ID, PayoutAccountID: accountID}
	if err := s.repo.CreateSeller(ctx, seller); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			// lost a race with a concurrent registration for the same user
			s.log.Warnw("seller registered concurrently", "user_id", user.ID, "destination", accountID)
			return nil, ErrSellerExists
		}
		return nil, err
	}
	s.log.Infow("seller registered", "user_id", user.ID, "seller_id", seller.ID, "destination", accountID)
	return seller, nil
}

// GetSellerByUserID returns the seller profile of userID.
func (s *SellerService) GetSellerByUserID(ctx context.Context, userID uint64) (*model.Seller, error) {
	seller, err := s.repo.GetSellerByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSellerNotFound
		}
		return nil, err
	}
	return seller, nil
}

// CreateOnboardingLink returns a hosted onboarding URL for the seller
// profile of userID.
func (s *SellerService) CreateOnboardingLink(ctx context.Context, userID uint64) (string, error) {
	seller, err := s.payoutSeller(ctx, userID)
	if err != nil {
		return "", err
	}
	url, err := s.proc.CreateOnboardingLink(ctx, seller.PayoutAccountID)
	if err != nil {
		s.log.Errorw("create onboarding link", "seller_id", seller.ID, "destination", seller.PayoutAccountID, "error", err)
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return url, nil
}

// CreateDashboardLink returns a payout dashboard URL for the seller profile
// of userID.
func (s *SellerService) CreateDashboardLink(ctx context.Context, userID uint64) (string, error) {
	seller, err := s.payoutSeller(ctx, userID)
	if err != nil {
		return "", err
	}
	url, err := s.proc.CreateDashboardLink(ctx, seller.PayoutAccountID)
	if err != nil {
		s.log.Errorw("create dashboard link", "seller_id", seller.ID, "destination", seller.PayoutAccountID, "error", err)
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return url, nil
}

func (s *SellerService) payoutSeller(ctx context.Context, userID uint64) (*model.Seller, error) {
	seller, err := s.GetSellerByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !seller.HasPayoutAccount() {
		return nil, ErrPayoutNotConfigured
	}
	return seller, nil
}
