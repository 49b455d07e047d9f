package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/bookmarket-service/internal/model"
	"github.com/richardliu001/bookmarket-service/internal/payment"
	"github.com/richardliu001/bookmarket-service/internal/repo"
	"go.uber.org/zap"
)

// BalanceService exposes the platform's processor balance to admins.
type BalanceService struct {
	repo   repo.RepositoryInterface
	proc   payment.Processor
	admins map[uint64]struct{}
	ttl    time.Duration
	log    *zap.SugaredLogger
}

func NewBalanceService(r repo.RepositoryInterface, p payment.Processor, adminIDs []uint64, ttl time.Duration, logger *zap.SugaredLogger) *BalanceService {
	admins := make(map[uint64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &BalanceService{repo: r, proc: p, admins: admins, ttl: ttl, log: logger}
}

// IsAdmin reports whether user may read platform-wide figures.
func (s *BalanceService) IsAdmin(user *model.User) bool {
	if user == nil {
		return false
	}
	_, ok := s.admins[user.ID]
	return ok
}

// GetBalance returns the cached balance when fresh, otherwise asks the
// processor and refreshes the cache.
func (s *BalanceService) GetBalance(ctx context.Context, user *model.User) (*payment.Balance, error) {
	if user == nil || user.ID == 0 {
		return nil, ErrUnauthorized
	}
	if !s.IsAdmin(user) {
		return nil, ErrForbidden
	}

	cached, err := s.repo.GetCachedBalance(ctx)
	switch {
	case err == nil:
		return cached, nil
	case errors.Is(err, redis.Nil), errors.Is(err, repo.ErrCacheDisabled):
	default:
		s.log.Warnw("read cached balance", "error", err)
	}

	b, err := s.proc.GetBalance(ctx)
	if err != nil {
		s.log.Errorw("fetch balance", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if err := s.repo.CacheBalance(ctx, b, s.ttl); err != nil && !errors.Is(err, repo.ErrCacheDisabled) {
		s.log.Warnw("cache balance", "error", err)
	}
	return b, nil
}
