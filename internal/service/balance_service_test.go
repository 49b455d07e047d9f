package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/richardliu001/bookmarket-service/internal/model"
	"github.com/richardliu001/bookmarket-service/internal/payment"
	"github.com/richardliu001/bookmarket-service/internal/payment/paymenttest"
	"github.com/richardliu001/bookmarket-service/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var admin = &model.User{ID: 1, Username: "admin"}

func TestGetBalance_ForbiddenForNonAdmin(t *testing.T) {
	proc := paymenttest.NewProcessor()
	svc := NewBalanceService(repo.NewRepository(nil, nil, nil, zap.NewNop().Sugar()), proc, []uint64{1}, time.Minute, zap.NewNop().Sugar())

	_, err := svc.GetBalance(context.Background(), &model.User{ID: 2})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.GetBalance(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, proc.BalanceCalls)
}

func TestGetBalance_ServedFromCache(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	proc := paymenttest.NewProcessor()
	svc := NewBalanceService(repo.NewRepository(nil, rdb, nil, zap.NewNop().Sugar()), proc, []uint64{1}, time.Minute, zap.NewNop().Sugar())

	cached := payment.Balance{Available: []payment.Amount{{Amount: 777, Currency: "usd"}}}
	data, err := json.Marshal(cached)
	require.NoError(t, err)
	mock.ExpectGet("balance:platform").SetVal(string(data))

	b, err := svc.GetBalance(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, int64(777), b.Available[0].Amount)
	assert.Zero(t, proc.BalanceCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBalance_WithoutCache(t *testing.T) {
	proc := paymenttest.NewProcessor()
	svc := NewBalanceService(repo.NewRepository(nil, nil, nil, zap.NewNop().Sugar()), proc, []uint64{1}, time.Minute, zap.NewNop().Sugar())

	b, err := svc.GetBalance(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, int64(12000), b.Available[0].Amount)
	assert.Equal(t, int64(3000), b.Pending[0].Amount)

	_, err = svc.GetBalance(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, 2, proc.BalanceCalls)
}
