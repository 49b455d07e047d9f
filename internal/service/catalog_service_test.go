package service

import (
	"context"
	"testing"

	"github.com/richardliu001/bookmarket-service/internal/config"
	"github.com/richardliu001/bookmarket-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCatalog_CreateAndUpdate(t *testing.T) {
	f := newFixture(t, config.SettlementInline)
	svc := NewCatalogService(f.repo, zap.NewNop().Sugar())
	ctx := context.Background()

	b, err := svc.CreateBook(ctx, &f.owner, NewBook{Title: "  Draft  ", PriceCents: 0})
	require.NoError(t, err)
	assert.Equal(t, "Draft", b.Title)
	assert.True(t, b.IsFree)
	assert.False(t, b.IsPublished)

	_, err = svc.GetPublishedBook(ctx, b.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)

	price, published := int64(1999), true
	updated, err := svc.UpdateBook(ctx, &f.owner, b.ID, model.BookUpdate{PriceCents: &price, IsPublished: &published})
	require.NoError(t, err)
	assert.False(t, updated.IsFree)

	got, err := svc.GetPublishedBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1999), got.PriceCents)
	assert.Equal(t, "Draft", got.Title)
}

func TestCatalog_Rejects(t *testing.T) {
	f := newFixture(t, config.SettlementInline)
	svc := NewCatalogService(f.repo, zap.NewNop().Sugar())
	ctx := context.Background()

	_, err := svc.CreateBook(ctx, &f.owner, NewBook{Title: " "})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreateBook(ctx, &f.owner, NewBook{Title: "Negative", PriceCents: -1})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreateBook(ctx, nil, NewBook{Title: "Anon"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	title := "Stolen"
	_, err = svc.UpdateBook(ctx, &f.buyer, f.book.ID, model.BookUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.UpdateBook(ctx, &f.owner, 9999, model.BookUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrBookNotFound)
}
