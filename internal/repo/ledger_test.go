package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/richardliu001/bookmarket-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRecordPurchase_SecondInsertAlreadyExists(t *testing.T) {
	r, db := newTestRepo(t)
	buyer, _, book := seedCatalog(t, db)
	ctx := context.Background()

	first, err := r.RecordPurchase(ctx, db, &model.Purchase{
		BuyerID: buyer.ID, BookID: book.ID, PriceCents: 1000, PaymentStatus: true, PaymentID: "pi_1",
	})
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	second, err := r.RecordPurchase(ctx, db, &model.Purchase{
		BuyerID: buyer.ID, BookID: book.ID, PriceCents: 1200, PaymentStatus: true, PaymentID: "pi_2",
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "pi_1", second.PaymentID, "stored row must not be overwritten")
	assert.Equal(t, int64(1000), second.PriceCents)

	n, err := r.CountPurchases(ctx, buyer.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRecordPurchase_ConcurrentDuplicates(t *testing.T) {
	r, db := newTestRepo(t)
	buyer, _, book := seedCatalog(t, db)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dupes   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := db.Transaction(func(tx *gorm.DB) error {
				_, err := r.RecordPurchase(context.Background(), tx, &model.Purchase{
					BuyerID: buyer.ID, BookID: book.ID, PriceCents: 1000, PaymentStatus: true,
					PaymentID: fmt.Sprintf("pi_%d", i),
				})
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrAlreadyExists):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, dupes)
	n, err := r.CountPurchases(context.Background(), buyer.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestListPurchasesByBuyer_PagesAndEnriches(t *testing.T) {
	r, db := newTestRepo(t)
	buyer, owner, book := seedCatalog(t, db)
	ctx := context.Background()

	books := []model.Book{book}
	for i := 0; i < 2; i++ {
		b := model.Book{UserID: owner.ID, Title: fmt.Sprintf("Vol %d", i+2), PriceCents: 500, IsPublished: true}
		require.NoError(t, db.Create(&b).Error)
		books = append(books, b)
	}
	for i, b := range books {
		_, err := r.RecordPurchase(ctx, db, &model.Purchase{
			BuyerID: buyer.ID, BookID: b.ID, PriceCents: b.PriceCents, PaymentStatus: true,
			PaymentID: fmt.Sprintf("pi_%d", i),
		})
		require.NoError(t, err)
	}

	items, total, err := r.ListPurchasesByBuyer(ctx, PurchaseQuery{BuyerID: buyer.ID, Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, items, 2)
	require.NotNil(t, items[0].Book)
	require.NotNil(t, items[0].Book.Owner)
	assert.Equal(t, "author", items[0].Book.Owner.Username)

	page2, _, err := r.ListPurchasesByBuyer(ctx, PurchaseQuery{BuyerID: buyer.ID, Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page2, 1)

	other, total, err := r.ListPurchasesByBuyer(ctx, PurchaseQuery{BuyerID: owner.ID, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, other)
}
