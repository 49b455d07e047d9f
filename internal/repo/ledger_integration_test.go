//go:build integration

package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	schema "github.com/richardliu001/bookmarket-service/internal/db"
	"github.com/richardliu001/bookmarket-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func startPostgres(t *testing.T) (*gorm.DB, *Repository) {
	t.Helper()
	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("bookmarket"),
		postgres.WithUsername("bookmarket"),
		postgres.WithPassword("bookmarket"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := ctr.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, schema.Migrate(dsn))

	gdb, err := gorm.Open(gormpg.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	return gdb, NewRepository(gdb, nil, nil, zap.NewNop().Sugar())
}

func TestRecordPurchase_Postgres_ConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	gdb, r := startPostgres(t)

	buyer := model.User{Username: "reader", Email: "reader@example.test"}
	owner := model.User{Username: "author", Email: "author@example.test"}
	require.NoError(t, gdb.Create(&buyer).Error)
	require.NoError(t, gdb.Create(&owner).Error)
	book := model.Book{UserID: owner.ID, Title: "Consensus", PriceCents: 1000, IsPublished: true}
	require.NoError(t, gdb.Create(&book).Error)

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dupes   int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := gdb.Transaction(func(tx *gorm.DB) error {
				_, err := r.RecordPurchase(ctx, tx, &model.Purchase{
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
	close(start)
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, dupes)
	n, err := r.CountPurchases(ctx, buyer.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRecordPurchase_Postgres_BookDeletedBeforeCapture(t *testing.T) {
	ctx := context.Background()
	gdb, r := startPostgres(t)

	buyer := model.User{Username: "reader", Email: "reader@example.test"}
	owner := model.User{Username: "author", Email: "author@example.test"}
	require.NoError(t, gdb.Create(&buyer).Error)
	require.NoError(t, gdb.Create(&owner).Error)
	book := model.Book{UserID: owner.ID, Title: "Consensus", PriceCents: 1000, IsPublished: true}
	require.NoError(t, gdb.Create(&book).Error)
	require.NoError(t, gdb.Delete(&model.Book{}, book.ID).Error)

	err := gdb.Transaction(func(tx *gorm.DB) error {
		_, err := r.RecordPurchase(ctx, tx, &model.Purchase{
			BuyerID: buyer.ID, BookID: book.ID, PriceCents: 1000, PaymentStatus: true, PaymentID: "pi_1",
		})
		return err
	})
	require.NoError(t, err)
	n, err := r.CountPurchases(ctx, buyer.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
