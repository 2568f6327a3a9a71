package repositories_test

import (
	"context"
	"testing"
	"time"

	"fabricmart/internal/models"
	"fabricmart/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(db))
	return db
}

func TestOpenDatabase_UnknownDriver(t *testing.T) {
	_, err := repositories.OpenDatabase("mysql", "")
	assert.Error(t, err)
}

func TestListingHoldLifecycle(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewGORMListingRepository(db)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &models.Listing{ID: "l-1", SellerID: "acct_1", Title: "Linen", PriceCents: 1800}))

	held, err := repo.Hold(ctx, "l-1", now, now.Add(-15*time.Minute))
	require.NoError(t, err)
	assert.True(t, held)

	// a fresh hold is not stealable
	held, err = repo.Hold(ctx, "l-1", now.Add(time.Minute), now.Add(-14*time.Minute))
	require.NoError(t, err)
	assert.False(t, held)

	// an expired hold is
	held, err = repo.Hold(ctx, "l-1", now.Add(20*time.Minute), now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, held)

	refreshed, err := repo.RefreshHold(ctx, "l-1", now.Add(21*time.Minute))
	require.NoError(t, err)
	assert.True(t, refreshed)

	sold, err := repo.MarkSold(ctx, "l-1")
	require.NoError(t, err)
	assert.True(t, sold)

	listing, err := repo.GetByID(ctx, "l-1")
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusSold, listing.Status)
	assert.Nil(t, listing.HoldAt)

	sold, err = repo.MarkSold(ctx, "l-1")
	require.NoError(t, err)
	assert.False(t, sold, "second buyer loses the race")

	released, err := repo.ReleaseHold(ctx, "l-1")
	require.NoError(t, err)
	assert.False(t, released, "sold listings are not released")

	refreshed, err = repo.RefreshHold(ctx, "l-1", now)
	require.NoError(t, err)
	assert.False(t, refreshed, "only IN_CART listings are refreshed")

	reopened, err := repo.Reopen(ctx, "l-1")
	require.NoError(t, err)
	assert.True(t, reopened)
}

func TestListingReleaseStaleHolds(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewGORMListingRepository(db)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"old", "new"} {
		require.NoError(t, repo.Create(ctx, &models.Listing{ID: id, SellerID: "acct_1", PriceCents: 100}))
	}
	_, err := repo.Hold(ctx, "old", now.Add(-time.Hour), now.Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = repo.Hold(ctx, "new", now, now.Add(-time.Hour))
	require.NoError(t, err)

	n, err := repo.ReleaseStaleHolds(ctx, now.Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	old, err := repo.GetByID(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusActive, old.Status)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrListingNotFound)
}

func TestOrderCreateIfAbsentAndTransition(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewGORMOrderRepository(db)
	ctx := context.Background()
	pi := "pi_1"

	order := &models.Order{
		ID: "HM-1", CheckoutSessionID: "cs_1", PaymentIntentID: &pi, BuyerID: "buyer-1",
		TotalCents: 3000, Currency: "usd", Status: models.OrderStatusPaid,
		Items:       []models.ItemSnapshot{{Name: "Voile", Quantity: 2}},
		SellerSplit: map[string]int64{"acct_1": 2500},
	}
	created, err := repo.CreateIfAbsent(ctx, order)
	require.NoError(t, err)
	assert.True(t, created)

	dup := *order
	dup.ID = "HM-2"
	created, err = repo.CreateIfAbsent(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created, "same payment id must not create a second order")

	got, err := repo.GetByCheckoutSession(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "HM-1", got.ID)
	assert.Equal(t, []models.ItemSnapshot{{Name: "Voile", Quantity: 2}}, got.Items)
	assert.Equal(t, int64(2500), got.SellerSplit["acct_1"])

	changed, err := repo.TransitionStatus(ctx, "HM-1", []models.OrderStatus{models.OrderStatusPending}, models.OrderStatusPaid, nil)
	require.NoError(t, err)
	assert.False(t, changed)

	at := time.Date(2024, 5, 1, 12, 10, 0, 0, time.UTC)
	changed, err = repo.TransitionStatus(ctx, "HM-1", []models.OrderStatus{models.OrderStatusPaid}, models.OrderStatusCanceled,
		map[string]interface{}{"canceled_at": at})
	require.NoError(t, err)
	assert.True(t, changed)

	got, err = repo.GetByID(ctx, "HM-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCanceled, got.Status)
	require.NotNil(t, got.CanceledAt)
	assert.True(t, got.CanceledAt.Equal(at))

	marked, err := repo.MarkPayoutsSent(ctx, "HM-1", at)
	require.NoError(t, err)
	assert.True(t, marked)
	marked, err = repo.MarkPayoutsSent(ctx, "HM-1", at)
	require.NoError(t, err)
	assert.False(t, marked)

	_, err = repo.GetByID(ctx, "HM-404")
	assert.ErrorIs(t, err, repositories.ErrOrderNotFound)
}

func TestProcessedEvents(t *testing.T) {
	repo := repositories.NewGORMProcessedEventRepository(setupDB(t))
	ctx := context.Background()

	seen, err := repo.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	first, err := repo.MarkProcessed(ctx, "evt_1", "checkout.session.completed")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := repo.MarkProcessed(ctx, "evt_1", "checkout.session.completed")
	require.NoError(t, err)
	assert.False(t, again)

	seen, err = repo.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestCheckoutSessionIndex(t *testing.T) {
	repo := repositories.NewGORMCheckoutSessionRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &models.CheckoutSession{OrderID: "HM-1", SessionID: "cs_a", ListingIDs: []string{"l-1"}}))
	require.NoError(t, repo.Save(ctx, &models.CheckoutSession{OrderID: "HM-1", SessionID: "cs_b", ListingIDs: []string{"l-1", "l-2"}}))

	s, err := repo.GetByOrderID(ctx, "HM-1")
	require.NoError(t, err)
	assert.Equal(t, "cs_b", s.SessionID)
	assert.Equal(t, []string{"l-1", "l-2"}, s.ListingIDs)

	_, err = repo.GetByOrderID(ctx, "HM-2")
	assert.ErrorIs(t, err, repositories.ErrCheckoutSessionNotFound)
}
