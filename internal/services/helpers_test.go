package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fabricmart/internal/models"
	"fabricmart/internal/repositories"
	"fabricmart/internal/services"
	"fabricmart/pkg/payments"
	"fabricmart/pkg/payments/paymentstest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const webhookSecret = "whsec_services_test"

// failingNotifier always errors.
type failingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (f *failingNotifier) Notify(context.Context, models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("notifications endpoint down")
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// testEnv wires every service against one in-memory database.
type testEnv struct {
	db            *gorm.DB
	clock         *testClock
	gateway       *paymentstest.MockGateway
	orders        *repositories.GORMOrderRepository
	listings      *repositories.GORMListingRepository
	shipments     *repositories.GORMShipmentRepository
	notifications *repositories.GORMNotificationRepository
	sessions      *repositories.GORMCheckoutSessionRepository
	events        *repositories.GORMProcessedEventRepository
	sellers       *repositories.GORMSellerAccountRepository

	checkout  *services.CheckoutService
	payments  *services.PaymentEventService
	order     *services.OrderService
	shipment  *services.ShipmentService
	notifySvc *services.NotificationService
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithNotifier(t, nil)
}

func newTestEnvWithNotifier(t *testing.T, notifier services.Notifier) *testEnv {
	t.Helper()
	db := newTestDB(t)
	log := zap.NewNop()

	env := &testEnv{
		db:            db,
		clock:         newTestClock(t0),
		gateway:       new(paymentstest.MockGateway),
		orders:        repositories.NewGORMOrderRepository(db),
		listings:      repositories.NewGORMListingRepository(db),
		shipments:     repositories.NewGORMShipmentRepository(db),
		notifications: repositories.NewGORMNotificationRepository(db),
		sessions:      repositories.NewGORMCheckoutSessionRepository(db),
		events:        repositories.NewGORMProcessedEventRepository(db),
		sellers:       repositories.NewGORMSellerAccountRepository(db),
	}
	env.notifySvc = services.NewNotificationService(env.notifications)
	if notifier == nil {
		notifier = env.notifySvc
	}
	dispatcher := services.NewDispatcher(notifier, time.Second, log)

	env.checkout = services.NewCheckoutService(env.gateway, env.listings, env.sessions, services.CheckoutConfig{
		Currency: "usd",
		SiteURL:  "https://shop.example.com",
		HoldTTL:  15 * time.Minute,
	}, log, env.clock.Now)

	env.payments = services.NewPaymentEventService(services.PaymentEventDeps{
		Verifier: payments.NewStripeVerifier(webhookSecret),
		Gateway:  env.gateway,
		Orders:   env.orders,
		Listings: env.listings,
		Sessions: env.sessions,
		Events:   env.events,
		Sellers:  env.sellers,
		Notify:   dispatcher,
	}, "usd", log, env.clock.Now)

	env.order = services.NewOrderService(services.OrderDeps{
		Orders:    env.orders,
		Listings:  env.listings,
		Sessions:  env.sessions,
		Shipments: env.shipments,
		Sellers:   env.sellers,
		Gateway:   env.gateway,
		Notify:    dispatcher,
	}, 30*time.Minute, 15*time.Minute, log, env.clock.Now)

	env.shipment = services.NewShipmentService(env.orders, env.shipments, dispatcher, log, env.clock.Now)
	return env
}

func (e *testEnv) seedListing(t *testing.T, id string, status models.ListingStatus) {
	t.Helper()
	require.NoError(t, e.listings.Create(context.Background(), &models.Listing{
		ID: id, SellerID: "acct_seller", Title: "Liberty cotton, 2 yd", PriceCents: 2500, Status: status,
	}))
}

func (e *testEnv) seedOrder(t *testing.T, id string, status models.OrderStatus, createdAt time.Time, opts ...func(*models.Order)) *models.Order {
	t.Helper()
	pi := "pi_" + id
	o := &models.Order{
		ID:                id,
		CheckoutSessionID: "cs_" + id,
		PaymentIntentID:   &pi,
		BuyerID:           "buyer-1",
		BuyerEmail:        "buyer@example.com",
		SellerID:          "acct_seller",
		ListingID:         "listing-" + id,
		SubtotalCents:     2500,
		ShippingCents:     500,
		TotalCents:        3000,
		Currency:          "usd",
		Status:            status,
		Items:             []models.ItemSnapshot{{Name: "Liberty cotton, 2 yd", Quantity: 1}},
		SellerSplit:       map[string]int64{"acct_seller": 2500},
		CreatedAt:         createdAt,
	}
	for _, opt := range opts {
		opt(o)
	}
	created, err := e.orders.CreateIfAbsent(context.Background(), o)
	require.NoError(t, err)
	require.True(t, created)
	return o
}

func (e *testEnv) mustOrder(t *testing.T, id string) *models.Order {
	t.Helper()
	o, err := e.orders.GetByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (e *testEnv) mustListing(t *testing.T, id string) *models.Listing {
	t.Helper()
	l, err := e.listings.GetByID(context.Background(), id)
	require.NoError(t, err)
	return l
}

func (e *testEnv) notificationsFor(t *testing.T, userID string) []models.Notification {
	t.Helper()
	list, err := e.notifications.ListByUser(context.Background(), userID, 100)
	require.NoError(t, err)
	return list
}

func (e *testEnv) countRows(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}
