package services_test

import (
	"context"
	"testing"
	"time"

	"fabricmart/internal/apperr"
	"fabricmart/internal/models"
	"fabricmart/pkg/payments"
	"fabricmart/pkg/payments/paymentstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func checkoutMetadata() map[string]string {
	return map[string]string{
		"order_id":    "HM-1042",
		"items":       `[{"n":"Liberty cotton, 2 yd","q":1}]`,
		"sellers":     `{"acct_seller":2500}`,
		"listing_id":  "listing-1",
		"buyer_id":    "buyer-1",
		"buyer_email": "buyer@example.com",
		"subtotal":    "2500",
		"shipping":    "500",
	}
}

func (e *testEnv) deliver(t *testing.T, payload []byte) (*bool, error) {
	t.Helper()
	res, err := e.payments.HandleWebhook(context.Background(), payload,
		paymentstest.SignatureHeader(payload, webhookSecret, time.Now()))
	if err != nil {
		return nil, err
	}
	dup := res.Duplicate
	return &dup, nil
}

func TestHandleWebhook_CheckoutCompletedCreatesPaidOrder(t *testing.T) {
	env := newTestEnv(t)
	env.seedListing(t, "listing-1", models.ListingStatusActive)
	_, err := env.listings.Hold(context.Background(), "listing-1", t0, t0.Add(-time.Minute))
	require.NoError(t, err)

	payload := paymentstest.CheckoutCompletedEvent("evt_1", "cs_1", "pi_1", "paid", 2500, 500, checkoutMetadata())
	dup, err := env.deliver(t, payload)
	require.NoError(t, err)
	assert.False(t, *dup)

	order := env.mustOrder(t, "HM-1042")
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, int64(3000), order.TotalCents)
	assert.Equal(t, int64(2500), order.SubtotalCents)
	assert.Equal(t, int64(500), order.ShippingCents)
	assert.Equal(t, "buyer-1", order.BuyerID)
	assert.Equal(t, "buyer@example.com", order.BuyerEmail)
	assert.Equal(t, "acct_seller", order.SellerID)
	assert.Equal(t, "pi_1", order.PaymentRef())
	assert.Equal(t, []models.ItemSnapshot{{Name: "Liberty cotton, 2 yd", Quantity: 1}}, order.Items)
	assert.Equal(t, map[string]int64{"acct_seller": 2500}, order.SellerSplit)

	listing := env.mustListing(t, "listing-1")
	assert.Equal(t, models.ListingStatusSold, listing.Status)
	assert.Nil(t, listing.HoldAt)

	assert.Len(t, env.notificationsFor(t, "buyer-1"), 1)
	assert.Len(t, env.notificationsFor(t, "acct_seller"), 1)
	env.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
}

func TestHandleWebhook_CheckoutToOrderEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.seedListing(t, "listing-1", models.ListingStatusActive)

	var captured payments.CheckoutSessionInput
	env.gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(payments.CheckoutSessionInput) }).
		Return(&payments.CheckoutSessionResult{ID: "cs_e2e", URL: "https://checkout.stripe.com/c/cs_e2e"}, nil)

	_, err := env.checkout.CreateSession(context.Background(), singleItemCart())
	require.NoError(t, err)

	payload := paymentstest.CheckoutCompletedEvent("evt_e2e", "cs_e2e", "pi_e2e", "paid", 2500, 500, captured.Metadata)
	_, err = env.deliver(t, payload)
	require.NoError(t, err)

	order := env.mustOrder(t, "HM-1042")
	assert.Equal(t, int64(3000), order.TotalCents)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, []models.ItemSnapshot{{Name: "Liberty cotton, 2 yd", Quantity: 1}}, order.Items)
	assert.Equal(t, models.ListingStatusSold, env.mustListing(t, "listing-1").Status)
}

func TestHandleWebhook_BadSignatureDoesNothing(t *testing.T) {
	env := newTestEnv(t)
	payload := paymentstest.CheckoutCompletedEvent("evt_1", "cs_1", "pi_1", "paid", 2500, 500, checkoutMetadata())

	_, err := env.payments.HandleWebhook(context.Background(), payload,
		paymentstest.SignatureHeader(payload, "whsec_wrong", time.Now()))
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, int64(0), env.countRows(t, &models.Order{}))
	assert.Equal(t, int64(0), env.countRows(t, &models.ProcessedEvent{}))
}

func TestHandleWebhook_RedeliveryIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedListing(t, "listing-1", models.ListingStatusActive)
	payload := paymentstest.CheckoutCompletedEvent("evt_1", "cs_1", "pi_1", "paid", 2500, 500, checkoutMetadata())

	_, err := env.deliver(t, payload)
	require.NoError(t, err)
	dup, err := env.deliver(t, payload)
	require.NoError(t, err)
	assert.True(t, *dup)

	assert.Equal(t, int64(1), env.countRows(t, &models.Order{}))
	assert.Len(t, env.notificationsFor(t, "buyer-1"), 1)
	env.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
}

func TestHandleWebhook_SamePaymentUnderNewEventID(t *testing.T) {
	env := newTestEnv(t)
	env.seedListing(t, "listing-1", models.ListingStatusActive)

	_, err := env.deliver(t, paymentstest.CheckoutCompletedEvent("evt_1", "cs_1", "pi_1", "paid", 2500, 500, checkoutMetadata()))
	require.NoError(t, err)
	_, err = env.deliver(t, paymentstest.CheckoutCompletedEvent("evt_2", "cs_1", "pi_1", "paid", 2500, 500, checkoutMetadata()))
	require.NoError(t, err)

	assert.Equal(t, int64(1), env.countRows(t, &models.Order{}))
	env.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
}

func TestHandleWebhook_LostListingRaceRefunds(t *testing.T) {
	env := newTestEnv(t)
	env.seedListing(t, "listing-1", models.ListingStatusSold)
	env.gateway.On("Refund", mock.Anything, mock.MatchedBy(func(in payments.RefundInput) bool {
		return in.PaymentIntentID == "pi_1" && in.IdempotencyKey == "race-HM-1042"
	})).Return(&payments.RefundResult{ID: "re_1", Status: "succeeded"}, nil).Once()

	_, err := env.deliver(t, paymentstest.CheckoutCompletedEvent("evt_1", "cs_1", "pi_1", "paid", 2500, 500, checkoutMetadata()))
	require.NoError(t, err)

	order := env.mustOrder(t, "HM-1042")
	assert.Equal(t, models.OrderStatusRefunded, order.Status)
	assert.NotNil(t, order.RefundedAt)
	assert.Equal(t, models.ListingStatusSold, env.mustListing(t, "listing-1").Status)

	buyer := env.notificationsFor(t, "buyer-1")
	require.Len(t, buyer, 1)
	assert.Equal(t, models.NotificationOrderRefunded, buyer[0].Kind)
	assert.Empty(t, env.notificationsFor(t, "acct_seller"))
	env.gateway.AssertExpectations(t)
}

func TestHandleWebhook_UnknownListingIsNotARace(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.deliver(t, paymentstest.CheckoutCompletedEvent("evt_1", "cs_1", "pi_1", "paid", 2500, 500, checkoutMetadata()))
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPaid, env.mustOrder(t, "HM-1042").Status)
	env.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
}

func TestHandleWebhook_BuyerFallsBackToProcessorFields(t *testing.T) {
	env := newTestEnv(t)
	meta := checkoutMetadata()
	delete(meta, "buyer_email")
	delete(meta, "buyer_id")
	meta["user_id"] = "legacy-user"
	delete(meta, "subtotal")
	delete(meta, "shipping")

	_, err := env.deliver(t, paymentstest.CheckoutCompletedEvent("evt_1", "cs_1", "pi_1", "paid", 4000, 700, meta))
	require.NoError(t, err)

	order := env.mustOrder(t, "HM-1042")
	assert.Equal(t, "legacy-user", order.BuyerID)
	assert.Equal(t, "details@example.com", order.BuyerEmail)
	assert.Equal(t, int64(4700), order.TotalCents)
}

func TestHandleWebhook_AsyncPaymentFlow(t *testing.T) {
	env := newTestEnv(t)
	env.seedListing(t, "listing-1", models.ListingStatusActive)

	_, err := env.deliver(t, paymentstest.CheckoutCompletedEvent("evt_1", "cs_1", "pi_1", "unpaid", 2500, 500, checkoutMetadata()))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, env.mustOrder(t, "HM-1042").Status)
	assert.Equal(t, models.ListingStatusActive, env.mustListing(t, "listing-1").Status)

	_, err = env.deliver(t, paymentstest.SessionEvent("evt_2", payments.EventAsyncPaymentSucceeded, "cs_1", "pi_1", "paid", 2500, 500, checkoutMetadata()))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, env.mustOrder(t, "HM-1042").Status)
	assert.Equal(t, models.ListingStatusSold, env.mustListing(t, "listing-1").Status)
}

func TestHandleWebhook_AsyncPaymentFailedCancelsPending(t *testing.T) {
	env := newTestEnv(t)
	env.seedListing(t, "listing-1", models.ListingStatusActive)
	_, err := env.listings.Hold(context.Background(), "listing-1", t0, t0.Add(-time.Minute))
	require.NoError(t, err)

	_, err = env.deliver(t, paymentstest.CheckoutCompletedEvent("evt_1", "cs_1", "pi_1", "unpaid", 2500, 500, checkoutMetadata()))
	require.NoError(t, err)
	_, err = env.deliver(t, paymentstest.SessionEvent("evt_2", payments.EventAsyncPaymentFailed, "cs_1", "pi_1", "unpaid", 2500, 500, checkoutMetadata()))
	require.NoError(t, err)

	order := env.mustOrder(t, "HM-1042")
	assert.Equal(t, models.OrderStatusCanceled, order.Status)
	assert.NotNil(t, order.CanceledAt)
	assert.Equal(t, models.ListingStatusActive, env.mustListing(t, "listing-1").Status)
}

func TestHandleWebhook_ExpiredSessionReleasesHold(t *testing.T) {
	env := newTestEnv(t)
	env.seedListing(t, "listing-1", models.ListingStatusActive)
	_, err := env.listings.Hold(context.Background(), "listing-1", t0, t0.Add(-time.Minute))
	require.NoError(t, err)

	_, err = env.deliver(t, paymentstest.SessionEvent("evt_x", payments.EventCheckoutExpired, "cs_1", "", "unpaid", 2500, 500, checkoutMetadata()))
	require.NoError(t, err)

	assert.Equal(t, models.ListingStatusActive, env.mustListing(t, "listing-1").Status)
	assert.Equal(t, int64(0), env.countRows(t, &models.Order{}))
}

func TestHandleWebhook_AccountUpdated(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.deliver(t, paymentstest.AccountUpdatedEvent("evt_a", "acct_seller", true, true))
	require.NoError(t, err)

	acct, err := env.sellers.GetByID(context.Background(), "acct_seller")
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.True(t, acct.ChargesEnabled)
	assert.True(t, acct.PayoutsEnabled)
}

func TestHandleWebhook_IgnoresUnknownEvents(t *testing.T) {
	env := newTestEnv(t)
	payload := []byte(`{"id":"evt_u","object":"event","api_version":"2023-10-16","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`)

	res, err := env.payments.HandleWebhook(context.Background(), payload,
		paymentstest.SignatureHeader(payload, webhookSecret, time.Now()))
	require.NoError(t, err)
	assert.True(t, res.Received)
	assert.True(t, res.Ignored)
}

func TestHandleWebhook_NotificationFailureDoesNotFail(t *testing.T) {
	notifier := &failingNotifier{}
	env := newTestEnvWithNotifier(t, notifier)
	env.seedListing(t, "listing-1", models.ListingStatusActive)

	_, err := env.deliver(t, paymentstest.CheckoutCompletedEvent("evt_1", "cs_1", "pi_1", "paid", 2500, 500, checkoutMetadata()))
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPaid, env.mustOrder(t, "HM-1042").Status)
	assert.Equal(t, 2, notifier.calls)
}

func TestHandleWebhook_DatastoreFailureStillAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	payload := paymentstest.CheckoutCompletedEvent("evt_1", "cs_1", "pi_1", "paid", 2500, 500, checkoutMetadata())
	res, err := env.payments.HandleWebhook(context.Background(), payload,
		paymentstest.SignatureHeader(payload, webhookSecret, time.Now()))
	require.NoError(t, err)
	assert.True(t, res.Received)
	assert.False(t, res.Duplicate)
}
