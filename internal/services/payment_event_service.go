package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fabricmart/internal/apperr"
	"fabricmart/internal/models"
	"fabricmart/internal/repositories"
	"fabricmart/pkg/money"
	"fabricmart/pkg/payments"

	"go.uber.org/zap"
)

// WebhookResult is the acknowledgement body returned to the processor.
type WebhookResult struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
	Ignored   bool `json:"ignored,omitempty"`
}

// PaymentEventService applies verified processor events to orders, listings and sellers.
type PaymentEventService struct {
	verifier payments.EventVerifier
	gateway  payments.Gateway
	orders   repositories.OrderRepository
	listings repositories.ListingRepository
	sessions repositories.CheckoutSessionRepository
	events   repositories.ProcessedEventRepository
	sellers  repositories.SellerAccountRepository
	notify   *Dispatcher
	currency string
	logger   *zap.Logger
	now      Clock
}

// PaymentEventDeps groups the collaborators of PaymentEventService.
type PaymentEventDeps struct {
	Verifier payments.EventVerifier
	Gateway  payments.Gateway
	Orders   repositories.OrderRepository
	Listings repositories.ListingRepository
	Sessions repositories.CheckoutSessionRepository
	Events   repositories.ProcessedEventRepository
	Sellers  repositories.SellerAccountRepository
	Notify   *Dispatcher
}

// NewPaymentEventService creates a new PaymentEventService.
func NewPaymentEventService(deps PaymentEventDeps, currency string, logger *zap.Logger, now Clock) *PaymentEventService {
	if now == nil {
		now = time.Now
	}
	return &PaymentEventService{
		verifier: deps.Verifier,
		gateway:  deps.Gateway,
		orders:   deps.Orders,
		listings: deps.Listings,
		sessions: deps.Sessions,
		events:   deps.Events,
		sellers:  deps.Sellers,
		notify:   deps.Notify,
		currency: currency,
		logger:   logger,
		now:      now,
	}
}

// HandleWebhook verifies and applies one processor delivery. The only error it returns
// is a signature failure; every other problem is logged and acknowledged so the
// processor stops redelivering.
func (s *PaymentEventService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	ev, err := s.verifier.Verify(payload, signature)
	if err != nil {
		s.logger.Warn("webhook signature verification failed", zap.Error(err))
		return nil, &apperr.Error{Kind: apperr.KindValidation, Message: "invalid webhook signature", Err: err}
	}

	log := s.logger.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))

	seen, err := s.events.Seen(ctx, ev.ID)
	if err != nil {
		log.Error("failed to check processed events", zap.Error(err))
	} else if seen {
		log.Info("duplicate webhook event")
		return &WebhookResult{Received: true, Duplicate: true}, nil
	}

	var handleErr error
	result := &WebhookResult{Received: true}
	switch ev.Type {
	case payments.EventCheckoutCompleted:
		handleErr = s.checkoutCompleted(ctx, ev, false)
	case payments.EventAsyncPaymentSucceeded:
		handleErr = s.asyncPaymentSucceeded(ctx, ev)
	case payments.EventAsyncPaymentFailed, payments.EventCheckoutExpired:
		handleErr = s.checkoutAbandoned(ctx, ev)
	case payments.EventAccountUpdated:
		handleErr = s.accountUpdated(ctx, ev)
	default:
		log.Debug("ignoring webhook event")
		result.Ignored = true
	}

	if handleErr != nil {
		log.Error("failed to apply webhook event", zap.Error(handleErr))
		return result, nil
	}
	if _, err := s.events.MarkProcessed(ctx, ev.ID, ev.Type); err != nil {
		log.Error("failed to record processed event", zap.Error(err))
	}
	return result, nil
}

func (s *PaymentEventService) checkoutCompleted(ctx context.Context, ev *payments.Event, forcePaid bool) error {
	cs, err := payments.DecodeCheckoutSession(ev.Raw)
	if err != nil {
		return err
	}
	meta := cs.Metadata

	items, err := DecodeItemSnapshot(meta[metaItems])
	if err != nil {
		s.logger.Warn("unreadable item snapshot", zap.String("session_id", cs.SessionID), zap.Error(err))
		items = []models.ItemSnapshot{}
	}
	split, err := DecodeSellerSplit(meta[metaSellers])
	if err != nil {
		s.logger.Warn("unreadable seller split", zap.String("session_id", cs.SessionID), zap.Error(err))
		split = map[string]int64{}
	}

	subtotal, ok := metaInt(meta, metaSubtotal)
	if !ok {
		subtotal = cs.AmountSubtotal
	}
	shipping, ok := metaInt(meta, metaShipping)
	if !ok {
		shipping = cs.ShippingAmount
	}

	status := models.OrderStatusPending
	if forcePaid || cs.PaymentStatus == payments.PaymentStatusPaid {
		status = models.OrderStatusPaid
	}

	order := &models.Order{
		ID:                resolveField(meta[metaOrderID], cs.ClientReferenceID, newOrderID()),
		CheckoutSessionID: cs.SessionID,
		EventID:           ev.ID,
		BuyerID:           resolveField(meta[metaBuyerID], meta[metaUserID]),
		BuyerEmail:        resolveField(meta[metaBuyerEmail], cs.CustomerDetailsEmail, cs.CustomerEmail),
		SellerID:          resolveField(meta[metaSellerID], firstSeller(split)),
		ListingID:         meta[metaListingID],
		SubtotalCents:     subtotal,
		ShippingCents:     shipping,
		TotalCents:        subtotal + shipping,
		Currency:          resolveField(cs.Currency, s.currency),
		Status:            status,
		Items:             items,
		SellerSplit:       split,
		CreatedAt:         s.now(),
	}
	if cs.PaymentIntentID != "" {
		pi := cs.PaymentIntentID
		order.PaymentIntentID = &pi
	}

	created, err := s.orders.CreateIfAbsent(ctx, order)
	if err != nil {
		return err
	}
	if !created {
		s.logger.Info("order already recorded for payment",
			zap.String("order_id", order.ID), zap.String("session_id", cs.SessionID))
		return nil
	}

	s.logger.Info("order recorded",
		zap.String("order_id", order.ID), zap.String("status", string(order.Status)),
		zap.Int64("total_cents", order.TotalCents))

	if order.Status == models.OrderStatusPaid {
		s.settle(ctx, order)
	}
	return nil
}

func (s *PaymentEventService) asyncPaymentSucceeded(ctx context.Context, ev *payments.Event) error {
	cs, err := payments.DecodeCheckoutSession(ev.Raw)
	if err != nil {
		return err
	}
	order, err := s.orders.GetByCheckoutSession(ctx, cs.SessionID)
	if errors.Is(err, repositories.ErrOrderNotFound) {
		return s.checkoutCompleted(ctx, ev, true)
	}
	if err != nil {
		return err
	}

	changed, err := s.orders.TransitionStatus(ctx, order.ID,
		[]models.OrderStatus{models.OrderStatusPending}, models.OrderStatusPaid, nil)
	if err != nil {
		return err
	}
	if !changed {
		s.logger.Info("async payment for order not pending", zap.String("order_id", order.ID),
			zap.String("status", string(order.Status)))
		return nil
	}
	order.Status = models.OrderStatusPaid
	s.settle(ctx, order)
	return nil
}

func (s *PaymentEventService) checkoutAbandoned(ctx context.Context, ev *payments.Event) error {
	cs, err := payments.DecodeCheckoutSession(ev.Raw)
	if err != nil {
		return err
	}
	orderID := resolveField(cs.Metadata[metaOrderID], cs.ClientReferenceID)

	order, err := s.orders.GetByCheckoutSession(ctx, cs.SessionID)
	switch {
	case err == nil:
		orderID = order.ID
		if _, err := s.orders.TransitionStatus(ctx, order.ID,
			[]models.OrderStatus{models.OrderStatusPending}, models.OrderStatusCanceled,
			map[string]interface{}{"canceled_at": s.now()}); err != nil {
			return err
		}
	case !errors.Is(err, repositories.ErrOrderNotFound):
		return err
	}

	listingIDs := []string{}
	if orderID != "" {
		listingIDs = orderListingIDs(ctx, s.sessions, &models.Order{ID: orderID, ListingID: cs.Metadata[metaListingID]})
	}
	for _, id := range listingIDs {
		if _, err := s.listings.ReleaseHold(ctx, id); err != nil {
			s.logger.Warn("failed to release cart hold", zap.String("listing_id", id), zap.Error(err))
		}
	}
	s.logger.Info("checkout abandoned", zap.String("order_id", orderID), zap.Int("released", len(listingIDs)))
	return nil
}

func (s *PaymentEventService) accountUpdated(ctx context.Context, ev *payments.Event) error {
	acct, err := payments.DecodeAccount(ev.Raw)
	if err != nil {
		return err
	}
	if acct.AccountID == "" {
		return fmt.Errorf("account event without id")
	}
	return s.sellers.Upsert(ctx, &models.SellerAccount{
		AccountID:        acct.AccountID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	})
}

// settle flips the order's listings to SOLD and notifies both parties. Losing the flip
// to another order refunds this one.
func (s *PaymentEventService) settle(ctx context.Context, order *models.Order) {
	var flipped []string
	lost := false
	for _, id := range orderListingIDs(ctx, s.sessions, order) {
		sold, err := s.listings.MarkSold(ctx, id)
		if err != nil {
			s.logger.Error("failed to mark listing sold", zap.String("order_id", order.ID),
				zap.String("listing_id", id), zap.Error(err))
			continue
		}
		if sold {
			flipped = append(flipped, id)
			continue
		}
		if _, err := s.listings.GetByID(ctx, id); errors.Is(err, repositories.ErrListingNotFound) {
			s.logger.Warn("listing unknown to this store", zap.String("order_id", order.ID), zap.String("listing_id", id))
			continue
		}
		s.logger.Warn("listing already sold to another order", zap.String("order_id", order.ID), zap.String("listing_id", id))
		lost = true
	}

	if lost {
		s.compensate(ctx, order, flipped)
		return
	}

	total := money.Format(order.TotalCents)
	s.notify.Send(ctx, order.BuyerID, models.NotificationOrderPaid, "Order confirmed",
		fmt.Sprintf("Your order %s for $%s is confirmed.", order.ID, total), orderHref(order.ID))
	s.notify.Send(ctx, order.SellerID, models.NotificationItemSold, "You made a sale",
		fmt.Sprintf("Order %s has been paid. Please prepare it for shipment.", order.ID), orderHref(order.ID))
}

func (s *PaymentEventService) compensate(ctx context.Context, order *models.Order, flipped []string) {
	log := s.logger.With(zap.String("order_id", order.ID))

	if _, err := s.gateway.Refund(ctx, payments.RefundInput{
		PaymentIntentID: order.PaymentRef(),
		Reason:          "requested_by_customer",
		IdempotencyKey:  "race-" + order.ID,
	}); err != nil {
		log.Error("compensating refund failed; order left PAID for reconciliation", zap.Error(err))
		return
	}

	changed, err := s.orders.TransitionStatus(ctx, order.ID,
		[]models.OrderStatus{models.OrderStatusPaid}, models.OrderStatusRefunded,
		map[string]interface{}{"refunded_at": s.now()})
	if err != nil || !changed {
		log.Error("refunded order could not be marked REFUNDED", zap.Bool("changed", changed), zap.Error(err))
	}
	for _, id := range flipped {
		if _, err := s.listings.Reopen(ctx, id); err != nil {
			log.Warn("failed to reopen listing", zap.String("listing_id", id), zap.Error(err))
		}
	}

	s.notify.Send(ctx, order.BuyerID, models.NotificationOrderRefunded, "Item no longer available",
		fmt.Sprintf("An item in order %s sold before your payment completed. You have been refunded.", order.ID),
		orderHref(order.ID))
	log.Info("lost listing race refunded")
}
