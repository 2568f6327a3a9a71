package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"fabricmart/internal/apperr"
	"fabricmart/internal/models"
	"fabricmart/internal/repositories"
	"fabricmart/pkg/money"
	"fabricmart/pkg/payments"

	"go.uber.org/zap"
)

// DefaultCancelWindow is how long after payment a buyer may cancel.
const DefaultCancelWindow = 30 * time.Minute

// OrderDetail is the admin view of an order.
type OrderDetail struct {
	Order    *models.Order    `json:"order"`
	Shipment *models.Shipment `json:"shipment,omitempty"`
}

// PayoutTransfer records one seller transfer.
type PayoutTransfer struct {
	Account    string `json:"account"`
	Amount     int64  `json:"amount"`
	TransferID string `json:"transfer_id"`
}

// PayoutResult is returned by SendPayouts.
type PayoutResult struct {
	OrderID   string           `json:"order_id"`
	Transfers []PayoutTransfer `json:"transfers"`
}

// OrderService handles business logic for order cancellation, refunds and admin changes.
type OrderService struct {
	orders       repositories.OrderRepository
	listings     repositories.ListingRepository
	sessions     repositories.CheckoutSessionRepository
	shipments    repositories.ShipmentRepository
	sellers      repositories.SellerAccountRepository
	gateway      payments.Gateway
	notify       *Dispatcher
	cancelWindow time.Duration
	holdTTL      time.Duration
	logger       *zap.Logger
	now          Clock
}

// OrderDeps groups the collaborators of OrderService.
type OrderDeps struct {
	Orders    repositories.OrderRepository
	Listings  repositories.ListingRepository
	Sessions  repositories.CheckoutSessionRepository
	Shipments repositories.ShipmentRepository
	Sellers   repositories.SellerAccountRepository
	Gateway   payments.Gateway
	Notify    *Dispatcher
}

// NewOrderService creates a new OrderService.
func NewOrderService(deps OrderDeps, cancelWindow, holdTTL time.Duration, logger *zap.Logger, now Clock) *OrderService {
	if cancelWindow <= 0 {
		cancelWindow = DefaultCancelWindow
	}
	if now == nil {
		now = time.Now
	}
	return &OrderService{
		orders:       deps.Orders,
		listings:     deps.Listings,
		sessions:     deps.Sessions,
		shipments:    deps.Shipments,
		sellers:      deps.Sellers,
		gateway:      deps.Gateway,
		notify:       deps.Notify,
		cancelWindow: cancelWindow,
		holdTTL:      holdTTL,
		logger:       logger,
		now:          now,
	}
}

func (s *OrderService) load(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrOrderNotFound) {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load order", err)
	}
	return order, nil
}

// GetForBuyer returns the order if requesterID bought it.
func (s *OrderService) GetForBuyer(ctx context.Context, requesterID, id string) (*models.Order, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.BuyerID == "" || order.BuyerID != requesterID {
		return nil, apperr.Forbidden("you do not have access to this order")
	}
	return order, nil
}

// GetDetail returns the order with its shipment for operators.
func (s *OrderService) GetDetail(ctx context.Context, id string) (*OrderDetail, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &OrderDetail{Order: order}
	shipment, err := s.shipments.GetByOrderID(ctx, id)
	switch {
	case err == nil:
		detail.Shipment = shipment
	case !errors.Is(err, repositories.ErrShipmentNotFound):
		return nil, apperr.Internal("failed to load shipment", err)
	}
	return detail, nil
}

// Cancel cancels a paid order on the buyer's behalf. claimedBuyerID is the buyer named
// in the request body, if any; it must agree with the authenticated requester. The refund
// is issued first and the order is only written once the processor has accepted it.
func (s *OrderService) Cancel(ctx context.Context, requesterID, id, claimedBuyerID string) (*models.Order, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.BuyerID == "" || order.BuyerID != requesterID || (claimedBuyerID != "" && claimedBuyerID != requesterID) {
		return nil, apperr.Forbidden("you cannot cancel this order")
	}
	if order.Status == models.OrderStatusCanceled {
		return nil, apperr.ErrAlreadyCanceled
	}
	if order.Status != models.OrderStatusPaid {
		return nil, apperr.ErrTooLate
	}
	if s.now().Sub(order.CreatedAt) > s.cancelWindow {
		return nil, apperr.ErrWindowExpired
	}

	log := s.logger.With(zap.String("order_id", order.ID))

	if _, err := s.gateway.Refund(ctx, payments.RefundInput{
		PaymentIntentID: order.PaymentRef(),
		Reason:          "requested_by_customer",
		IdempotencyKey:  "cancel-" + order.ID,
	}); err != nil {
		log.Error("cancellation refund failed", zap.Error(err))
		return nil, apperr.Upstream("refund failed", err)
	}

	canceledAt := s.now()
	changed, err := s.orders.TransitionStatus(ctx, order.ID,
		[]models.OrderStatus{models.OrderStatusPaid}, models.OrderStatusCanceled,
		map[string]interface{}{"canceled_at": canceledAt})
	if err != nil {
		log.Error("refund issued but order not marked canceled", zap.Error(err))
		return nil, apperr.Internal("failed to cancel order", err)
	}
	if !changed {
		log.Error("refund issued but order status moved concurrently")
		return nil, apperr.ErrTooLate
	}
	order.Status = models.OrderStatusCanceled
	order.CanceledAt = &canceledAt

	s.reopenListings(ctx, order)

	s.notify.Send(ctx, order.BuyerID, models.NotificationOrderCanceled, "Order canceled",
		fmt.Sprintf("Order %s was canceled and $%s is being refunded.", order.ID, money.Format(order.TotalCents)),
		orderHref(order.ID))
	s.notify.Send(ctx, order.SellerID, models.NotificationOrderCanceled, "Order canceled by buyer",
		fmt.Sprintf("The buyer canceled order %s. The item is listed again.", order.ID), orderHref(order.ID))

	log.Info("order canceled by buyer")
	return order, nil
}

// UpdateStatus applies an operator status change, enforcing the transition table.
func (s *OrderService) UpdateStatus(ctx context.Context, id, status string) (*models.Order, error) {
	next, err := models.ParseOrderStatus(status)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(next) {
		return nil, apperr.Wrap(apperr.ErrIllegalTransition, fmt.Errorf("%s -> %s", order.Status, next))
	}

	at := s.now()
	extra := map[string]interface{}{}
	switch next {
	case models.OrderStatusCanceled:
		extra["canceled_at"] = at
		order.CanceledAt = &at
	case models.OrderStatusRefunded:
		extra["refunded_at"] = at
		order.RefundedAt = &at
	}

	changed, err := s.orders.TransitionStatus(ctx, order.ID, []models.OrderStatus{order.Status}, next, extra)
	if err != nil {
		return nil, apperr.Internal("failed to update order status", err)
	}
	if !changed {
		return nil, apperr.Conflict("order status changed concurrently")
	}

	s.logger.Info("order status updated", zap.String("order_id", order.ID),
		zap.String("from", string(order.Status)), zap.String("to", string(next)))
	order.Status = next

	switch next {
	case models.OrderStatusShipped:
		s.notify.Send(ctx, order.BuyerID, models.NotificationOrderShipped, "Order shipped",
			fmt.Sprintf("Order %s is on its way.", order.ID), orderHref(order.ID))
	case models.OrderStatusDelivered:
		s.notify.Send(ctx, order.BuyerID, models.NotificationOrderDelivered, "Order delivered",
			fmt.Sprintf("Order %s was delivered.", order.ID), orderHref(order.ID))
	}
	return order, nil
}

// Refund refunds an order regardless of the buyer cancellation window.
func (s *OrderService) Refund(ctx context.Context, id, reason string) (*models.Order, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusRefunded {
		return nil, apperr.Conflict("order is already refunded")
	}
	if !order.Status.CanTransitionTo(models.OrderStatusRefunded) {
		return nil, apperr.Wrap(apperr.ErrIllegalTransition, fmt.Errorf("%s -> %s", order.Status, models.OrderStatusRefunded))
	}

	log := s.logger.With(zap.String("order_id", order.ID))
	if _, err := s.gateway.Refund(ctx, payments.RefundInput{
		PaymentIntentID: order.PaymentRef(),
		Reason:          resolveField(reason, "requested_by_customer"),
		IdempotencyKey:  "refund-" + order.ID,
	}); err != nil {
		log.Error("admin refund failed", zap.Error(err))
		return nil, apperr.Upstream("refund failed", err)
	}

	refundedAt := s.now()
	changed, err := s.orders.TransitionStatus(ctx, order.ID,
		[]models.OrderStatus{order.Status}, models.OrderStatusRefunded,
		map[string]interface{}{"refunded_at": refundedAt})
	if err != nil {
		log.Error("refund issued but order not marked refunded", zap.Error(err))
		return nil, apperr.Internal("failed to mark order refunded", err)
	}
	if !changed {
		log.Error("refund issued but order status moved concurrently")
		return nil, apperr.Conflict("order status changed concurrently")
	}

	if !order.Status.HasShipped() {
		s.reopenListings(ctx, order)
	}
	order.Status = models.OrderStatusRefunded
	order.RefundedAt = &refundedAt

	s.notify.Send(ctx, order.BuyerID, models.NotificationOrderRefunded, "Order refunded",
		fmt.Sprintf("Order %s has been refunded ($%s).", order.ID, money.Format(order.TotalCents)), orderHref(order.ID))

	log.Info("order refunded by operator")
	return order, nil
}

// MarkListingsSold flips every listing of a paid order to SOLD and reports how many changed.
func (s *OrderService) MarkListingsSold(ctx context.Context, id string) (int, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return 0, err
	}
	if order.Status == models.OrderStatusPending || order.Status.IsTerminal() {
		return 0, apperr.Conflict(fmt.Sprintf("order is %s", order.Status))
	}
	flipped := 0
	for _, listingID := range orderListingIDs(ctx, s.sessions, order) {
		ok, err := s.listings.MarkSold(ctx, listingID)
		if err != nil {
			return flipped, apperr.Internal("failed to mark listing sold", err)
		}
		if ok {
			flipped++
		}
	}
	s.logger.Info("listings marked sold", zap.String("order_id", order.ID), zap.Int("flipped", flipped))
	return flipped, nil
}

// SendPayouts transfers each seller's share of the order. Transfers carry per-seller
// idempotency keys so a retried call after a partial failure does not pay twice.
func (s *OrderService) SendPayouts(ctx context.Context, id string) (*PayoutResult, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.PayoutsSentAt != nil {
		return nil, apperr.ErrAlreadyPaidOut
	}
	if order.Status == models.OrderStatusPending || order.Status.IsTerminal() {
		return nil, apperr.Conflict(fmt.Sprintf("order is %s and cannot be paid out", order.Status))
	}
	if len(order.SellerSplit) == 0 {
		return nil, apperr.Validation("order has no seller split")
	}

	accounts := make([]string, 0, len(order.SellerSplit))
	for acct := range order.SellerSplit {
		accounts = append(accounts, acct)
	}
	sort.Strings(accounts)

	for _, acct := range accounts {
		seller, err := s.sellers.GetByID(ctx, acct)
		if err != nil {
			return nil, apperr.Internal("failed to load seller account", err)
		}
		if seller != nil && !seller.PayoutsEnabled {
			return nil, apperr.Conflict(fmt.Sprintf("seller %s cannot receive payouts yet", acct))
		}
	}

	result := &PayoutResult{OrderID: order.ID}
	for _, acct := range accounts {
		amount := order.SellerSplit[acct]
		if amount <= 0 {
			continue
		}
		tr, err := s.gateway.Transfer(ctx, payments.TransferInput{
			Destination:    acct,
			Amount:         amount,
			Currency:       order.Currency,
			TransferGroup:  order.ID,
			IdempotencyKey: fmt.Sprintf("payout-%s-%s", order.ID, acct),
		})
		if err != nil {
			s.logger.Error("seller transfer failed", zap.String("order_id", order.ID),
				zap.String("account", acct), zap.Error(err))
			return nil, apperr.Upstream("transfer failed", err)
		}
		result.Transfers = append(result.Transfers, PayoutTransfer{Account: acct, Amount: amount, TransferID: tr.ID})
	}

	marked, err := s.orders.MarkPayoutsSent(ctx, order.ID, s.now())
	if err != nil {
		return nil, apperr.Internal("failed to record payouts", err)
	}
	if !marked {
		return nil, apperr.ErrAlreadyPaidOut
	}

	for _, t := range result.Transfers {
		s.notify.Send(ctx, t.Account, models.NotificationPayoutSent, "Payout sent",
			fmt.Sprintf("$%s for order %s is on its way to your account.", money.Format(t.Amount), order.ID), orderHref(order.ID))
	}
	s.logger.Info("payouts sent", zap.String("order_id", order.ID), zap.Int("transfers", len(result.Transfers)))
	return result, nil
}

// ReleaseStaleHolds returns cart holds older than the hold TTL to ACTIVE.
func (s *OrderService) ReleaseStaleHolds(ctx context.Context) (int64, error) {
	n, err := s.listings.ReleaseStaleHolds(ctx, s.now().Add(-s.holdTTL))
	if err != nil {
		return 0, apperr.Internal("failed to release stale holds", err)
	}
	if n > 0 {
		s.logger.Info("released stale cart holds", zap.Int64("count", n))
	}
	return n, nil
}

func (s *OrderService) reopenListings(ctx context.Context, order *models.Order) {
	for _, id := range orderListingIDs(ctx, s.sessions, order) {
		if _, err := s.listings.Reopen(ctx, id); err != nil {
			s.logger.Warn("failed to reopen listing", zap.String("order_id", order.ID),
				zap.String("listing_id", id), zap.Error(err))
		}
	}
}
