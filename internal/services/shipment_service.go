package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fabricmart/internal/models"
	"fabricmart/internal/repositories"

	"go.uber.org/zap"
)

// ShippingEvent is the shipping provider's webhook body.
type ShippingEvent struct {
	Event string            `json:"event"`
	Data  ShippingEventData `json:"data"`
}

// ShippingEventData carries a transaction (label) or tracking update.
type ShippingEventData struct {
	ObjectID            string          `json:"object_id"`
	Status              string          `json:"status"`
	TrackingNumber      string          `json:"tracking_number"`
	TrackingURL         string          `json:"tracking_url"`
	TrackingURLProvider string          `json:"tracking_url_provider"`
	LabelURL            string          `json:"label_url"`
	Carrier             string          `json:"carrier"`
	ServiceLevel        string          `json:"servicelevel_name"`
	Metadata            string          `json:"metadata"`
	TrackingStatus      *TrackingStatus `json:"tracking_status,omitempty"`
}

// TrackingStatus is the nested carrier status on track_updated events.
type TrackingStatus struct {
	Status string `json:"status"`
}

// ShipmentResult is the acknowledgement body. The provider always gets a 200.
type ShipmentResult struct {
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Status  string `json:"status,omitempty"`
}

// ShipmentService applies shipping provider events to the shipment sub-record.
type ShipmentService struct {
	orders    repositories.OrderRepository
	shipments repositories.ShipmentRepository
	notify    *Dispatcher
	logger    *zap.Logger
	now       Clock
}

// NewShipmentService creates a new ShipmentService.
func NewShipmentService(orders repositories.OrderRepository, shipments repositories.ShipmentRepository, notify *Dispatcher, logger *zap.Logger, now Clock) *ShipmentService {
	if now == nil {
		now = time.Now
	}
	return &ShipmentService{orders: orders, shipments: shipments, notify: notify, logger: logger, now: now}
}

// ParseCorrelation extracts the order id from metadata of the form "order:<ID>".
func ParseCorrelation(metadata string) (string, bool) {
	const prefix = "order:"
	m := strings.TrimSpace(metadata)
	if !strings.HasPrefix(strings.ToLower(m), prefix) {
		return "", false
	}
	id := strings.TrimSpace(m[len(prefix):])
	return id, id != ""
}

// MapShipmentStatus normalizes provider statuses. The second result is false for
// statuses that carry no state change.
func MapShipmentStatus(ev ShippingEvent) (models.ShipmentStatus, bool) {
	raw := ev.Data.Status
	if ev.Data.TrackingStatus != nil && ev.Data.TrackingStatus.Status != "" {
		raw = ev.Data.TrackingStatus.Status
	}
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "QUEUED", "WAITING", "CREATED":
		return models.ShipmentStatusCreated, true
	case "SUCCESS", "PURCHASED":
		return models.ShipmentStatusPurchased, true
	case "PRE_TRANSIT", "TRANSIT", "TRACKING":
		return models.ShipmentStatusTracking, true
	case "DELIVERED":
		return models.ShipmentStatusDelivered, true
	case "ERROR", "FAILURE", "RETURNED", "REFUNDED":
		return models.ShipmentStatusError, true
	}
	return "", false
}

// HandleEvent updates the shipment for the correlated order. Orphaned events are
// acknowledged without writing anything, and so are datastore failures.
func (s *ShipmentService) HandleEvent(ctx context.Context, ev ShippingEvent) *ShipmentResult {
	orderID, ok := ParseCorrelation(ev.Data.Metadata)
	if !ok {
		s.logger.Info("shipping event without order correlation", zap.String("event", ev.Event),
			zap.String("object_id", ev.Data.ObjectID))
		return &ShipmentResult{OK: true, Skipped: true}
	}
	log := s.logger.With(zap.String("order_id", orderID), zap.String("event", ev.Event))

	order, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, repositories.ErrOrderNotFound) {
		log.Info("shipping event for unknown order")
		return &ShipmentResult{OK: true, Skipped: true}
	}
	if err != nil {
		log.Error("failed to load order for shipping event", zap.Error(err))
		return &ShipmentResult{OK: true, Skipped: true}
	}

	shipment, err := s.shipments.GetByOrderID(ctx, orderID)
	if errors.Is(err, repositories.ErrShipmentNotFound) {
		shipment = &models.Shipment{OrderID: orderID, Status: models.ShipmentStatusCreated}
	} else if err != nil {
		log.Error("failed to load shipment", zap.Error(err))
		return &ShipmentResult{OK: true, Skipped: true}
	}

	if status, ok := MapShipmentStatus(ev); ok {
		if shipment.Status.Allows(status) {
			shipment.Status = status
		} else {
			log.Info("ignoring out-of-order shipment status",
				zap.String("current", string(shipment.Status)), zap.String("received", string(status)))
		}
	}
	mergeShipment(shipment, ev.Data)
	shipment.UpdatedAt = s.now()

	if err := s.shipments.Upsert(ctx, shipment); err != nil {
		log.Error("failed to store shipment", zap.Error(err))
		return &ShipmentResult{OK: true, Skipped: true}
	}

	s.cascade(ctx, order, shipment.Status)
	log.Info("shipment updated", zap.String("status", string(shipment.Status)))
	return &ShipmentResult{OK: true, Status: string(shipment.Status)}
}

// cascade promotes the order when the shipment reaches a milestone the order has not.
func (s *ShipmentService) cascade(ctx context.Context, order *models.Order, status models.ShipmentStatus) {
	var next models.OrderStatus
	switch status {
	case models.ShipmentStatusTracking:
		next = models.OrderStatusShipped
	case models.ShipmentStatusDelivered:
		next = models.OrderStatusDelivered
	default:
		return
	}
	if !order.Status.CanTransitionTo(next) {
		return
	}
	changed, err := s.orders.TransitionStatus(ctx, order.ID, []models.OrderStatus{order.Status}, next, nil)
	if err != nil {
		s.logger.Error("failed to cascade shipment status", zap.String("order_id", order.ID), zap.Error(err))
		return
	}
	if !changed {
		return
	}

	kind, title, body := models.NotificationOrderShipped, "Order shipped", fmt.Sprintf("Order %s is on its way.", order.ID)
	if next == models.OrderStatusDelivered {
		kind, title, body = models.NotificationOrderDelivered, "Order delivered", fmt.Sprintf("Order %s was delivered.", order.ID)
	}
	s.notify.Send(ctx, order.BuyerID, kind, title, body, orderHref(order.ID))
}

func mergeShipment(sh *models.Shipment, d ShippingEventData) {
	if d.ObjectID != "" {
		sh.ProviderObjectID = d.ObjectID
	}
	if d.Carrier != "" {
		sh.Carrier = d.Carrier
	}
	if d.ServiceLevel != "" {
		sh.ServiceLevel = d.ServiceLevel
	}
	if d.TrackingNumber != "" {
		sh.TrackingNumber = d.TrackingNumber
	}
	if url := resolveField(d.TrackingURL, d.TrackingURLProvider); url != "" {
		sh.TrackingURL = url
	}
	if d.LabelURL != "" {
		sh.LabelURL = d.LabelURL
	}
}
