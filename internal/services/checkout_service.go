package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fabricmart/internal/apperr"
	"fabricmart/internal/models"
	"fabricmart/internal/repositories"
	"fabricmart/pkg/money"
	"fabricmart/pkg/payments"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// CheckoutItem is one cart line as sent by the storefront.
type CheckoutItem struct {
	ListingID     string       `json:"listing_id" validate:"max=64"`
	Name          string       `json:"name" validate:"required,max=200"`
	Price         money.Amount `json:"price"`
	Quantity      int          `json:"quantity"`
	SellerAccount string       `json:"seller_account" validate:"max=255"`
}

// CheckoutRequest starts a hosted checkout for a cart.
type CheckoutRequest struct {
	OrderID       string         `json:"orderId" validate:"omitempty,max=64,printascii"`
	BuyerID       string         `json:"buyer_id" validate:"max=64"`
	CustomerEmail string         `json:"customer_email" validate:"omitempty,email"`
	LineItems     []CheckoutItem `json:"line_items" validate:"dive"`
	Shipping      money.Amount   `json:"shipping"`
	SellersJSON   string         `json:"sellers_json"`
	SuccessPath   string         `json:"success_path" validate:"omitempty,startswith=/"`
	CancelPath    string         `json:"cancel_path" validate:"omitempty,startswith=/"`
}

// CheckoutSessionResponse is returned to the storefront for the redirect.
type CheckoutSessionResponse struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	OrderID string `json:"order_id"`
}

// CheckoutConfig holds the settings checkout needs from the environment.
type CheckoutConfig struct {
	Currency string
	SiteURL  string
	HoldTTL  time.Duration
}

// CheckoutService creates processor checkout sessions and reserves the listings in the cart.
type CheckoutService struct {
	gateway  payments.Gateway
	listings repositories.ListingRepository
	sessions repositories.CheckoutSessionRepository
	cfg      CheckoutConfig
	validate *validator.Validate
	logger   *zap.Logger
	now      Clock
}

// NewCheckoutService creates a new CheckoutService.
func NewCheckoutService(
	gateway payments.Gateway,
	listings repositories.ListingRepository,
	sessions repositories.CheckoutSessionRepository,
	cfg CheckoutConfig,
	logger *zap.Logger,
	now Clock,
) *CheckoutService {
	if now == nil {
		now = time.Now
	}
	return &CheckoutService{
		gateway:  gateway,
		listings: listings,
		sessions: sessions,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
		now:      now,
	}
}

// CreateSession validates the cart, holds its listings and creates the processor session.
func (s *CheckoutService) CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSessionResponse, error) {
	if len(req.LineItems) == 0 {
		return nil, apperr.Validation("cart is empty")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, apperr.Validation(fmt.Sprintf("invalid checkout request: %v", err))
	}
	if strings.HasPrefix(req.SuccessPath, "//") || strings.HasPrefix(req.CancelPath, "//") {
		return nil, apperr.Validation("redirect paths must be site-relative")
	}

	var subtotal int64
	split := map[string]int64{}
	snapshot := make([]models.ItemSnapshot, 0, len(req.LineItems))
	lineItems := make([]payments.LineItem, 0, len(req.LineItems))
	var listingIDs []string
	for i, it := range req.LineItems {
		if err := money.CheckQuantity(it.Quantity); err != nil {
			return nil, apperr.Validation(fmt.Sprintf("line item %d: %v", i+1, err))
		}
		if err := money.CheckMinor(it.Price.Int64()); err != nil {
			return nil, apperr.Validation(fmt.Sprintf("line item %d: %v", i+1, err))
		}
		line := it.Price.Int64() * int64(it.Quantity)
		subtotal += line
		if it.SellerAccount != "" {
			split[it.SellerAccount] += line
		}
		if it.ListingID != "" {
			listingIDs = append(listingIDs, it.ListingID)
		}
		snapshot = append(snapshot, models.ItemSnapshot{Name: it.Name, Quantity: it.Quantity})
		lineItems = append(lineItems, payments.LineItem{Name: it.Name, UnitAmount: it.Price.Int64(), Quantity: int64(it.Quantity)})
	}
	if subtotal > money.MaxMinor {
		return nil, apperr.Validation(money.ErrTooLarge.Error())
	}
	shipping := req.Shipping.Int64()
	if shipping < 0 || shipping > money.MaxMinor {
		return nil, apperr.Validation("invalid shipping amount")
	}

	if req.SellersJSON != "" {
		explicit, err := DecodeSellerSplit(req.SellersJSON)
		if err != nil {
			return nil, apperr.Validation("sellers_json is not a valid seller split")
		}
		split = explicit
	}
	sellers := EncodeSellerSplit(split)
	if len(sellers) > maxMetadataValue {
		return nil, apperr.Validation("too many sellers in one cart")
	}

	orderID := resolveField(req.OrderID, newOrderID())
	metadata := map[string]string{
		metaOrderID:  orderID,
		metaItems:    EncodeItemSnapshot(snapshot),
		metaSellers:  sellers,
		metaSubtotal: strconv.FormatInt(subtotal, 10),
		metaShipping: strconv.FormatInt(shipping, 10),
	}
	if len(listingIDs) > 0 {
		metadata[metaListingID] = listingIDs[0]
	}
	if seller := firstSeller(split); seller != "" {
		metadata[metaSellerID] = seller
	}
	if req.BuyerID != "" {
		metadata[metaBuyerID] = req.BuyerID
	}
	if req.CustomerEmail != "" {
		metadata[metaBuyerEmail] = req.CustomerEmail
	}

	held, err := s.holdListings(ctx, orderID, req.BuyerID, listingIDs)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payments.CheckoutSessionInput{
		OrderID:        orderID,
		Currency:       s.cfg.Currency,
		CustomerEmail:  req.CustomerEmail,
		SuccessURL:     s.cfg.SiteURL + resolveField(req.SuccessPath, "/checkout/success") + sessionPlaceholder(req.SuccessPath),
		CancelURL:      s.cfg.SiteURL + resolveField(req.CancelPath, "/cart"),
		LineItems:      lineItems,
		ShippingAmount: shipping,
		Metadata:       metadata,
	})
	if err != nil {
		s.logger.Error("checkout session creation failed", zap.String("order_id", orderID), zap.Error(err))
		s.releaseListings(ctx, held)
		return nil, apperr.Upstream("payment processor unavailable", err)
	}

	if err := s.sessions.Save(ctx, &models.CheckoutSession{
		OrderID:    orderID,
		SessionID:  session.ID,
		BuyerID:    req.BuyerID,
		ListingIDs: listingIDs,
	}); err != nil {
		s.logger.Error("failed to index checkout session",
			zap.String("order_id", orderID), zap.String("session_id", session.ID), zap.Error(err))
	}

	s.logger.Info("checkout session created",
		zap.String("order_id", orderID), zap.String("session_id", session.ID),
		zap.Int64("subtotal", subtotal), zap.Int64("shipping", shipping))

	return &CheckoutSessionResponse{ID: session.ID, URL: session.URL, OrderID: orderID}, nil
}

// holdListings reserves every listing in the cart. Listings unknown to the local store
// are not held. A retry of the same order by the same buyer renews its own holds.
func (s *CheckoutService) holdListings(ctx context.Context, orderID, buyerID string, ids []string) ([]string, error) {
	now := s.now()
	staleBefore := now.Add(-s.cfg.HoldTTL)
	held := make([]string, 0, len(ids))
	fail := func(err error) ([]string, error) {
		s.releaseListings(ctx, held)
		return nil, err
	}

	var prior *models.CheckoutSession
	if cs, err := s.sessions.GetByOrderID(ctx, orderID); err == nil && (cs.BuyerID == "" || cs.BuyerID == buyerID) {
		prior = cs
	}

	for _, id := range ids {
		ok, err := s.listings.Hold(ctx, id, now, staleBefore)
		if err != nil {
			return fail(apperr.Internal("failed to reserve listing", err))
		}
		if ok {
			held = append(held, id)
			continue
		}

		listing, err := s.listings.GetByID(ctx, id)
		if errors.Is(err, repositories.ErrListingNotFound) {
			s.logger.Debug("listing unknown to this store, not held", zap.String("listing_id", id))
			continue
		}
		if err != nil {
			return fail(apperr.Internal("failed to reserve listing", err))
		}
		if listing.Status == models.ListingStatusInCart && prior != nil && containsString(prior.ListingIDs, id) {
			refreshed, err := s.listings.RefreshHold(ctx, id, now)
			if err != nil {
				return fail(apperr.Internal("failed to reserve listing", err))
			}
			if refreshed {
				held = append(held, id)
				continue
			}
		}
		return fail(apperr.Wrap(apperr.ErrListingUnavailable, fmt.Errorf("listing %s", id)))
	}
	return held, nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (s *CheckoutService) releaseListings(ctx context.Context, ids []string) {
	for _, id := range ids {
		if _, err := s.listings.ReleaseHold(ctx, id); err != nil {
			s.logger.Warn("failed to release cart hold", zap.String("listing_id", id), zap.Error(err))
		}
	}
}

func sessionPlaceholder(path string) string {
	if strings.Contains(path, "{CHECKOUT_SESSION_ID}") {
		return ""
	}
	if strings.Contains(path, "?") {
		return "&session_id={CHECKOUT_SESSION_ID}"
	}
	return "?session_id={CHECKOUT_SESSION_ID}"
}
