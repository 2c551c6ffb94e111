package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"shop-backend/internal/gateway"
	"shop-backend/internal/models"
	"shop-backend/internal/store"
	"shop-backend/internal/util"

	"go.uber.org/zap"
)

// Session metadata keys. The processor reconstructs the order from these
// alone, so the cart may already be gone when the event arrives.
const (
	metaUserID          = "userId"
	metaCartID          = "cartId"
	metaShippingAddress = "shippingAddress"
)

// CheckoutService is the checkout session coordinator. It snapshots the cart,
// creates a hosted payment session and hands the redirect back to the client.
// It never touches stock, orders or the cart itself; those belong to the
// completion sequence after confirmed payment.
type CheckoutService struct {
	store     Datastore
	gateway   gateway.Gateway
	clientURL string
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout coordinator
func NewCheckoutService(ds Datastore, gw gateway.Gateway, clientURL string) *CheckoutService {
	return &CheckoutService{
		store:     ds,
		gateway:   gw,
		clientURL: clientURL,
		logger:    util.NamedLogger("checkout"),
	}
}

// CheckoutSessionResult is returned to the client after session creation.
type CheckoutSessionResult struct {
	RedirectURL string `json:"redirect_url"`
	SessionID   string `json:"session_id"`
}

// CreateCheckoutSession builds a cart snapshot with current catalog prices
// and creates a payment session for it.
func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, userID int64, locale string, addr models.ShippingAddress) (*CheckoutSessionResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateCheckoutSession")
	defer span.End()

	if err := validateAddress(addr); err != nil {
		util.CheckoutSessionsFailedTotal.WithLabelValues("invalid_address").Inc()
		return nil, err
	}
	if locale == "" {
		locale = "en"
	}

	cart, err := s.store.GetCartByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.CheckoutSessionsFailedTotal.WithLabelValues("cart_missing").Inc()
			return nil, fmt.Errorf("cart for user %d: %w", userID, ErrNotFound)
		}
		return nil, err
	}
	if len(cart.Items) == 0 {
		util.CheckoutSessionsFailedTotal.WithLabelValues("cart_empty").Inc()
		return nil, fmt.Errorf("cart for user %d is empty: %w", userID, ErrNotFound)
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return nil, err
	}

	// Prices are re-pulled here on purpose: the session charges current
	// catalog prices, not the prices at add-to-cart time.
	snap, err := snapshotCart(ctx, s.store, cart)
	if err != nil {
		util.CheckoutSessionsFailedTotal.WithLabelValues("product_missing").Inc()
		return nil, err
	}

	addrJSON, err := json.Marshal(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to encode shipping address: %w", err)
	}

	lineItems := make([]gateway.LineItem, 0, len(snap.Items))
	for _, item := range snap.Items {
		lineItems = append(lineItems, gateway.LineItem{
			Name:       item.ProductName,
			UnitAmount: item.UnitPrice,
			Quantity:   item.Quantity,
		})
	}

	session, err := s.gateway.CreateSession(ctx, gateway.CreateSessionParams{
		LineItems:     lineItems,
		SuccessURL:    fmt.Sprintf("%s/%s/order-success?session_id={CHECKOUT_SESSION_ID}", s.clientURL, locale),
		CancelURL:     fmt.Sprintf("%s/%s/cart", s.clientURL, locale),
		CustomerEmail: user.Email,
		Metadata: map[string]string{
			metaUserID:          strconv.FormatInt(userID, 10),
			metaCartID:          strconv.FormatInt(cart.ID, 10),
			metaShippingAddress: string(addrJSON),
		},
	})
	if err != nil {
		util.CheckoutSessionsFailedTotal.WithLabelValues("gateway").Inc()
		return nil, &GatewayError{Op: "create session", Err: err}
	}

	util.CheckoutSessionsCreatedTotal.Inc()
	s.logger.Info("Checkout session created",
		zap.Int64("user_id", userID),
		zap.Int64("cart_id", cart.ID),
		zap.String("session_id", session.ID))

	return &CheckoutSessionResult{RedirectURL: session.URL, SessionID: session.ID}, nil
}

func validateAddress(addr models.ShippingAddress) error {
	if addr.Street == "" || addr.City == "" || addr.Phone == "" {
		return fmt.Errorf("shipping address requires street, city and phone: %w", ErrValidation)
	}
	return nil
}
