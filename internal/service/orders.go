package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shop-backend/internal/gateway"
	"shop-backend/internal/models"
	"shop-backend/internal/store"
	"shop-backend/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService carries the legacy synchronous checkout path and the order
// query surface. The legacy path materializes the order in the request that
// starts payment; it shares the completion sequence and its idempotency key
// with the webhook path, so the two can never double-materialize one cart.
type OrderService struct {
	store     Datastore
	gateway   gateway.Gateway
	completer *CheckoutCompleter
	clientURL string
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(ds Datastore, gw gateway.Gateway, completer *CheckoutCompleter, clientURL string) *OrderService {
	return &OrderService{
		store:     ds,
		gateway:   gw,
		completer: completer,
		clientURL: clientURL,
		logger:    util.NamedLogger("orders"),
	}
}

// PlaceOrderResult is the legacy path's response. RedirectURL is set only
// for card payments.
type PlaceOrderResult struct {
	Order       *models.Order `json:"order"`
	RedirectURL string        `json:"redirect_url,omitempty"`
}

// PlaceOrder is the legacy synchronous checkout: the order materializes and
// stock decrements before the user has necessarily paid. Card orders get a
// gateway session whose ID doubles as the idempotency key, so a later
// webhook for the same session is absorbed as a no-op.
func (s *OrderService) PlaceOrder(ctx context.Context, userID int64, paymentMethod string, addr models.ShippingAddress) (*PlaceOrderResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	if err := validateAddress(addr); err != nil {
		return nil, err
	}
	if paymentMethod != models.PaymentMethodCash && paymentMethod != models.PaymentMethodCard {
		return nil, fmt.Errorf("unsupported payment method %q: %w", paymentMethod, ErrValidation)
	}

	cart, err := s.store.GetCartByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("cart for user %d: %w", userID, ErrNotFound)
		}
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, fmt.Errorf("cart for user %d is empty: %w", userID, ErrNotFound)
	}

	sessionID := "cash-" + uuid.New().String()
	redirectURL := ""

	if paymentMethod == models.PaymentMethodCard {
		snap, err := snapshotCart(ctx, s.store, cart)
		if err != nil {
			return nil, err
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
			LineItems:  lineItems,
			SuccessURL: fmt.Sprintf("%s/en/order-success?session_id={CHECKOUT_SESSION_ID}", s.clientURL),
			CancelURL:  fmt.Sprintf("%s/en/cart", s.clientURL),
		})
		if err != nil {
			return nil, &GatewayError{Op: "create session", Err: err}
		}
		sessionID = session.ID
		redirectURL = session.URL
	}

	order, created, err := s.completer.Complete(ctx, CompletionParams{
		SessionID:     sessionID,
		UserID:        userID,
		CartID:        cart.ID,
		PaymentMethod: paymentMethod,
		PaymentStatus: models.PaymentStatusPending,
		IsPaid:        false,
		Address:       addr,
	})
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("checkout for cart %d already in flight: %w", cart.ID, ErrConflict)
	}
	if !created {
		s.logger.Info("Order already existed for session",
			zap.String("session_id", sessionID),
			zap.String("order_id", order.ID))
	}

	return &PlaceOrderResult{Order: order, RedirectURL: redirectURL}, nil
}

// ConfirmPayment verifies a payment with the provider and marks the order
// paid. Used by clients returning from the legacy card flow.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID, paymentID string) (*models.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	status, err := s.gateway.RetrievePaymentStatus(ctx, paymentID)
	if err != nil {
		return nil, &GatewayError{Op: "retrieve payment", Err: err}
	}
	if status != "succeeded" {
		return nil, fmt.Errorf("payment %s not successful (status %s): %w", paymentID, status, ErrValidation)
	}

	if err := s.store.MarkOrderPaid(ctx, order.ID, paymentID, time.Now()); err != nil {
		return nil, err
	}
	return s.getOrder(ctx, orderID)
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.getOrder(ctx, orderID)
}

// GetUserOrders retrieves a user's orders, newest first
func (s *OrderService) GetUserOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.store.GetOrdersByUserID(ctx, userID)
}

// ListOrders retrieves a page of all orders plus the total count
func (s *OrderService) ListOrders(ctx context.Context, page, perPage int) ([]models.Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	orders, err := s.store.ListOrders(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountOrders(ctx)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateDeliveryStatus sets the delivery fields of an order
func (s *OrderService) UpdateDeliveryStatus(ctx context.Context, orderID string, delivered bool, deliveredAt *time.Time) (*models.Order, error) {
	at := time.Now()
	if deliveredAt != nil {
		at = *deliveredAt
	}

	if err := s.store.UpdateDeliveryStatus(ctx, orderID, delivered, at); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
		}
		return nil, err
	}
	return s.getOrder(ctx, orderID)
}

// CancelOrder removes an order on the owner's request, pre-delivery only.
func (s *OrderService) CancelOrder(ctx context.Context, userID int64, orderID string) error {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if order.UserID != userID {
		return fmt.Errorf("order %s belongs to another user: %w", orderID, ErrForbidden)
	}
	if order.IsDelivered {
		return fmt.Errorf("order %s already delivered: %w", orderID, ErrValidation)
	}

	s.logger.Info("Order cancelled",
		zap.String("order_id", orderID),
		zap.Int64("user_id", userID))
	return s.store.DeleteOrder(ctx, orderID)
}

// DeleteOrder removes an order administratively, pre-delivery only.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID string) error {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.IsDelivered {
		return fmt.Errorf("order %s already delivered: %w", orderID, ErrValidation)
	}
	return s.store.DeleteOrder(ctx, orderID)
}

func (s *OrderService) getOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
		}
		return nil, err
	}
	return order, nil
}
