package service

import (
	"context"
	"errors"
	"time"

	"shop-backend/internal/models"
	"shop-backend/internal/store"
	"shop-backend/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CompletionParams drives one checkout completion. SessionID is the
// idempotency key; everything else describes the order to materialize.
type CompletionParams struct {
	SessionID     string
	UserID        int64
	CartID        int64
	PaymentID     string
	PaymentMethod string
	PaymentStatus string
	IsPaid        bool
	Address       models.ShippingAddress
}

// CheckoutCompleter is the single implementation of the completion sequence:
// materialize the order, decrement inventory, delete the cart, dispatch the
// confirmation. Both the webhook processor and the legacy synchronous path go
// through it, so the idempotency key is enforced in exactly one place.
type CheckoutCompleter struct {
	store     Datastore
	cache     Cache
	publisher Publisher
	logger    *zap.Logger
}

// NewCheckoutCompleter creates a new completer
func NewCheckoutCompleter(ds Datastore, cache Cache, publisher Publisher) *CheckoutCompleter {
	return &CheckoutCompleter{
		store:     ds,
		cache:     cache,
		publisher: publisher,
		logger:    util.NamedLogger("completer"),
	}
}

// Complete runs the completion sequence. Returns the order and whether this
// call materialized it. A nil order with nil error means the cart is gone and
// no order exists yet: another instance is mid-flight and owns the sequence.
//
// Order creation comes first. Once the order row is durable the session is
// claimed forever, so a crash later in the sequence is retriable from the
// top: the idempotent create short-circuits before any decrement can repeat.
func (c *CheckoutCompleter) Complete(ctx context.Context, params CompletionParams) (*models.Order, bool, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutCompleter.Complete")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CompletionLatency.Observe(time.Since(start).Seconds())
	}()

	cart, err := c.store.GetCartByID(ctx, params.CartID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}
		// Cart already gone. If the order exists this completion already
		// ran; otherwise a concurrent instance holds the sequence between
		// order creation and cart deletion.
		existing, err := c.store.GetOrderBySessionID(ctx, params.SessionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.logger.Info("Cart gone and no order yet, leaving completion to the in-flight owner",
					zap.String("session_id", params.SessionID))
				return nil, false, nil
			}
			return nil, false, err
		}
		return existing, false, nil
	}

	snap := snapshotCartAsSold(ctx, c.store, cart)

	order := &models.Order{
		ID:             uuid.New().String(),
		UserID:         params.UserID,
		SessionID:      params.SessionID,
		CartID:         params.CartID,
		TotalPrice:     snap.TotalPrice,
		PaymentMethod:  params.PaymentMethod,
		PaymentID:      params.PaymentID,
		PaymentStatus:  params.PaymentStatus,
		IsPaid:         params.IsPaid,
		ShippingStreet: params.Address.Street,
		ShippingCity:   params.Address.City,
		ShippingPhone:  params.Address.Phone,
		Items:          snap.Items,
	}
	if params.IsPaid {
		now := time.Now()
		order.PaidAt = &now
	}

	order, created, err := c.store.CreateOrderIfAbsent(ctx, order)
	if err != nil {
		return nil, false, err
	}
	if !created {
		c.logger.Info("Order already materialized for session, skipping completion",
			zap.String("session_id", params.SessionID),
			zap.String("order_id", order.ID))
		return order, false, nil
	}

	util.OrdersCompletedTotal.Inc()
	c.logger.Info("Order materialized",
		zap.String("order_id", order.ID),
		zap.String("session_id", params.SessionID),
		zap.Int64("total_price", order.TotalPrice))

	// Everything past this point must not undo the order. Failures are
	// operator-visible only; the customer already left the payment flow.
	c.decrementStock(ctx, order)

	if err := c.store.DeleteCart(ctx, cart.ID); err != nil {
		c.logger.Error("Failed to delete cart after completion",
			zap.Int64("cart_id", cart.ID),
			zap.Error(err))
	}

	c.dispatchConfirmation(ctx, order)

	return order, true, nil
}

// decrementStock applies one batched, unconditional decrement per order.
// Sufficiency was validated at cart-mutation time; two concurrent checkouts
// over the same unit can drive quantity negative, which is accepted behavior.
func (c *CheckoutCompleter) decrementStock(ctx context.Context, order *models.Order) {
	decrements := make([]store.StockDecrement, 0, len(order.Items))
	for _, item := range order.Items {
		decrements = append(decrements, store.StockDecrement{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	affected, err := c.store.DecrementStock(ctx, decrements)
	if err != nil {
		c.logger.Error("Stock decrement failed after order creation",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return
	}
	util.StockDecrementsTotal.Add(float64(affected))
	if affected != int64(len(decrements)) {
		c.logger.Warn("Some products vanished before decrement",
			zap.String("order_id", order.ID),
			zap.Int64("affected", affected),
			zap.Int("expected", len(decrements)))
	}

	for _, d := range decrements {
		if err := c.cache.DecrementStock(ctx, d.ProductID, d.Quantity); err != nil {
			c.logger.Warn("Failed to mirror stock decrement",
				zap.Int64("product_id", d.ProductID),
				zap.Error(err))
		}
	}
}

// dispatchConfirmation publishes the receipt event. Fire-and-forget: a lost
// notification never fails a completed checkout.
func (c *CheckoutCompleter) dispatchConfirmation(ctx context.Context, order *models.Order) {
	email := ""
	if user, err := c.store.GetUserByID(ctx, order.UserID); err == nil {
		email = user.Email
	} else {
		c.logger.Warn("User lookup for receipt failed",
			zap.Int64("user_id", order.UserID),
			zap.Error(err))
	}

	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.OrderItemData{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	paidAt := time.Now()
	if order.PaidAt != nil {
		paidAt = *order.PaidAt
	}

	event := &models.OrderConfirmedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderConfirmed,
			Timestamp: time.Now(),
		},
		OrderID:    order.ID,
		UserID:     order.UserID,
		Email:      email,
		TotalPrice: order.TotalPrice,
		Items:      items,
		PaidAt:     paidAt,
	}

	if err := c.publisher.PublishOrderConfirmed(ctx, event); err != nil {
		util.NotificationFailuresTotal.Inc()
		c.logger.Error("Failed to publish order confirmation",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}
}
