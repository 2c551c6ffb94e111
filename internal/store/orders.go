package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shop-backend/internal/models"
)

const orderInsert = `
	INSERT INTO orders (
		id, user_id, session_id, cart_id, total_price,
		payment_method, payment_id, payment_status, is_paid, paid_at,
		shipping_street, shipping_city, shipping_phone
	) VALUES (
		:id, :user_id, :session_id, :cart_id, :total_price,
		:payment_method, :payment_id, :payment_status, :is_paid, :paid_at,
		:shipping_street, :shipping_city, :shipping_phone
	)
	ON CONFLICT (session_id) DO NOTHING`

// CreateOrderIfAbsent inserts an order and its line items in one transaction,
// keyed on the order's session ID. If an order for the same session already
// exists the insert is a no-op and the existing order is returned with
// created=false. This is the load-bearing idempotency primitive: calling it
// twice with the same session ID yields the same logical order and signals
// the caller to skip the rest of the completion sequence.
func (s *Store) CreateOrderIfAbsent(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	res, err := tx.NamedExecContext(ctx, orderInsert, order)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if affected == 0 {
		// Lost the race or a duplicate delivery: hand back the winner.
		existing, err := s.GetOrderBySessionID(ctx, order.SessionID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := tx.GetContext(ctx, &item.ID, `
			INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice)
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return order, true, nil
}

// GetOrderByID retrieves an order with its items
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadOrderItems(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderBySessionID retrieves the order materialized for a checkout session
func (s *Store) GetOrderBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE session_id = $1", sessionID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order for session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadOrderItems(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByCartID retrieves the most recent order materialized from a cart.
// Fallback idempotency lookup for events that carry only the cart reference.
func (s *Store) GetOrderByCartID(ctx context.Context, cartID int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE cart_id = $1 ORDER BY created_at DESC LIMIT 1", cartID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order for cart %d: %w", cartID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadOrderItems(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}

	for i := range orders {
		if err := s.loadOrderItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// ListOrders retrieves a page of orders, newest first
func (s *Store) ListOrders(ctx context.Context, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, err
	}

	for i := range orders {
		if err := s.loadOrderItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// CountOrders returns the total number of orders
func (s *Store) CountOrders(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM orders")
	return count, err
}

func (s *Store) loadOrderItems(ctx context.Context, order *models.Order) error {
	return s.db.SelectContext(ctx, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", order.ID)
}

// UpdateDeliveryStatus updates the delivery fields of an order
func (s *Store) UpdateDeliveryStatus(ctx context.Context, orderID string, delivered bool, deliveredAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET is_delivered = $1, delivered_at = $2 WHERE id = $3",
		delivered, deliveredAt, orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return nil
}

// MarkOrderPaid marks an order as paid with the provider transaction reference
func (s *Store) MarkOrderPaid(ctx context.Context, orderID, paymentID string, paidAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET is_paid = TRUE, paid_at = $2, payment_id = $3, payment_status = $4
		WHERE id = $1`,
		orderID, paidAt, paymentID, models.PaymentStatusCompleted)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return nil
}

// DeleteOrder removes an order and its items
func (s *Store) DeleteOrder(ctx context.Context, orderID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return nil
}
