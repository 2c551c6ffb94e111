package store

import (
	"context"
	"database/sql"
	"fmt"

	"shop-backend/internal/models"
)

// GetCartByUserID retrieves a user's cart with its items. Returns ErrNotFound
// when the user has no cart.
func (s *Store) GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, "SELECT * FROM carts WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cart for user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadCartItems(ctx, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetCartByID retrieves a cart by ID with its items.
func (s *Store) GetCartByID(ctx context.Context, cartID int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, "SELECT * FROM carts WHERE id = $1", cartID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cart %d: %w", cartID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadCartItems(ctx, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (s *Store) loadCartItems(ctx context.Context, cart *models.Cart) error {
	return s.db.SelectContext(ctx, &cart.Items,
		"SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY id", cart.ID)
}

// CreateCart creates an empty cart for a user.
func (s *Store) CreateCart(ctx context.Context, userID int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart,
		"INSERT INTO carts (user_id, total_price) VALUES ($1, 0) RETURNING *", userID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("cart for user %d: %w", userID, ErrDuplicate)
		}
		return nil, err
	}
	cart.Items = []models.CartItem{}
	return &cart, nil
}

// UpsertCartItem adds a product line to a cart or increases its quantity if
// the line already exists. Line price is recomputed from the given unit price.
func (s *Store) UpsertCartItem(ctx context.Context, cartID, productID int64, quantity int, unitPrice int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity, unit_price, line_price)
		VALUES ($1, $2, $3, $4, $3 * $4)
		ON CONFLICT (cart_id, product_id) DO UPDATE
		SET quantity = cart_items.quantity + EXCLUDED.quantity,
		    unit_price = EXCLUDED.unit_price,
		    line_price = (cart_items.quantity + EXCLUDED.quantity) * EXCLUDED.unit_price`,
		cartID, productID, quantity, unitPrice)
	return err
}

// SetCartItemQuantity replaces the quantity of a cart line.
func (s *Store) SetCartItemQuantity(ctx context.Context, cartID, productID int64, quantity int, unitPrice int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cart_items
		SET quantity = $3, unit_price = $4, line_price = $3 * $4
		WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID, quantity, unitPrice)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("product %d in cart %d: %w", productID, cartID, ErrNotFound)
	}
	return nil
}

// RemoveCartItem deletes a line from a cart.
func (s *Store) RemoveCartItem(ctx context.Context, cartID, productID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2", cartID, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("product %d in cart %d: %w", productID, cartID, ErrNotFound)
	}
	return nil
}

// RefreshCartTotal recomputes the cart total from its lines.
func (s *Store) RefreshCartTotal(ctx context.Context, cartID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE carts
		SET total_price = COALESCE((SELECT SUM(line_price) FROM cart_items WHERE cart_id = $1), 0),
		    updated_at = NOW()
		WHERE id = $1`, cartID)
	return err
}

// DeleteCart removes a cart and its items. Deleting an already-deleted cart
// is not an error; the completion sequence may be retried.
func (s *Store) DeleteCart(ctx context.Context, cartID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM carts WHERE id = $1", cartID)
	return err
}

// ClearCart removes all items from a cart and zeroes the total.
func (s *Store) ClearCart(ctx context.Context, cartID int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE carts SET total_price = 0, updated_at = NOW() WHERE id = $1", cartID)
	return err
}
