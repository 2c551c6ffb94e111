package service

import (
	"context"
	"errors"
	"fmt"

	"shop-backend/internal/models"
	"shop-backend/internal/store"
	"shop-backend/internal/util"

	"go.uber.org/zap"
)

// CartService owns pre-checkout cart mutations. Stock sufficiency is checked
// here, at mutation time; the decrement at order completion does not
// re-validate.
type CartService struct {
	store  Datastore
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(ds Datastore) *CartService {
	return &CartService{
		store:  ds,
		logger: util.NamedLogger("cart"),
	}
}

// AddItem adds quantity of a product to the user's cart, creating the cart
// if needed. The line is priced at the current catalog price.
func (s *CartService) AddItem(ctx context.Context, userID, productID int64, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", ErrValidation)
	}

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("product %d: %w", productID, ErrNotFound)
		}
		return nil, err
	}

	if quantity > product.Quantity {
		util.CartMutationsFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, fmt.Errorf("only %d units of product %d available: %w",
			product.Quantity, productID, ErrInsufficientStock)
	}

	cart, err := s.store.GetCartByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		cart, err = s.store.CreateCart(ctx, userID)
		if err != nil && errors.Is(err, store.ErrDuplicate) {
			// Concurrent first-add created it; reload.
			cart, err = s.store.GetCartByUserID(ctx, userID)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := s.store.UpsertCartItem(ctx, cart.ID, productID, quantity, product.Price); err != nil {
		return nil, err
	}
	if err := s.store.RefreshCartTotal(ctx, cart.ID); err != nil {
		return nil, err
	}

	s.logger.Info("Cart item added",
		zap.Int64("user_id", userID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity))

	return s.store.GetCartByUserID(ctx, userID)
}

// UpdateQuantity replaces the quantity of a cart line, re-pricing it.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, productID int64, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", ErrValidation)
	}

	cart, err := s.store.GetCartByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("cart for user %d: %w", userID, ErrNotFound)
		}
		return nil, err
	}

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("product %d: %w", productID, ErrNotFound)
		}
		return nil, err
	}

	if quantity > product.Quantity {
		util.CartMutationsFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, fmt.Errorf("only %d units of product %d available: %w",
			product.Quantity, productID, ErrInsufficientStock)
	}

	if err := s.store.SetCartItemQuantity(ctx, cart.ID, productID, quantity, product.Price); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("product %d not in cart: %w", productID, ErrNotFound)
		}
		return nil, err
	}
	if err := s.store.RefreshCartTotal(ctx, cart.ID); err != nil {
		return nil, err
	}

	return s.store.GetCartByUserID(ctx, userID)
}

// RemoveItem deletes a line from the cart. The cart itself is removed when
// its last line goes.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID int64) (*models.Cart, error) {
	cart, err := s.store.GetCartByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("cart for user %d: %w", userID, ErrNotFound)
		}
		return nil, err
	}

	if err := s.store.RemoveCartItem(ctx, cart.ID, productID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("product %d not in cart: %w", productID, ErrNotFound)
		}
		return nil, err
	}

	if len(cart.Items) <= 1 {
		if err := s.store.DeleteCart(ctx, cart.ID); err != nil {
			return nil, err
		}
		cart.Items = nil
		cart.TotalPrice = 0
		return cart, nil
	}

	if err := s.store.RefreshCartTotal(ctx, cart.ID); err != nil {
		return nil, err
	}
	return s.store.GetCartByUserID(ctx, userID)
}

// GetCart returns the user's cart.
func (s *CartService) GetCart(ctx context.Context, userID int64) (*models.Cart, error) {
	cart, err := s.store.GetCartByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("cart for user %d: %w", userID, ErrNotFound)
		}
		return nil, err
	}
	return cart, nil
}

// ClearCart empties the user's cart without deleting it.
func (s *CartService) ClearCart(ctx context.Context, userID int64) (*models.Cart, error) {
	cart, err := s.store.GetCartByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("cart for user %d: %w", userID, ErrNotFound)
		}
		return nil, err
	}

	if err := s.store.ClearCart(ctx, cart.ID); err != nil {
		return nil, err
	}
	return s.store.GetCartByUserID(ctx, userID)
}
