package service

import (
	"context"
	"fmt"

	"shop-backend/internal/models"
)

// CartSnapshot is a read-only projection of a cart taken for checkout. Items
// are value copies (name and unit price captured now), never live product
// references.
type CartSnapshot struct {
	UserID     int64
	CartID     int64
	Items      []models.OrderItem
	TotalPrice int64
}

// fallbackProductName is used when a product vanished between cart-add and
// completion; the order still materializes with the cart's pricing.
const fallbackProductName = "Product"

// snapshotCart builds a snapshot with current catalog prices. Every cart line
// must resolve to a live product; a vanished product is a NotFound.
func snapshotCart(ctx context.Context, ds Datastore, cart *models.Cart) (*CartSnapshot, error) {
	products, err := loadCartProducts(ctx, ds, cart)
	if err != nil {
		return nil, err
	}

	snap := &CartSnapshot{UserID: cart.UserID, CartID: cart.ID}
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %d no longer exists: %w", item.ProductID, ErrNotFound)
		}
		snap.Items = append(snap.Items, models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
		})
		snap.TotalPrice += product.Price * int64(item.Quantity)
	}
	return snap, nil
}

// snapshotCartAsSold copies a cart into order line items using the prices the
// cart was priced at. Used by the completion sequence so the order total
// matches what the customer paid, independent of later catalog edits. Missing
// products do not block completion here; the name falls back.
func snapshotCartAsSold(ctx context.Context, ds Datastore, cart *models.Cart) *CartSnapshot {
	products, err := loadCartProducts(ctx, ds, cart)
	if err != nil {
		products = map[int64]*models.Product{}
	}

	snap := &CartSnapshot{UserID: cart.UserID, CartID: cart.ID}
	for _, item := range cart.Items {
		name := fallbackProductName
		if product, ok := products[item.ProductID]; ok {
			name = product.Name
		}
		snap.Items = append(snap.Items, models.OrderItem{
			ProductID:   item.ProductID,
			ProductName: name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
		snap.TotalPrice += item.UnitPrice * int64(item.Quantity)
	}
	return snap
}

func loadCartProducts(ctx context.Context, ds Datastore, cart *models.Cart) (map[int64]*models.Product, error) {
	ids := make([]int64, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}

	products, err := ds.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return byID, nil
}
