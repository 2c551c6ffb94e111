package service

import (
	"context"
	"time"

	"shop-backend/internal/models"
	"shop-backend/internal/store"
)

// Datastore is the persistence surface the checkout core depends on,
// implemented by *store.Store and by fakes in tests.
type Datastore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)

	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	DecrementStock(ctx context.Context, decrements []store.StockDecrement) (int64, error)

	GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error)
	GetCartByID(ctx context.Context, cartID int64) (*models.Cart, error)
	CreateCart(ctx context.Context, userID int64) (*models.Cart, error)
	UpsertCartItem(ctx context.Context, cartID, productID int64, quantity int, unitPrice int64) error
	SetCartItemQuantity(ctx context.Context, cartID, productID int64, quantity int, unitPrice int64) error
	RemoveCartItem(ctx context.Context, cartID, productID int64) error
	RefreshCartTotal(ctx context.Context, cartID int64) error
	DeleteCart(ctx context.Context, cartID int64) error
	ClearCart(ctx context.Context, cartID int64) error

	CreateOrderIfAbsent(ctx context.Context, order *models.Order) (*models.Order, bool, error)
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	GetOrderByCartID(ctx context.Context, cartID int64) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	ListOrders(ctx context.Context, limit, offset int) ([]models.Order, error)
	CountOrders(ctx context.Context) (int64, error)
	UpdateDeliveryStatus(ctx context.Context, orderID string, delivered bool, deliveredAt time.Time) error
	MarkOrderPaid(ctx context.Context, orderID, paymentID string, paidAt time.Time) error
	DeleteOrder(ctx context.Context, orderID string) error

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Cache is the slice of the Redis client the core uses: per-session
// completion claims and the stock mirror.
type Cache interface {
	ClaimSession(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)
	ReleaseSession(ctx context.Context, sessionID string) error
	DecrementStock(ctx context.Context, productID int64, quantity int) error
}

// Publisher dispatches order confirmation events for the notification
// worker. Strictly best-effort from the caller's point of view.
type Publisher interface {
	PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error
}
