package models

import "time"

// Product represents a catalog product. Quantity is available stock and Sold
// is the cumulative number of units sold.
type Product struct {
	ID        int64     `db:"id" json:"id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	Quantity  int       `db:"quantity" json:"quantity"`
	Sold      int       `db:"sold" json:"sold"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Cart is the mutable pre-checkout basket. One cart per user.
type Cart struct {
	ID         int64      `db:"id" json:"id"`
	UserID     int64      `db:"user_id" json:"user_id"`
	TotalPrice int64      `db:"total_price" json:"total_price"`
	Items      []CartItem `db:"-" json:"items"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// CartItem is a line in the cart. UnitPrice and LinePrice are captured at
// cart-mutation time; checkout re-pulls current catalog prices.
type CartItem struct {
	ID        int64 `db:"id" json:"id"`
	CartID    int64 `db:"cart_id" json:"cart_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
	LinePrice int64 `db:"line_price" json:"line_price"`
}

// ShippingAddress travels as opaque JSON through gateway session metadata.
type ShippingAddress struct {
	Street string `json:"street"`
	City   string `json:"city"`
	Phone  string `json:"phone"`
}

// Order is immutable after creation apart from delivery-status fields.
// SessionID is the idempotency key: at most one order per checkout session,
// enforced by a unique constraint.
type Order struct {
	ID             string      `db:"id" json:"id"`
	UserID         int64       `db:"user_id" json:"user_id"`
	SessionID      string      `db:"session_id" json:"session_id,omitempty"`
	CartID         int64       `db:"cart_id" json:"cart_id"`
	TotalPrice     int64       `db:"total_price" json:"total_price"`
	PaymentMethod  string      `db:"payment_method" json:"payment_method"`
	PaymentID      string      `db:"payment_id" json:"payment_id,omitempty"`
	PaymentStatus  string      `db:"payment_status" json:"payment_status"`
	IsPaid         bool        `db:"is_paid" json:"is_paid"`
	PaidAt         *time.Time  `db:"paid_at" json:"paid_at,omitempty"`
	IsDelivered    bool        `db:"is_delivered" json:"is_delivered"`
	DeliveredAt    *time.Time  `db:"delivered_at" json:"delivered_at,omitempty"`
	ShippingStreet string      `db:"shipping_street" json:"-"`
	ShippingCity   string      `db:"shipping_city" json:"-"`
	ShippingPhone  string      `db:"shipping_phone" json:"-"`
	Items          []OrderItem `db:"-" json:"items"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// Address returns the shipping address of the order.
func (o *Order) Address() ShippingAddress {
	return ShippingAddress{Street: o.ShippingStreet, City: o.ShippingCity, Phone: o.ShippingPhone}
}

// OrderItem is an owned value copy of the product at time of sale. It never
// references live catalog rows, so historical orders stay stable when products
// are edited or deleted.
type OrderItem struct {
	ID          int64  `db:"id" json:"id"`
	OrderID     string `db:"order_id" json:"order_id"`
	ProductID   int64  `db:"product_id" json:"product_id"`
	ProductName string `db:"product_name" json:"product_name"`
	Quantity    int    `db:"quantity" json:"quantity"`
	UnitPrice   int64  `db:"unit_price" json:"unit_price"`
}

// Payment methods
const (
	PaymentMethodCash = "Cash"
	PaymentMethodCard = "Card"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// ProcessedEvent records handled gateway events for the payment audit trail
// and replay detection.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// User is the slice of the account record checkout needs.
type User struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
}
