package models

import "time"

// Notification event types
const (
	EventTypeOrderConfirmed = "ORDER_CONFIRMED"
)

// BaseEvent contains common fields for all notification events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderConfirmedEvent is published after checkout completion and consumed by
// the notification worker to deliver the order receipt. Delivery is
// best-effort: a lost or failed notification never affects the order.
type OrderConfirmedEvent struct {
	BaseEvent
	OrderID    string          `json:"order_id"`
	UserID     int64           `json:"user_id"`
	Email      string          `json:"email"`
	TotalPrice int64           `json:"total_price"`
	Items      []OrderItemData `json:"items"`
	PaidAt     time.Time       `json:"paid_at"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}
