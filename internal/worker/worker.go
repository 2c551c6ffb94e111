package worker

import (
	"context"
	"log"

	"shop-backend/internal/broker"
	"shop-backend/internal/models"
	"shop-backend/internal/util"

	"go.uber.org/zap"
)

// Notifier delivers order receipts. Implementations must treat delivery as
// best-effort; the worker only logs failures.
type Notifier interface {
	SendOrderReceipt(ctx context.Context, event *models.OrderConfirmedEvent) error
}

// NotificationWorker consumes order confirmation events and delivers
// receipts. It sits downstream of checkout completion: nothing here can
// affect an already-completed order.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	notifier     Notifier
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, notifier Notifier) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		notifier: notifier,
		logger:   util.NamedLogger("notifications"),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderConfirmed(w.handleOrderConfirmed)
	w.eventHandler = eventHandler

	return w
}

func (w *NotificationWorker) handleOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	if err := w.notifier.SendOrderReceipt(ctx, event); err != nil {
		util.NotificationFailuresTotal.Inc()
		w.logger.Error("Failed to deliver order receipt",
			zap.String("order_id", event.OrderID),
			zap.String("email", event.Email),
			zap.Error(err))
		// Swallowed: receipt delivery never fails an order.
		return nil
	}

	w.logger.Info("Order receipt delivered",
		zap.String("order_id", event.OrderID),
		zap.String("email", event.Email))
	return nil
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}

// EmailNotifier renders and sends order receipt emails. The mail transport
// is stubbed to structured logs here; swapping in a real SMTP sender only
// touches this type.
type EmailNotifier struct {
	logger *zap.Logger
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier() *EmailNotifier {
	return &EmailNotifier{logger: util.NamedLogger("email")}
}

// SendOrderReceipt sends the receipt for a confirmed order
func (n *EmailNotifier) SendOrderReceipt(ctx context.Context, event *models.OrderConfirmedEvent) error {
	n.logger.Info("Sending order receipt",
		zap.String("order_id", event.OrderID),
		zap.String("email", event.Email),
		zap.Int64("total_price", event.TotalPrice),
		zap.Int("items", len(event.Items)),
		zap.Time("paid_at", event.PaidAt))
	return nil
}
