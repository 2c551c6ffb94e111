package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"shop-backend/internal/gateway"
	"shop-backend/internal/models"
	"shop-backend/internal/store"
	"shop-backend/internal/util"

	"go.uber.org/zap"
)

// Per-session progression. A session the store has never seen is Unknown;
// materializing its order moves it to Completed; finishing inventory, cart
// teardown and notification dispatch moves it to Reconciled. There is no
// failed terminal state: failed payment attempts leave the cart intact so the
// user can retry.
const (
	sessionUnknown    = "UNKNOWN"
	sessionCompleted  = "COMPLETED"
	sessionReconciled = "RECONCILED"
)

// defaultClaimTTL bounds how long a crashed processor instance can hold a
// session claim before a gateway retry may take over.
const defaultClaimTTL = 2 * time.Minute

// WebhookProcessor consumes asynchronous gateway events. Deliveries are
// at-least-once, possibly concurrent and out of order; every path through
// ProcessEvent is safe to replay.
type WebhookProcessor struct {
	store     Datastore
	cache     Cache
	gateway   gateway.Gateway
	completer *CheckoutCompleter
	claimTTL  time.Duration
	logger    *zap.Logger
}

// NewWebhookProcessor creates a new webhook event processor
func NewWebhookProcessor(ds Datastore, cache Cache, gw gateway.Gateway, completer *CheckoutCompleter) *WebhookProcessor {
	return &WebhookProcessor{
		store:     ds,
		cache:     cache,
		gateway:   gw,
		completer: completer,
		claimTTL:  defaultClaimTTL,
		logger:    util.NamedLogger("webhook"),
	}
}

// ProcessEvent verifies and dispatches one raw webhook delivery. Signature
// verification is mandatory and first: an unverifiable event produces zero
// side effects.
func (p *WebhookProcessor) ProcessEvent(ctx context.Context, payload []byte, sigHeader string) error {
	ctx, span := util.StartSpan(ctx, "WebhookProcessor.ProcessEvent")
	defer span.End()

	event, err := p.gateway.ConstructEvent(payload, sigHeader)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			util.WebhookEventsRejectedTotal.Inc()
			p.logger.Warn("Webhook signature verification failed", zap.Error(err))
		}
		return err
	}

	util.WebhookEventsTotal.WithLabelValues(event.Type).Inc()
	p.logger.Info("Received webhook event",
		zap.String("event_id", event.ID),
		zap.String("type", event.Type))

	switch event.Type {
	case gateway.EventCheckoutSessionCompleted:
		return p.handleSessionCompleted(ctx, event)

	case gateway.EventPaymentIntentSucceeded, gateway.EventPaymentIntentFailed:
		// Informational only. Recorded for the payment audit trail but
		// never allowed to create or mutate orders, so two event types
		// about one payment cannot double-materialize.
		return p.recordPaymentIntent(ctx, event)

	default:
		p.logger.Info("Ignoring unhandled event type", zap.String("type", event.Type))
		return nil
	}
}

func (p *WebhookProcessor) handleSessionCompleted(ctx context.Context, event *gateway.Event) error {
	cs, err := event.CheckoutSession()
	if err != nil {
		return err
	}

	userID, cartID, addr, ok := p.decodeMetadata(cs)
	if !ok {
		// Nothing reconstructable; a redelivery would carry the same
		// broken metadata, so acknowledge and move on.
		return nil
	}

	state, existing, err := p.sessionState(ctx, cs)
	if err != nil {
		return err
	}
	if state != sessionUnknown {
		util.WebhookEventsDuplicateTotal.Inc()
		p.logger.Info("Duplicate completion event absorbed",
			zap.String("session_id", cs.ID),
			zap.String("order_id", existing.ID))
		p.markProcessed(ctx, event)
		return nil
	}

	claimed, err := p.cache.ClaimSession(ctx, cs.ID, p.claimTTL)
	if err != nil {
		// Claim is an optimization; the order store's unique constraint
		// is the durable guard. Proceed without it.
		p.logger.Warn("Session claim unavailable, relying on store idempotency",
			zap.String("session_id", cs.ID),
			zap.Error(err))
	} else if !claimed {
		p.logger.Info("Session claimed by another processor, acknowledging",
			zap.String("session_id", cs.ID))
		return nil
	}

	order, created, err := p.completer.Complete(ctx, CompletionParams{
		SessionID:     cs.ID,
		UserID:        userID,
		CartID:        cartID,
		PaymentID:     cs.PaymentIntent,
		PaymentMethod: models.PaymentMethodCard,
		PaymentStatus: models.PaymentStatusCompleted,
		IsPaid:        true,
		Address:       addr,
	})
	if err != nil {
		// Let the gateway redeliver; the retry re-enters at the
		// idempotency check, never at the decrement.
		if relErr := p.cache.ReleaseSession(ctx, cs.ID); relErr != nil {
			p.logger.Warn("Failed to release session claim",
				zap.String("session_id", cs.ID),
				zap.Error(relErr))
		}
		return err
	}

	p.markProcessed(ctx, event)

	if created {
		p.logger.Info("Session reconciled",
			zap.String("session_id", cs.ID),
			zap.String("order_id", order.ID),
			zap.String("state", sessionReconciled))
	}
	return nil
}

// sessionState reports how far a session has progressed, with the order
// keyed by session ID and, as a fallback for events that lost the session
// linkage, by cart plus payment reference.
func (p *WebhookProcessor) sessionState(ctx context.Context, cs *gateway.CheckoutSession) (string, *models.Order, error) {
	order, err := p.store.GetOrderBySessionID(ctx, cs.ID)
	if err == nil {
		return sessionCompleted, order, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return sessionUnknown, nil, err
	}

	if cartID, parseErr := strconv.ParseInt(cs.Metadata[metaCartID], 10, 64); parseErr == nil {
		order, err = p.store.GetOrderByCartID(ctx, cartID)
		if err == nil && cs.PaymentIntent != "" && order.PaymentID == cs.PaymentIntent {
			return sessionCompleted, order, nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return sessionUnknown, nil, err
		}
	}

	return sessionUnknown, nil, nil
}

func (p *WebhookProcessor) decodeMetadata(cs *gateway.CheckoutSession) (int64, int64, models.ShippingAddress, bool) {
	userID, err := strconv.ParseInt(cs.Metadata[metaUserID], 10, 64)
	if err != nil {
		p.logger.Error("Session metadata missing user reference", zap.String("session_id", cs.ID))
		return 0, 0, models.ShippingAddress{}, false
	}

	cartID, err := strconv.ParseInt(cs.Metadata[metaCartID], 10, 64)
	if err != nil {
		p.logger.Error("Session metadata missing cart reference", zap.String("session_id", cs.ID))
		return 0, 0, models.ShippingAddress{}, false
	}

	var addr models.ShippingAddress
	if err := json.Unmarshal([]byte(cs.Metadata[metaShippingAddress]), &addr); err != nil {
		p.logger.Warn("Session metadata has unparseable shipping address",
			zap.String("session_id", cs.ID))
	}

	return userID, cartID, addr, true
}

func (p *WebhookProcessor) recordPaymentIntent(ctx context.Context, event *gateway.Event) error {
	pi, err := event.PaymentIntent()
	if err != nil {
		return err
	}

	processed, err := p.store.IsEventProcessed(ctx, event.ID)
	if err != nil {
		return err
	}
	if processed {
		return nil
	}

	p.logger.Info("Payment intent update",
		zap.String("payment_id", pi.ID),
		zap.String("status", pi.Status),
		zap.Int64("amount", pi.Amount))

	return p.store.MarkEventProcessed(ctx, event.ID, event.Type)
}

func (p *WebhookProcessor) markProcessed(ctx context.Context, event *gateway.Event) {
	if err := p.store.MarkEventProcessed(ctx, event.ID, event.Type); err != nil {
		p.logger.Error("Failed to record processed event",
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}
