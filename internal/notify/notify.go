// Package notify implements the Notification Evaluator (C11): compare a
// listing's prior and new state and emit price_drop/restock/target_reached
// notifications to every active subscriber, respecting each subscription's
// preferences and a 24h per-(user, product, type) dedup window.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/falense/PriceTracker-sub001/internal/models"
	"github.com/falense/PriceTracker-sub001/internal/repository"
)

const dedupWindow = 24 * time.Hour

// Evaluator implements C11 against the repository layer.
type Evaluator struct {
	subscriptions repository.SubscriptionRepository
	notifications repository.NotificationRepository
	logger        *slog.Logger
}

func New(subscriptions repository.SubscriptionRepository, notifications repository.NotificationRepository, logger *slog.Logger) *Evaluator {
	return &Evaluator{subscriptions: subscriptions, notifications: notifications, logger: logger}
}

// Evaluate compares prior and current against every active subscription for
// product and creates the notifications §4.11 calls for. A single call may
// produce notifications across several users; ordering between them is
// irrelevant, so failures are logged and evaluation continues rather than
// aborting the whole batch — a notify failure never unwinds the price write
// that triggered it (pricerr.ErrNotification is reserved for the caller to
// report this without rolling anything back).
func (e *Evaluator) Evaluate(ctx context.Context, prior, current *models.ProductListing, product *models.Product) ([]*models.Notification, error) {
	subs, err := e.subscriptions.ListActiveByProduct(ctx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("notify: list subscriptions: %w", err)
	}

	now := time.Now()
	since := now.Add(-dedupWindow)
	var emitted []*models.Notification

	for _, sub := range subs {
		if !sub.Active {
			continue
		}

		if n, ok, err := e.priceDrop(ctx, sub, prior, current, now, since); err != nil {
			e.logger.Error("notify: price_drop check failed", "user_id", sub.UserID, "product_id", product.ID, "error", err)
		} else if ok {
			emitted = append(emitted, n)
		}

		if n, ok, err := e.restock(ctx, sub, prior, current, now, since); err != nil {
			e.logger.Error("notify: restock check failed", "user_id", sub.UserID, "product_id", product.ID, "error", err)
		} else if ok {
			emitted = append(emitted, n)
		}

		if n, ok, err := e.targetReached(ctx, sub, current, now, since); err != nil {
			e.logger.Error("notify: target_reached check failed", "user_id", sub.UserID, "product_id", product.ID, "error", err)
		} else if ok {
			emitted = append(emitted, n)
		}
	}

	for _, n := range emitted {
		if err := e.notifications.Create(ctx, n); err != nil {
			e.logger.Error("notify: failed to persist notification", "notification_id", n.ID, "type", n.Type, "error", err)
		}
	}

	return emitted, nil
}

func (e *Evaluator) priceDrop(ctx context.Context, sub *models.UserSubscription, prior, current *models.ProductListing, now, since time.Time) (*models.Notification, bool, error) {
	if !sub.NotifyOnDrop || prior.CurrentPrice == nil || current.CurrentPrice == nil {
		return nil, false, nil
	}
	if *current.CurrentPrice >= *prior.CurrentPrice {
		return nil, false, nil
	}
	seen, err := e.notifications.ExistsWithin(ctx, sub.UserID, sub.ProductID, models.NotificationPriceDrop, since)
	if err != nil || seen {
		return nil, false, err
	}
	return &models.Notification{
		ID:        ulid.Make().String(),
		UserID:    sub.UserID,
		ProductID: sub.ProductID,
		Type:      models.NotificationPriceDrop,
		OldPrice:  prior.CurrentPrice,
		NewPrice:  current.CurrentPrice,
		Message:   fmt.Sprintf("Price dropped from %.2f to %.2f", *prior.CurrentPrice, *current.CurrentPrice),
		CreatedAt: now,
	}, true, nil
}

func (e *Evaluator) restock(ctx context.Context, sub *models.UserSubscription, prior, current *models.ProductListing, now, since time.Time) (*models.Notification, bool, error) {
	if !sub.NotifyOnRestock || prior.Available || !current.Available {
		return nil, false, nil
	}
	seen, err := e.notifications.ExistsWithin(ctx, sub.UserID, sub.ProductID, models.NotificationRestock, since)
	if err != nil || seen {
		return nil, false, err
	}
	return &models.Notification{
		ID:        ulid.Make().String(),
		UserID:    sub.UserID,
		ProductID: sub.ProductID,
		Type:      models.NotificationRestock,
		NewPrice:  current.CurrentPrice,
		Message:   "Item is back in stock",
		CreatedAt: now,
	}, true, nil
}

func (e *Evaluator) targetReached(ctx context.Context, sub *models.UserSubscription, current *models.ProductListing, now, since time.Time) (*models.Notification, bool, error) {
	if !sub.NotifyOnTarget || sub.TargetPrice == nil || current.CurrentPrice == nil {
		return nil, false, nil
	}
	if *current.CurrentPrice > *sub.TargetPrice {
		return nil, false, nil
	}
	seen, err := e.notifications.ExistsWithin(ctx, sub.UserID, sub.ProductID, models.NotificationTargetReached, since)
	if err != nil || seen {
		return nil, false, err
	}
	return &models.Notification{
		ID:        ulid.Make().String(),
		UserID:    sub.UserID,
		ProductID: sub.ProductID,
		Type:      models.NotificationTargetReached,
		OldPrice:  sub.TargetPrice,
		NewPrice:  current.CurrentPrice,
		Message:   fmt.Sprintf("Price reached your target of %.2f", *sub.TargetPrice),
		CreatedAt: now,
	}, true, nil
}
