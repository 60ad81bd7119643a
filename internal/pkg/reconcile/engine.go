package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/coursebeam/entitlesync/app/models"
	"github.com/coursebeam/entitlesync/app/repository"
	"github.com/coursebeam/entitlesync/internal/pkg/notifier"
	"gorm.io/gorm"
)

// Engine converts normalized order events into entitlement state. All
// collaborators are injected; the engine holds no mutable state of its own
// and is safe to share across concurrent requests.
type Engine struct {
	users        repository.UserRepository
	products     repository.ProductRepository
	mappings     repository.ProductMappingRepository
	entitlements repository.EntitlementRepository
	emitter      notifier.Emitter
	cache        MappingCache
}

// NewEngine creates a reconciliation engine from its injected dependencies.
// cache may be nil.
func NewEngine(
	users repository.UserRepository,
	products repository.ProductRepository,
	mappings repository.ProductMappingRepository,
	entitlements repository.EntitlementRepository,
	emitter notifier.Emitter,
	cache MappingCache,
) *Engine {
	return &Engine{
		users:        users,
		products:     products,
		mappings:     mappings,
		entitlements: entitlements,
		emitter:      emitter,
		cache:        cache,
	}
}

// NewEngineFromRepositories wires the engine from a repository factory.
func NewEngineFromRepositories(repos *repository.Repositories, cache MappingCache) *Engine {
	return NewEngine(repos.User, repos.Product, repos.ProductMapping, repos.Entitlement,
		notifier.New(repos.Notification), cache)
}

// Process classifies the event and applies the matching transition. It never
// panics outward: any unexpected failure is converted into a failed,
// retryable result so the ingestion endpoint can record it.
func (e *Engine) Process(ctx context.Context, provider string, event *OrderEvent) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[reconcile] panic while processing order %s: %v", event.OrderID, rec)
			result = failed(fmt.Errorf("unexpected processing failure: %v", rec), true)
		}
	}()

	switch {
	case IsGrantEvent(event.Type):
		return e.grant(ctx, provider, event)
	case IsRevokeEvent(event.Type):
		return e.revoke(ctx, provider, event)
	default:
		return failed(fmt.Errorf("%w: %q", ErrUnsupportedEventType, event.Type), false)
	}
}

// grant applies the order.paid transition. The customer must resolve or the
// whole event fails retryably; a line item whose product reference does not
// resolve is skipped without aborting the remaining items.
func (e *Engine) grant(ctx context.Context, provider string, event *OrderEvent) Result {
	resolver := NewResolver(e.users, e.mappings, e.cache)

	userID, err := resolver.ResolveUser(ctx, event.Customer.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failed(fmt.Errorf("%w: no user for email %q", ErrUnknownCustomer, event.Customer.Email), true)
		}
		return failed(fmt.Errorf("%w: resolving customer: %v", ErrStoreUnavailable, err), true)
	}

	var granted, alreadyOwned []uint
	var skipped []SkipNote

	for _, item := range event.LineItems {
		ref := item.ProductRef.String()

		productID, err := resolver.ResolveProduct(ctx, provider, ref)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("[reconcile] order %s: no mapping for product ref %q (provider %s), skipping line item", event.OrderID, ref, provider)
				skipped = append(skipped, SkipNote{ProductRef: ref, Reason: "no active product mapping"})
				continue
			}
			return failed(fmt.Errorf("%w: resolving product %q: %v", ErrStoreUnavailable, ref, err), true)
		}

		exists, err := e.entitlements.Exists(ctx, userID, productID)
		if err != nil {
			return failed(fmt.Errorf("%w: checking entitlement: %v", ErrStoreUnavailable, err), true)
		}
		if exists {
			alreadyOwned = append(alreadyOwned, productID)
			continue
		}

		orderID := event.OrderID.String()
		err = e.entitlements.Grant(ctx, &models.Entitlement{
			UserID:         userID,
			ProductID:      productID,
			OrderID:        &orderID,
			PurchasedAt:    time.Now(),
			Progress:       0,
			CompletedItems: "[]",
		})
		if errors.Is(err, repository.ErrAlreadyGranted) {
			// Lost the race against a concurrent duplicate delivery.
			alreadyOwned = append(alreadyOwned, productID)
			continue
		}
		if err != nil {
			return failed(fmt.Errorf("%w: granting product %d: %v", ErrStoreUnavailable, productID, err), true)
		}
		granted = append(granted, productID)

		e.notifyGranted(ctx, userID, productID)
	}

	// Every resolvable line item must have ended up granted or already
	// owned. An order whose references all failed to resolve is handed to
	// an operator instead of being reported as done.
	if len(granted) == 0 && len(alreadyOwned) == 0 {
		result := failed(fmt.Errorf("no line item could be resolved for order %s", event.OrderID), false)
		result.Skipped = skipped
		return result
	}

	return processed(granted, alreadyOwned, skipped)
}

// revoke applies the refund/cancellation transition. Deletes are scoped to
// the order id carried by the event, so an entitlement granted under a
// different order is never touched. No notifications are emitted.
func (e *Engine) revoke(ctx context.Context, provider string, event *OrderEvent) Result {
	resolver := NewResolver(e.users, e.mappings, e.cache)
	orderID := event.OrderID.String()

	var revoked []uint
	var skipped []SkipNote

	for _, item := range event.LineItems {
		ref := item.ProductRef.String()

		productID, err := resolver.ResolveProduct(ctx, provider, ref)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("[reconcile] order %s: no mapping for product ref %q (provider %s), skipping revoke", orderID, ref, provider)
				skipped = append(skipped, SkipNote{ProductRef: ref, Reason: "no active product mapping"})
				continue
			}
			return failed(fmt.Errorf("%w: resolving product %q: %v", ErrStoreUnavailable, ref, err), true)
		}

		rows, err := e.entitlements.RevokeByOrder(ctx, orderID, productID)
		if err != nil {
			return failed(fmt.Errorf("%w: revoking product %d: %v", ErrStoreUnavailable, productID, err), true)
		}
		if rows == 0 {
			// Already revoked, or never granted under this order.
			log.Printf("[reconcile] order %s: revoke of product %d removed no rows", orderID, productID)
		}
		revoked = append(revoked, productID)
	}

	return Result{Processed: true, Revoked: revoked, Skipped: skipped}
}

// notifyGranted emits the "you now have access" notification. Best effort:
// failures are logged and swallowed, the entitlement write already succeeded.
func (e *Engine) notifyGranted(ctx context.Context, userID, productID uint) {
	title := "New access granted"
	message := "A new product has been added to your account."
	if product, err := e.products.GetByID(ctx, productID); err == nil {
		message = fmt.Sprintf("You now have access to %s.", product.Title)
	}

	if err := e.emitter.Notify(ctx, userID, title, message, models.NOTIFICATION_TYPE_ACCESS); err != nil {
		log.Printf("[reconcile] notification for user %d / product %d failed: %v", userID, productID, err)
	}
}
