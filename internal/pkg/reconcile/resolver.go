package reconcile

import (
	"context"
	"strings"

	"github.com/coursebeam/entitlesync/app/repository"
)

// MappingCache caches resolved product mappings across requests. The redis
// implementation lives in internal/pkg/cache; a nil cache is valid and turns
// the resolver into plain memoized store lookups.
type MappingCache interface {
	GetProductID(ctx context.Context, provider, externalRef string) (uint, bool)
	SetProductID(ctx context.Context, provider, externalRef string, productID uint)
}

type userEntry struct {
	id  uint
	err error
}

type productEntry struct {
	id  uint
	err error
}

// Resolver maps external event identities to internal records. It performs
// pure reads: no user or mapping is ever created here. A Resolver is scoped
// to one event-processing run; the memo maps guarantee at most one store hit
// per distinct email or external ref within that run.
type Resolver struct {
	users    repository.UserRepository
	mappings repository.ProductMappingRepository
	cache    MappingCache

	userMemo    map[string]userEntry
	productMemo map[string]productEntry
}

// NewResolver creates a resolver for a single event-processing run.
func NewResolver(users repository.UserRepository, mappings repository.ProductMappingRepository, cache MappingCache) *Resolver {
	return &Resolver{
		users:       users,
		mappings:    mappings,
		cache:       cache,
		userMemo:    make(map[string]userEntry),
		productMemo: make(map[string]productEntry),
	}
}

// ResolveUser resolves a customer email to an internal user id. Not-found
// surfaces as the repository's record-not-found error; the engine decides
// what that means for the event.
func (r *Resolver) ResolveUser(ctx context.Context, email string) (uint, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	if entry, ok := r.userMemo[key]; ok {
		return entry.id, entry.err
	}

	user, err := r.users.GetByEmail(ctx, key)
	if err != nil {
		r.userMemo[key] = userEntry{err: err}
		return 0, err
	}
	r.userMemo[key] = userEntry{id: user.ID}
	return user.ID, nil
}

// ResolveProduct resolves an external product reference to an internal
// product id via the mapping table, consulting the cross-request cache first.
func (r *Resolver) ResolveProduct(ctx context.Context, provider, externalRef string) (uint, error) {
	key := strings.ToLower(strings.TrimSpace(provider)) + "|" + strings.TrimSpace(externalRef)
	if entry, ok := r.productMemo[key]; ok {
		return entry.id, entry.err
	}

	if r.cache != nil {
		if productID, ok := r.cache.GetProductID(ctx, provider, externalRef); ok {
			r.productMemo[key] = productEntry{id: productID}
			return productID, nil
		}
	}

	mapping, err := r.mappings.FindActive(ctx, provider, externalRef)
	if err != nil {
		r.productMemo[key] = productEntry{err: err}
		return 0, err
	}

	if r.cache != nil {
		r.cache.SetProductID(ctx, provider, externalRef, mapping.ProductID)
	}
	r.productMemo[key] = productEntry{id: mapping.ProductID}
	return mapping.ProductID, nil
}
