package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/talkgate/internal/metrics"
	"github.com/goodtune/talkgate/internal/plans"
	"github.com/goodtune/talkgate/internal/storage"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrUnknownPlan is returned when assigning a plan the catalog does not define.
var ErrUnknownPlan = errors.New("subscriptions: unknown plan")

// Config holds directory configuration
type Config struct {
	CacheSize   int
	CacheTTL    time.Duration
	TrustHeader bool
}

// cached is a directory lookup result. Misses are cached too.
type cached struct {
	planID string
	found  bool
}

// Directory maps users to plan tiers. Reads go through an expirable LRU in
// front of the storage backend.
type Directory struct {
	store       storage.SubscriptionStore
	catalog     *plans.Catalog
	cache       *expirable.LRU[string, cached]
	lookups     singleflight.Group
	trustHeader bool
	logger      zerolog.Logger
}

// NewDirectory creates a subscription directory.
func NewDirectory(store storage.SubscriptionStore, catalog *plans.Catalog, cfg Config, logger zerolog.Logger) *Directory {
	size := cfg.CacheSize
	if size <= 0 {
		size = 10000
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &Directory{
		store:       store,
		catalog:     catalog,
		cache:       expirable.NewLRU[string, cached](size, nil, ttl),
		trustHeader: cfg.TrustHeader,
		logger:      logger.With().Str("component", "subscriptions").Logger(),
	}
}

// PlanHint returns the tier hint for userID. A directory entry wins; the
// caller-supplied header hint is used only when there is no entry and the
// header is trusted. An empty result means "no hint".
func (d *Directory) PlanHint(ctx context.Context, userID, headerHint string) string {
	if planID, ok := d.lookup(ctx, userID); ok {
		return planID
	}
	if d.trustHeader {
		return headerHint
	}
	return ""
}

func (d *Directory) lookup(ctx context.Context, userID string) (string, bool) {
	if entry, ok := d.cache.Get(userID); ok {
		metrics.SubscriptionCacheHits.Inc()
		return entry.planID, entry.found
	}
	metrics.SubscriptionCacheMisses.Inc()

	// Concurrent misses for one user share a single backend read
	v, err, _ := d.lookups.Do(userID, func() (interface{}, error) {
		sub, err := d.store.Get(ctx, userID)
		switch {
		case err == nil:
			entry := cached{planID: sub.PlanID, found: true}
			d.cache.Add(userID, entry)
			return entry, nil
		case errors.Is(err, storage.ErrNotFound):
			d.cache.Add(userID, cached{})
			return cached{}, nil
		default:
			return nil, err
		}
	})
	if err != nil {
		// Backend errors are not cached; the next request retries
		d.logger.Warn().Err(err).Str("user_id", userID).Msg("Subscription lookup failed")
		return "", false
	}

	entry := v.(cached)
	return entry.planID, entry.found
}

// Get returns the stored subscription for userID.
func (d *Directory) Get(ctx context.Context, userID string) (*storage.Subscription, error) {
	return d.store.Get(ctx, userID)
}

// List returns all stored subscriptions.
func (d *Directory) List(ctx context.Context) ([]storage.Subscription, error) {
	return d.store.List(ctx)
}

// Assign puts userID on planID.
func (d *Directory) Assign(ctx context.Context, userID, planID string) error {
	if !d.catalog.Has(planID) {
		return fmt.Errorf("%w: %s", ErrUnknownPlan, planID)
	}

	err := d.store.Upsert(ctx, storage.Subscription{
		UserID:    userID,
		PlanID:    planID,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("assign plan: %w", err)
	}

	d.cache.Remove(userID)
	d.logger.Info().Str("user_id", userID).Str("plan", planID).Msg("Plan assigned")
	return nil
}

// Remove deletes the subscription for userID.
func (d *Directory) Remove(ctx context.Context, userID string) error {
	if err := d.store.Delete(ctx, userID); err != nil {
		return err
	}

	d.cache.Remove(userID)
	d.logger.Info().Str("user_id", userID).Msg("Plan assignment removed")
	return nil
}
