package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"unionregistry/internal/dealer/models"
	id "unionregistry/pkg/domain"
	txcontext "unionregistry/pkg/platform/tx"
)

const (
	dealerKeyPrefix = "dealer:"
	defaultCacheTTL = 10 * time.Minute
)

// Backend is the store a CachedStore reads through to.
type Backend interface {
	Create(ctx context.Context, dealer *models.Dealer) error
	FindByID(ctx context.Context, dealerID id.DealerID) (*models.Dealer, error)
	List(ctx context.Context) ([]*models.Dealer, error)
	Update(ctx context.Context, dealer *models.Dealer) error
	Count(ctx context.Context) (int, error)
}

// CachedStore is a Redis read-through cache over FindByID. Dealer names are
// read on every conflict message and transfer listing, and change rarely.
// Redis errors degrade to the backend; they never fail a request.
type CachedStore struct {
	Backend
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// CacheOption configures a CachedStore.
type CacheOption func(*CachedStore)

func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *CachedStore) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *CachedStore) {
		c.logger = logger
	}
}

// NewCached wraps backend with a Redis cache.
func NewCached(backend Backend, client redis.Cmdable, opts ...CacheOption) *CachedStore {
	c := &CachedStore{Backend: backend, client: client, ttl: defaultCacheTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(dealerID id.DealerID) string {
	return dealerKeyPrefix + dealerID.String()
}

// FindByID serves from Redis when possible. Reads inside a transaction on
// either backend bypass the cache so uncommitted rows are never published.
func (c *CachedStore) FindByID(ctx context.Context, dealerID id.DealerID) (*models.Dealer, error) {
	if txcontext.Active(ctx) {
		return c.Backend.FindByID(ctx, dealerID)
	}

	raw, err := c.client.Get(ctx, cacheKey(dealerID)).Bytes()
	switch {
	case err == nil:
		var dealer models.Dealer
		if jsonErr := json.Unmarshal(raw, &dealer); jsonErr == nil {
			return &dealer, nil
		}
		c.warn(ctx, "discarding undecodable cached dealer", dealerID, nil)
	case !errors.Is(err, redis.Nil):
		c.warn(ctx, "dealer cache read failed", dealerID, err)
	}

	dealer, err := c.Backend.FindByID(ctx, dealerID)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(dealer); err == nil {
		if err := c.client.Set(ctx, cacheKey(dealerID), payload, c.ttl).Err(); err != nil {
			c.warn(ctx, "dealer cache write failed", dealerID, err)
		}
	}
	return dealer, nil
}

// Update writes through to the backend and evicts the cached copy.
func (c *CachedStore) Update(ctx context.Context, dealer *models.Dealer) error {
	if err := c.Backend.Update(ctx, dealer); err != nil {
		return err
	}
	c.Invalidate(ctx, dealer.ID)
	return nil
}

// Invalidate evicts one dealer.
func (c *CachedStore) Invalidate(ctx context.Context, dealerID id.DealerID) {
	if err := c.client.Del(ctx, cacheKey(dealerID)).Err(); err != nil {
		c.warn(ctx, "dealer cache eviction failed", dealerID, err)
	}
}

func (c *CachedStore) warn(ctx context.Context, msg string, dealerID id.DealerID, err error) {
	if c.logger == nil {
		return
	}
	c.logger.WarnContext(ctx, msg, "dealer_id", dealerID.String(), "error", err)
}
