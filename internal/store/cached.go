package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voyagen/guidevault/internal/cache"
	"github.com/voyagen/guidevault/internal/models"
	"github.com/voyagen/guidevault/internal/reconcile"
)

// Cache TTLs for different entity types.
const (
	ttlSources  = 2 * time.Minute
	ttlSource   = 5 * time.Minute
	ttlChannels = 1 * time.Minute
	ttlChannel  = 5 * time.Minute
	ttlPrograms = 1 * time.Minute
)

// CachedStore wraps a Store with a Redis caching layer for the API's
// read-heavy queries; write operations invalidate the relevant keys.
// StoredPrograms is deliberately uncached: the reconciler must always see
// the store's true state or its diff would be computed against stale rows.
type CachedStore struct {
	inner  Store
	cache  *cache.Redis
	logger func(key string, err error)
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis) *CachedStore {
	return &CachedStore{
		inner: inner,
		cache: c,
		logger: func(key string, err error) {
			log.Warn().Err(err).Str("key", key).Msg("cache set failed")
		},
	}
}

// --- cached read operations ---

func (c *CachedStore) ListSources(ctx context.Context) ([]models.Source, error) {
	const key = "sources:all"
	if v, err := cache.Get[[]models.Source](ctx, c.cache, key); err == nil {
		return v, nil
	}
	sources, err := c.inner.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, sources, ttlSources); err != nil {
		c.logger(key, err)
	}
	return sources, nil
}

func (c *CachedStore) GetSourceByID(ctx context.Context, sourceID int64) (*models.Source, error) {
	key := fmt.Sprintf("source:%d", sourceID)
	if v, err := cache.Get[models.Source](ctx, c.cache, key); err == nil {
		return &v, nil
	}
	src, err := c.inner.GetSourceByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, src, ttlSource); err != nil {
		c.logger(key, err)
	}
	return src, nil
}

func (c *CachedStore) ListChannels(ctx context.Context, sourceID *int64) ([]models.Channel, error) {
	key := "channels:all"
	if sourceID != nil {
		key = fmt.Sprintf("channels:source:%d", *sourceID)
	}
	if v, err := cache.Get[[]models.Channel](ctx, c.cache, key); err == nil {
		return v, nil
	}
	channels, err := c.inner.ListChannels(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, channels, ttlChannels); err != nil {
		c.logger(key, err)
	}
	return channels, nil
}

func (c *CachedStore) GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error) {
	key := fmt.Sprintf("channel:%d", channelID)
	if v, err := cache.Get[models.Channel](ctx, c.cache, key); err == nil {
		return &v, nil
	}
	ch, err := c.inner.GetChannelByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, ch, ttlChannel); err != nil {
		c.logger(key, err)
	}
	return ch, nil
}

func (c *CachedStore) ProgramsInWindow(ctx context.Context, channelRowID, fromMs, toMs int64) ([]models.StoredProgram, error) {
	key := fmt.Sprintf("programs:%d:%d:%d", channelRowID, fromMs, toMs)
	if v, err := cache.Get[[]models.StoredProgram](ctx, c.cache, key); err == nil {
		return v, nil
	}
	programs, err := c.inner.ProgramsInWindow(ctx, channelRowID, fromMs, toMs)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, programs, ttlPrograms); err != nil {
		c.logger(key, err)
	}
	return programs, nil
}

// --- uncached reads ---

func (c *CachedStore) StoredPrograms(ctx context.Context, channelRowID int64) ([]models.StoredProgram, error) {
	return c.inner.StoredPrograms(ctx, channelRowID)
}

func (c *CachedStore) ResolveChannelRowIDs(ctx context.Context, sourceID int64, channels []models.Channel) (map[int64]models.Channel, error) {
	return c.inner.ResolveChannelRowIDs(ctx, sourceID, channels)
}

// --- writes with invalidation ---

func (c *CachedStore) CreateOrGetSource(ctx context.Context, name, xmltvURL, m3uURL, userAgent string) (int64, error) {
	id, err := c.inner.CreateOrGetSource(ctx, name, xmltvURL, m3uURL, userAgent)
	if err == nil {
		c.invalidateSources(ctx, id)
	}
	return id, err
}

func (c *CachedStore) UpdateSource(ctx context.Context, sourceID int64, fields SourceUpdate) error {
	err := c.inner.UpdateSource(ctx, sourceID, fields)
	if err == nil {
		c.invalidateSources(ctx, sourceID)
	}
	return err
}

func (c *CachedStore) DeleteSource(ctx context.Context, sourceID int64) error {
	err := c.inner.DeleteSource(ctx, sourceID)
	if err == nil {
		c.invalidateSources(ctx, sourceID)
		_ = cache.DelPattern(ctx, c.cache, "channels:*")
		_ = cache.DelPattern(ctx, c.cache, "channel:*")
		_ = cache.DelPattern(ctx, c.cache, "programs:*")
	}
	return err
}

func (c *CachedStore) UpdateSourceLastSynced(ctx context.Context, sourceID int64) error {
	err := c.inner.UpdateSourceLastSynced(ctx, sourceID)
	if err == nil {
		c.invalidateSources(ctx, sourceID)
	}
	return err
}

func (c *CachedStore) UpsertChannel(ctx context.Context, ch *models.Channel) (int64, error) {
	id, err := c.inner.UpsertChannel(ctx, ch)
	if err == nil {
		_ = cache.DelPattern(ctx, c.cache, "channels:*")
		_ = cache.Del(ctx, c.cache, fmt.Sprintf("channel:%d", id))
	}
	return id, err
}

func (c *CachedStore) RemoveStaleChannels(ctx context.Context, sourceID int64, keepIDs []int64) error {
	err := c.inner.RemoveStaleChannels(ctx, sourceID, keepIDs)
	if err == nil {
		_ = cache.DelPattern(ctx, c.cache, "channels:*")
		_ = cache.DelPattern(ctx, c.cache, "channel:*")
		_ = cache.DelPattern(ctx, c.cache, "programs:*")
	}
	return err
}

func (c *CachedStore) ApplyBatch(ctx context.Context, ops []reconcile.Op) error {
	err := c.inner.ApplyBatch(ctx, ops)
	if err == nil && len(ops) > 0 {
		// Ops within one batch target one channel, but deletes carry no
		// channel id; clearing all programme windows is cheap and safe.
		_ = cache.DelPattern(ctx, c.cache, "programs:*")
	}
	return err
}

func (c *CachedStore) invalidateSources(ctx context.Context, sourceID int64) {
	_ = cache.Del(ctx, c.cache, "sources:all", fmt.Sprintf("source:%d", sourceID))
}
