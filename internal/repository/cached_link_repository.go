package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zhejian/url-shortener/shortlink/internal/model"
)

const (
	notFoundSentinel = "__NOT_FOUND__"
	negativeCacheTTL = 30 * time.Second
)

// CachedLinkRepository decorates a LinkRepository with a Redis cache-aside layer
// for redirect targets. Targets are immutable once created, so entries never
// need invalidation; only negative entries are overwritten on insert.
// A nil cache turns every call into a pass-through.
type CachedLinkRepository struct {
	db    LinkRepositoryInterface
	cache *redis.Client
	ttl   time.Duration
}

// NewCachedLinkRepository creates a caching decorator around db
func NewCachedLinkRepository(db LinkRepositoryInterface, cache *redis.Client, ttl time.Duration) *CachedLinkRepository {
	return &CachedLinkRepository{db: db, cache: cache, ttl: ttl}
}

func cacheKey(code string) string {
	return fmt.Sprintf("link:%s", code)
}

// FindTarget with cache-aside pattern
func (r *CachedLinkRepository) FindTarget(ctx context.Context, code string) (*model.Link, error) {
	key := cacheKey(code)

	// Redis errors fall through to the database
	if r.cache != nil {
		cached, err := r.cache.Get(ctx, key).Result()
		if err == nil {
			if cached == notFoundSentinel {
				return nil, ErrNotFound
			}
			var link model.Link
			if jsonErr := json.Unmarshal([]byte(cached), &link); jsonErr == nil {
				return &link, nil
			}
		}
	}

	link, err := r.db.FindTarget(ctx, code)
	if err != nil {
		// SetNX so a miss read before a concurrent insert never hides its target
		if errors.Is(err, ErrNotFound) && r.cache != nil {
			r.cache.SetNX(ctx, key, notFoundSentinel, negativeCacheTTL)
		}
		return nil, err
	}

	if r.cache != nil {
		if data, err := json.Marshal(link); err == nil {
			r.cache.Set(ctx, key, data, r.ttl)
		}
	}
	return link, nil
}

// InsertUnique writes through: on success the target replaces any negative entry
func (r *CachedLinkRepository) InsertUnique(ctx context.Context, link *model.Link) error {
	if err := r.db.InsertUnique(ctx, link); err != nil {
		return err
	}
	if r.cache != nil {
		target := *link
		target.Clicks = 0
		target.ClickLog = nil
		if data, err := json.Marshal(&target); err == nil {
			r.cache.Set(ctx, cacheKey(link.ShortCode), data, r.ttl)
		}
	}
	return nil
}

// FindByCode always reads the database: click data changes on every redirect
func (r *CachedLinkRepository) FindByCode(ctx context.Context, code string) (*model.Link, error) {
	return r.db.FindByCode(ctx, code)
}

func (r *CachedLinkRepository) IncrementClicksAndAppend(ctx context.Context, code string, click model.Click) error {
	return r.db.IncrementClicksAndAppend(ctx, code, click)
}

func (r *CachedLinkRepository) Count(ctx context.Context, filter model.LinkFilter) (int64, error) {
	return r.db.Count(ctx, filter)
}

func (r *CachedLinkRepository) SumClicks(ctx context.Context, filter model.LinkFilter) (int64, error) {
	return r.db.SumClicks(ctx, filter)
}

func (r *CachedLinkRepository) List(ctx context.Context, skip, limit int) ([]model.Link, error) {
	return r.db.List(ctx, skip, limit)
}

var _ LinkRepositoryInterface = (*CachedLinkRepository)(nil)
