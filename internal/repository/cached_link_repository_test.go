package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhejian/url-shortener/shortlink/internal/model"
)

func TestCachedLinkRepository_FindTarget(t *testing.T) {
	ctx := context.Background()
	cacheTTL := 5 * time.Minute

	t.Run("cache miss - fetches from db and caches", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		dbRepo := NewLinkRepository(testDB.Pool, 5*time.Second)
		repo := NewCachedLinkRepository(dbRepo, testCache.Client, cacheTTL)
		require.NoError(t, dbRepo.InsertUnique(ctx, newTestLink("cachemiss", time.Now(), time.Hour)))

		link, err := repo.FindTarget(ctx, "cachemiss")
		require.NoError(t, err)
		assert.Equal(t, "cachemiss", link.ShortCode)

		// Verify it's now cached
		exists, _ := testCache.Client.Exists(ctx, "link:cachemiss").Result()
		assert.Equal(t, int64(1), exists, "expected link to be cached after fetch")
	})

	t.Run("cache hit - returns from cache without db query", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		dbRepo := NewLinkRepository(testDB.Pool, 5*time.Second)
		repo := NewCachedLinkRepository(dbRepo, testCache.Client, cacheTTL)
		original := newTestLink("cachehit", time.Now(), time.Hour)
		require.NoError(t, dbRepo.InsertUnique(ctx, original))

		_, err := repo.FindTarget(ctx, "cachehit")
		require.NoError(t, err, "first fetch failed")

		// Delete from DB directly
		testDB.Pool.Exec(ctx, "DELETE FROM links WHERE short_code = $1", "cachehit")

		link, err := repo.FindTarget(ctx, "cachehit")
		require.NoError(t, err, "expected cache hit")
		assert.Equal(t, original.OriginalURL, link.OriginalURL)
		assert.True(t, original.ExpiresAt.Equal(link.ExpiresAt))
	})

	t.Run("negative caching - caches not found", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		dbRepo := NewLinkRepository(testDB.Pool, 5*time.Second)
		repo := NewCachedLinkRepository(dbRepo, testCache.Client, cacheTTL)

		_, err := repo.FindTarget(ctx, "notfound")
		require.ErrorIs(t, err, ErrNotFound)

		cached, err := testCache.Client.Get(ctx, "link:notfound").Result()
		require.NoError(t, err, "expected cache entry")
		assert.Equal(t, notFoundSentinel, cached)

		ttl, err := testCache.Client.TTL(ctx, "link:notfound").Result()
		require.NoError(t, err)
		assert.LessOrEqual(t, ttl, negativeCacheTTL)
	})

	t.Run("insert overwrites negative entry", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		dbRepo := NewLinkRepository(testDB.Pool, 5*time.Second)
		repo := NewCachedLinkRepository(dbRepo, testCache.Client, cacheTTL)

		_, _ = repo.FindTarget(ctx, "latecomer")
		require.NoError(t, repo.InsertUnique(ctx, newTestLink("latecomer", time.Now(), time.Hour)))

		link, err := repo.FindTarget(ctx, "latecomer")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/latecomer", link.OriginalURL)
	})

	t.Run("stale miss does not shadow a concurrent insert", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		dbRepo := &pausedLookupRepository{
			LinkRepositoryInterface: NewLinkRepository(testDB.Pool, 5*time.Second),
			looked:                  make(chan struct{}),
			release:                 make(chan struct{}),
		}
		repo := NewCachedLinkRepository(dbRepo, testCache.Client, cacheTTL)

		missErr := make(chan error, 1)
		go func() {
			_, err := repo.FindTarget(ctx, "abc123")
			missErr <- err
		}()

		<-dbRepo.looked
		require.NoError(t, repo.InsertUnique(ctx, newTestLink("abc123", time.Now(), time.Hour)))
		close(dbRepo.release)
		require.ErrorIs(t, <-missErr, ErrNotFound)

		cached, err := testCache.Client.Get(ctx, "link:abc123").Result()
		require.NoError(t, err)
		assert.NotEqual(t, notFoundSentinel, cached)

		link, err := repo.FindTarget(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/abc123", link.OriginalURL)
	})

	t.Run("conflicting insert leaves cache untouched", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		dbRepo := NewLinkRepository(testDB.Pool, 5*time.Second)
		repo := NewCachedLinkRepository(dbRepo, testCache.Client, cacheTTL)
		require.NoError(t, repo.InsertUnique(ctx, newTestLink("owned01", time.Now(), time.Hour)))

		intruder := newTestLink("owned01", time.Now(), time.Hour)
		intruder.OriginalURL = "https://other.example"
		require.ErrorIs(t, repo.InsertUnique(ctx, intruder), ErrCodeConflict)

		link, err := repo.FindTarget(ctx, "owned01")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/owned01", link.OriginalURL)
	})

	t.Run("nil cache - passes through to db", func(t *testing.T) {
		testDB.Cleanup(ctx)

		dbRepo := NewLinkRepository(testDB.Pool, 5*time.Second)
		repo := NewCachedLinkRepository(dbRepo, nil, cacheTTL)
		require.NoError(t, repo.InsertUnique(ctx, newTestLink("nocache", time.Now(), time.Hour)))

		link, err := repo.FindTarget(ctx, "nocache")
		require.NoError(t, err)
		assert.Equal(t, "nocache", link.ShortCode)
	})
}

func TestCachedLinkRepository_FindByCodeBypassesCache(t *testing.T) {
	ctx := context.Background()
	testDB.Cleanup(ctx)
	testCache.Cleanup(ctx)

	dbRepo := NewLinkRepository(testDB.Pool, 5*time.Second)
	repo := NewCachedLinkRepository(dbRepo, testCache.Client, time.Minute)
	require.NoError(t, repo.InsertUnique(ctx, newTestLink("fresh01", time.Now(), time.Hour)))

	_, err := repo.FindTarget(ctx, "fresh01")
	require.NoError(t, err)
	require.NoError(t, repo.IncrementClicksAndAppend(ctx, "fresh01", model.Click{At: time.Now()}))

	link, err := repo.FindByCode(ctx, "fresh01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), link.Clicks)
	assert.Len(t, link.ClickLog, 1)
}

// pausedLookupRepository holds the first FindTarget result until release is
// closed, letting a write land between the database read and the cache fill.
type pausedLookupRepository struct {
	LinkRepositoryInterface
	once    sync.Once
	looked  chan struct{}
	release chan struct{}
}

func (p *pausedLookupRepository) FindTarget(ctx context.Context, code string) (*model.Link, error) {
	link, err := p.LinkRepositoryInterface.FindTarget(ctx, code)
	paused := false
	p.once.Do(func() { paused = true })
	if paused {
		close(p.looked)
		<-p.release
	}
	return link, err
}
