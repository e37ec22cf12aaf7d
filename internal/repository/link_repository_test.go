package repository

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhejian/url-shortener/shortlink/internal/model"
	"github.com/zhejian/url-shortener/shortlink/internal/testutil"
)

var (
	testDB    *testutil.TestDB
	testCache *testutil.TestCache
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testDB, err = testutil.SetupTestDB(ctx)
	if err != nil {
		panic("failed to setup test database: " + err.Error())
	}

	testCache, err = testutil.SetupTestCache(ctx)
	if err != nil {
		panic("failed to setup test cache: " + err.Error())
	}

	// Run tests
	code := m.Run()

	// Cleanup
	testCache.Teardown(ctx)
	testDB.Teardown(ctx)
	os.Exit(code)
}

func newTestLink(code string, createdAt time.Time, validity time.Duration) *model.Link {
	createdAt = createdAt.UTC().Truncate(time.Microsecond)
	return &model.Link{
		ID:          uuid.New(),
		ShortCode:   code,
		OriginalURL: "https://example.com/" + code,
		CreatedAt:   createdAt,
		ExpiresAt:   createdAt.Add(validity),
	}
}

func TestLinkRepository_InsertUnique(t *testing.T) {
	repo := NewLinkRepository(testDB.Pool, 5*time.Second)
	ctx := context.Background()

	t.Run("success - insert link", func(t *testing.T) {
		testDB.Cleanup(ctx)

		err := repo.InsertUnique(ctx, newTestLink("abc123", time.Now(), 30*time.Minute))
		require.NoError(t, err)

		// Verify in database
		var count int
		testDB.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM links WHERE short_code = $1", "abc123").Scan(&count)
		assert.Equal(t, 1, count)
	})

	t.Run("error - duplicate short code", func(t *testing.T) {
		testDB.Cleanup(ctx)

		require.NoError(t, repo.InsertUnique(ctx, newTestLink("dup123", time.Now(), time.Minute)), "first insert failed")

		err := repo.InsertUnique(ctx, newTestLink("dup123", time.Now(), time.Minute))
		require.Error(t, err, "expected error for duplicate short code")
		assert.ErrorIs(t, err, ErrCodeConflict)
	})

	t.Run("error - concurrent inserts of the same code", func(t *testing.T) {
		testDB.Cleanup(ctx)

		const workers = 20
		var wg sync.WaitGroup
		var succeeded, conflicted atomic.Int32
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.InsertUnique(ctx, newTestLink("race01", time.Now(), time.Minute))
				switch err {
				case nil:
					succeeded.Add(1)
				case ErrCodeConflict:
					conflicted.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), succeeded.Load())
		assert.Equal(t, int32(workers-1), conflicted.Load())
	})

	t.Run("error - expiry not after creation", func(t *testing.T) {
		testDB.Cleanup(ctx)

		err := repo.InsertUnique(ctx, newTestLink("noexpiry", time.Now(), 0))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCodeConflict)
	})
}

func TestLinkRepository_FindTarget(t *testing.T) {
	repo := NewLinkRepository(testDB.Pool, 5*time.Second)
	ctx := context.Background()

	t.Run("success - get existing link", func(t *testing.T) {
		testDB.Cleanup(ctx)
		link := newTestLink("abc123", time.Now(), time.Hour)
		require.NoError(t, repo.InsertUnique(ctx, link))

		got, err := repo.FindTarget(ctx, "abc123")
		require.NoError(t, err)

		assert.Equal(t, link.ID, got.ID)
		assert.Equal(t, "https://example.com/abc123", got.OriginalURL)
		assert.True(t, link.CreatedAt.Equal(got.CreatedAt))
		assert.True(t, link.ExpiresAt.Equal(got.ExpiresAt))
	})

	t.Run("error - link not found", func(t *testing.T) {
		testDB.Cleanup(ctx)

		_, err := repo.FindTarget(ctx, "nonexistent")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("error - store timeout", func(t *testing.T) {
		slow := NewLinkRepository(testDB.Pool, time.Nanosecond)

		_, err := slow.FindTarget(ctx, "abc123")
		assert.ErrorIs(t, err, ErrTimeout)
	})
}

func TestLinkRepository_IncrementClicksAndAppend(t *testing.T) {
	repo := NewLinkRepository(testDB.Pool, 5*time.Second)
	ctx := context.Background()

	t.Run("success - increments counter and appends click", func(t *testing.T) {
		testDB.Cleanup(ctx)
		link := newTestLink("click1", time.Now(), time.Hour)
		require.NoError(t, repo.InsertUnique(ctx, link))

		at := time.Now().UTC().Truncate(time.Microsecond)
		err := repo.IncrementClicksAndAppend(ctx, "click1", model.Click{At: at, Referer: "https://ref.example", IP: "10.0.0.1"})
		require.NoError(t, err)
		err = repo.IncrementClicksAndAppend(ctx, "click1", model.Click{At: at.Add(time.Second)})
		require.NoError(t, err)

		got, err := repo.FindByCode(ctx, "click1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Clicks)
		require.Len(t, got.ClickLog, 2)
		assert.True(t, at.Equal(got.ClickLog[0].At))
		assert.Equal(t, "https://ref.example", got.ClickLog[0].Referer)
		assert.Equal(t, "10.0.0.1", got.ClickLog[0].IP)
		assert.Empty(t, got.ClickLog[1].Referer)
		assert.Empty(t, got.ClickLog[1].IP)
	})

	t.Run("error - expired link is not mutated", func(t *testing.T) {
		testDB.Cleanup(ctx)
		link := newTestLink("old001", time.Now().Add(-2*time.Hour), time.Hour)
		require.NoError(t, repo.InsertUnique(ctx, link))

		err := repo.IncrementClicksAndAppend(ctx, "old001", model.Click{At: time.Now()})
		assert.ErrorIs(t, err, ErrExpired)

		got, err := repo.FindByCode(ctx, "old001")
		require.NoError(t, err)
		assert.Equal(t, int64(0), got.Clicks)
		assert.Empty(t, got.ClickLog)
	})

	t.Run("success - click exactly at expiry is accepted", func(t *testing.T) {
		testDB.Cleanup(ctx)
		link := newTestLink("edge01", time.Now().Add(-time.Hour), time.Hour)
		require.NoError(t, repo.InsertUnique(ctx, link))

		err := repo.IncrementClicksAndAppend(ctx, "edge01", model.Click{At: link.ExpiresAt})
		assert.NoError(t, err)
	})

	t.Run("error - link not found", func(t *testing.T) {
		testDB.Cleanup(ctx)

		err := repo.IncrementClicksAndAppend(ctx, "missing", model.Click{At: time.Now()})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent clicks are never lost", func(t *testing.T) {
		testDB.Cleanup(ctx)
		require.NoError(t, repo.InsertUnique(ctx, newTestLink("hot001", time.Now(), time.Hour)))

		const clicks = 50
		var wg sync.WaitGroup
		var succeeded atomic.Int64
		for i := 0; i < clicks; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := repo.IncrementClicksAndAppend(ctx, "hot001", model.Click{
					At: time.Now().UTC(),
					IP: fmt.Sprintf("10.0.0.%d", i),
				})
				if err == nil {
					succeeded.Add(1)
				}
			}(i)
		}
		wg.Wait()

		got, err := repo.FindByCode(ctx, "hot001")
		require.NoError(t, err)
		assert.Equal(t, int64(clicks), succeeded.Load())
		assert.Equal(t, succeeded.Load(), got.Clicks)
		assert.Len(t, got.ClickLog, int(got.Clicks))
	})

	t.Run("cancelled context applies nothing", func(t *testing.T) {
		testDB.Cleanup(ctx)
		require.NoError(t, repo.InsertUnique(ctx, newTestLink("cncl01", time.Now(), time.Hour)))

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := repo.IncrementClicksAndAppend(cancelled, "cncl01", model.Click{At: time.Now()})
		require.Error(t, err)

		got, err := repo.FindByCode(ctx, "cncl01")
		require.NoError(t, err)
		assert.Equal(t, int64(0), got.Clicks)
		assert.Empty(t, got.ClickLog)
	})
}

func TestLinkRepository_CountAndSumClicks(t *testing.T) {
	repo := NewLinkRepository(testDB.Pool, 5*time.Second)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("empty store", func(t *testing.T) {
		testDB.Cleanup(ctx)

		total, err := repo.Count(ctx, model.LinkFilter{State: model.StateAll})
		require.NoError(t, err)
		assert.Equal(t, int64(0), total)

		sum, err := repo.SumClicks(ctx, model.LinkFilter{State: model.StateAll})
		require.NoError(t, err)
		assert.Equal(t, int64(0), sum)
	})

	t.Run("active and expired links", func(t *testing.T) {
		testDB.Cleanup(ctx)
		for i := 0; i < 3; i++ {
			require.NoError(t, repo.InsertUnique(ctx, newTestLink(fmt.Sprintf("past%02d", i), now.Add(-2*time.Hour), time.Hour)))
		}
		for i := 0; i < 2; i++ {
			code := fmt.Sprintf("live%02d", i)
			require.NoError(t, repo.InsertUnique(ctx, newTestLink(code, now, time.Hour)))
			for c := 0; c <= i; c++ {
				require.NoError(t, repo.IncrementClicksAndAppend(ctx, code, model.Click{At: now}))
			}
		}

		total, err := repo.Count(ctx, model.LinkFilter{State: model.StateAll})
		require.NoError(t, err)
		active, err := repo.Count(ctx, model.LinkFilter{State: model.StateActive, At: now})
		require.NoError(t, err)
		expired, err := repo.Count(ctx, model.LinkFilter{State: model.StateExpired, At: now})
		require.NoError(t, err)
		sum, err := repo.SumClicks(ctx, model.LinkFilter{State: model.StateAll})
		require.NoError(t, err)
		activeSum, err := repo.SumClicks(ctx, model.LinkFilter{State: model.StateActive, At: now})
		require.NoError(t, err)

		assert.Equal(t, int64(5), total)
		assert.Equal(t, int64(2), active)
		assert.Equal(t, int64(3), expired)
		assert.Equal(t, int64(3), sum)
		assert.Equal(t, int64(3), activeSum)
	})
}

func TestLinkRepository_List(t *testing.T) {
	repo := NewLinkRepository(testDB.Pool, 5*time.Second)
	ctx := context.Background()

	testDB.Cleanup(ctx)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 1; i <= 25; i++ {
		link := newTestLink(fmt.Sprintf("list%02d", i), base.Add(time.Duration(i)*time.Second), 2*time.Hour)
		require.NoError(t, repo.InsertUnique(ctx, link))
	}

	t.Run("second page newest first", func(t *testing.T) {
		links, err := repo.List(ctx, 10, 10)
		require.NoError(t, err)
		require.Len(t, links, 10)

		// newest is list25, so records 11-20 are list15 down to list06
		assert.Equal(t, "list15", links[0].ShortCode)
		assert.Equal(t, "list06", links[9].ShortCode)
		for i := 1; i < len(links); i++ {
			assert.True(t, links[i-1].CreatedAt.After(links[i].CreatedAt))
		}
	})

	t.Run("window past the end is empty", func(t *testing.T) {
		links, err := repo.List(ctx, 30, 10)
		require.NoError(t, err)
		assert.Empty(t, links)
	})
}
