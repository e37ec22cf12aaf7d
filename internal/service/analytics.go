package service

import (
	"context"
	"errors"
	"math"

	"github.com/zhejian/url-shortener/shortlink/internal/model"
	"github.com/zhejian/url-shortener/shortlink/internal/repository"
	"golang.org/x/sync/errgroup"
)

// GetStats returns a link's click count and full click log. Expired links
// remain queryable.
func (s *LinkService) GetStats(ctx context.Context, code string) (*model.LinkDetailResponse, error) {
	link, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, storeErr("find link", err)
	}

	clickLog := make([]model.ClickResponse, 0, len(link.ClickLog))
	for _, c := range link.ClickLog {
		clickLog = append(clickLog, model.ClickResponse{
			Timestamp: formatTime(c.At),
			Referer:   c.Referer,
			IP:        c.IP,
		})
	}

	return &model.LinkDetailResponse{
		Clicks:    link.Clicks,
		URL:       link.OriginalURL,
		CreatedAt: formatTime(link.CreatedAt),
		Expiry:    formatTime(link.ExpiresAt),
		ClickLog:  clickLog,
	}, nil
}

// ListLinks returns one page of links, newest first. page starts at 1 and
// limit is clamped to [1, MaxPageLimit].
func (s *LinkService) ListLinks(ctx context.Context, page, limit int) (*model.LinkListResponse, error) {
	if page < 1 {
		page = 1
	}
	limit = max(1, min(limit, MaxPageLimit))
	skip := math.MaxInt
	if page-1 <= math.MaxInt/limit {
		skip = (page - 1) * limit
	}

	var (
		total int64
		links []model.Link
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, model.LinkFilter{State: model.StateAll})
		return err
	})
	g.Go(func() error {
		var err error
		links, err = s.repo.List(gctx, skip, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, storeErr("list links", err)
	}

	items := make([]model.LinkSummary, 0, len(links))
	for _, l := range links {
		items = append(items, model.LinkSummary{
			ShortCode: l.ShortCode,
			URL:       l.OriginalURL,
			CreatedAt: formatTime(l.CreatedAt),
			Expiry:    formatTime(l.ExpiresAt),
			Clicks:    l.Clicks,
		})
	}

	return &model.LinkListResponse{
		Page:  page,
		Limit: limit,
		Total: total,
		Items: items,
	}, nil
}

// Summary aggregates counts across every link. A link is active while its
// expiry is strictly after now.
func (s *LinkService) Summary(ctx context.Context) (*model.SummaryResponse, error) {
	now := s.now().UTC()

	var total, active, clicks int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, model.LinkFilter{State: model.StateAll})
		return err
	})
	g.Go(func() error {
		var err error
		active, err = s.repo.Count(gctx, model.LinkFilter{State: model.StateActive, At: now})
		return err
	})
	g.Go(func() error {
		var err error
		clicks, err = s.repo.SumClicks(gctx, model.LinkFilter{State: model.StateAll})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, storeErr("summarize links", err)
	}

	// The three reads are not one snapshot; a create landing between them
	// must not yield a negative expired count.
	if active > total {
		total = active
	}

	return &model.SummaryResponse{
		Total:   total,
		Active:  active,
		Expired: total - active,
		Clicks:  clicks,
	}, nil
}
