package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zhejian/url-shortener/shortlink/internal/events"
	"github.com/zhejian/url-shortener/shortlink/internal/model"
	"github.com/zhejian/url-shortener/shortlink/internal/repository"
	"github.com/zhejian/url-shortener/shortlink/internal/telemetry"
)

// Resolve returns the target of an unexpired link and records the click.
// The counter increment and click append happen atomically in the store; if
// the link expires between lookup and update nothing is recorded and
// ErrLinkExpired is returned.
func (s *LinkService) Resolve(ctx context.Context, code string, click model.ClickContext) (string, error) {
	if s.reserved.contains(code) {
		s.metrics.redirect(ctx, "not_found")
		return "", ErrLinkNotFound
	}

	link, err := s.repo.FindTarget(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.redirect(ctx, "not_found")
			return "", ErrLinkNotFound
		}
		s.metrics.redirect(ctx, "error")
		return "", storeErr("find link", err)
	}

	now := s.now().UTC()
	if link.Expired(now) {
		s.metrics.redirect(ctx, "expired")
		s.recorder.Record(ctx, telemetry.LevelInfo, "service", "redirect to expired link: "+code)
		return "", ErrLinkExpired
	}

	err = s.repo.IncrementClicksAndAppend(ctx, code, model.Click{
		At:      now,
		Referer: click.Referer,
		IP:      click.IP,
	})
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrExpired):
		s.metrics.redirect(ctx, "expired")
		return "", ErrLinkExpired
	case errors.Is(err, repository.ErrNotFound):
		s.metrics.redirect(ctx, "not_found")
		return "", ErrLinkNotFound
	default:
		s.metrics.redirect(ctx, "error")
		return "", storeErr("record click", err)
	}

	s.metrics.redirect(ctx, "ok")
	if err := s.publisher.PublishClick(ctx, events.ClickEvent{
		ShortCode: code,
		Timestamp: now,
		Referer:   click.Referer,
		IP:        click.IP,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to publish click event",
			slog.String("code", code),
			slog.String("error", err.Error()))
	}

	return link.OriginalURL, nil
}
