package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zhejian/url-shortener/shortlink/internal/model"
	"github.com/zhejian/url-shortener/shortlink/internal/repository"
	"github.com/zhejian/url-shortener/shortlink/internal/telemetry"
)

// maxValidityMinutes caps validity at one hundred years
const maxValidityMinutes = 100 * 365 * 24 * 60

// maxReservedRedraws bounds regeneration when the generator lands on a reserved code
const maxReservedRedraws = 10

// CreateShortURL creates a new short link. A caller-chosen shortcode is used
// verbatim; otherwise one is generated. The store's uniqueness guarantee
// decides races between concurrent creators of the same code.
func (s *LinkService) CreateShortURL(ctx context.Context, req *model.CreateLinkRequest) (*model.CreateLinkResponse, error) {
	if err := validateURL(req.URL); err != nil {
		s.recorder.Record(ctx, telemetry.LevelWarn, "service", "rejected create: invalid url")
		return nil, err
	}

	now := s.now().UTC()
	link := &model.Link{
		OriginalURL: req.URL,
		CreatedAt:   now,
		ExpiresAt:   now.Add(validity(req.Validity, s.defaultValidity)),
	}

	custom := req.ShortCode != ""
	var err error
	if custom {
		err = s.insertPreferred(ctx, link, req.ShortCode)
	} else {
		err = s.insertGenerated(ctx, link)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.linkCreated(ctx, custom)
	s.recorder.Record(ctx, telemetry.LevelInfo, "service", "short url created: "+link.ShortCode)

	return &model.CreateLinkResponse{
		ShortCode: link.ShortCode,
		ShortLink: s.shortLink(link.ShortCode),
		Expiry:    formatTime(link.ExpiresAt),
	}, nil
}

func (s *LinkService) insertPreferred(ctx context.Context, link *model.Link, code string) error {
	if !validAlias(code) || s.reserved.contains(code) {
		s.recorder.Record(ctx, telemetry.LevelWarn, "service", "rejected create: invalid shortcode")
		return ErrInvalidAlias
	}

	// Fast path; the insert below still arbitrates races.
	if _, err := s.repo.FindTarget(ctx, code); err == nil {
		return s.conflict(ctx, code)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return storeErr("check shortcode", err)
	}

	link.ID = uuid.New()
	link.ShortCode = code
	if err := s.repo.InsertUnique(ctx, link); err != nil {
		if errors.Is(err, repository.ErrCodeConflict) {
			return s.conflict(ctx, code)
		}
		return storeErr("insert link", err)
	}
	return nil
}

func (s *LinkService) insertGenerated(ctx context.Context, link *model.Link) error {
	var code string
	for attempt := 1; attempt <= s.codeAttempts; attempt++ {
		var err error
		if code, err = s.nextCode(); err != nil {
			return err
		}

		link.ID = uuid.New()
		link.ShortCode = code
		err = s.repo.InsertUnique(ctx, link)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrCodeConflict) {
			return storeErr("insert link", err)
		}
		s.logger.DebugContext(ctx, "generated shortcode collided", "code", code, "attempt", attempt)
	}
	return s.conflict(ctx, code)
}

// nextCode draws from the generator, skipping reserved codes
func (s *LinkService) nextCode() (string, error) {
	for i := 0; i < maxReservedRedraws; i++ {
		code, err := s.generator.Generate()
		if err != nil {
			return "", errors.Join(ErrShortCodeGeneration, err)
		}
		if !s.reserved.contains(code) {
			return code, nil
		}
	}
	return "", ErrShortCodeGeneration
}

func (s *LinkService) conflict(ctx context.Context, code string) error {
	s.metrics.conflict(ctx)
	s.recorder.Record(ctx, telemetry.LevelWarn, "service", "shortcode collision: "+code)
	return ErrCodeExists
}

// validateURL accepts any non-blank string that parses as a URL reference
func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrInvalidURL
	}
	if _, err := url.Parse(raw); err != nil {
		return ErrInvalidURL
	}
	return nil
}

// validity converts the loosely typed validity field into a duration. Anything
// but a positive whole number of minutes falls back to def.
func validity(v any, def time.Duration) time.Duration {
	var minutes float64
	switch n := v.(type) {
	case float64:
		minutes = n
	case int:
		minutes = float64(n)
	case int64:
		minutes = float64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return def
		}
		minutes = float64(i)
	default:
		return def
	}

	if minutes <= 0 || math.IsInf(minutes, 0) || minutes != math.Trunc(minutes) {
		return def
	}
	if minutes > maxValidityMinutes {
		minutes = maxValidityMinutes
	}
	return time.Duration(minutes) * time.Minute
}
