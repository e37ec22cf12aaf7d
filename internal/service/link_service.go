package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zhejian/url-shortener/shortlink/internal/events"
	"github.com/zhejian/url-shortener/shortlink/internal/model"
	"github.com/zhejian/url-shortener/shortlink/internal/repository"
	"github.com/zhejian/url-shortener/shortlink/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrInvalidURL          = errors.New("invalid URL format")
	ErrInvalidAlias        = errors.New("invalid custom shortcode")
	ErrCodeExists          = errors.New("shortcode already exists")
	ErrLinkNotFound        = errors.New("short link not found")
	ErrLinkExpired         = errors.New("short link has expired")
	ErrStoreTimeout        = errors.New("storage timed out")
	ErrShortCodeGeneration = errors.New("failed to generate short code")
)

// timestampLayout renders instants as ISO-8601 UTC with millisecond precision
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

const (
	DefaultValidity  = 30 * time.Minute
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// LinkServiceInterface defines the contract for short link operations
type LinkServiceInterface interface {
	CreateShortURL(ctx context.Context, req *model.CreateLinkRequest) (*model.CreateLinkResponse, error)
	Resolve(ctx context.Context, code string, click model.ClickContext) (string, error)
	GetStats(ctx context.Context, code string) (*model.LinkDetailResponse, error)
	ListLinks(ctx context.Context, page, limit int) (*model.LinkListResponse, error)
	Summary(ctx context.Context) (*model.SummaryResponse, error)
}

// Options configures a LinkService. Zero values select defaults.
type Options struct {
	BaseURL         string
	DefaultValidity time.Duration
	CodeAttempts    int
	ReservedCodes   []string
	Generator       CodeGenerator
	Recorder        telemetry.Recorder
	Publisher       events.ClickPublisher
	Meter           metric.Meter
	Logger          *slog.Logger
	Clock           func() time.Time
}

// LinkService handles business logic for short links
type LinkService struct {
	repo            repository.LinkRepositoryInterface
	baseURL         string
	defaultValidity time.Duration
	codeAttempts    int
	reserved        reservedSet
	generator       CodeGenerator
	recorder        telemetry.Recorder
	publisher       events.ClickPublisher
	metrics         *serviceMetrics
	logger          *slog.Logger
	now             func() time.Time
}

// NewLinkService creates a new link service
func NewLinkService(repo repository.LinkRepositoryInterface, opts Options) *LinkService {
	s := &LinkService{
		repo:            repo,
		baseURL:         opts.BaseURL,
		defaultValidity: opts.DefaultValidity,
		codeAttempts:    opts.CodeAttempts,
		reserved:        newReservedSet(opts.ReservedCodes),
		generator:       opts.Generator,
		recorder:        opts.Recorder,
		publisher:       opts.Publisher,
		logger:          opts.Logger,
		now:             opts.Clock,
	}
	if s.defaultValidity <= 0 {
		s.defaultValidity = DefaultValidity
	}
	if s.codeAttempts <= 0 {
		s.codeAttempts = 1
	}
	if s.generator == nil {
		s.generator = NewRandomGenerator(DefaultShortCodeLength)
	}
	if s.recorder == nil {
		s.recorder = telemetry.Nop{}
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter("github.com/zhejian/url-shortener/shortlink/internal/service")
	}
	s.metrics = newServiceMetrics(meter)
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func (s *LinkService) shortLink(code string) string {
	return s.baseURL + "/" + code
}

// storeErr translates repository failures that carry no domain meaning
func storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrTimeout) {
		return fmt.Errorf("%s: %w: %w", op, ErrStoreTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Ensure LinkService implements LinkServiceInterface at compile time
var _ LinkServiceInterface = (*LinkService)(nil)
