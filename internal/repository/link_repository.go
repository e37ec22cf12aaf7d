package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zhejian/url-shortener/shortlink/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/zhejian/url-shortener/shortlink/internal/repository")

var (
	ErrNotFound     = errors.New("link not found")
	ErrCodeConflict = errors.New("short code already exists")
	ErrExpired      = errors.New("link has expired")
	ErrTimeout      = errors.New("store operation timed out")
)

const uniqueViolation = "23505"

// LinkRepositoryInterface is the storage contract used by the service layer.
// Implementations must be safe for concurrent use.
type LinkRepositoryInterface interface {
	FindByCode(ctx context.Context, code string) (*model.Link, error)
	FindTarget(ctx context.Context, code string) (*model.Link, error)
	InsertUnique(ctx context.Context, link *model.Link) error
	IncrementClicksAndAppend(ctx context.Context, code string, click model.Click) error
	Count(ctx context.Context, filter model.LinkFilter) (int64, error)
	SumClicks(ctx context.Context, filter model.LinkFilter) (int64, error)
	List(ctx context.Context, skip, limit int) ([]model.Link, error)
}

// LinkRepository handles database operations for links
type LinkRepository struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

// NewLinkRepository creates a new link repository. Every call is bounded by timeout.
func NewLinkRepository(db *pgxpool.Pool, timeout time.Duration) *LinkRepository {
	return &LinkRepository{db: db, timeout: timeout}
}

func (r *LinkRepository) startSpan(ctx context.Context, name, operation, code string) (context.Context, trace.Span, context.CancelFunc) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", "links"),
	}
	if code != "" {
		attrs = append(attrs, attribute.String("short_code", code))
	}
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	return ctx, span, cancel
}

// storeError records err on the span and classifies deadline overruns as ErrTimeout.
func storeError(span trace.Span, err error) error {
	span.RecordError(err)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// InsertUnique inserts a new link. The unique index on short_code makes the
// insert fail atomically when the code is taken, which we map to ErrCodeConflict.
func (r *LinkRepository) InsertUnique(ctx context.Context, link *model.Link) error {
	ctx, span, cancel := r.startSpan(ctx, "db.insert", "INSERT", link.ShortCode)
	defer cancel()
	defer span.End()

	query := `
		INSERT INTO links (id, short_code, original_url, created_at, expires_at, clicks)
		VALUES ($1, $2, $3, $4, $5, 0)
	`
	_, err := r.db.Exec(ctx, query,
		link.ID,
		link.ShortCode,
		link.OriginalURL,
		link.CreatedAt,
		link.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrCodeConflict
		}
		return storeError(span, err)
	}
	return nil
}

// FindTarget retrieves the immutable fields of a link (no click data)
func (r *LinkRepository) FindTarget(ctx context.Context, code string) (*model.Link, error) {
	ctx, span, cancel := r.startSpan(ctx, "db.select", "SELECT", code)
	defer cancel()
	defer span.End()

	query := `
		SELECT id, short_code, original_url, created_at, expires_at
		FROM links
		WHERE short_code = $1`
	var link model.Link
	err := r.db.QueryRow(ctx, query, code).Scan(
		&link.ID,
		&link.ShortCode,
		&link.OriginalURL,
		&link.CreatedAt,
		&link.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeError(span, err)
	}
	return &link, nil
}

// FindByCode retrieves a link with its click counter and full click log.
// Both are read in one repeatable-read transaction so clicks matches the log.
func (r *LinkRepository) FindByCode(ctx context.Context, code string) (*model.Link, error) {
	ctx, span, cancel := r.startSpan(ctx, "db.select", "SELECT", code)
	defer cancel()
	defer span.End()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, storeError(span, err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	var link model.Link
	err = tx.QueryRow(ctx, `
		SELECT id, short_code, original_url, created_at, expires_at, clicks
		FROM links
		WHERE short_code = $1`, code).Scan(
		&link.ID,
		&link.ShortCode,
		&link.OriginalURL,
		&link.CreatedAt,
		&link.ExpiresAt,
		&link.Clicks,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeError(span, err)
	}

	rows, err := tx.Query(ctx, `
		SELECT clicked_at, COALESCE(referer, ''), COALESCE(ip, '')
		FROM clicks
		WHERE link_id = $1
		ORDER BY clicked_at, id`, link.ID)
	if err != nil {
		return nil, storeError(span, err)
	}
	link.ClickLog, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Click, error) {
		var c model.Click
		err := row.Scan(&c.At, &c.Referer, &c.IP)
		return c, err
	})
	if err != nil {
		return nil, storeError(span, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeError(span, err)
	}
	return &link, nil
}

// IncrementClicksAndAppend bumps the click counter and appends the click in a
// single transaction. The conditional UPDATE takes the row lock, so concurrent
// redirects serialize on it and none is lost. A link that expired before
// click.At is left untouched and reported as ErrExpired. If ctx is cancelled
// before commit the transaction rolls back and nothing is applied.
func (r *LinkRepository) IncrementClicksAndAppend(ctx context.Context, code string, click model.Click) error {
	ctx, span, cancel := r.startSpan(ctx, "db.update", "UPDATE", code)
	defer cancel()
	defer span.End()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return storeError(span, err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	var linkID uuid.UUID
	err = tx.QueryRow(ctx, `
		UPDATE links SET clicks = clicks + 1
		WHERE short_code = $1 AND expires_at >= $2
		RETURNING id`, code, click.At).Scan(&linkID)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM links WHERE short_code = $1)`, code).Scan(&exists); err != nil {
			return storeError(span, err)
		}
		if exists {
			return ErrExpired
		}
		return ErrNotFound
	}
	if err != nil {
		return storeError(span, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO clicks (link_id, clicked_at, referer, ip)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))`,
		linkID, click.At, click.Referer, click.IP)
	if err != nil {
		return storeError(span, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storeError(span, err)
	}
	return nil
}

// filterClause renders the WHERE clause and args for a LinkFilter
func filterClause(filter model.LinkFilter) (string, []any) {
	switch filter.State {
	case model.StateActive:
		return " WHERE expires_at > $1", []any{filter.At}
	case model.StateExpired:
		return " WHERE expires_at <= $1", []any{filter.At}
	default:
		return "", nil
	}
}

// Count returns the number of links matching filter
func (r *LinkRepository) Count(ctx context.Context, filter model.LinkFilter) (int64, error) {
	ctx, span, cancel := r.startSpan(ctx, "db.count", "SELECT", "")
	defer cancel()
	defer span.End()

	where, args := filterClause(filter)
	var n int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM links"+where, args...).Scan(&n); err != nil {
		return 0, storeError(span, err)
	}
	return n, nil
}

// SumClicks returns the total clicks over links matching filter, 0 when none match
func (r *LinkRepository) SumClicks(ctx context.Context, filter model.LinkFilter) (int64, error) {
	ctx, span, cancel := r.startSpan(ctx, "db.sum", "SELECT", "")
	defer cancel()
	defer span.End()

	where, args := filterClause(filter)
	var n int64
	if err := r.db.QueryRow(ctx, "SELECT COALESCE(SUM(clicks), 0)::BIGINT FROM links"+where, args...).Scan(&n); err != nil {
		return 0, storeError(span, err)
	}
	return n, nil
}

// List returns links newest first. Click logs are not loaded.
func (r *LinkRepository) List(ctx context.Context, skip, limit int) ([]model.Link, error) {
	ctx, span, cancel := r.startSpan(ctx, "db.list", "SELECT", "")
	defer cancel()
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT id, short_code, original_url, created_at, expires_at, clicks
		FROM links
		ORDER BY created_at DESC, short_code
		OFFSET $1 LIMIT $2`, skip, limit)
	if err != nil {
		return nil, storeError(span, err)
	}
	links, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Link, error) {
		var l model.Link
		err := row.Scan(&l.ID, &l.ShortCode, &l.OriginalURL, &l.CreatedAt, &l.ExpiresAt, &l.Clicks)
		return l, err
	})
	if err != nil {
		return nil, storeError(span, err)
	}
	return links, nil
}

var _ LinkRepositoryInterface = (*LinkRepository)(nil)
