package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/joshdurbin/guarded-shortener/internal/domain"
	"github.com/joshdurbin/guarded-shortener/internal/repository"
	"github.com/joshdurbin/guarded-shortener/internal/repository/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

const selectColumns = `id, short_code, original_url, url_hash, click_count, created_at, expires_at`

// Repository implements repository.URLRepository using PostgreSQL
type Repository struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// New connects to PostgreSQL and applies pending migrations
func New(databaseURL string, queryTimeout time.Duration) (*Repository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate.Run(ctx, db, migrationsFS, "migrations", migrate.Postgres); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Repository{db: db, queryTimeout: queryTimeout}, nil
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func scanURL(row *sql.Row) (*domain.ShortURL, error) {
	var (
		entry     domain.ShortURL
		expiresAt sql.NullTime
	)
	if err := row.Scan(
		&entry.ID,
		&entry.ShortCode,
		&entry.OriginalURL,
		&entry.URLHash,
		&entry.ClickCount,
		&entry.CreatedAt,
		&expiresAt,
	); err != nil {
		return nil, err
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		entry.ExpiresAt = &t
	}
	return &entry, nil
}

// CreateIfAbsent inserts a record unless an active one with the same hash exists.
// Concurrent creates for one hash are serialized on a transaction-scoped advisory
// lock, so under READ COMMITTED the later insert sees the earlier row and converges on it.
func (r *Repository) CreateIfAbsent(ctx context.Context, url domain.NewURL) (*domain.ShortURL, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	createdAt := url.CreatedAt.UTC()
	var expiresAt sql.NullTime
	if url.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: url.ExpiresAt.UTC(), Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, url.URLHash); err != nil {
		return nil, false, fmt.Errorf("failed to lock URL hash: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO urls (short_code, original_url, url_hash, click_count, created_at, expires_at)
		SELECT $1::text, $2::text, $3::text, 0, $4::timestamptz, $5::timestamptz
		WHERE NOT EXISTS (
			SELECT 1 FROM urls
			WHERE url_hash = $3::text AND (expires_at IS NULL OR expires_at > $4::timestamptz)
		)
		RETURNING id`,
		url.ShortCode, url.OriginalURL, url.URLHash, createdAt, expiresAt,
	).Scan(&id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		existing, err := activeByHash(ctx, tx, url.URLHash, createdAt)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load existing URL: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return existing, false, nil
	case isUniqueViolation(err):
		return nil, false, repository.ErrCodeTaken
	case err != nil:
		return nil, false, fmt.Errorf("failed to create URL: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, false, repository.ErrCodeTaken
		}
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	entry := &domain.ShortURL{
		ID:          id,
		ShortCode:   url.ShortCode,
		OriginalURL: url.OriginalURL,
		URLHash:     url.URLHash,
		CreatedAt:   createdAt,
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		entry.ExpiresAt = &t
	}
	return entry, true, nil
}

// GetByCode retrieves a record by its short code
func (r *Repository) GetByCode(ctx context.Context, shortCode string) (*domain.ShortURL, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	entry, err := scanURL(r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM urls WHERE short_code = $1`, shortCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get URL: %w", err)
	}
	return entry, nil
}

// GetActiveByHash retrieves the oldest non-expired record for a hash
func (r *Repository) GetActiveByHash(ctx context.Context, urlHash string, now time.Time) (*domain.ShortURL, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return activeByHash(ctx, r.db, urlHash, now)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func activeByHash(ctx context.Context, q rowQuerier, urlHash string, now time.Time) (*domain.ShortURL, error) {
	entry, err := scanURL(q.QueryRowContext(ctx, `
		SELECT `+selectColumns+` FROM urls
		WHERE url_hash = $1 AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY id LIMIT 1`,
		urlHash, now.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get URL by hash: %w", err)
	}
	return entry, nil
}

// CodeExists checks if a short code exists
func (r *Repository) CodeExists(ctx context.Context, shortCode string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM urls WHERE short_code = $1)`, shortCode).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check URL existence: %w", err)
	}
	return exists, nil
}

// AddClicks adds delta to the durable click count
func (r *Repository) AddClicks(ctx context.Context, shortCode string, delta int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.db.ExecContext(ctx,
		`UPDATE urls SET click_count = click_count + $1 WHERE short_code = $2`, delta, shortCode)
	if err != nil {
		return fmt.Errorf("failed to add clicks: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// InsertAnalytics bulk-loads click events with COPY
func (r *Repository) InsertAnalytics(ctx context.Context, urlID int64, events []domain.ClickEvent) error {
	if len(events) == 0 {
		return nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("url_analytics", "url_id", "clicked_at", "ip_hash", "user_agent", "referer"))
	if err != nil {
		return fmt.Errorf("failed to prepare analytics copy: %w", err)
	}

	for _, event := range events {
		if _, err := stmt.ExecContext(ctx, urlID, event.Time.UTC(), event.IPHash, event.UserAgent, event.Referer); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to queue analytics row: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush analytics copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close analytics copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit analytics: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the repository connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ensure Repository implements the interface
var _ repository.URLRepository = (*Repository)(nil)
