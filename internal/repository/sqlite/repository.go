package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/joshdurbin/guarded-shortener/internal/domain"
	"github.com/joshdurbin/guarded-shortener/internal/repository"
)

// Fixed-width so that lexical comparison in SQL matches time order
const timeLayout = "2006-01-02 15:04:05.000000"

const selectColumns = `id, short_code, original_url, url_hash, click_count, created_at, expires_at`

// Repository implements repository.URLRepository using SQLite
type Repository struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Option configures the repository
type Option func(*Repository)

// WithQueryTimeout bounds every query issued by the repository
func WithQueryTimeout(d time.Duration) Option {
	return func(r *Repository) {
		r.queryTimeout = d
	}
}

// New creates a new SQLite repository
func New(databasePath string, opts ...Option) (*Repository, error) {
	// Pragmas go in the DSN so every pooled connection gets them
	dsn := databasePath
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{
		db:           db,
		queryTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(repo)
	}

	if err := repo.runMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanURL(row scanner) (*domain.ShortURL, error) {
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

// CreateIfAbsent inserts a record unless an active one with the same hash exists
func (r *Repository) CreateIfAbsent(ctx context.Context, url domain.NewURL) (*domain.ShortURL, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	createdAt := url.CreatedAt.UTC()
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO urls (short_code, original_url, url_hash, click_count, created_at, expires_at)
		SELECT ?, ?, ?, 0, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM urls
			WHERE url_hash = ? AND (expires_at IS NULL OR expires_at > ?)
		)`,
		url.ShortCode, url.OriginalURL, url.URLHash, formatTime(createdAt), nullableTime(url.ExpiresAt),
		url.URLHash, formatTime(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, repository.ErrCodeTaken
		}
		return nil, false, fmt.Errorf("failed to create URL: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		existing, err := r.GetActiveByHash(ctx, url.URLHash, createdAt)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load existing URL: %w", err)
		}
		return existing, false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read inserted id: %w", err)
	}

	entry := &domain.ShortURL{
		ID:          id,
		ShortCode:   url.ShortCode,
		OriginalURL: url.OriginalURL,
		URLHash:     url.URLHash,
		CreatedAt:   createdAt,
	}
	if url.ExpiresAt != nil {
		t := url.ExpiresAt.UTC()
		entry.ExpiresAt = &t
	}
	return entry, true, nil
}

// GetByCode retrieves a record by its short code
func (r *Repository) GetByCode(ctx context.Context, shortCode string) (*domain.ShortURL, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM urls WHERE short_code = ?`, shortCode)
	entry, err := scanURL(row)
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

	row := r.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+` FROM urls
		WHERE url_hash = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY id LIMIT 1`,
		urlHash, formatTime(now),
	)
	entry, err := scanURL(row)
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

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM urls WHERE short_code = ?`, shortCode).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check URL existence: %w", err)
	}
	return count > 0, nil
}

// AddClicks adds delta to the durable click count
func (r *Repository) AddClicks(ctx context.Context, shortCode string, delta int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `UPDATE urls SET click_count = click_count + ? WHERE short_code = ?`, delta, shortCode)
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

// InsertAnalytics stores click events in a single transaction
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

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO url_analytics (url_id, clicked_at, ip_hash, user_agent, referer)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare analytics insert: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		if _, err := stmt.ExecContext(ctx, urlID, formatTime(event.Time), event.IPHash, event.UserAgent, event.Referer); err != nil {
			return fmt.Errorf("failed to insert analytics: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit analytics: %w", err)
	}
	return nil
}

// CountAnalytics returns the number of stored click events for a URL
func (r *Repository) CountAnalytics(ctx context.Context, urlID int64) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM url_analytics WHERE url_id = ?`, urlID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count analytics: %w", err)
	}
	return count, nil
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
