// Package appcache persists the app list in a local SQLite database with a
// freshness TTL, so repeated `apps` invocations do not hit the API. There
// are no interesting invariants here: a stale or missing cache simply
// means a refetch.
package appcache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/reprise-cli/reprise/internal/bitrise"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultTTL is how long a cached app list is considered fresh.
const DefaultTTL = 5 * time.Minute

const metaKeyCachedAt = "cached_at"

// Cache is the app-list cache backed by SQLite.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger

	// now is the clock; tests inject a fixed one.
	now func() time.Time
}

// Status describes the cache contents for `cache status`.
type Status struct {
	Apps     int
	CachedAt time.Time // zero when empty
	Fresh    bool
}

// Open opens (creating if needed) the cache database at dbPath and applies
// migrations. Use ":memory:" for tests.
func Open(dbPath string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("appcache: opening %s: %w", dbPath, err)
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{
		db:     db,
		ttl:    DefaultTTL,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Apps returns the cached app list and whether it is still fresh. An empty
// cache returns (nil, false, nil).
func (c *Cache) Apps(ctx context.Context) ([]bitrise.App, bool, error) {
	cachedAt, ok, err := c.cachedAt(ctx)
	if err != nil || !ok {
		return nil, false, err
	}

	rows, err := c.db.QueryContext(ctx, "SELECT data FROM cached_apps ORDER BY position")
	if err != nil {
		return nil, false, fmt.Errorf("appcache: reading apps: %w", err)
	}
	defer rows.Close()

	var apps []bitrise.App

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, false, fmt.Errorf("appcache: scanning app row: %w", err)
		}

		var app bitrise.App
		if err := json.Unmarshal([]byte(data), &app); err != nil {
			return nil, false, fmt.Errorf("appcache: decoding cached app: %w", err)
		}

		apps = append(apps, app)
	}

	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("appcache: iterating apps: %w", err)
	}

	fresh := c.now().Sub(cachedAt) <= c.ttl

	return apps, fresh, nil
}

// SetApps replaces the cached app list and resets the freshness clock.
func (c *Cache) SetApps(ctx context.Context, apps []bitrise.App) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("appcache: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cached_apps"); err != nil {
		return fmt.Errorf("appcache: clearing apps: %w", err)
	}

	for i, app := range apps {
		data, err := json.Marshal(app)
		if err != nil {
			return fmt.Errorf("appcache: encoding app %s: %w", app.Slug, err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO cached_apps (position, slug, title, data) VALUES (?, ?, ?, ?)",
			i, app.Slug, app.Title, string(data),
		)
		if err != nil {
			return fmt.Errorf("appcache: inserting app %s: %w", app.Slug, err)
		}
	}

	stamp := strconv.FormatInt(c.now().Unix(), 10)

	_, err = tx.ExecContext(ctx,
		"INSERT INTO cache_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		metaKeyCachedAt, stamp,
	)
	if err != nil {
		return fmt.Errorf("appcache: recording cache time: %w", err)
	}

	return tx.Commit()
}

// Clear empties the cache.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM cached_apps"); err != nil {
		return fmt.Errorf("appcache: clearing apps: %w", err)
	}

	if _, err := c.db.ExecContext(ctx, "DELETE FROM cache_meta"); err != nil {
		return fmt.Errorf("appcache: clearing meta: %w", err)
	}

	return nil
}

// Stat reports the current cache contents.
func (c *Cache) Stat(ctx context.Context) (Status, error) {
	var count int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cached_apps").Scan(&count); err != nil {
		return Status{}, fmt.Errorf("appcache: counting apps: %w", err)
	}

	cachedAt, ok, err := c.cachedAt(ctx)
	if err != nil {
		return Status{}, err
	}

	st := Status{Apps: count}
	if ok {
		st.CachedAt = cachedAt
		st.Fresh = c.now().Sub(cachedAt) <= c.ttl
	}

	return st, nil
}

func (c *Cache) cachedAt(ctx context.Context) (time.Time, bool, error) {
	var stamp string

	err := c.db.QueryRowContext(ctx,
		"SELECT value FROM cache_meta WHERE key = ?", metaKeyCachedAt,
	).Scan(&stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}

	if err != nil {
		return time.Time{}, false, fmt.Errorf("appcache: reading cache time: %w", err)
	}

	unix, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("appcache: parsing cache time: %w", err)
	}

	return time.Unix(unix, 0), true, nil
}

// runMigrations applies all pending schema migrations using the goose v3
// Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("appcache: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("appcache: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("appcache: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}
