package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/jira-q-sync/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
)

// dbFileName is the database file inside the data directory.
const dbFileName = "cache.db"

// deleteChunk bounds the number of ids per DELETE statement.
const deleteChunk = 500

// Ensure the stores implement the interfaces.
var (
	_ driven.CacheStore     = (*CacheStore)(nil)
	_ driven.SchedulerStore = (*SchedulerStore)(nil)
)

// Store owns the SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.jira-q-sync/data/cache.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".jira-q-sync", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFileName)

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// CacheStore returns a CacheStore backed by this store.
func (s *Store) CacheStore() *CacheStore {
	return &CacheStore{store: s}
}

// SchedulerStore returns a SchedulerStore backed by this store.
func (s *Store) SchedulerStore() *SchedulerStore {
	return &SchedulerStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys fs.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_cache.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Cache Store ====================

// CacheStore implements driven.CacheStore on the cache_entries table.
type CacheStore struct {
	store *Store
}

// Name identifies the backend.
func (c *CacheStore) Name() string { return "sqlite" }

// Get returns the entry for a document.
func (c *CacheStore) Get(ctx context.Context, documentID string) (*domain.CacheEntry, error) {
	row := c.store.db.QueryRowContext(ctx, `
		SELECT document_id, fingerprint, last_sync, last_source_updated, outcome, expires_at
		FROM cache_entries WHERE document_id = ?
	`, documentID)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting cache entry %s: %w", documentID, err)
	}
	return entry, nil
}

// Put stores or replaces an entry.
func (c *CacheStore) Put(ctx context.Context, entry domain.CacheEntry) error {
	if entry.DocumentID == "" {
		return domain.ErrInvalidInput
	}

	_, err := c.store.db.ExecContext(ctx, `
		INSERT INTO cache_entries (document_id, fingerprint, last_sync, last_source_updated, outcome, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			last_sync = excluded.last_sync,
			last_source_updated = excluded.last_source_updated,
			outcome = excluded.outcome,
			expires_at = excluded.expires_at
	`,
		entry.DocumentID,
		entry.Fingerprint,
		formatTime(entry.LastSync),
		nullTime(entry.LastSourceUpdated),
		string(entry.Outcome),
		nullTime(entry.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("saving cache entry %s: %w", entry.DocumentID, err)
	}
	return nil
}

// List returns all entries ordered by document id.
func (c *CacheStore) List(ctx context.Context) ([]domain.CacheEntry, error) {
	rows, err := c.store.db.QueryContext(ctx, `
		SELECT document_id, fingerprint, last_sync, last_source_updated, outcome, expires_at
		FROM cache_entries ORDER BY document_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying cache entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.CacheEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning cache entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cache entries: %w", err)
	}
	return entries, nil
}

// Delete removes entries by id. Missing ids are ignored.
func (c *CacheStore) Delete(ctx context.Context, documentIDs ...string) error {
	for start := 0; start < len(documentIDs); start += deleteChunk {
		end := min(start+deleteChunk, len(documentIDs))
		chunk := documentIDs[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		query := "DELETE FROM cache_entries WHERE document_id IN (" + placeholders + ")" //nolint:gosec // placeholders only
		if _, err := c.store.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("deleting cache entries: %w", err)
		}
	}
	return nil
}

// Clear removes all entries and returns how many were removed.
func (c *CacheStore) Clear(ctx context.Context) (int, error) {
	res, err := c.store.db.ExecContext(ctx, "DELETE FROM cache_entries")
	if err != nil {
		return 0, fmt.Errorf("clearing cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting cleared entries: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying database.
func (c *CacheStore) Close() error {
	return c.store.Close()
}

// ==================== Helper Functions ====================

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*domain.CacheEntry, error) {
	var (
		entry         domain.CacheEntry
		lastSync      string
		sourceUpdated sql.NullString
		outcome       string
		expiresAt     sql.NullString
	)
	if err := row.Scan(&entry.DocumentID, &entry.Fingerprint, &lastSync, &sourceUpdated, &outcome, &expiresAt); err != nil {
		return nil, err
	}

	var err error
	if entry.LastSync, err = parseTime(lastSync); err != nil {
		return nil, err
	}
	if sourceUpdated.Valid {
		if entry.LastSourceUpdated, err = parseTime(sourceUpdated.String); err != nil {
			return nil, err
		}
	}
	if expiresAt.Valid {
		if entry.ExpiresAt, err = parseTime(expiresAt.String); err != nil {
			return nil, err
		}
	}
	entry.Outcome = domain.SyncOutcome(outcome)
	return &entry, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t, nil
}
