package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stacklok/content-mirror/internal/content"
	"github.com/stacklok/content-mirror/internal/mirrorerr"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - records table keyed by (kind, id)
const currentSchemaVersion = 1

// SQLiteStore keeps records in a SQLite database.
// Uses WAL mode so reads proceed while a write is in progress.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, mirrorerr.Store("open sqlite store", fmt.Errorf("failed to open database: %w", err))
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, mirrorerr.Store("open sqlite store", fmt.Errorf("failed to connect to database: %w", err))
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, mirrorerr.Store("open sqlite store", err)
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, mirrorerr.Store("open sqlite store", err)
	}

	return &SQLiteStore{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// GetAllEntries returns every stored entry
func (s *SQLiteStore) GetAllEntries(ctx context.Context) ([]content.Record, error) {
	records, err := queryRecords(ctx, s.db,
		`SELECT body FROM records WHERE kind = ? ORDER BY id`, string(content.KindEntry))
	if err != nil {
		return nil, mirrorerr.Store("get entries", err)
	}
	return records, nil
}

// GetAllAssets returns every stored asset
func (s *SQLiteStore) GetAllAssets(ctx context.Context) ([]content.Record, error) {
	records, err := queryRecords(ctx, s.db,
		`SELECT body FROM records WHERE kind = ? ORDER BY id`, string(content.KindAsset))
	if err != nil {
		return nil, mirrorerr.Store("get assets", err)
	}
	return records, nil
}

// GetAll returns entries followed by assets from a single query
func (s *SQLiteStore) GetAll(ctx context.Context) ([]content.Record, error) {
	records, err := queryRecords(ctx, s.db,
		`SELECT body FROM records ORDER BY CASE kind WHEN 'Entry' THEN 0 ELSE 1 END, id`)
	if err != nil {
		return nil, mirrorerr.Store("get all", err)
	}
	return records, nil
}

// StoreEntries upserts entries by ID
func (s *SQLiteStore) StoreEntries(ctx context.Context, entries []content.Record) error {
	if err := s.upsert(ctx, entries, content.KindEntry); err != nil {
		return mirrorerr.Store("store entries", err)
	}
	return nil
}

// StoreAssets upserts assets by ID
func (s *SQLiteStore) StoreAssets(ctx context.Context, assets []content.Record) error {
	if err := s.upsert(ctx, assets, content.KindAsset); err != nil {
		return mirrorerr.Store("store assets", err)
	}
	return nil
}

func (s *SQLiteStore) upsert(ctx context.Context, records []content.Record, kind content.Kind) error {
	if len(records) == 0 {
		return nil
	}
	if err := checkKind(records, kind); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (kind, id, content_type, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			content_type = excluded.content_type,
			body = excluded.body,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, r := range records {
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, string(r.Kind), r.ID, r.ContentType, string(body)); err != nil {
			return fmt.Errorf("upsert record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// RemoveByIDs deletes records of either kind with the given IDs
func (s *SQLiteStore) RemoveByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	//nolint:gosec // placeholders only, values are bound
	query := fmt.Sprintf(`DELETE FROM records WHERE id IN (%s)`, placeholders)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return mirrorerr.Store("remove records", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func queryRecords(ctx context.Context, db *sql.DB, query string, args ...any) ([]content.Record, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	records := []content.Record{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var r content.Record
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
