package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/content-mirror/database"
	"github.com/stacklok/content-mirror/internal/content"
	"github.com/stacklok/content-mirror/internal/mirrorerr"
)

const upsertRecordSQL = `
	INSERT INTO records (kind, id, content_type, body)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (kind, id) DO UPDATE SET
		content_type = EXCLUDED.content_type,
		body = EXCLUDED.body,
		updated_at = now()`

// PostgresStore keeps records in PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres applies pending migrations and connects a pool to connString.
// maxConns of 0 keeps the pgx default.
func OpenPostgres(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	if err := database.MigrateUp(connString); err != nil {
		return nil, mirrorerr.Store("open postgres store", err)
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, mirrorerr.Store("open postgres store", fmt.Errorf("failed to parse connection string: %w", err))
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, mirrorerr.Store("open postgres store", fmt.Errorf("failed to create pool: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, mirrorerr.Store("open postgres store", fmt.Errorf("failed to connect to database: %w", err))
	}

	return &PostgresStore{pool: pool}, nil
}

// GetAllEntries returns every stored entry
func (p *PostgresStore) GetAllEntries(ctx context.Context) ([]content.Record, error) {
	records, err := scanRecords(ctx, p.pool,
		`SELECT body FROM records WHERE kind = $1 ORDER BY id COLLATE "C"`, string(content.KindEntry))
	if err != nil {
		return nil, mirrorerr.Store("get entries", err)
	}
	return records, nil
}

// GetAllAssets returns every stored asset
func (p *PostgresStore) GetAllAssets(ctx context.Context) ([]content.Record, error) {
	records, err := scanRecords(ctx, p.pool,
		`SELECT body FROM records WHERE kind = $1 ORDER BY id COLLATE "C"`, string(content.KindAsset))
	if err != nil {
		return nil, mirrorerr.Store("get assets", err)
	}
	return records, nil
}

// GetAll returns entries followed by assets inside one repeatable-read transaction
func (p *PostgresStore) GetAll(ctx context.Context) ([]content.Record, error) {
	var records []content.Record
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, func(tx pgx.Tx) error {
		var err error
		records, err = scanRecords(ctx, tx,
			`SELECT body FROM records ORDER BY CASE kind WHEN 'Entry' THEN 0 ELSE 1 END, id COLLATE "C"`)
		return err
	})
	if err != nil {
		return nil, mirrorerr.Store("get all", err)
	}
	return records, nil
}

// StoreEntries upserts entries by ID in one batch
func (p *PostgresStore) StoreEntries(ctx context.Context, entries []content.Record) error {
	if err := p.upsert(ctx, entries, content.KindEntry); err != nil {
		return mirrorerr.Store("store entries", err)
	}
	return nil
}

// StoreAssets upserts assets by ID in one batch
func (p *PostgresStore) StoreAssets(ctx context.Context, assets []content.Record) error {
	if err := p.upsert(ctx, assets, content.KindAsset); err != nil {
		return mirrorerr.Store("store assets", err)
	}
	return nil
}

func (p *PostgresStore) upsert(ctx context.Context, records []content.Record, kind content.Kind) error {
	if len(records) == 0 {
		return nil
	}
	if err := checkKind(records, kind); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", r.ID, err)
		}
		batch.Queue(upsertRecordSQL, string(r.Kind), r.ID, r.ContentType, string(body))
	}

	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for _, r := range records {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("upsert record %s: %w", r.ID, err)
			}
		}
		return results.Close()
	})
}

// RemoveByIDs deletes records of either kind with the given IDs
func (p *PostgresStore) RemoveByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := p.pool.Exec(ctx, `DELETE FROM records WHERE id = ANY($1)`, ids); err != nil {
		return mirrorerr.Store("remove records", err)
	}
	return nil
}

// Close closes the connection pool
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanRecords(ctx context.Context, q querier, query string, args ...any) ([]content.Record, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (content.Record, error) {
		var body []byte
		if err := row.Scan(&body); err != nil {
			return content.Record{}, err
		}
		var r content.Record
		if err := json.Unmarshal(body, &r); err != nil {
			return content.Record{}, fmt.Errorf("unmarshal record: %w", err)
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	return records, nil
}
