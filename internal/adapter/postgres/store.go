// Package postgres implements the document store on a single jsonb table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ozalerts/exposure-sites-etl/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection text NOT NULL,
	key        text NOT NULL,
	doc        jsonb NOT NULL,
	PRIMARY KEY (collection, key)
)`

// Store is a Postgres-backed store.Store. Documents live in one table keyed
// by (collection, key); array appends use jsonb concatenation so concurrent
// appends to the same document serialize on the row lock instead of
// overwriting each other.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres, verifies the connection and creates the
// documents table if needed.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Get(ctx context.Context, collection, key string) (json.RawMessage, error) {
	var doc json.RawMessage
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND key = $2`,
		collection, key,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	return doc, nil
}

func (s *Store) Set(ctx context.Context, collection, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, key, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (collection, key, doc) VALUES ($1, $2, $3)
		ON CONFLICT (collection, key) DO UPDATE SET doc = EXCLUDED.doc`,
		collection, key, data,
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, collection string, batchSize int) error {
	if batchSize < 1 {
		batchSize = 40
	}
	for {
		tag, err := s.pool.Exec(ctx, `
			DELETE FROM documents WHERE ctid IN (
				SELECT ctid FROM documents WHERE collection = $1 LIMIT $2
			)`,
			collection, batchSize,
		)
		if err != nil {
			return fmt.Errorf("delete collection %s: %w", collection, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
	}
}

func (s *Store) AppendToArray(ctx context.Context, collection, key, field string, value any) error {
	elem, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal array element: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET doc = jsonb_set(doc, ARRAY[$3], COALESCE(doc -> $3, '[]'::jsonb) || $4::jsonb)
		WHERE collection = $1 AND key = $2`,
		collection, key, field, elem,
	)
	if err != nil {
		return fmt.Errorf("append to %s/%s.%s: %w", collection, key, field, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, key, store.ErrNotFound)
	}
	return nil
}

func (s *Store) List(ctx context.Context, collection string) ([]store.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, doc FROM documents WHERE collection = $1 ORDER BY key`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("list collection %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var d store.Document
		if err := rows.Scan(&d.Key, &d.Value); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list collection %s: %w", collection, err)
	}
	return docs, nil
}
