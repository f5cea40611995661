// Package postgres provides a Postgres-backed catalog store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store uses.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store implements crawler.Store. Parts are upserted on their composite key;
// navigation tables are replaced inside one transaction.
type Store struct {
	pool pool
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, &crawler.SetupError{Component: "store", Err: fmt.Errorf("connect postgres: %w", err)}
	}
	s := &Store{pool: p}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, &crawler.SetupError{Component: "store", Err: err}
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// EnsureSchema creates the catalog tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close(context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// SaveNavigation replaces brands, categories and models atomically.
func (s *Store) SaveNavigation(ctx context.Context, nav crawler.Navigation) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin navigation tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, table := range []string{"models", "categories", "brands"} {
		if _, err = tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	brandRows := make([][]any, 0, len(nav.Brands))
	for _, b := range nav.Brands {
		brandRows = append(brandRows, []any{b.Name, b.URL})
	}
	if _, err = tx.CopyFrom(ctx, pgx.Identifier{"brands"}, []string{"name", "url"}, pgx.CopyFromRows(brandRows)); err != nil {
		return fmt.Errorf("copy brands: %w", err)
	}

	categoryRows := make([][]any, 0, len(nav.Categories))
	for _, c := range nav.Categories {
		categoryRows = append(categoryRows, []any{c.Brand, c.Name, c.URL})
	}
	if _, err = tx.CopyFrom(ctx, pgx.Identifier{"categories"}, []string{"brand", "name", "url"}, pgx.CopyFromRows(categoryRows)); err != nil {
		return fmt.Errorf("copy categories: %w", err)
	}

	modelRows := make([][]any, 0, len(nav.Models))
	for _, m := range nav.Models {
		modelRows = append(modelRows, []any{m.Brand, m.ModelCategory, m.Name, m.URL})
	}
	if _, err = tx.CopyFrom(ctx, pgx.Identifier{"models"}, []string{"brand", "model_category", "name", "url"}, pgx.CopyFromRows(modelRows)); err != nil {
		return fmt.Errorf("copy models: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit navigation: %w", err)
	}
	return nil
}

// LoadNavigation returns crawler.ErrNotFound when no brands are stored.
func (s *Store) LoadNavigation(ctx context.Context) (crawler.Navigation, error) {
	var nav crawler.Navigation

	rows, err := s.pool.Query(ctx, `SELECT name, url FROM brands ORDER BY name`)
	if err != nil {
		return nav, fmt.Errorf("query brands: %w", err)
	}
	nav.Brands, err = collect(rows, func(r pgx.Rows) (crawler.Brand, error) {
		var b crawler.Brand
		err := r.Scan(&b.Name, &b.URL)
		return b, err
	})
	if err != nil {
		return nav, fmt.Errorf("scan brands: %w", err)
	}
	if len(nav.Brands) == 0 {
		return crawler.Navigation{}, crawler.ErrNotFound
	}

	rows, err = s.pool.Query(ctx, `SELECT brand, name, url FROM categories ORDER BY brand, name`)
	if err != nil {
		return nav, fmt.Errorf("query categories: %w", err)
	}
	nav.Categories, err = collect(rows, func(r pgx.Rows) (crawler.Category, error) {
		var c crawler.Category
		err := r.Scan(&c.Brand, &c.Name, &c.URL)
		return c, err
	})
	if err != nil {
		return nav, fmt.Errorf("scan categories: %w", err)
	}

	rows, err = s.pool.Query(ctx, `SELECT brand, model_category, name, url FROM models ORDER BY brand, model_category, name`)
	if err != nil {
		return nav, fmt.Errorf("query models: %w", err)
	}
	nav.Models, err = collect(rows, func(r pgx.Rows) (crawler.Model, error) {
		var m crawler.Model
		err := r.Scan(&m.Brand, &m.ModelCategory, &m.Name, &m.URL)
		return m, err
	})
	if err != nil {
		return nav, fmt.Errorf("scan models: %w", err)
	}
	return nav, nil
}

// LoadSnapshot returns every stored part.
func (s *Store) LoadSnapshot(ctx context.Context) ([]crawler.Part, error) {
	rows, err := s.pool.Query(ctx, `
SELECT brand, model_category, model, name, type, in_stock, image_url, location, scraped_at
FROM parts
ORDER BY part_key`)
	if err != nil {
		return nil, fmt.Errorf("query parts: %w", err)
	}
	parts, err := collect(rows, func(r pgx.Rows) (crawler.Part, error) {
		var p crawler.Part
		err := r.Scan(&p.Brand, &p.ModelCategory, &p.Model, &p.Name, &p.Type, &p.InStock, &p.ImageURL, &p.Location, &p.ScrapedAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan parts: %w", err)
	}
	return parts, nil
}

// SaveSnapshot upserts every part and deletes rows whose key is absent, so the
// table ends up equal to parts.
func (s *Store) SaveSnapshot(ctx context.Context, parts []crawler.Part) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		key := crawler.Key(p)
		keys = append(keys, key)
		if _, err = tx.Exec(ctx, upsertPart,
			key, p.Brand, p.ModelCategory, p.Model, p.Name, p.Type, p.InStock, p.ImageURL, p.Location, p.ScrapedAt,
		); err != nil {
			return fmt.Errorf("upsert part %q: %w", key, err)
		}
	}
	if _, err = tx.Exec(ctx, `DELETE FROM parts WHERE part_key <> ALL($1)`, keys); err != nil {
		return fmt.Errorf("prune parts: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// SaveChangeset stores the changeset keyed by run id.
func (s *Store) SaveChangeset(ctx context.Context, cs crawler.Changeset) error {
	body, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("marshal changeset: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
INSERT INTO changesets (run_id, generated_at, body)
VALUES ($1, $2, $3)
ON CONFLICT (run_id) DO UPDATE SET generated_at = EXCLUDED.generated_at, body = EXCLUDED.body`,
		cs.RunID, cs.GeneratedAt, body,
	); err != nil {
		return fmt.Errorf("insert changeset: %w", err)
	}
	return nil
}

// LoadChangeset returns the most recent changeset.
func (s *Store) LoadChangeset(ctx context.Context) (crawler.Changeset, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM changesets ORDER BY generated_at DESC LIMIT 1`).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Changeset{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Changeset{}, fmt.Errorf("query changeset: %w", err)
	}
	var cs crawler.Changeset
	if err := json.Unmarshal(body, &cs); err != nil {
		return crawler.Changeset{}, fmt.Errorf("decode changeset: %w", err)
	}
	return cs, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Rows) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
