// Package postgres provides the Postgres-backed Store. Vector search relies
// on the pgvector extension.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tchan1002/pathfinder/internal/storage"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" yaml:"max_conn_lifetime"`
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store implements storage.Store on a pgx connection pool.
type Store struct {
	pool dbPool
}

// New connects a pool using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) CreateSite(ctx context.Context, site storage.Site) error {
	if site.ID == "" {
		site.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO sites (id, domain, start_url, created_at)
VALUES ($1, $2, $3, COALESCE($4, now()))`,
		site.ID, site.Domain, site.StartURL, nullTime(site.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert site: %w", err)
	}
	return nil
}

func (s *Store) GetSite(ctx context.Context, siteID string) (storage.Site, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, domain, start_url, created_at FROM sites WHERE id = $1`, siteID)
	return scanSite(row)
}

func (s *Store) GetSiteByDomain(ctx context.Context, domain string) (storage.Site, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, domain, start_url, created_at FROM sites WHERE domain = $1`, domain)
	return scanSite(row)
}

func (s *Store) ListSites(ctx context.Context) ([]storage.Site, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, domain, start_url, created_at FROM sites ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []storage.Site
	for rows.Next() {
		var site storage.Site
		if err := rows.Scan(&site.ID, &site.Domain, &site.StartURL, &site.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

func (s *Store) DeleteSite(ctx context.Context, siteID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sites WHERE id = $1`, siteID)
	if err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanSite(row pgx.Row) (storage.Site, error) {
	var site storage.Site
	err := row.Scan(&site.ID, &site.Domain, &site.StartURL, &site.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Site{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Site{}, fmt.Errorf("scan site: %w", err)
	}
	return site, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
