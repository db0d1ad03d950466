// Package postgres copies admitted tender records into Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/tender-harvester/internal/harvest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "tenders"

// TenderStoreConfig controls the Postgres connection pool used for tender rows.
type TenderStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// TenderStore writes admitted records into Postgres. The composite key is
// the primary key, so replays of the same record are ignored.
type TenderStore struct {
	pool  execCloser
	table string
}

// NewTenderStore connects a pool using cfg.
func NewTenderStore(ctx context.Context, cfg TenderStoreConfig) (*TenderStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	return &TenderStore{pool: pool, table: table}, nil
}

// NewTenderStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewTenderStoreWithPool(pool execCloser, table string) (*TenderStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &TenderStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *TenderStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureTable creates the tender table when it does not exist.
func (s *TenderStore) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	record_key      TEXT PRIMARY KEY,
	run_id          UUID NOT NULL,
	tender_number   TEXT,
	title           TEXT NOT NULL,
	category        TEXT NOT NULL,
	advertised_date TEXT,
	closing_date    TEXT,
	buyer_name      TEXT,
	e_submission    TEXT,
	tender_type     TEXT,
	province        TEXT,
	date_published  TEXT,
	document_links  JSONB NOT NULL,
	source          TEXT NOT NULL,
	harvested_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create tender table: %w", err)
	}
	return nil
}

// Put inserts rec unless a row with the same composite key exists.
func (s *TenderStore) Put(ctx context.Context, runID uuid.UUID, rec harvest.TenderRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("tender store is not configured")
	}
	links := rec.DocumentLinks
	if links == nil {
		links = []harvest.DocumentLink{}
	}
	linksJSON, err := json.Marshal(links)
	if err != nil {
		return fmt.Errorf("marshal document links: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	record_key,
	run_id,
	tender_number,
	title,
	category,
	advertised_date,
	closing_date,
	buyer_name,
	e_submission,
	tender_type,
	province,
	date_published,
	document_links,
	source
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
) ON CONFLICT (record_key) DO NOTHING`, s.table)

	args := []any{
		rec.Key(),
		runID.String(),
		rec.TenderNumber,
		rec.Title,
		rec.Category,
		rec.AdvertisedDate,
		rec.ClosingDate,
		rec.BuyerName,
		rec.ESubmission,
		rec.TenderType,
		rec.Province,
		rec.DatePublished,
		linksJSON,
		rec.Source,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert tender: %w", err)
	}
	return nil
}
