// Copyright 2025 OneCore Project
//
// PostgresIndex is an alternate reverse-index backend for deployments that
// already run Postgres for other bookkeeping and would rather query
// referrers with SQL than scan append-only files. It implements the same
// Update contract as Maintainer so either can be wired into
// objectstore.Store.SetReverseIndex interchangeably.

package reverseindex

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq" // registers the "postgres" sql.DB driver

	"github.com/onecore-dev/onecore/pkg/canon"
)

// PostgresConfig configures connection pooling for PostgresIndex: the
// database URL plus database/sql's pool-tuning knobs.
type PostgresConfig struct {
	DatabaseURL   string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxIdleTime   time.Duration
	MaxConnLife   time.Duration
}

// PostgresIndex stores reverse-map entries in a single Postgres table
// instead of the blob store's append-only files.
type PostgresIndex struct {
	db     *sql.DB
	logger *log.Logger

	mu      sync.RWMutex
	enabled map[Kind]map[string]bool
}

// NewPostgresIndex opens a pooled connection to cfg.DatabaseURL, verifies
// it with a ping, and ensures the reverse_index table exists.
func NewPostgresIndex(ctx context.Context, cfg PostgresConfig) (*PostgresIndex, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("reverseindex: database URL cannot be empty")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)
	db.SetConnMaxLifetime(cfg.MaxConnLife)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	idx := &PostgresIndex{
		db:      db,
		logger:  log.New(os.Stderr, "[reverseindex-pg] ", log.LstdFlags),
		enabled: map[Kind]map[string]bool{ObjectKind: {}, IdObjectKind: {}},
	}
	for _, t := range coreEnabledTypes {
		idx.enabled[ObjectKind][t] = true
		idx.enabled[IdObjectKind][t] = true
	}

	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating reverse_index table: %w", err)
	}

	idx.logger.Printf("connected to reverse-index database (max_open=%d, max_idle=%d)", cfg.MaxOpenConns, cfg.MaxIdleConns)
	return idx, nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS reverse_index (
	target_hash TEXT NOT NULL,
	kind        TEXT NOT NULL,
	parent_type TEXT NOT NULL,
	parent_hash TEXT NOT NULL,
	PRIMARY KEY (target_hash, kind, parent_type, parent_hash)
)`

// Close closes the underlying database connection.
func (p *PostgresIndex) Close() error {
	return p.db.Close()
}

// Enable turns on reverse-map maintenance for (kind, parentType), matching
// Maintainer.Enable's semantics, including the "*" wildcard.
func (p *PostgresIndex) Enable(kind Kind, parentType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled[kind][parentType] {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateEnable, kind, parentType)
	}
	p.enabled[kind][parentType] = true
	return nil
}

func (p *PostgresIndex) isEnabled(kind Kind, parentType string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled[kind][wildcardType] || p.enabled[kind][parentType]
}

// Update implements objectstore.ReverseIndexUpdater against the Postgres
// table, upserting one row per (target, kind, parentType, parent) so that
// recording the same reference twice is a no-op.
func (p *PostgresIndex) Update(parent canon.ObjectHash, parentType string, refs []canon.Reference) error {
	ctx := context.Background()
	for _, ref := range refs {
		kind := kindOf(ref.Kind)
		if !p.isEnabled(kind, parentType) {
			continue
		}
		_, err := p.db.ExecContext(ctx,
			`INSERT INTO reverse_index (target_hash, kind, parent_type, parent_hash)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT DO NOTHING`,
			ref.Target.String(), string(kind), parentType, parent.String())
		if err != nil {
			return fmt.Errorf("recording reference from %s to %s: %w", parent, ref.Target, err)
		}
	}
	return nil
}

// Referrers returns every distinct hash recorded as referencing target via
// (kind, parentType).
func (p *PostgresIndex) Referrers(ctx context.Context, target canon.Hash, kind Kind, parentType string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT parent_hash FROM reverse_index WHERE target_hash = $1 AND kind = $2 AND parent_type = $3`,
		target.String(), string(kind), parentType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		out = append(out, hash)
	}
	return out, rows.Err()
}

// HealthStatus reports the connection pool's state.
type HealthStatus struct {
	Healthy         bool
	Error           string
	OpenConnections int
	InUse           int
	Idle            int
}

// Health reports the connection pool's current state.
func (p *PostgresIndex) Health(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{}
	if err := p.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Error = err.Error()
		return status, nil
	}
	stats := p.db.Stats()
	status.Healthy = true
	status.OpenConnections = stats.OpenConnections
	status.InUse = stats.InUse
	status.Idle = stats.Idle
	return status, nil
}
