package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/config"
)

// DB wraps the postgres connection pool and the agent cache.
type DB struct {
	conn       *sqlx.DB
	agentCache *LRUCache
}

// NewDB connects to postgres and configures the pool.
func NewDB(dbCfg config.DatabaseConfig, cacheCfg config.CacheConfig) (*DB, error) {
	conn, err := sqlx.Connect("postgres", dbCfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	conn.SetMaxOpenConns(dbCfg.MaxOpenConns)
	conn.SetMaxIdleConns(dbCfg.MaxIdleConns)
	conn.SetConnMaxLifetime(dbCfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(dbCfg.ConnMaxIdleTime)

	return &DB{
		conn:       conn,
		agentCache: NewLRUCache(cacheCfg.AgentCacheSize, cacheCfg.AgentCacheTTL),
	}, nil
}

// Close closes the pool and clears caches.
func (db *DB) Close() error {
	db.agentCache.Clear()
	return db.conn.Close()
}

// Ping checks if the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Health verifies connectivity with a round-trip query.
func (db *DB) Health(ctx context.Context) error {
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := db.conn.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}
	return nil
}

// BeginTx starts a transaction.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return db.conn.BeginTxx(ctx, opts)
}

// Conn exposes the underlying pool for queries repositories do not cover.
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// Agents returns the agent catalog repository.
func (db *DB) Agents() *AgentRepository {
	return NewAgentRepository(db)
}

// Ledger returns the credit ledger repository.
func (db *DB) Ledger() *LedgerRepository {
	return NewLedgerRepository(db)
}

// Usage returns the usage audit repository.
func (db *DB) Usage() *UsageRepository {
	return NewUsageRepository(db)
}
