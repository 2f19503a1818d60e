package config

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// StorageConfig selects the SQL backend behind the Trace Writer and Query
// Log Writer repositories (§4.9/§11), adapted from hector's DatabaseConfig
// (pkg/config/database.go) narrowed to the two drivers §11 names: MySQL
// has no named home in SPEC_FULL.md and was dropped (see DESIGN.md).
type StorageConfig struct {
	Driver   string `yaml:"driver,omitempty" json:"driver,omitempty" jsonschema:"description=postgres/sqlite"`
	Host     string `yaml:"host,omitempty" json:"host,omitempty"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
	Database string `yaml:"database,omitempty" json:"database,omitempty"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	SSLMode  string `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitempty"`
	MaxConns int    `yaml:"max_conns,omitempty" json:"max_conns,omitempty"`
}

func (c *StorageConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.Driver == "sqlite" && c.Database == "" {
		c.Database = "orchestrator.db"
	}
	if c.Driver == "postgres" {
		if c.Port == 0 {
			c.Port = 5432
		}
		if c.SSLMode == "" {
			c.SSLMode = "disable"
		}
	}
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
}

func (c *StorageConfig) Validate() error {
	switch c.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid storage driver %q (valid: postgres, sqlite)", c.Driver)
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	return nil
}

// DSN builds the driver-specific connection string.
func (c *StorageConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.Database
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode)
}

// DriverName is the database/sql driver name registered for c.Driver.
func (c *StorageConfig) DriverName() string {
	if c.Driver == "postgres" {
		return "postgres"
	}
	return "sqlite3"
}

// DBPool manages shared *sql.DB handles, one per distinct DSN, so the
// Trace Writer and Query Log Writer repositories share a single
// connection pool rather than opening one each. SQLite in particular
// needs a single shared handle to avoid "database is locked" errors
// under concurrent writers.
type DBPool struct {
	mu    sync.Mutex
	pools map[string]*sql.DB
}

func NewDBPool() *DBPool {
	return &DBPool{pools: make(map[string]*sql.DB)}
}

func (p *DBPool) Get(ctx context.Context, cfg *StorageConfig) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dsn := cfg.DSN()
	if db, ok := p.pools[dsn]; ok {
		return db, nil
	}

	db, err := sql.Open(cfg.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: opening %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: pinging %s: %w", cfg.Driver, err)
	}

	p.pools[dsn] = db
	return db, nil
}

func (p *DBPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, db := range p.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
