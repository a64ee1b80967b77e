package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Config holds database configuration
type Config struct {
	Driver          string
	DSN             string // PostgreSQL connection string
	Path            string // SQLite file path, ":memory:" for an in-memory database
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open creates a connection pool for the configured driver and verifies it
func Open(cfg Config, logger *zap.Logger) (*sql.DB, error) {
	dsn, err := cfg.dataSource()
	if err != nil {
		return nil, err
	}

	if cfg.Driver == DriverSQLite && !isMemory(cfg.Path) {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	sqlDB, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen, maxIdle, lifetime := cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime
	if cfg.Driver == DriverSQLite && isMemory(cfg.Path) {
		// Each connection to :memory: is a separate database; keep exactly one alive.
		maxOpen, maxIdle, lifetime = 1, 1, 0
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established", zap.String("driver", cfg.Driver))
	return sqlDB, nil
}

func (cfg Config) dataSource() (string, error) {
	switch cfg.Driver {
	case DriverSQLite:
		path := cfg.Path
		if path == "" {
			path = ":memory:"
		}
		// _txlock=immediate makes every transaction take the write lock up front.
		params := "_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
		if !isMemory(path) {
			params += "&_journal_mode=WAL"
		}
		return fmt.Sprintf("file:%s?%s", path, params), nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return "", fmt.Errorf("database dsn is required for driver %s", cfg.Driver)
		}
		return cfg.DSN, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

func isMemory(path string) bool {
	return path == "" || strings.Contains(path, ":memory:") || strings.Contains(path, "mode=memory")
}
