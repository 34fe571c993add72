package repository

import (
	"fmt"
	"strings"

	"github.com/okian/credence/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Storage drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and tunes a Store implementation.
type Config struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	AutoMigrate  bool
}

// Open builds the Store named by cfg.Driver.
func Open(cfg Config, l logger.Logger) (Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres requires a dsn: %w", ErrUnknownDriver)
		}
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%q: %w", cfg.Driver, ErrUnknownDriver)
	}
	return NewGormStore(dialector,
		WithLogger(l),
		WithMaxOpenConns(cfg.MaxOpenConns),
		WithAutoMigrate(cfg.AutoMigrate),
	)
}

// sqliteDSN adds a busy timeout so a locked database waits before failing.
func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "credence.db"
	}
	if strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000"
}
