package repository

import (
	"github.com/okian/credence/pkg/logger"
)

// Option applies a configuration option to the GormStore.
type Option func(*GormStore)

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *GormStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxOpenConns bounds the connection pool. SQLite is always held to one
// connection so writers queue instead of failing with SQLITE_BUSY.
func WithMaxOpenConns(n int) Option {
	return func(s *GormStore) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithAutoMigrate controls whether the schema is migrated on open.
func WithAutoMigrate(enabled bool) Option {
	return func(s *GormStore) {
		s.autoMigrate = enabled
	}
}
