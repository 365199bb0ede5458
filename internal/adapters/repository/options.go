// Package repository defines the progression store interface and errors.
package repository

import "time"

// sqliteConfig holds tunables for the SQLite store.
type sqliteConfig struct {
	busyTimeout time.Duration
}

// SQLiteOption applies a configuration option to the SQLiteStore.
type SQLiteOption func(*sqliteConfig)

// WithBusyTimeout sets how long SQLite waits on a locked database before
// returning SQLITE_BUSY.
func WithBusyTimeout(d time.Duration) SQLiteOption {
	return func(c *sqliteConfig) {
		if d > 0 {
			c.busyTimeout = d
		}
	}
}
