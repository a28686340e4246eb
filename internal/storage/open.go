package storage

import (
	"context"
	"errors"
	"strings"

	logx "pagewatch/pkg/logx"
)

// Store is the persistence API used by the monitor.
type Store interface {
	AppendCheck(ctx context.Context, e CheckEntry) error
	// RecentChecks returns up to n entries, newest first.
	RecentChecks(ctx context.Context, n int) ([]CheckEntry, error)
	Close() error
}

// pruneEvery controls how often (in appends) expired entries are dropped.
const pruneEvery = 100

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// ValidDriver reports whether Open understands d.
func ValidDriver(d string) bool {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "", "none", "file", "sqlite", "sqlite3":
		return true
	}
	return false
}
