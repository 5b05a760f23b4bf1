// Package storage selects the store backend named in the configuration.
package storage

import (
	"fmt"

	"github.com/kailas-cloud/beansack/internal/config"
	"github.com/kailas-cloud/beansack/internal/db"
	"github.com/kailas-cloud/beansack/internal/db/memory"
	dbRedis "github.com/kailas-cloud/beansack/internal/db/redis"
)

// Open creates the store for cfg.Driver. Keys are namespaced by prefix.
// Valkey shares the Redis client but has no full-text search.
func Open(cfg config.DatabaseConfig, prefix string) (db.Store, error) {
	switch cfg.Driver {
	case "redis", "valkey":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:      cfg.Addrs,
			Username:   cfg.Username,
			Password:   cfg.Password,
			DB:         cfg.DB,
			KeyPrefix:  prefix,
			TextSearch: cfg.Driver == "redis",
		})
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
		}
		return s, nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
