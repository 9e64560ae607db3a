package cli

import (
	"fmt"

	"github.com/peterkovacs/vanity/internal/experiment"
	"github.com/peterkovacs/vanity/internal/store"
)

// withStore opens the definition database, executes the function, and
// handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// counterStore picks where counters live: Redis when --redis is set,
// otherwise the same SQLite file as the definitions. The returned
// cleanup closes the Redis connection when one was opened.
func counterStore(s *store.SQLiteStore) (experiment.Store, func(), error) {
	if redisAddr == "" {
		return s, func() {}, nil
	}
	r, err := store.OpenRedis(redisAddr, "", 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return r, func() { r.Close() }, nil
}
