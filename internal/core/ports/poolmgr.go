package ports

import "github.com/thushan/dispatch/internal/core/domain"

// PoolManager selects the next endpoint to try within a pool, applying the
// pool's configured domain.SelectionPolicy and skipping endpoints the
// Health Manager reports unavailable.
type PoolManager interface {
	// Select returns the ordered candidate endpoints for poolID, most
	// preferred first, excluding any already in exclude (endpoints the
	// caller already tried and failed against in this request).
	Select(poolID string, exclude map[string]struct{}) ([]domain.EndpointConfig, error)

	// Health returns the cached PoolHealth score for poolID, recomputing
	// it if the cache has gone stale.
	Health(poolID string) (domain.PoolHealth, error)

	Pool(poolID string) (domain.Pool, bool)
}
