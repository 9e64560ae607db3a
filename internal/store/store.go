// Package store provides the persistence adapters behind the engine's
// counter-store contract: SQLite for single-binary deployments, Redis
// for shared ones, and an in-memory map for tests and dry runs. The
// SQLite adapter additionally persists experiment definitions.
package store

import (
	"context"
	"errors"

	"github.com/peterkovacs/vanity/internal/experiment"
)

// ErrNotFound is returned for lookups of definitions that don't exist.
var ErrNotFound = errors.New("not found")

// Definitions persists experiment definitions. Counter data lives
// behind experiment.Store; only the SQLite adapter implements both.
type Definitions interface {
	SaveExperiment(ctx context.Context, e *experiment.Experiment) error
	GetExperiment(ctx context.Context, name string) (*experiment.Experiment, error)
	ListExperiments(ctx context.Context) ([]*experiment.Experiment, error)
	DeleteExperiment(ctx context.Context, name string) error
}
