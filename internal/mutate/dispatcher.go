package mutate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jvossen/ensemble/internal/pool"
	"github.com/jvossen/ensemble/internal/repository"
	"github.com/jvossen/ensemble/internal/score"
)

// Dispatcher applies decoded operations to pooled documents. Each apply
// takes a temporary pin: the document is checked out, mutated under the
// project lock, and released in the same call, so the pool's reference
// count is unchanged once Apply returns.
type Dispatcher struct {
	pool   *pool.Pool
	store  repository.ScoreStore
	logger *slog.Logger
}

func NewDispatcher(p *pool.Pool, store repository.ScoreStore, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{pool: p, store: store, logger: logger}
}

// Apply runs op against the project's document. The mutation happens
// while holding the project lock, so concurrent applies to the same
// project serialize and callers observe them in a single order. The pin
// is released on every path, including apply failure.
//
// onApplied, when non-nil, runs after a successful apply while the
// project lock is still held. Fanning the edit out from inside the
// callback gives subscribers the same per-project order the documents
// saw.
func (d *Dispatcher) Apply(ctx context.Context, projectID string, op Op, onApplied func(affected *score.Range)) (*score.Range, error) {
	guard := d.pool.Guard(projectID)
	guard.Lock()
	defer guard.Unlock()

	proj, err := d.pool.Checkout(ctx, projectID, func(ctx context.Context) (*score.Project, error) {
		return d.store.Load(ctx, projectID)
	})
	if err != nil {
		return nil, fmt.Errorf("checking out project %s: %w", projectID, err)
	}

	affected, applyErr := op.Apply(proj)

	if err := d.pool.Release(projectID, func(proj *score.Project) error {
		return d.store.Save(ctx, proj)
	}); err != nil {
		d.logger.Error("releasing project after mutation",
			"project_id", projectID, "op", op.Name(), "error", err)
		if applyErr == nil {
			return nil, fmt.Errorf("releasing project %s: %w", projectID, err)
		}
	}

	if applyErr != nil {
		return nil, fmt.Errorf("applying %s to project %s: %w", op.Name(), projectID, applyErr)
	}
	if onApplied != nil {
		onApplied(affected)
	}
	return affected, nil
}
