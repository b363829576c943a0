// Package pool keeps at most one live in-memory copy of each project and
// counts the references held against it. Subscribers hold long-lived pins;
// one-shot callers (a single mutation or read) pin and release within the
// same call. The last release persists the document and evicts the entry.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jvossen/ensemble/internal/score"
	"golang.org/x/sync/singleflight"
)

// ErrNotCheckedOut is returned by Release when no entry exists for the id.
// It signals a caller bug (an unbalanced release) but is harmless to the
// pool itself.
var ErrNotCheckedOut = errors.New("project not checked out")

// LoadFunc constructs the document on a cache miss, typically by reading
// it from the store. It runs without any pool lock held.
type LoadFunc func(ctx context.Context) (*score.Project, error)

// FinalFunc runs when the last reference is released, typically to persist
// the document before eviction.
type FinalFunc func(proj *score.Project) error

type entry struct {
	proj *score.Project
	refs int
}

// Pool is the process-wide checkout cache. The map lock is short-held and
// independent of the per-project locks handed out by Guard.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*entry
	loading singleflight.Group

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{
		entries: make(map[string]*entry),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Checkout pins the project, loading it via load on a miss. Concurrent
// misses for the same id share a single load; a failed load leaves the
// pool untouched.
func (p *Pool) Checkout(ctx context.Context, id string, load LoadFunc) (*score.Project, error) {
	p.mu.Lock()
	if e, ok := p.entries[id]; ok {
		e.refs++
		p.mu.Unlock()
		return e.proj, nil
	}
	p.mu.Unlock()

	v, err, _ := p.loading.Do(id, func() (any, error) {
		// A caller that lost the race to an already-finished load must
		// reuse the pooled copy instead of loading a second one.
		p.mu.Lock()
		if e, ok := p.entries[id]; ok {
			proj := e.proj
			p.mu.Unlock()
			return proj, nil
		}
		p.mu.Unlock()
		return load(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %w", id, err)
	}
	loaded := v.(*score.Project)

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[id]; ok {
		// Another shared loader already inserted the entry.
		e.refs++
		return e.proj, nil
	}
	p.entries[id] = &entry{proj: loaded, refs: 1}
	return loaded, nil
}

// Release unpins the project. When the count reaches zero the entry is
// evicted and final runs on the document, outside the pool lock. Releasing
// an id that is not pooled returns ErrNotCheckedOut without side effects.
func (p *Pool) Release(id string, final FinalFunc) error {
	p.mu.Lock()
	e, ok := p.entries[id]
	if !ok {
		p.mu.Unlock()
		return ErrNotCheckedOut
	}
	e.refs--
	if e.refs > 0 {
		p.mu.Unlock()
		return nil
	}
	delete(p.entries, id)
	p.mu.Unlock()

	if final != nil {
		if err := final(e.proj); err != nil {
			return fmt.Errorf("final release of %s: %w", id, err)
		}
	}
	return nil
}

// Refs reports the current reference count for an id, zero when unpooled.
func (p *Pool) Refs(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[id]; ok {
		return e.refs
	}
	return 0
}

// ForEach calls fn with every pooled project and its reference count. The
// pool lock is held only while snapshotting, so checkouts and releases may
// proceed during iteration.
func (p *Pool) ForEach(fn func(id string, proj *score.Project, refs int)) {
	p.mu.Lock()
	snapshot := make(map[string]entry, len(p.entries))
	for id, e := range p.entries {
		snapshot[id] = *e
	}
	p.mu.Unlock()

	for id, e := range snapshot {
		fn(id, e.proj, e.refs)
	}
}

// Guard returns the mutex serializing mutations and flushes of a single
// project. Locks are created on demand and live for the process; the count
// is bounded by the number of distinct projects touched.
func (p *Pool) Guard(id string) *sync.Mutex {
	p.locksMu.Lock()
	defer p.locksMu.Unlock()
	mu, ok := p.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		p.locks[id] = mu
	}
	return mu
}
