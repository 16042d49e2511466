// Package opener implements the Opener of spec.md §3/§9: a memoized
// mapping name -> SubRepoHandle, constructed lazily, single-writer per
// sub-repo, holding weak ownership released at the end of a sequencing
// operation. Grounded on the teacher's core.FindRepository/core.Repository
// handle pattern, generalized to a per-operation cache keyed by submodule
// name instead of a single process-wide repo root.
package opener

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/NahomAnteneh/metarepo/internal/objectstore"
)

// Handle is a lazily-opened sub-repo: its store plus the workdir path the
// meta-repo has it checked out under.
type Handle struct {
	Name  string
	Root  string
	Store objectstore.Store
}

// Factory constructs a Store for the sub-repo named name rooted at root.
// Supplied by the caller since the real object store is an external
// collaborator (spec §1).
type Factory func(ctx context.Context, name, root string) (objectstore.Store, error)

// Opener memoizes sub-repo handles for the lifetime of one operation.
// Safe for concurrent use: handle construction is single-writer per name;
// an Open of an already-open handle never waits on a construction, only
// on a short hold of the Opener's mutex.
type Opener struct {
	mu       sync.Mutex
	inFlight map[string]*sync.Once
	handles  map[string]*Handle
	errs     map[string]error
	factory  Factory

	// OperationID correlates log fields for one sequencing operation,
	// following the pack's convention of stamping a uuid per request.
	OperationID string
}

// New creates an Opener backed by factory. Each Opener instance is scoped to
// a single operation; call Release when the operation (commit, sequencer
// run, status computation) completes.
func New(factory Factory) *Opener {
	return &Opener{
		inFlight:    make(map[string]*sync.Once),
		handles:     make(map[string]*Handle),
		errs:        make(map[string]error),
		factory:     factory,
		OperationID: uuid.NewString(),
	}
}

// Open returns the memoized Handle for name, constructing it on first
// request. Concurrent Open calls for the same name block on a single
// construction; calls for different names proceed independently.
func (o *Opener) Open(ctx context.Context, name, root string) (*Handle, error) {
	o.mu.Lock()
	once, ok := o.inFlight[name]
	if !ok {
		once = &sync.Once{}
		o.inFlight[name] = once
	}
	o.mu.Unlock()

	once.Do(func() {
		store, err := o.factory(ctx, name, root)
		o.mu.Lock()
		defer o.mu.Unlock()
		if err != nil {
			o.errs[name] = fmt.Errorf("opener: open %q: %w", name, err)
			return
		}
		o.handles[name] = &Handle{Name: name, Root: root, Store: store}
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	if err, ok := o.errs[name]; ok {
		return nil, err
	}
	return o.handles[name], nil
}

// IsOpen reports whether name has already been opened in this operation,
// without opening it.
func (o *Opener) IsOpen(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.handles[name]
	return ok
}

// Names returns the names of every handle opened so far.
func (o *Opener) Names() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.handles))
	for n := range o.handles {
		names = append(names, n)
	}
	return names
}

// Release drops every held handle. The Opener is single-use after Release;
// callers construct a fresh Opener for the next operation.
func (o *Opener) Release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handles = make(map[string]*Handle)
	o.inFlight = make(map[string]*sync.Once)
	o.errs = make(map[string]error)
}
