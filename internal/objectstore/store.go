// Package objectstore defines the boundary interface over the underlying
// VCS object store: object read/write, index manipulation, reference
// creation, tree diff, blob hashing. The concrete store is an external
// collaborator (spec §1); this package only names the contract the rest of
// the engine is written against, plus an in-memory fake for tests.
package objectstore

import (
	"context"

	"github.com/NahomAnteneh/metarepo/internal/meta"
)

// Store is the abstract interface every engine package depends on instead
// of talking to a concrete VCS backend. All methods may be called
// concurrently from multiple bounded-parallel tasks (spec §5) except where
// noted.
type Store interface {
	// ReadCommit returns the commit stored under id.
	ReadCommit(ctx context.Context, id string) (meta.Commit, error)

	// Tree materializes the full path->Change snapshot at commit id by
	// replaying the delta chain of Commit.Changes from the root. An empty
	// id (no commits yet) yields an empty tree.
	Tree(ctx context.Context, id string) (map[string]meta.Change, error)

	// WriteCommit content-addresses and persists a commit, returning its id.
	WriteCommit(ctx context.Context, c meta.Commit) (string, error)

	// ResolveRef resolves a ref name (branch, HEAD, or synthetic) to a
	// commit id. Returns ErrNotFound when the ref does not exist.
	ResolveRef(ctx context.Context, ref string) (string, error)

	// CurrentBranch returns the name of the branch HEAD currently points at,
	// and false when HEAD is detached.
	CurrentBranch(ctx context.Context) (string, bool, error)

	// SetCurrentBranch updates which branch HEAD tracks; detached=true
	// clears it (HEAD points directly at a commit, no current branch).
	SetCurrentBranch(ctx context.Context, name string, detached bool) error

	// UpdateRef points ref at id, creating it if absent.
	UpdateRef(ctx context.Context, ref, id string) error

	// DeleteRef removes ref. Deleting a non-existent ref is not an error.
	DeleteRef(ctx context.Context, ref string) error

	// ListRefs returns every ref name under prefix.
	ListRefs(ctx context.Context, prefix string) ([]string, error)

	// IsAncestor reports whether candidate is an ancestor of (or equal to)
	// of.
	IsAncestor(ctx context.Context, candidate, of string) (bool, error)

	// ThreeWayMerge merges ancestor/ours/theirs for a single path, delegating
	// blob-level textual merge to the store (spec Non-goals). Returns the
	// merged change and ok=false with a Conflict when the merge could not be
	// resolved automatically.
	ThreeWayMerge(ctx context.Context, path string, ancestor, ours, theirs meta.Change) (merged meta.Change, ok bool, conflict meta.Conflict, err error)

	// ReadIndex/WriteIndex persist the staging area for repo at root.
	ReadIndex(ctx context.Context, repoRoot string) (map[string]meta.Change, error)
	WriteIndex(ctx context.Context, repoRoot string, index map[string]meta.Change) error

	// ReadWorkdir reads the on-disk working tree state for repo at root.
	ReadWorkdir(ctx context.Context, repoRoot string) (map[string]meta.Change, error)

	// ResetHard sets both index and workdir to id's tree, ResetMixed only
	// the index, and ResetSoft neither. None of them moves HEAD or a branch
	// ref; callers do that with UpdateRef.
	ResetHard(ctx context.Context, repoRoot, id string) error
	ResetSoft(ctx context.Context, repoRoot, id string) error
	ResetMixed(ctx context.Context, repoRoot, id string) error

	// DefaultSignature returns the signature the commit engine and the
	// sequencer stamp onto freshly created commits.
	DefaultSignature(ctx context.Context) (meta.CommitMetaData, error)
}

// ErrNotFound is returned by ResolveRef (and similar lookups) when the
// requested name does not exist. It is a sentinel, not a spec.md §7
// error-taxonomy type: callers translate it into UserError or
// IntegrityError depending on context.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "objectstore: ref not found" }
