// Package syntheticgc implements SyntheticRefGC (spec §4.4): it preserves
// reachability of sub-repo commits pinned from meta-repo history by keeping
// a synthetic ref (refs/commits/<sha> by convention) alive in the sub-repo,
// and reclaims references that are redundant or stale. Grounded on the
// teacher's internal/gc ancestry-walk and simulation-by-default posture,
// generalized from a single repo's reflog sweep to a meta-repo's per-sub
// root-set computation.
package syntheticgc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/NahomAnteneh/metarepo/internal/logging"
	"github.com/NahomAnteneh/metarepo/internal/meta"
	"github.com/NahomAnteneh/metarepo/internal/objectstore"
	"github.com/NahomAnteneh/metarepo/internal/opener"
	"github.com/rs/zerolog"
)

// MetaRepo is the handle enumerateSyntheticRefs/populateRoots/removeOld
// operate the meta side of the walk on.
type MetaRepo struct {
	Root  string
	Store objectstore.Store
}

// Predicate reports whether the synthetic ref at a candidate ancestor
// commit should be removed. A nil Predicate behaves as "always true" per
// spec §4.4.
type Predicate func(ctx context.Context, subStore objectstore.Store, sha string) (bool, error)

// IsOld decides, for a synthetic ref's commit id, whether removeOld should
// reclaim it (typically an age threshold).
type IsOld func(ctx context.Context, subStore objectstore.Store, sha string) (bool, error)

// GC drives the enumerate/populate/remove operations. Simulation is the
// default per spec §4.4: Apply must be explicitly set true to mutate refs.
type GC struct {
	Opener      *opener.Opener
	Log         zerolog.Logger
	RefPrefix   string // e.g. "refs/commits/"
	Apply       bool   // false = simulation mode: log actions, don't perform them
}

func New(op *opener.Opener, refPrefix string) *GC {
	return &GC{Opener: op, Log: logging.Nop(), RefPrefix: refPrefix}
}

// EnumerateSyntheticRefs lists every sub-repo commit sha currently kept
// alive by a synthetic ref.
func (g *GC) EnumerateSyntheticRefs(ctx context.Context, subStore objectstore.Store) (map[string]bool, error) {
	refs, err := subStore.ListRefs(ctx, g.RefPrefix)
	if err != nil {
		return nil, fmt.Errorf("syntheticgc: list refs: %w", err)
	}
	out := make(map[string]bool, len(refs))
	for _, ref := range refs {
		out[strings.TrimPrefix(ref, g.RefPrefix)] = true
	}
	return out, nil
}

func (g *GC) syntheticRefName(sha string) string {
	return g.RefPrefix + sha
}

// PopulateRoots walks rootRefs in metaRepo (default refs/heads/master per
// config) and, for every commit reachable from them, records each sub-path's
// pinned sub-sha. The result is the persistent set removeRedundant/removeOld
// must never reclaim.
func (g *GC) PopulateRoots(ctx context.Context, metaRepo MetaRepo, rootRefs []string) (map[string]map[string]bool, error) {
	roots := map[string]map[string]bool{}
	visited := map[string]bool{}

	var walk func(id string) error
	walk = func(id string) error {
		if id == "" || visited[id] {
			return nil
		}
		visited[id] = true
		commit, err := metaRepo.Store.ReadCommit(ctx, id)
		if err != nil {
			return fmt.Errorf("syntheticgc: read commit %s: %w", id, err)
		}
		tree, err := metaRepo.Store.Tree(ctx, id)
		if err != nil {
			return fmt.Errorf("syntheticgc: materialize tree at %s: %w", id, err)
		}
		for path, ch := range tree {
			if ch.Kind != meta.ChangeSubmodule || ch.Sub.Sha == "" {
				continue
			}
			if roots[path] == nil {
				roots[path] = map[string]bool{}
			}
			roots[path][ch.Sub.Sha] = true
		}
		for _, p := range commit.Parents {
			if err := walk(p); err != nil {
				return err
			}
		}
		return nil
	}

	for _, ref := range rootRefs {
		id, err := metaRepo.Store.ResolveRef(ctx, ref)
		if err != nil {
			if errors.Is(err, objectstore.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("syntheticgc: resolve %s: %w", ref, err)
		}
		if err := walk(id); err != nil {
			return nil, err
		}
	}
	return roots, nil
}

// RemoveRedundant walks ancestors of every persistent sub-commit in roots
// and removes the synthetic ref of any ancestor (other than the persistent
// tip itself) that satisfies predicate (default: always). It never touches
// the persistent tip's own ref.
func (g *GC) RemoveRedundant(ctx context.Context, subPath string, subStore objectstore.Store, persistentShas map[string]bool, predicate Predicate) error {
	existing, err := g.EnumerateSyntheticRefs(ctx, subStore)
	if err != nil {
		return err
	}

	visited := map[string]bool{}
	var walk func(id string, isTip bool) error
	walk = func(id string, isTip bool) error {
		if id == "" || visited[id] {
			return nil
		}
		visited[id] = true

		if !isTip && existing[id] {
			shouldRemove := true
			if predicate != nil {
				var err error
				shouldRemove, err = predicate(ctx, subStore, id)
				if err != nil {
					return err
				}
			}
			if shouldRemove {
				if err := g.removeRef(ctx, subStore, subPath, id); err != nil {
					return err
				}
			}
		}

		commit, err := subStore.ReadCommit(ctx, id)
		if err != nil {
			return fmt.Errorf("syntheticgc: read sub commit %s: %w", id, err)
		}
		for _, p := range commit.Parents {
			if err := walk(p, false); err != nil {
				return err
			}
		}
		return nil
	}

	shas := sortedKeys(persistentShas)
	for _, sha := range shas {
		if err := walk(sha, true); err != nil {
			return err
		}
	}
	return nil
}

// RemoveOld removes every synthetic ref in subStore not in the persistent
// set whose commit satisfies isOld (typically age > N months).
func (g *GC) RemoveOld(ctx context.Context, subPath string, subStore objectstore.Store, persistentShas map[string]bool, isOld IsOld) error {
	existing, err := g.EnumerateSyntheticRefs(ctx, subStore)
	if err != nil {
		return err
	}
	shas := sortedKeys(existing)
	for _, sha := range shas {
		if persistentShas[sha] {
			continue
		}
		old := true
		if isOld != nil {
			old, err = isOld(ctx, subStore, sha)
			if err != nil {
				return err
			}
		}
		if !old {
			continue
		}
		if err := g.removeRef(ctx, subStore, subPath, sha); err != nil {
			return err
		}
	}
	return nil
}

func (g *GC) removeRef(ctx context.Context, subStore objectstore.Store, subPath, sha string) error {
	ref := g.syntheticRefName(sha)
	if !g.Apply {
		g.Log.Info().Str("sub", subPath).Str("ref", ref).Msg("would remove synthetic ref (simulation mode)")
		return nil
	}
	g.Log.Info().Str("sub", subPath).Str("ref", ref).Msg("removing synthetic ref")
	return subStore.DeleteRef(ctx, ref)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// AgeThreshold builds an IsOld predicate from a fixed cutoff, used when the
// caller already knows commit timestamps out of band (the fake store has no
// commit-time field; a real store's DefaultSignature-style metadata would
// supply it).
func AgeThreshold(cutoff time.Time, commitTime func(sha string) (time.Time, bool)) IsOld {
	return func(_ context.Context, _ objectstore.Store, sha string) (bool, error) {
		t, ok := commitTime(sha)
		if !ok {
			return false, nil
		}
		return t.Before(cutoff), nil
	}
}
