// Package fakestore is an in-memory implementation of objectstore.Store
// used by the engine packages' tests, standing in for the real VCS object
// store the way the teacher's tests construct an in-memory core.Repository
// fixture rather than shelling out to a binary.
package fakestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/NahomAnteneh/metarepo/internal/meta"
	"github.com/NahomAnteneh/metarepo/internal/objectstore"
)

// Store is a single-process, mutex-guarded object store. One Store models
// one repository (meta or sub); tests wire up a Store per repo and thread
// them together through path->Store maps when exercising cross-repo
// behavior.
type Store struct {
	mu            sync.Mutex
	commits       map[string]meta.Commit
	refs          map[string]string
	index         map[string]map[string]meta.Change
	workdir       map[string]map[string]meta.Change
	signature     meta.CommitMetaData
	currentBranch string
	detached      bool
}

func New() *Store {
	return &Store{
		commits:       make(map[string]meta.Commit),
		refs:          make(map[string]string),
		index:         make(map[string]map[string]meta.Change),
		workdir:       make(map[string]map[string]meta.Change),
		currentBranch: "master",
		signature: meta.CommitMetaData{
			AuthorName:  "Test User",
			AuthorEmail: "test@example.com",
			Message:     "",
		},
	}
}

func (s *Store) CurrentBranch(_ context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return "", false, nil
	}
	return s.currentBranch, true, nil
}

func (s *Store) SetCurrentBranch(_ context.Context, name string, detached bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached = detached
	if !detached {
		s.currentBranch = name
	}
	return nil
}

var _ objectstore.Store = (*Store)(nil)

func commitID(c meta.Commit) string {
	h := sha256.New()
	fmt.Fprintf(h, "parents:%v\n", c.Parents)
	paths := make([]string, 0, len(c.Changes))
	for p := range c.Changes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		ch := c.Changes[p]
		fmt.Fprintf(h, "path:%s kind:%d file:%x exec:%v sub:%s@%s\n", p, ch.Kind, ch.File.Content, ch.File.Executable, ch.Sub.URL, ch.Sub.Sha)
	}
	fmt.Fprintf(h, "message:%s\n", c.Message)
	return hex.EncodeToString(h.Sum(nil))[:40]
}

func (s *Store) ReadCommit(_ context.Context, id string) (meta.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commits[id]
	if !ok {
		return meta.Commit{}, fmt.Errorf("fakestore: commit %s: %w", id, objectstore.ErrNotFound)
	}
	return c, nil
}

// Tree materializes a commit's full tree by walking its first-parent chain
// and folding each commit's delta on top via meta.Accumulate. Merge
// commits' non-first parents don't contribute additional delta here: the
// fake assumes the merge commit's own Changes already include whatever the
// merge folded in, which is how the sequencer's merge code constructs
// merge commits.
func (s *Store) Tree(_ context.Context, id string) (map[string]meta.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		return map[string]meta.Change{}, nil
	}
	return s.treeLocked(id, make(map[string]bool))
}

func (s *Store) treeLocked(id string, visiting map[string]bool) (map[string]meta.Change, error) {
	if visiting[id] {
		return nil, fmt.Errorf("fakestore: cycle detected materializing tree at %s", id)
	}
	visiting[id] = true

	c, ok := s.commits[id]
	if !ok {
		return nil, fmt.Errorf("fakestore: commit %s: %w", id, objectstore.ErrNotFound)
	}
	var base map[string]meta.Change
	if len(c.Parents) == 0 {
		base = map[string]meta.Change{}
	} else {
		var err error
		base, err = s.treeLocked(c.Parents[0], visiting)
		if err != nil {
			return nil, err
		}
	}
	return meta.Accumulate(base, c.Changes), nil
}

func (s *Store) WriteCommit(_ context.Context, c meta.Commit) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := commitID(c)
	c.Id = id
	s.commits[id] = c
	return id, nil
}

func (s *Store) ResolveRef(_ context.Context, ref string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.refs[ref]
	if !ok {
		return "", fmt.Errorf("fakestore: ref %s: %w", ref, objectstore.ErrNotFound)
	}
	return id, nil
}

func (s *Store) UpdateRef(_ context.Context, ref, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[ref] = id
	return nil
}

func (s *Store) DeleteRef(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refs, ref)
	return nil
}

func (s *Store) ListRefs(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for ref := range s.refs {
		if strings.HasPrefix(ref, prefix) {
			out = append(out, ref)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) IsAncestor(_ context.Context, candidate, of string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if candidate == of {
		return true, nil
	}
	visited := make(map[string]bool)
	var walk func(id string) bool
	walk = func(id string) bool {
		if id == candidate {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		c, ok := s.commits[id]
		if !ok {
			return false
		}
		for _, p := range c.Parents {
			if walk(p) {
				return true
			}
		}
		return false
	}
	return walk(of), nil
}

// ThreeWayMerge implements a path-level three-way merge over the tagged
// Change union. Textual blob merge is out of scope (spec Non-goals); any
// divergent File content is reported as a conflict rather than merged.
func (s *Store) ThreeWayMerge(_ context.Context, _ string, ancestor, ours, theirs meta.Change) (meta.Change, bool, meta.Conflict, error) {
	if ours.Equal(theirs) {
		return ours, true, meta.Conflict{}, nil
	}
	if ours.Equal(ancestor) {
		return theirs, true, meta.Conflict{}, nil
	}
	if theirs.Equal(ancestor) {
		return ours, true, meta.Conflict{}, nil
	}
	return meta.Change{}, false, meta.Conflict{
		Ancestor: changeToSide(ancestor),
		Ours:     changeToSide(ours),
		Theirs:   changeToSide(theirs),
	}, nil
}

func changeToSide(c meta.Change) meta.Side {
	switch c.Kind {
	case meta.ChangeFile:
		return meta.FileSide(c.File)
	case meta.ChangeSubmodule:
		return meta.SubSide(c.Sub)
	default:
		return meta.NilSide()
	}
}

func (s *Store) ReadIndex(_ context.Context, repoRoot string) (map[string]meta.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneChangeMap(s.index[repoRoot]), nil
}

func (s *Store) WriteIndex(_ context.Context, repoRoot string, index map[string]meta.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[repoRoot] = cloneChangeMap(index)
	return nil
}

func (s *Store) ReadWorkdir(_ context.Context, repoRoot string) (map[string]meta.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneChangeMap(s.workdir[repoRoot]), nil
}

// SeedWorkdir lets tests populate the simulated working tree for repoRoot.
func (s *Store) SeedWorkdir(repoRoot string, wd map[string]meta.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workdir[repoRoot] = cloneChangeMap(wd)
}

func (s *Store) ResetHard(ctx context.Context, repoRoot, id string) error {
	return s.resetTo(repoRoot, id, true, true)
}

func (s *Store) ResetSoft(ctx context.Context, repoRoot, id string) error {
	return s.resetTo(repoRoot, id, false, false)
}

func (s *Store) ResetMixed(ctx context.Context, repoRoot, id string) error {
	return s.resetTo(repoRoot, id, true, false)
}

func (s *Store) resetTo(repoRoot, id string, resetIndex, resetWorkdir bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree, err := s.treeLocked(id, make(map[string]bool))
	if err != nil {
		return fmt.Errorf("fakestore: reset: %w", err)
	}
	if resetIndex {
		s.index[repoRoot] = cloneChangeMap(tree)
	}
	if resetWorkdir {
		s.workdir[repoRoot] = cloneChangeMap(tree)
	}
	return nil
}

func (s *Store) DefaultSignature(_ context.Context) (meta.CommitMetaData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signature, nil
}

func cloneChangeMap(m map[string]meta.Change) map[string]meta.Change {
	out := make(map[string]meta.Change, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
