package fakestore

import (
	"context"
	"errors"
	"testing"

	"github.com/NahomAnteneh/metarepo/internal/meta"
	"github.com/NahomAnteneh/metarepo/internal/objectstore"
)

func TestWriteAndReadCommitRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := meta.Commit{
		Changes: map[string]meta.Change{
			"a.txt": meta.FileChange(meta.File{Content: []byte("hello")}),
		},
		Message: "first",
	}
	id, err := s.WriteCommit(ctx, c)
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a non-empty content-addressed id")
	}
	got, err := s.ReadCommit(ctx, id)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if got.Message != "first" {
		t.Errorf("expected message to round-trip, got %q", got.Message)
	}
}

func TestReadCommitNotFound(t *testing.T) {
	s := New()
	_, err := s.ReadCommit(context.Background(), "missing")
	if !errors.Is(err, objectstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTreeMaterializesDeltaChain(t *testing.T) {
	s := New()
	ctx := context.Background()

	c1, err := s.WriteCommit(ctx, meta.Commit{
		Changes: map[string]meta.Change{"a.txt": meta.FileChange(meta.File{Content: []byte("1")})},
	})
	if err != nil {
		t.Fatalf("write c1: %v", err)
	}
	c2, err := s.WriteCommit(ctx, meta.Commit{
		Parents: []string{c1},
		Changes: map[string]meta.Change{
			"a.txt": meta.FileChange(meta.File{Content: []byte("2")}),
			"b.txt": meta.FileChange(meta.File{Content: []byte("new")}),
		},
	})
	if err != nil {
		t.Fatalf("write c2: %v", err)
	}

	tree, err := s.Tree(ctx, c2)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(tree) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(tree))
	}
	if !tree["a.txt"].Equal(meta.FileChange(meta.File{Content: []byte("2")})) {
		t.Errorf("expected a.txt to reflect the later commit's content")
	}
}

func TestTreeEmptyCommitID(t *testing.T) {
	s := New()
	tree, err := s.Tree(context.Background(), "")
	if err != nil {
		t.Fatalf("Tree with empty id: %v", err)
	}
	if len(tree) != 0 {
		t.Errorf("expected empty tree for empty id, got %d entries", len(tree))
	}
}

func TestRefLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.UpdateRef(ctx, "refs/heads/master", "abc"); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}
	got, err := s.ResolveRef(ctx, "refs/heads/master")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if got != "abc" {
		t.Errorf("expected abc, got %s", got)
	}

	refs, err := s.ListRefs(ctx, "refs/heads/")
	if err != nil {
		t.Fatalf("ListRefs: %v", err)
	}
	if len(refs) != 1 || refs[0] != "refs/heads/master" {
		t.Errorf("unexpected refs: %v", refs)
	}

	if err := s.DeleteRef(ctx, "refs/heads/master"); err != nil {
		t.Fatalf("DeleteRef: %v", err)
	}
	if _, err := s.ResolveRef(ctx, "refs/heads/master"); !errors.Is(err, objectstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting an already-absent ref is not an error.
	if err := s.DeleteRef(ctx, "refs/heads/nonexistent"); err != nil {
		t.Errorf("expected no error deleting an absent ref, got %v", err)
	}
}

func TestIsAncestor(t *testing.T) {
	s := New()
	ctx := context.Background()
	root, _ := s.WriteCommit(ctx, meta.Commit{})
	mid, _ := s.WriteCommit(ctx, meta.Commit{Parents: []string{root}})
	tip, _ := s.WriteCommit(ctx, meta.Commit{Parents: []string{mid}})

	ok, err := s.IsAncestor(ctx, root, tip)
	if err != nil || !ok {
		t.Errorf("expected root to be an ancestor of tip, got ok=%v err=%v", ok, err)
	}
	ok, err = s.IsAncestor(ctx, tip, root)
	if err != nil || ok {
		t.Errorf("expected tip not to be an ancestor of root, got ok=%v err=%v", ok, err)
	}
	ok, err = s.IsAncestor(ctx, tip, tip)
	if err != nil || !ok {
		t.Errorf("expected a commit to be its own ancestor, got ok=%v err=%v", ok, err)
	}
}

func TestThreeWayMergeFastForwardsAndConflicts(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := meta.FileChange(meta.File{Content: []byte("base")})
	ours := meta.FileChange(meta.File{Content: []byte("ours")})
	theirs := meta.FileChange(meta.File{Content: []byte("theirs")})

	// ours unchanged from ancestor: theirs should win.
	merged, ok, _, err := s.ThreeWayMerge(ctx, "f", base, base, theirs)
	if err != nil || !ok || !merged.Equal(theirs) {
		t.Errorf("expected theirs to win when ours unchanged, got %+v ok=%v err=%v", merged, ok, err)
	}

	// theirs unchanged from ancestor: ours should win.
	merged, ok, _, err = s.ThreeWayMerge(ctx, "f", base, ours, base)
	if err != nil || !ok || !merged.Equal(ours) {
		t.Errorf("expected ours to win when theirs unchanged, got %+v ok=%v err=%v", merged, ok, err)
	}

	// both diverge from ancestor and from each other: conflict.
	_, ok, conflict, err := s.ThreeWayMerge(ctx, "f", base, ours, theirs)
	if err != nil {
		t.Fatalf("ThreeWayMerge: %v", err)
	}
	if ok {
		t.Fatalf("expected a conflict when both sides diverge")
	}
	if !conflict.Ours.Equal(meta.FileSide(meta.File{Content: []byte("ours")})) {
		t.Errorf("expected conflict.Ours to carry the ours side")
	}
}

func TestIndexAndWorkdirAreIsolatedPerRoot(t *testing.T) {
	s := New()
	ctx := context.Background()
	idx := map[string]meta.Change{"x": meta.FileChange(meta.File{Content: []byte("x")})}
	if err := s.WriteIndex(ctx, "/repoA", idx); err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}
	gotA, err := s.ReadIndex(ctx, "/repoA")
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if len(gotA) != 1 {
		t.Fatalf("expected repoA index to have 1 entry")
	}
	gotB, err := s.ReadIndex(ctx, "/repoB")
	if err != nil {
		t.Fatalf("ReadIndex repoB: %v", err)
	}
	if len(gotB) != 0 {
		t.Errorf("expected repoB index to be untouched, got %d entries", len(gotB))
	}

	// Mutating the returned map must not affect the store's internal state.
	gotA["y"] = meta.FileChange(meta.File{Content: []byte("y")})
	gotA2, _ := s.ReadIndex(ctx, "/repoA")
	if len(gotA2) != 1 {
		t.Errorf("ReadIndex must return a defensive copy, got %d entries after external mutation", len(gotA2))
	}
}

func TestResetHardUpdatesIndexAndWorkdir(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, _ := s.WriteCommit(ctx, meta.Commit{
		Changes: map[string]meta.Change{"a": meta.FileChange(meta.File{Content: []byte("a")})},
	})
	if err := s.ResetHard(ctx, "/repo", id); err != nil {
		t.Fatalf("ResetHard: %v", err)
	}
	idx, _ := s.ReadIndex(ctx, "/repo")
	wd, _ := s.ReadWorkdir(ctx, "/repo")
	if len(idx) != 1 || len(wd) != 1 {
		t.Errorf("expected both index and workdir to reflect the reset commit, got idx=%d wd=%d", len(idx), len(wd))
	}
}

func TestResetSoftLeavesIndexAndWorkdirUntouched(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, _ := s.WriteCommit(ctx, meta.Commit{
		Changes: map[string]meta.Change{"a": meta.FileChange(meta.File{Content: []byte("a")})},
	})
	if err := s.ResetSoft(ctx, "/repo", id); err != nil {
		t.Fatalf("ResetSoft: %v", err)
	}
	idx, _ := s.ReadIndex(ctx, "/repo")
	wd, _ := s.ReadWorkdir(ctx, "/repo")
	if len(idx) != 0 || len(wd) != 0 {
		t.Errorf("expected ResetSoft to leave index and workdir untouched, got idx=%d wd=%d", len(idx), len(wd))
	}
}

func TestCurrentBranchDetachAndReattach(t *testing.T) {
	s := New()
	ctx := context.Background()
	name, has, err := s.CurrentBranch(ctx)
	if err != nil || !has || name != "master" {
		t.Fatalf("expected default branch master, got name=%q has=%v err=%v", name, has, err)
	}
	if err := s.SetCurrentBranch(ctx, "", true); err != nil {
		t.Fatalf("SetCurrentBranch detach: %v", err)
	}
	_, has, err = s.CurrentBranch(ctx)
	if err != nil || has {
		t.Fatalf("expected detached HEAD, got has=%v err=%v", has, err)
	}
	if err := s.SetCurrentBranch(ctx, "feature", false); err != nil {
		t.Fatalf("SetCurrentBranch reattach: %v", err)
	}
	name, has, err = s.CurrentBranch(ctx)
	if err != nil || !has || name != "feature" {
		t.Fatalf("expected reattached branch feature, got name=%q has=%v err=%v", name, has, err)
	}
}
