package syntheticgc

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/NahomAnteneh/metarepo/internal/logging"
	"github.com/NahomAnteneh/metarepo/internal/meta"
	"github.com/NahomAnteneh/metarepo/internal/objectstore"
	"github.com/NahomAnteneh/metarepo/internal/objectstore/fakestore"
	"github.com/NahomAnteneh/metarepo/internal/opener"
)

func TestPopulateRootsWalksAncestryAndRecordsPins(t *testing.T) {
	metaStore := fakestore.New()
	ctx := context.Background()

	c1, _ := metaStore.WriteCommit(ctx, meta.Commit{Changes: map[string]meta.Change{
		"libA": meta.SubmoduleChange(meta.Submodule{URL: "u", Sha: "subSha1"}),
	}})
	c2, _ := metaStore.WriteCommit(ctx, meta.Commit{
		Parents: []string{c1},
		Changes: map[string]meta.Change{"libA": meta.SubmoduleChange(meta.Submodule{URL: "u", Sha: "subSha2"})},
	})
	metaStore.UpdateRef(ctx, "refs/heads/master", c2)

	g := New(opener.New(nil), "refs/commits/")
	roots, err := g.PopulateRoots(ctx, MetaRepo{Root: "/repo", Store: metaStore}, []string{"refs/heads/master"})
	if err != nil {
		t.Fatalf("PopulateRoots: %v", err)
	}
	libA := roots["libA"]
	if !libA["subSha1"] || !libA["subSha2"] {
		t.Errorf("expected both historical pins to be recorded, got %v", libA)
	}
}

func TestPopulateRootsMissingRefIsNotAnError(t *testing.T) {
	metaStore := fakestore.New()
	g := New(opener.New(nil), "refs/commits/")
	roots, err := g.PopulateRoots(context.Background(), MetaRepo{Root: "/repo", Store: metaStore}, []string{"refs/heads/does-not-exist"})
	if err != nil {
		t.Fatalf("PopulateRoots with a missing ref: %v", err)
	}
	if len(roots) != 0 {
		t.Errorf("expected no roots when the ref doesn't resolve, got %v", roots)
	}
}

func TestRemoveRedundantKeepsTipRemovesAncestors(t *testing.T) {
	subStore := fakestore.New()
	ctx := context.Background()
	old, _ := subStore.WriteCommit(ctx, meta.Commit{})
	tip, _ := subStore.WriteCommit(ctx, meta.Commit{Parents: []string{old}})
	subStore.UpdateRef(ctx, "refs/commits/"+old, old)
	subStore.UpdateRef(ctx, "refs/commits/"+tip, tip)

	g := New(opener.New(nil), "refs/commits/")
	g.Apply = true
	persistent := map[string]bool{tip: true}

	if err := g.RemoveRedundant(ctx, "libA", subStore, persistent, nil); err != nil {
		t.Fatalf("RemoveRedundant: %v", err)
	}

	if _, err := subStore.ResolveRef(ctx, "refs/commits/"+old); err == nil {
		t.Errorf("expected the ancestor's synthetic ref to be removed")
	}
	if _, err := subStore.ResolveRef(ctx, "refs/commits/"+tip); err != nil {
		t.Errorf("expected the tip's synthetic ref to survive, got %v", err)
	}
}

func TestRemoveRedundantSimulationModeDoesNotMutate(t *testing.T) {
	subStore := fakestore.New()
	ctx := context.Background()
	old, _ := subStore.WriteCommit(ctx, meta.Commit{})
	tip, _ := subStore.WriteCommit(ctx, meta.Commit{Parents: []string{old}})
	subStore.UpdateRef(ctx, "refs/commits/"+old, old)
	subStore.UpdateRef(ctx, "refs/commits/"+tip, tip)

	g := New(opener.New(nil), "refs/commits/") // Apply defaults to false
	persistent := map[string]bool{tip: true}

	if err := g.RemoveRedundant(ctx, "libA", subStore, persistent, nil); err != nil {
		t.Fatalf("RemoveRedundant: %v", err)
	}
	if _, err := subStore.ResolveRef(ctx, "refs/commits/"+old); err != nil {
		t.Errorf("expected simulation mode to leave the ref in place, got %v", err)
	}
}

func TestRemoveRedundantSkipsAncestorsWithNoSyntheticRef(t *testing.T) {
	subStore := fakestore.New()
	ctx := context.Background()
	// old has no synthetic ref at all (e.g. it was never pinned from meta
	// history); only the tip does. Simulation mode must not claim it would
	// remove a ref that was never created.
	old, _ := subStore.WriteCommit(ctx, meta.Commit{})
	tip, _ := subStore.WriteCommit(ctx, meta.Commit{Parents: []string{old}})
	subStore.UpdateRef(ctx, "refs/commits/"+tip, tip)

	var logBuf bytes.Buffer
	g := New(opener.New(nil), "refs/commits/")
	g.Log = logging.New(&logBuf, "test")
	persistent := map[string]bool{tip: true}

	if err := g.RemoveRedundant(ctx, "libA", subStore, persistent, nil); err != nil {
		t.Fatalf("RemoveRedundant: %v", err)
	}
	if strings.Contains(logBuf.String(), old) {
		t.Errorf("expected no simulated removal log for an ancestor with no synthetic ref, got %q", logBuf.String())
	}
}

func TestRemoveOldReclaimsOnlyOldNonPersistentRefs(t *testing.T) {
	subStore := fakestore.New()
	ctx := context.Background()
	persistentSha, _ := subStore.WriteCommit(ctx, meta.Commit{})
	oldSha, _ := subStore.WriteCommit(ctx, meta.Commit{Message: "old"})
	newSha, _ := subStore.WriteCommit(ctx, meta.Commit{Message: "new"})
	subStore.UpdateRef(ctx, "refs/commits/"+persistentSha, persistentSha)
	subStore.UpdateRef(ctx, "refs/commits/"+oldSha, oldSha)
	subStore.UpdateRef(ctx, "refs/commits/"+newSha, newSha)

	g := New(opener.New(nil), "refs/commits/")
	g.Apply = true
	persistent := map[string]bool{persistentSha: true}

	isOld := func(_ context.Context, _ objectstore.Store, sha string) (bool, error) {
		return sha == oldSha, nil
	}
	if err := g.RemoveOld(ctx, "libA", subStore, persistent, isOld); err != nil {
		t.Fatalf("RemoveOld: %v", err)
	}

	if _, err := subStore.ResolveRef(ctx, "refs/commits/"+oldSha); err == nil {
		t.Errorf("expected the old ref to be removed")
	}
	if _, err := subStore.ResolveRef(ctx, "refs/commits/"+newSha); err != nil {
		t.Errorf("expected the new ref to survive, got %v", err)
	}
	if _, err := subStore.ResolveRef(ctx, "refs/commits/"+persistentSha); err != nil {
		t.Errorf("expected the persistent ref to survive regardless of isOld, got %v", err)
	}
}

func TestAgeThresholdBeforeCutoffIsOld(t *testing.T) {
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	commitTime := func(sha string) (time.Time, bool) {
		if sha == "known" {
			return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), true
		}
		return time.Time{}, false
	}
	isOld := AgeThreshold(cutoff, commitTime)

	old, err := isOld(context.Background(), nil, "known")
	if err != nil || !old {
		t.Errorf("expected a commit before the cutoff to be old, got old=%v err=%v", old, err)
	}

	unknownOld, err := isOld(context.Background(), nil, "missing")
	if err != nil || unknownOld {
		t.Errorf("expected an unknown commit time to never be reclaimed, got old=%v err=%v", unknownOld, err)
	}
}
