package commitengine

import (
	"context"
	"fmt"
	"sort"

	"github.com/NahomAnteneh/metarepo/internal/errs"
	"github.com/NahomAnteneh/metarepo/internal/meta"
	"github.com/NahomAnteneh/metarepo/internal/objectstore"
	"github.com/NahomAnteneh/metarepo/internal/parallel"
)

// AreSubmodulesIncompatibleWithPathCommits reports the §4.2 commitPaths
// precondition failure: true when any submodule has a URL change, was
// added or removed, or carries staged commits atop commits already made
// (its index sha differs from its commit sha AND its workdir is ahead of
// that index sha, i.e. the sub has its own new commits still to reconcile).
func AreSubmodulesIncompatibleWithPathCommits(status meta.RepoStatus) bool {
	for _, sub := range status.Submodules {
		if sub.Commit.Present && sub.Index.Present && sub.Commit.URL != sub.Index.URL {
			return true
		}
		if sub.Commit.Present != sub.Index.Present {
			return true // added or removed
		}
		if sub.Index.Sha != sub.Commit.Sha && sub.Workdir.Present && sub.Workdir.Relation == meta.RelationAhead {
			return true
		}
	}
	return false
}

// CommitPaths implements §4.2's path-based commit: a single-parent commit
// built directly from the currently staged paths, at both sub and meta
// level, followed by a soft reset that detaches the working index from the
// just-committed paths. closed, when true, skips any submodule not already
// open in e.Opener's cache.
func (e *Engine) CommitPaths(ctx context.Context, repo Repo, status meta.RepoStatus, message string, closed bool) (Result, error) {
	result := Result{SubmoduleCommits: map[string]string{}}

	if AreSubmodulesIncompatibleWithPathCommits(status) {
		return result, errs.NewUserError("Cannot use path-based commit on submodules with staged commits or configuration changes.")
	}

	var openWithStaged []string
	for name, sub := range status.Submodules {
		if !sub.Workdir.Present || sub.Workdir.Status == nil || len(sub.Workdir.Status.Staged) == 0 {
			continue
		}
		if closed && !e.Opener.IsOpen(name) {
			continue
		}
		openWithStaged = append(openWithStaged, name)
	}
	sort.Strings(openWithStaged)

	type subCommit struct {
		name string
		id   string
	}
	commits, err := parallel.DoInParallel(ctx, parallel.DefaultLimit, openWithStaged, func(c context.Context, name string) (subCommit, error) {
		handle, err := e.Opener.Open(c, name, subRoot(repo.Root, name))
		if err != nil {
			return subCommit{}, err
		}
		id, err := commitFromIndex(c, handle.Store, handle.Root, message)
		if err != nil {
			return subCommit{}, fmt.Errorf("commitengine: path commit sub %q: %w", name, err)
		}
		if err := handle.Store.ResetSoft(c, handle.Root, id); err != nil {
			return subCommit{}, err
		}
		return subCommit{name: name, id: id}, nil
	})
	if err != nil {
		return result, err
	}
	for _, sc := range commits {
		result.SubmoduleCommits[sc.name] = sc.id
	}

	index, err := repo.Store.ReadIndex(ctx, repo.Root)
	if err != nil {
		return result, fmt.Errorf("commitengine: read meta index: %w", err)
	}
	for name, id := range result.SubmoduleCommits {
		existing := index[name]
		index[name] = meta.SubmoduleChange(meta.Submodule{URL: existing.Sub.URL, Sha: id})
	}
	if err := repo.Store.WriteIndex(ctx, repo.Root, index); err != nil {
		return result, fmt.Errorf("commitengine: write meta index: %w", err)
	}

	id, err := commitFromIndex(ctx, repo.Store, repo.Root, message)
	if err != nil {
		return result, fmt.Errorf("commitengine: meta path commit: %w", err)
	}
	if err := repo.Store.ResetSoft(ctx, repo.Root, id); err != nil {
		return result, fmt.Errorf("commitengine: soft reset after path commit: %w", err)
	}
	result.MetaCommit = id
	result.HasMetaCommit = true
	return result, nil
}

// commitFromIndex commits exactly the current index content against HEAD
// as sole parent, without consulting the working tree.
func commitFromIndex(ctx context.Context, store objectstore.Store, root, message string) (string, error) {
	index, err := store.ReadIndex(ctx, root)
	if err != nil {
		return "", err
	}
	headID, err := store.ResolveRef(ctx, "HEAD")
	hasHead := err == nil
	var parents []string
	headTree := map[string]meta.Change{}
	if hasHead {
		parents = []string{headID}
		headTree, err = store.Tree(ctx, headID)
		if err != nil {
			return "", err
		}
	}
	changes := deltaFromTrees(headTree, index)
	if len(changes) == 0 {
		return "", errs.NewUserError("nothing to commit, working tree clean")
	}
	sig, err := store.DefaultSignature(ctx)
	if err != nil {
		return "", fmt.Errorf("commitengine: default signature: %w", err)
	}
	id, err := store.WriteCommit(ctx, meta.Commit{Parents: parents, Changes: changes, Message: message, AuthorName: sig.AuthorName, AuthorEmail: sig.AuthorEmail})
	if err != nil {
		return "", err
	}
	if err := store.UpdateRef(ctx, "HEAD", id); err != nil {
		return "", err
	}
	branch, hasBranch, err := store.CurrentBranch(ctx)
	if err != nil {
		return "", err
	}
	if hasBranch {
		if err := store.UpdateRef(ctx, "refs/heads/"+branch, id); err != nil {
			return "", err
		}
	}
	return id, nil
}
