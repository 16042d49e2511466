// Package checkout implements the supplemented checkout operation named in
// spec.md §6.2's command table but not detailed in §4: resolve a
// committish, move HEAD/branch, and recursively bring open submodule
// workdirs to their pinned shas. Grounded on the teacher's
// core.Repository.Checkout (resolve ref, reset workdir, run post-checkout)
// generalized to recurse through the Opener into sub-repos.
package checkout

import (
	"context"
	"fmt"

	"github.com/NahomAnteneh/metarepo/internal/errs"
	"github.com/NahomAnteneh/metarepo/internal/hooks"
	"github.com/NahomAnteneh/metarepo/internal/meta"
	"github.com/NahomAnteneh/metarepo/internal/opener"
	"github.com/NahomAnteneh/metarepo/internal/statusengine"
)

// Repo is the handle checkout operates on.
type Repo = statusengine.Repo

// Engine performs checkouts across a meta-repo and its open submodules.
type Engine struct {
	Opener *opener.Opener
	Status *statusengine.Engine
	Hooks  *hooks.Invoker
}

func New(op *opener.Opener, inv *hooks.Invoker) *Engine {
	return &Engine{Opener: op, Status: statusengine.New(op), Hooks: inv}
}

// Result reports the commit checked out to and whether HEAD is now detached.
type Result struct {
	HeadCommit string
	Detached   bool
}

// Checkout resolves committish (a branch name or a raw commit id) and moves
// repo's HEAD and workdir to it, then recurses into every submodule the
// new tree pins, opening it (via Opener) if not already open and checking
// it out to its pinned sha in turn.
func (e *Engine) Checkout(ctx context.Context, repo Repo, committish string) (Result, error) {
	target, detached, err := e.resolveCommittish(ctx, repo, committish)
	if err != nil {
		return Result{}, err
	}

	oldID, hasOld, err := headOrEmpty(ctx, repo)
	if err != nil {
		return Result{}, err
	}

	if err := repo.Store.ResetHard(ctx, repo.Root, target); err != nil {
		return Result{}, fmt.Errorf("checkout: reset workdir: %w", err)
	}
	if err := repo.Store.SetCurrentBranch(ctx, committish, detached); err != nil {
		return Result{}, err
	}
	if !detached {
		if err := repo.Store.UpdateRef(ctx, "refs/heads/"+committish, target); err != nil {
			return Result{}, err
		}
	}
	if err := repo.Store.UpdateRef(ctx, "HEAD", target); err != nil {
		return Result{}, err
	}

	if err := e.checkoutSubmodules(ctx, repo, target); err != nil {
		return Result{}, err
	}

	old := oldID
	if !hasOld {
		old = target
	}
	e.Hooks.Invoke(ctx, hooks.PostCheckout, old, target, "1")
	return Result{HeadCommit: target, Detached: detached}, nil
}

// checkoutSubmodules recurses into every already-open submodule (or opens
// one that the target tree newly pins) and resets it to the pinned sha;
// it does not run post-checkout for subs, mirroring §6.4's hook firing only
// at the operation's top level.
func (e *Engine) checkoutSubmodules(ctx context.Context, repo Repo, target string) error {
	tree, err := repo.Store.Tree(ctx, target)
	if err != nil {
		return fmt.Errorf("checkout: materialize target tree: %w", err)
	}
	for path, ch := range tree {
		if ch.Kind != meta.ChangeSubmodule || ch.Sub.Sha == "" {
			continue
		}
		handle, err := e.Opener.Open(ctx, path, subRoot(repo.Root, path))
		if err != nil {
			return fmt.Errorf("checkout: open sub %q: %w", path, err)
		}
		if err := handle.Store.ResetHard(ctx, handle.Root, ch.Sub.Sha); err != nil {
			return fmt.Errorf("checkout: reset sub %q: %w", path, err)
		}
		if err := handle.Store.UpdateRef(ctx, "HEAD", ch.Sub.Sha); err != nil {
			return fmt.Errorf("checkout: update sub %q HEAD: %w", path, err)
		}
	}
	return nil
}

// resolveCommittish treats committish as a branch name if refs/heads/<name>
// resolves, else as a raw commit id; the latter always detaches HEAD.
func (e *Engine) resolveCommittish(ctx context.Context, repo Repo, committish string) (id string, detached bool, err error) {
	if sha, err := repo.Store.ResolveRef(ctx, "refs/heads/"+committish); err == nil {
		return sha, false, nil
	}
	if _, err := repo.Store.ReadCommit(ctx, committish); err == nil {
		return committish, true, nil
	}
	return "", false, errs.NewUserError("invalid committish %q", committish)
}

func headOrEmpty(ctx context.Context, repo Repo) (string, bool, error) {
	id, err := repo.Store.ResolveRef(ctx, "HEAD")
	if err != nil {
		return "", false, nil
	}
	return id, true, nil
}

func subRoot(metaRoot, name string) string {
	return metaRoot + "/" + name
}
