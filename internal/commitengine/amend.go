package commitengine

import (
	"context"
	"fmt"

	"github.com/NahomAnteneh/metarepo/internal/errs"
	"github.com/NahomAnteneh/metarepo/internal/meta"
)

// AmendDecision records, per submodule, whether amend() will amend its last
// commit in place, give it a fresh commit, or leave it untouched.
type AmendDecision struct {
	Amendable bool
	OldSha    string
	HasOld    bool
}

// AmendStatus is the result of GetAmendStatus: per-sub decisions plus the
// meta commit's own CommitMetaData, used to check signature/message
// equivalence before amend is allowed.
type AmendStatus struct {
	Decisions map[string]AmendDecision
	MetaMeta  meta.CommitMetaData
}

// GetAmendStatus implements the §4.2 amend eligibility rule: a sub is
// amendable iff it existed in the prior meta-commit, its sha changed in
// HEAD, its index relation is SAME, and its workdir relation (if open) is
// SAME.
func (e *Engine) GetAmendStatus(ctx context.Context, repo Repo, status meta.RepoStatus) (AmendStatus, error) {
	result := AmendStatus{Decisions: map[string]AmendDecision{}}

	headID, err := repo.Store.ResolveRef(ctx, "HEAD")
	if err != nil {
		return result, errs.NewUserError("cannot amend: no commits yet")
	}
	headCommit, err := repo.Store.ReadCommit(ctx, headID)
	if err != nil {
		return result, fmt.Errorf("commitengine: read HEAD commit: %w", err)
	}
	result.MetaMeta = headCommit.Meta()

	var parentTree map[string]meta.Change
	if len(headCommit.Parents) > 0 {
		parentTree, err = repo.Store.Tree(ctx, headCommit.Parents[0])
		if err != nil {
			return result, fmt.Errorf("commitengine: read parent-of-HEAD tree: %w", err)
		}
	} else {
		parentTree = map[string]meta.Change{}
	}
	headTree, err := repo.Store.Tree(ctx, headID)
	if err != nil {
		return result, fmt.Errorf("commitengine: read HEAD tree: %w", err)
	}

	for name, sub := range status.Submodules {
		priorEntry, existedPrior := parentTree[name]
		currentEntry, existedHead := headTree[name]
		shaChanged := existedPrior && existedHead &&
			priorEntry.Kind == meta.ChangeSubmodule && currentEntry.Kind == meta.ChangeSubmodule &&
			priorEntry.Sub.Sha != currentEntry.Sub.Sha

		workdirSame := !sub.Workdir.Present || sub.Workdir.Relation == meta.RelationSame
		amendable := existedPrior && shaChanged && sub.Index.Relation == meta.RelationSame && workdirSame

		decision := AmendDecision{Amendable: amendable}
		if existedPrior && priorEntry.Kind == meta.ChangeSubmodule {
			decision.OldSha, decision.HasOld = priorEntry.Sub.Sha, true
		}
		result.Decisions[name] = decision
	}

	return result, nil
}

// AmendMetaRepo implements §4.2's amendMetaRepo: rewrite HEAD, amending
// eligible sub-commits in place and giving the rest fresh commits, subject
// to the signature/message equivalence check. The check is skipped when
// interactive is set; approveSub, if non-nil, then decides for each
// amendable sub whether it is amended.
func (e *Engine) AmendMetaRepo(ctx context.Context, repo Repo, status meta.RepoStatus, all bool, message string, interactive bool, approveSub func(name string) bool) (Result, error) {
	result := Result{SubmoduleCommits: map[string]string{}}

	amendStatus, err := e.GetAmendStatus(ctx, repo, status)
	if err != nil {
		return result, err
	}

	if !interactive {
		if err := e.checkAmendEquivalence(ctx, repo, amendStatus); err != nil {
			return result, err
		}
	}

	var names []string
	for name := range status.Submodules {
		names = append(names, name)
	}

	for _, name := range names {
		dec := amendStatus.Decisions[name]
		sub := status.Submodules[name]
		if !sub.Workdir.Present {
			continue
		}
		if dec.Amendable {
			if interactive && approveSub != nil && !approveSub(name) {
				continue
			}
			id, stripped, err := e.amendSubmodule(ctx, repo, name, dec, sub, all, message)
			if err != nil {
				return result, err
			}
			if !stripped {
				result.SubmoduleCommits[name] = id
			}
			continue
		}
		if sub.Workdir.Status != nil && len(sub.Workdir.Status.Staged) > 0 {
			handle, err := e.Opener.Open(ctx, name, subRoot(repo.Root, name))
			if err != nil {
				return result, err
			}
			id, err := commitOne(ctx, handle.Store, handle.Root, all, message)
			if err != nil {
				return result, fmt.Errorf("commitengine: sub %q commit during amend: %w", name, err)
			}
			result.SubmoduleCommits[name] = id
		}
	}

	index, err := repo.Store.ReadIndex(ctx, repo.Root)
	if err != nil {
		return result, fmt.Errorf("commitengine: read meta index: %w", err)
	}
	for name, id := range result.SubmoduleCommits {
		existing := index[name]
		index[name] = meta.SubmoduleChange(meta.Submodule{URL: existing.Sub.URL, Sha: id})
	}
	for name, dec := range amendStatus.Decisions {
		if dec.Amendable && dec.HasOld {
			if _, stillCommitted := result.SubmoduleCommits[name]; !stillCommitted {
				existing := index[name]
				index[name] = meta.SubmoduleChange(meta.Submodule{URL: existing.Sub.URL, Sha: dec.OldSha})
			}
		}
	}
	if err := repo.Store.WriteIndex(ctx, repo.Root, index); err != nil {
		return result, fmt.Errorf("commitengine: write meta index: %w", err)
	}

	headID, err := repo.Store.ResolveRef(ctx, "HEAD")
	if err != nil {
		return result, fmt.Errorf("commitengine: resolve HEAD for amend: %w", err)
	}
	headCommit, err := repo.Store.ReadCommit(ctx, headID)
	if err != nil {
		return result, fmt.Errorf("commitengine: read HEAD commit for amend: %w", err)
	}
	var parentTree map[string]meta.Change
	if len(headCommit.Parents) > 0 {
		parentTree, err = repo.Store.Tree(ctx, headCommit.Parents[0])
		if err != nil {
			return result, err
		}
	} else {
		parentTree = map[string]meta.Change{}
	}
	if all {
		workdir, err := repo.Store.ReadWorkdir(ctx, repo.Root)
		if err != nil {
			return result, err
		}
		index = meta.MergeDeltas(index, trackedOnly(index, workdir))
	}
	changes := deltaFromTrees(parentTree, index)
	sig, err := repo.Store.DefaultSignature(ctx)
	if err != nil {
		return result, fmt.Errorf("commitengine: default signature: %w", err)
	}
	newCommit := meta.Commit{Parents: headCommit.Parents, Changes: changes, Message: message, AuthorName: sig.AuthorName, AuthorEmail: sig.AuthorEmail}
	newID, err := repo.Store.WriteCommit(ctx, newCommit)
	if err != nil {
		return result, fmt.Errorf("commitengine: write amended meta commit: %w", err)
	}
	if err := repo.Store.UpdateRef(ctx, "HEAD", newID); err != nil {
		return result, err
	}
	if branch, hasBranch, err := repo.Store.CurrentBranch(ctx); err != nil {
		return result, err
	} else if hasBranch {
		if err := repo.Store.UpdateRef(ctx, "refs/heads/"+branch, newID); err != nil {
			return result, err
		}
	}

	result.MetaCommit = newID
	result.HasMetaCommit = true
	return result, nil
}

// checkAmendEquivalence rejects a non-interactive amend unless every
// amendable sub's CommitMetaData (signature name/email plus message) is
// equivalent to the meta commit being amended.
func (e *Engine) checkAmendEquivalence(ctx context.Context, repo Repo, amendStatus AmendStatus) error {
	for name, dec := range amendStatus.Decisions {
		if !dec.Amendable || !dec.HasOld {
			continue
		}
		handle, err := e.Opener.Open(ctx, name, subRoot(repo.Root, name))
		if err != nil {
			return err
		}
		headID, err := handle.Store.ResolveRef(ctx, "HEAD")
		if err != nil {
			continue
		}
		headCommit, err := handle.Store.ReadCommit(ctx, headID)
		if err != nil {
			return fmt.Errorf("commitengine: read sub %q HEAD for amend check: %w", name, err)
		}
		if !headCommit.Meta().Equal(amendStatus.MetaMeta) {
			return errs.NewUserError("refusing non-interactive amend: submodule %q's last commit signature/message differs from the meta-repo's; pass interactive mode to confirm per-submodule", name)
		}
	}
	return nil
}

// amendSubmodule amends a sub's HEAD commit, combining its staged changes
// with its workdir delta when all is set. If after that combination there
// is nothing left staged relative to the parent, the sub commit is
// stripped entirely (the meta index reverts to the parent-of-HEAD sha)
// rather than producing a content-free amend.
func (e *Engine) amendSubmodule(ctx context.Context, repo Repo, name string, dec AmendDecision, sub meta.SubmoduleStatus, all bool, message string) (id string, stripped bool, err error) {
	handle, err := e.Opener.Open(ctx, name, subRoot(repo.Root, name))
	if err != nil {
		return "", false, err
	}

	var parentTree map[string]meta.Change
	if dec.HasOld {
		parentTree, err = handle.Store.Tree(ctx, dec.OldSha)
		if err != nil {
			return "", false, err
		}
	} else {
		parentTree = map[string]meta.Change{}
	}

	index, err := handle.Store.ReadIndex(ctx, handle.Root)
	if err != nil {
		return "", false, err
	}
	if all {
		workdir, err := handle.Store.ReadWorkdir(ctx, handle.Root)
		if err != nil {
			return "", false, err
		}
		index = meta.MergeDeltas(index, trackedOnly(index, workdir))
	}

	changes := deltaFromTrees(parentTree, index)
	if len(changes) == 0 {
		if err := handle.Store.ResetMixed(ctx, handle.Root, dec.OldSha); err != nil {
			return "", false, err
		}
		return "", true, nil
	}

	var parents []string
	if dec.HasOld {
		parents = []string{dec.OldSha}
	}
	sig, err := handle.Store.DefaultSignature(ctx)
	if err != nil {
		return "", false, fmt.Errorf("commitengine: default signature: %w", err)
	}
	newID, err := handle.Store.WriteCommit(ctx, meta.Commit{Parents: parents, Changes: changes, Message: message, AuthorName: sig.AuthorName, AuthorEmail: sig.AuthorEmail})
	if err != nil {
		return "", false, err
	}
	if err := handle.Store.UpdateRef(ctx, "HEAD", newID); err != nil {
		return "", false, err
	}
	if branch, hasBranch, err := handle.Store.CurrentBranch(ctx); err == nil && hasBranch {
		_ = handle.Store.UpdateRef(ctx, "refs/heads/"+branch, newID)
	}
	return newID, false, nil
}
