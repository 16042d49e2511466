// Package hooks implements HookInvoker (spec §6.4): external executables
// under the meta-repo's hooks/ directory, invoked with fixed argument
// vectors. Hook failures are logged but non-fatal (spec §7); no post-*
// hook runs on error paths.
package hooks

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Name enumerates the hooks the sequencer/commit/checkout paths invoke.
type Name string

const (
	PostMerge    Name = "post-merge"
	PostCheckout Name = "post-checkout"
	PostRewrite  Name = "post-rewrite"
)

// Invoker runs hooks found under <repoRoot>/hooks/<name>, restoring the
// process working directory afterward regardless of outcome. The working
// directory is the only process-wide state the hook invoker touches
// (spec §9 "Global process state"); it captures and restores it on every
// exit path.
type Invoker struct {
	RepoRoot string
	Log      zerolog.Logger
}

func New(repoRoot string, log zerolog.Logger) *Invoker {
	return &Invoker{RepoRoot: repoRoot, Log: log}
}

// Invoke runs the hook named name with args if an executable exists at
// hooks/<name>. A missing hook file is not an error. The hook's own exit
// code is logged but never surfaces as an error to the caller.
func (iv *Invoker) Invoke(ctx context.Context, name Name, args ...string) {
	path := filepath.Join(iv.RepoRoot, "hooks", string(name))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		iv.Log.Warn().Err(err).Str("hook", string(name)).Msg("could not capture working directory before hook")
		return
	}
	defer func() {
		if chErr := os.Chdir(cwd); chErr != nil {
			iv.Log.Error().Err(chErr).Msg("failed to restore working directory after hook")
		}
	}()

	if err := os.Chdir(iv.RepoRoot); err != nil {
		iv.Log.Warn().Err(err).Str("hook", string(name)).Msg("could not chdir into repo root for hook")
		return
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = iv.RepoRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		iv.Log.Warn().Err(err).Str("hook", string(name)).Strs("args", args).Msg("hook exited non-zero")
	}
}
