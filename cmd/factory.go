// Package cmd is the CLI surface of §6.2: a thin cobra layer that resolves
// the meta-repo at the current directory and dispatches into the engine
// packages. Argument parsing and dispatch are themselves named as an
// external collaborator by spec.md §1; this package is the ambient
// skeleton every teacher-style repo carries around that boundary.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/NahomAnteneh/metarepo/internal/checkout"
	"github.com/NahomAnteneh/metarepo/internal/commitengine"
	"github.com/NahomAnteneh/metarepo/internal/config"
	"github.com/NahomAnteneh/metarepo/internal/hooks"
	"github.com/NahomAnteneh/metarepo/internal/logging"
	"github.com/NahomAnteneh/metarepo/internal/objectstore"
	"github.com/NahomAnteneh/metarepo/internal/objectstore/diskstore"
	"github.com/NahomAnteneh/metarepo/internal/opener"
	"github.com/NahomAnteneh/metarepo/internal/sequencer"
	"github.com/NahomAnteneh/metarepo/internal/statusengine"
	"github.com/NahomAnteneh/metarepo/internal/syntheticgc"
)

const privateDir = ".metarepo"

// subRoot is the workdir path a submodule named name lives at under a
// meta-repo rooted at metaRoot.
func subRoot(metaRoot, name string) string {
	return filepath.Join(metaRoot, name)
}

// environment bundles the engines a command needs, wired against the
// meta-repo found at the current working directory.
type environment struct {
	root       string
	opener     *opener.Opener
	hooks      *hooks.Invoker
	status     *statusengine.Engine
	commit     *commitengine.Engine
	sequencer  *sequencer.Engine
	checkout   *checkout.Engine
	gc         *syntheticgc.GC
	cfg        config.Config
	metaRepo   statusengine.Repo
}

// findMetaRoot walks up from the working directory looking for a
// .metarepo directory, the way the teacher's utils.GetVecRoot walks up
// looking for .vec.
func findMetaRoot() (string, error) {
	cur, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	for {
		if info, err := os.Stat(filepath.Join(cur, privateDir)); err == nil && info.IsDir() {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("not a metarepo (or any of the parent directories)")
		}
		cur = parent
	}
}

func newEnvironment() (*environment, error) {
	root, err := findMetaRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(filepath.Join(root, privateDir, "config.toml"))
	if err != nil {
		return nil, err
	}

	factory := func(_ context.Context, name, subRoot string) (objectstore.Store, error) {
		return diskstore.New(subRoot)
	}
	op := opener.New(factory)
	log := logging.New(os.Stderr, "metarepo")
	inv := hooks.New(root, log)

	metaStore, err := diskstore.New(root)
	if err != nil {
		return nil, err
	}
	metaRepo := statusengine.Repo{Root: root, Store: metaStore}

	env := &environment{
		root:      root,
		opener:    op,
		hooks:     inv,
		status:    statusengine.New(op),
		commit:    commitengine.New(op),
		sequencer: sequencer.New(op, inv),
		checkout:  checkout.New(op, inv),
		gc:        syntheticgc.New(op, cfg.Sequencer.SynthRefPrefix),
		cfg:       cfg,
		metaRepo:  metaRepo,
	}
	env.gc.Log = log
	return env, nil
}
