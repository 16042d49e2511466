// Package diskstore is a filesystem-backed objectstore.Store: the concrete
// adapter cmd/ wires up at runtime, standing in for the real VCS object
// store that spec.md §1 names as an external collaborator. Grounded on the
// teacher's core.Repository disk layout (objects under a hidden directory,
// refs as plain files, HEAD as a symbolic-or-raw pointer) generalized from
// git's blob/tree model to this package's tagged-union Change values, since
// no library in the retrieval pack implements a content-addressed store for
// that bespoke value model (recorded in DESIGN.md).
package diskstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/NahomAnteneh/metarepo/internal/config"
	"github.com/NahomAnteneh/metarepo/internal/meta"
	"github.com/NahomAnteneh/metarepo/internal/objectstore"
)

const privateDir = ".metarepo"

// Store is a filesystem-backed repository rooted at Root. One Store
// instance serves exactly one repo (meta or sub); internal/opener
// constructs one per sub-repo name.
type Store struct {
	Root string
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, privateDir, "objects"), 0o755); err != nil {
		return nil, fmt.Errorf("diskstore: init %s: %w", root, err)
	}
	if err := os.MkdirAll(filepath.Join(root, privateDir, "refs", "heads"), 0o755); err != nil {
		return nil, fmt.Errorf("diskstore: init %s: %w", root, err)
	}
	return &Store{Root: root}, nil
}

var _ objectstore.Store = (*Store)(nil)

func (s *Store) baseDir() string { return filepath.Join(s.Root, privateDir) }

// --- serialization -------------------------------------------------------

type fileJSON struct {
	Content    []byte `json:"content"`
	Executable bool   `json:"executable"`
}

type subJSON struct {
	URL string `json:"url"`
	Sha string `json:"sha"`
}

type sideJSON struct {
	IsFile bool     `json:"is_file"`
	IsSub  bool     `json:"is_sub"`
	File   fileJSON `json:"file"`
	Sub    subJSON  `json:"sub"`
}

type conflictJSON struct {
	Ancestor sideJSON `json:"ancestor"`
	Ours     sideJSON `json:"ours"`
	Theirs   sideJSON `json:"theirs"`
}

type changeJSON struct {
	Kind     int          `json:"kind"`
	File     fileJSON     `json:"file,omitempty"`
	Sub      subJSON      `json:"sub,omitempty"`
	Conflict conflictJSON `json:"conflict,omitempty"`
}

type commitJSON struct {
	Parents []string              `json:"parents"`
	Changes map[string]changeJSON `json:"changes"`
	Message string                `json:"message"`
}

func toSideJSON(s meta.Side) sideJSON {
	return sideJSON{
		IsFile: s.IsFile,
		IsSub:  s.IsSub,
		File:   fileJSON{Content: s.File.Content, Executable: s.File.Executable},
		Sub:    subJSON{URL: s.Sub.URL, Sha: s.Sub.Sha},
	}
}

func fromSideJSON(s sideJSON) meta.Side {
	if s.IsFile {
		return meta.FileSide(meta.File{Content: s.File.Content, Executable: s.File.Executable})
	}
	if s.IsSub {
		return meta.SubSide(meta.Submodule{URL: s.Sub.URL, Sha: s.Sub.Sha})
	}
	return meta.NilSide()
}

func toChangeJSON(c meta.Change) changeJSON {
	return changeJSON{
		Kind: int(c.Kind),
		File: fileJSON{Content: c.File.Content, Executable: c.File.Executable},
		Sub:  subJSON{URL: c.Sub.URL, Sha: c.Sub.Sha},
		Conflict: conflictJSON{
			Ancestor: toSideJSON(c.Conflict.Ancestor),
			Ours:     toSideJSON(c.Conflict.Ours),
			Theirs:   toSideJSON(c.Conflict.Theirs),
		},
	}
}

func fromChangeJSON(c changeJSON) meta.Change {
	return meta.Change{
		Kind: meta.ChangeKind(c.Kind),
		File: meta.File{Content: c.File.Content, Executable: c.File.Executable},
		Sub:  meta.Submodule{URL: c.Sub.URL, Sha: c.Sub.Sha},
		Conflict: meta.Conflict{
			Ancestor: fromSideJSON(c.Conflict.Ancestor),
			Ours:     fromSideJSON(c.Conflict.Ours),
			Theirs:   fromSideJSON(c.Conflict.Theirs),
		},
	}
}

func toChangeMapJSON(m map[string]meta.Change) map[string]changeJSON {
	out := make(map[string]changeJSON, len(m))
	for k, v := range m {
		out[k] = toChangeJSON(v)
	}
	return out
}

func fromChangeMapJSON(m map[string]changeJSON) map[string]meta.Change {
	out := make(map[string]meta.Change, len(m))
	for k, v := range m {
		out[k] = fromChangeJSON(v)
	}
	return out
}

// --- commits ---------------------------------------------------------------

func (s *Store) objectPath(id string) string {
	return filepath.Join(s.baseDir(), "objects", id+".json")
}

func (s *Store) ReadCommit(_ context.Context, id string) (meta.Commit, error) {
	data, err := os.ReadFile(s.objectPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return meta.Commit{}, fmt.Errorf("diskstore: commit %s: %w", id, objectstore.ErrNotFound)
		}
		return meta.Commit{}, fmt.Errorf("diskstore: read commit %s: %w", id, err)
	}
	var cj commitJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return meta.Commit{}, fmt.Errorf("diskstore: parse commit %s: %w", id, err)
	}
	return meta.Commit{Id: id, Parents: cj.Parents, Changes: fromChangeMapJSON(cj.Changes), Message: cj.Message}, nil
}

func (s *Store) WriteCommit(_ context.Context, c meta.Commit) (string, error) {
	cj := commitJSON{Parents: c.Parents, Changes: toChangeMapJSON(c.Changes), Message: c.Message}
	data, err := json.Marshal(cj) // encoding/json sorts map keys: content-address is deterministic
	if err != nil {
		return "", fmt.Errorf("diskstore: marshal commit: %w", err)
	}
	sum := sha256.Sum256(data)
	id := hex.EncodeToString(sum[:])
	path := s.objectPath(id)
	if _, err := os.Stat(path); err == nil {
		return id, nil // already written; content-addressed, no need to rewrite
	}
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("diskstore: write commit %s: %w", id, err)
	}
	return id, nil
}

func (s *Store) Tree(ctx context.Context, id string) (map[string]meta.Change, error) {
	if id == "" {
		return map[string]meta.Change{}, nil
	}
	return s.treeRec(ctx, id, map[string]bool{})
}

func (s *Store) treeRec(ctx context.Context, id string, visiting map[string]bool) (map[string]meta.Change, error) {
	if visiting[id] {
		return nil, fmt.Errorf("diskstore: cycle detected materializing tree at %s", id)
	}
	visiting[id] = true
	c, err := s.ReadCommit(ctx, id)
	if err != nil {
		return nil, err
	}
	base := map[string]meta.Change{}
	if len(c.Parents) > 0 {
		base, err = s.treeRec(ctx, c.Parents[0], visiting)
		if err != nil {
			return nil, err
		}
	}
	return meta.Accumulate(base, c.Changes), nil
}

// --- refs --------------------------------------------------------------

func (s *Store) refPath(ref string) string {
	return filepath.Join(s.baseDir(), filepath.FromSlash(ref))
}

func (s *Store) headPath() string {
	return filepath.Join(s.baseDir(), "HEAD")
}

func (s *Store) ResolveRef(_ context.Context, ref string) (string, error) {
	return s.resolveRefRec(ref, 0)
}

func (s *Store) resolveRefRec(ref string, depth int) (string, error) {
	if depth > 10 {
		return "", fmt.Errorf("diskstore: ref resolution too deep at %s", ref)
	}
	path := s.headPath()
	if ref != "HEAD" {
		path = s.refPath(ref)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("diskstore: ref %s: %w", ref, objectstore.ErrNotFound)
		}
		return "", fmt.Errorf("diskstore: read ref %s: %w", ref, err)
	}
	content := strings.TrimSpace(string(data))
	if strings.HasPrefix(content, "ref: ") {
		return s.resolveRefRec(strings.TrimPrefix(content, "ref: "), depth+1)
	}
	if content == "" {
		return "", fmt.Errorf("diskstore: ref %s: %w", ref, objectstore.ErrNotFound)
	}
	return content, nil
}

func (s *Store) CurrentBranch(_ context.Context) (string, bool, error) {
	data, err := os.ReadFile(s.headPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("diskstore: read HEAD: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if strings.HasPrefix(content, "ref: refs/heads/") {
		return strings.TrimPrefix(content, "ref: refs/heads/"), true, nil
	}
	return "", false, nil
}

func (s *Store) SetCurrentBranch(ctx context.Context, name string, detached bool) error {
	if !detached {
		return writeFileAtomic(s.headPath(), []byte("ref: refs/heads/"+name+"\n"))
	}
	id, err := s.resolveRefRec("HEAD", 0)
	if err != nil && err != objectstore.ErrNotFound {
		// HEAD may already be unresolvable on a fresh repo; detach to empty.
		id = ""
	}
	return writeFileAtomic(s.headPath(), []byte(id+"\n"))
}

func (s *Store) UpdateRef(ctx context.Context, ref, id string) error {
	if ref == "HEAD" {
		branch, has, err := s.CurrentBranch(ctx)
		if err != nil {
			return err
		}
		if has {
			return writeFileAtomic(s.refPath("refs/heads/"+branch), []byte(id+"\n"))
		}
		return writeFileAtomic(s.headPath(), []byte(id+"\n"))
	}
	path := s.refPath(ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("diskstore: create ref dir: %w", err)
	}
	return writeFileAtomic(path, []byte(id+"\n"))
}

func (s *Store) DeleteRef(_ context.Context, ref string) error {
	err := os.Remove(s.refPath(ref))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("diskstore: delete ref %s: %w", ref, err)
	}
	return nil
}

func (s *Store) ListRefs(_ context.Context, prefix string) ([]string, error) {
	dir := s.refPath(prefix)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}
	var out []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(s.baseDir(), path)
		if relErr != nil {
			return relErr
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("diskstore: list refs under %s: %w", prefix, err)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) IsAncestor(ctx context.Context, candidate, of string) (bool, error) {
	if candidate == of {
		return true, nil
	}
	visited := map[string]bool{}
	var walk func(id string) (bool, error)
	walk = func(id string) (bool, error) {
		if id == candidate {
			return true, nil
		}
		if visited[id] {
			return false, nil
		}
		visited[id] = true
		c, err := s.ReadCommit(ctx, id)
		if err != nil {
			if err == objectstore.ErrNotFound {
				return false, nil
			}
			return false, err
		}
		for _, p := range c.Parents {
			ok, err := walk(p)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return walk(of)
}

// ThreeWayMerge mirrors fakestore's path-level merge: textual blob merge is
// out of scope (spec Non-goals), so only the equal/ancestor-biased
// shortcuts resolve automatically.
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
		Ancestor: sideFromChange(ancestor),
		Ours:     sideFromChange(ours),
		Theirs:   sideFromChange(theirs),
	}, nil
}

func sideFromChange(c meta.Change) meta.Side {
	switch c.Kind {
	case meta.ChangeFile:
		return meta.FileSide(c.File)
	case meta.ChangeSubmodule:
		return meta.SubSide(c.Sub)
	default:
		return meta.NilSide()
	}
}

// --- index / workdir -----------------------------------------------------

func (s *Store) indexPath() string { return filepath.Join(s.baseDir(), "INDEX") }

func (s *Store) ReadIndex(_ context.Context, _ string) (map[string]meta.Change, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]meta.Change{}, nil
		}
		return nil, fmt.Errorf("diskstore: read index: %w", err)
	}
	var cj map[string]changeJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return nil, fmt.Errorf("diskstore: parse index: %w", err)
	}
	return fromChangeMapJSON(cj), nil
}

func (s *Store) WriteIndex(_ context.Context, _ string, index map[string]meta.Change) error {
	data, err := json.MarshalIndent(toChangeMapJSON(index), "", "  ")
	if err != nil {
		return fmt.Errorf("diskstore: marshal index: %w", err)
	}
	return writeFileAtomic(s.indexPath(), data)
}

// ReadWorkdir scans the real filesystem under Root, skipping the private
// directory and any nested repo root (a directory itself containing
// .metarepo is a submodule boundary and is not walked).
func (s *Store) ReadWorkdir(_ context.Context, repoRoot string) (map[string]meta.Change, error) {
	out := map[string]meta.Change{}
	err := filepath.WalkDir(repoRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == repoRoot {
			return nil
		}
		rel, relErr := filepath.Rel(repoRoot, path)
		if relErr != nil {
			return relErr
		}
		if d.IsDir() {
			if d.Name() == privateDir {
				return filepath.SkipDir
			}
			if isSubmoduleRoot(path) {
				return filepath.SkipDir
			}
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = meta.FileChange(meta.File{
			Content:    content,
			Executable: info.Mode()&0o111 != 0,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("diskstore: scan workdir: %w", err)
	}
	return out, nil
}

func isSubmoduleRoot(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, privateDir))
	return err == nil && info.IsDir()
}

func (s *Store) ResetHard(ctx context.Context, repoRoot, id string) error {
	tree, err := s.Tree(ctx, id)
	if err != nil {
		return fmt.Errorf("diskstore: reset: %w", err)
	}
	if err := s.WriteIndex(ctx, repoRoot, tree); err != nil {
		return err
	}
	return writeWorkdir(repoRoot, tree)
}

func (s *Store) ResetSoft(_ context.Context, _, _ string) error {
	return nil
}

func (s *Store) ResetMixed(ctx context.Context, repoRoot, id string) error {
	tree, err := s.Tree(ctx, id)
	if err != nil {
		return fmt.Errorf("diskstore: reset: %w", err)
	}
	return s.WriteIndex(ctx, repoRoot, tree)
}

// writeWorkdir brings the real filesystem under repoRoot to match tree's
// non-submodule entries: writes files present in tree and removes every
// other file the workdir scan finds, tracked or not. Submodule subtrees are left untouched; the
// caller (internal/checkout) resets them separately through their own
// opened Store.
func writeWorkdir(repoRoot string, tree map[string]meta.Change) error {
	existing, err := (&Store{Root: repoRoot}).ReadWorkdir(context.Background(), repoRoot)
	if err != nil {
		return err
	}
	for path, ch := range tree {
		if ch.Kind != meta.ChangeFile {
			continue
		}
		abs := filepath.Join(repoRoot, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return err
		}
		mode := os.FileMode(0o644)
		if ch.File.Executable {
			mode = 0o755
		}
		if err := os.WriteFile(abs, ch.File.Content, mode); err != nil {
			return err
		}
	}
	for path := range existing {
		if ch, ok := tree[path]; ok && ch.Kind == meta.ChangeFile {
			continue
		}
		os.Remove(filepath.Join(repoRoot, filepath.FromSlash(path)))
	}
	return nil
}

func (s *Store) DefaultSignature(_ context.Context) (meta.CommitMetaData, error) {
	cfg, err := config.Load(filepath.Join(s.baseDir(), "config.toml"))
	if err != nil {
		return meta.CommitMetaData{}, err
	}
	return meta.CommitMetaData{
		AuthorName:  cfg.Signature.Name,
		AuthorEmail: cfg.Signature.Email,
		When:        time.Now().Format(time.RFC3339),
	}, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
