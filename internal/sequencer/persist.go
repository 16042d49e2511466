package sequencer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/NahomAnteneh/metarepo/internal/meta"
)

// stateFileName is the fixed filename SequencerState is stored under in
// the meta-repo's private directory, per spec §6.1.
const stateFileName = "SEQUENCER_STATE"

const privateDir = ".metarepo"

type persistedState struct {
	Type         string   `json:"type"`
	OriginalHead string   `json:"original_head"`
	OriginalRef  string   `json:"original_ref,omitempty"`
	HasOrigRef   bool     `json:"has_orig_ref"`
	TargetSha    string   `json:"target_sha"`
	TargetRef    string   `json:"target_ref,omitempty"`
	HasTargetRef bool     `json:"has_target_ref"`
	Commits      []string `json:"commits"`
	Current      int      `json:"current"`
	Message      string   `json:"message,omitempty"`
	HasMessage   bool     `json:"has_message"`
}

func statePath(repoRoot string) string {
	return filepath.Join(repoRoot, privateDir, stateFileName)
}

// WriteState persists state atomically: write to a temp file in the same
// directory, then rename over the target, so a crash never leaves a
// partially-written state file (spec §6.1, and the crash-safety property
// of §8).
func WriteState(repoRoot string, state meta.SequencerState) error {
	dir := filepath.Dir(statePath(repoRoot))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("sequencer: create state dir: %w", err)
	}

	ps := persistedState{
		Type:         state.Type.String(),
		OriginalHead: state.OriginalHead.Sha,
		OriginalRef:  state.OriginalHead.Ref,
		HasOrigRef:   state.OriginalHead.HasRef,
		TargetSha:    state.Target.Sha,
		TargetRef:    state.Target.Ref,
		HasTargetRef: state.Target.HasRef,
		Commits:      state.Commits,
		Current:      state.Current,
		Message:      state.Message,
		HasMessage:   state.HasMessage,
	}
	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return fmt.Errorf("sequencer: marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+stateFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("sequencer: create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sequencer: write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sequencer: close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, statePath(repoRoot)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sequencer: rename temp state file: %w", err)
	}
	return nil
}

// ReadState reads the persisted state. A missing file means "no sequencer
// in progress": (zero value, false, nil error).
func ReadState(repoRoot string) (meta.SequencerState, bool, error) {
	data, err := os.ReadFile(statePath(repoRoot))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return meta.SequencerState{}, false, nil
		}
		return meta.SequencerState{}, false, fmt.Errorf("sequencer: read state: %w", err)
	}
	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return meta.SequencerState{}, false, fmt.Errorf("sequencer: parse state: %w", err)
	}

	var typ meta.SequencerType
	switch ps.Type {
	case meta.SequencerMerge.String():
		typ = meta.SequencerMerge
	case meta.SequencerRebase.String():
		typ = meta.SequencerRebase
	case meta.SequencerCherryPick.String():
		typ = meta.SequencerCherryPick
	default:
		return meta.SequencerState{}, false, fmt.Errorf("sequencer: unknown persisted type %q", ps.Type)
	}

	state := meta.SequencerState{
		Type:         typ,
		OriginalHead: meta.CommitAndRef{Sha: ps.OriginalHead, Ref: ps.OriginalRef, HasRef: ps.HasOrigRef},
		Target:       meta.CommitAndRef{Sha: ps.TargetSha, Ref: ps.TargetRef, HasRef: ps.HasTargetRef},
		Commits:      ps.Commits,
		Current:      ps.Current,
		Message:      ps.Message,
		HasMessage:   ps.HasMessage,
	}
	return state, true, nil
}

// ClearState removes the persisted state file. Removing an absent file is
// not an error.
func ClearState(repoRoot string) error {
	err := os.Remove(statePath(repoRoot))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("sequencer: clear state: %w", err)
	}
	return nil
}
