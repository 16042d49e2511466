package sequencer

import (
	"testing"

	"github.com/NahomAnteneh/metarepo/internal/meta"
)

func TestWriteReadClearStateRoundTrip(t *testing.T) {
	root := t.TempDir()
	state := meta.SequencerState{
		Type:         meta.SequencerRebase,
		OriginalHead: meta.CommitAndRef{Sha: "headSha", Ref: "master", HasRef: true},
		Target:       meta.CommitAndRef{Sha: "targetSha"},
		Commits:      []string{"c1", "c2", "c3"},
		Current:      1,
		Message:      "wip",
		HasMessage:   true,
	}
	if err := WriteState(root, state); err != nil {
		t.Fatalf("WriteState: %v", err)
	}

	got, ok, err := ReadState(root)
	if err != nil || !ok {
		t.Fatalf("ReadState: ok=%v err=%v", ok, err)
	}
	if got.Type != state.Type {
		t.Errorf("Type: got %v want %v", got.Type, state.Type)
	}
	if got.OriginalHead != state.OriginalHead {
		t.Errorf("OriginalHead: got %+v want %+v", got.OriginalHead, state.OriginalHead)
	}
	if got.Target.Sha != state.Target.Sha {
		t.Errorf("Target.Sha: got %q want %q", got.Target.Sha, state.Target.Sha)
	}
	if len(got.Commits) != 3 || got.Commits[1] != "c2" {
		t.Errorf("Commits: got %v", got.Commits)
	}
	if got.Current != 1 {
		t.Errorf("Current: got %d want 1", got.Current)
	}
	if got.Message != "wip" || !got.HasMessage {
		t.Errorf("Message/HasMessage: got %q/%v", got.Message, got.HasMessage)
	}

	if err := ClearState(root); err != nil {
		t.Fatalf("ClearState: %v", err)
	}
	_, ok, err = ReadState(root)
	if err != nil || ok {
		t.Fatalf("expected no state after Clear, ok=%v err=%v", ok, err)
	}
}

func TestReadStateMissingFileIsNotAnError(t *testing.T) {
	root := t.TempDir()
	state, ok, err := ReadState(root)
	if err != nil {
		t.Fatalf("ReadState on a fresh dir: %v", err)
	}
	if ok {
		t.Errorf("expected ok=false with no state file, got state=%+v", state)
	}
}

func TestClearStateMissingFileIsNotAnError(t *testing.T) {
	root := t.TempDir()
	if err := ClearState(root); err != nil {
		t.Errorf("expected clearing an absent state file to be a no-op, got %v", err)
	}
}

func TestWriteStateOverwritesPreviousState(t *testing.T) {
	root := t.TempDir()
	first := meta.SequencerState{Type: meta.SequencerMerge, Commits: []string{"a"}}
	second := meta.SequencerState{Type: meta.SequencerCherryPick, Commits: []string{"b", "c"}}

	if err := WriteState(root, first); err != nil {
		t.Fatalf("WriteState(first): %v", err)
	}
	if err := WriteState(root, second); err != nil {
		t.Fatalf("WriteState(second): %v", err)
	}
	got, ok, err := ReadState(root)
	if err != nil || !ok {
		t.Fatalf("ReadState: ok=%v err=%v", ok, err)
	}
	if got.Type != meta.SequencerCherryPick || len(got.Commits) != 2 {
		t.Errorf("expected the second write to win, got %+v", got)
	}
}
