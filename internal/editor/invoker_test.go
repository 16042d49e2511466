package editor

import (
	"os"
	"runtime"
	"testing"
)

func TestEditNoEditorConfiguredIsUserError(t *testing.T) {
	t.Setenv("VISUAL", "")
	t.Setenv("EDITOR", "")
	inv := &Invoker{}
	_, err := inv.Edit("seed")
	if err == nil {
		t.Fatalf("expected an error when neither VISUAL nor EDITOR nor EditorCommand is set")
	}
}

func TestEditRunsConfiguredEditorAndReturnsContents(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell script as a fake editor")
	}
	dir := t.TempDir()
	script := dir + "/fake-editor.sh"
	// Appends a line to whatever file it's pointed at, simulating a user edit.
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho 'edited' >> \"$1\"\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	inv := &Invoker{EditorCommand: script}
	got, err := inv.Edit("seed content\n")
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got != "seed content\nedited\n" {
		t.Errorf("unexpected buffer contents: %q", got)
	}
}
