package editor

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/NahomAnteneh/metarepo/internal/errs"
)

// Invoker launches an external editor on a temp file and returns its final
// contents, the way the teacher shells out to external tooling (git-meta's
// EDITOR shim) rather than implementing an editor itself.
type Invoker struct {
	// EditorCommand overrides $EDITOR/$VISUAL, mainly for tests.
	EditorCommand string
}

// Edit writes initial to a temp file, opens it in the configured editor,
// and returns the file's contents after the editor exits. An editor exit
// with unchanged (or empty) contents is treated the same as any other
// buffer; callers that need "aborted if unchanged" semantics compare
// against initial themselves.
func (iv *Invoker) Edit(initial string) (string, error) {
	f, err := os.CreateTemp("", "metarepo-commit-*.txt")
	if err != nil {
		return "", fmt.Errorf("editor: create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(initial); err != nil {
		f.Close()
		return "", fmt.Errorf("editor: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("editor: close temp file: %w", err)
	}

	editor := iv.EditorCommand
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		return "", errs.NewUserError("no editor configured: set VISUAL or EDITOR")
	}

	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("editor: %s exited with error: %w", editor, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("editor: read back temp file: %w", err)
	}
	return string(data), nil
}
