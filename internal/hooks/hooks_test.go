package hooks

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/NahomAnteneh/metarepo/internal/logging"
)

func writeExecutable(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestInvokeMissingHookIsNotAnError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hook scripts assume a POSIX shell")
	}
	root := t.TempDir()
	inv := New(root, logging.Nop())
	// No hooks/ directory at all; Invoke must return without error or panic.
	inv.Invoke(context.Background(), PostMerge, "arg1")
}

func TestInvokeRunsExistingHook(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hook scripts assume a POSIX shell")
	}
	root := t.TempDir()
	hooksDir := filepath.Join(root, "hooks")
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	marker := filepath.Join(root, "ran")
	script := "#!/bin/sh\ntouch \"" + marker + "\"\n"
	writeExecutable(t, filepath.Join(hooksDir, string(PostCheckout)), script)

	inv := New(root, logging.Nop())
	inv.Invoke(context.Background(), PostCheckout)

	if _, err := os.Stat(marker); err != nil {
		t.Errorf("expected hook to run and create marker file, got %v", err)
	}
}

func TestInvokeRestoresWorkingDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hook scripts assume a POSIX shell")
	}
	root := t.TempDir()
	hooksDir := filepath.Join(root, "hooks")
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	writeExecutable(t, filepath.Join(hooksDir, string(PostRewrite)), "#!/bin/sh\nexit 0\n")

	before, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}

	inv := New(root, logging.Nop())
	inv.Invoke(context.Background(), PostRewrite)

	after, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd after Invoke: %v", err)
	}
	if before != after {
		t.Errorf("expected working directory to be restored, was %q now %q", before, after)
	}
}

func TestInvokeFailingHookDoesNotPanic(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hook scripts assume a POSIX shell")
	}
	root := t.TempDir()
	hooksDir := filepath.Join(root, "hooks")
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	writeExecutable(t, filepath.Join(hooksDir, string(PostMerge)), "#!/bin/sh\nexit 1\n")

	inv := New(root, logging.Nop())
	// Must not panic or return an error to the caller; failures are logged only.
	inv.Invoke(context.Background(), PostMerge)
}
