package editor

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffPreview renders a character-level preview of the change between two
// file bodies (inserted text prefixed with '+' and deleted text with '-' on
// each of its lines, unchanged text as is), used when presenting a split-commit buffer so the user can
// see what they're about to attach a message to. Grounded on the teacher's
// dependency on github.com/sergi/go-diff for its own diff command
// (cmd/diff.go).
func DiffPreview(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			b.WriteString("+" + strings.ReplaceAll(d.Text, "\n", "\n+"))
		case diffmatchpatch.DiffDelete:
			b.WriteString("-" + strings.ReplaceAll(d.Text, "\n", "\n-"))
		case diffmatchpatch.DiffEqual:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}
