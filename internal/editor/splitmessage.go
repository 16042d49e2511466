// Package editor implements EditorInvoker (shim over an external editor
// process) and the interactive split-commit message format of spec §6.3.
package editor

import (
	"sort"
	"strings"

	"github.com/NahomAnteneh/metarepo/internal/errs"
)

const metaTag = "*"

// SplitMessages holds the parsed/formatted per-repo messages of an
// interactive split-commit buffer: "" (absent) for the meta message means
// "commit only submodules"; an absent entry in Subs means "suppress that
// sub's commit".
type SplitMessages struct {
	MetaMessage string
	HasMeta     bool
	Subs        map[string]string
}

// Format renders the buffer presented to the user, in the exact structure
// spec §6.3 describes: the meta message (if any), a comment line
// explaining how to suppress it, a "---" separator, then one block per
// named sub-repo.
func Format(meta string, subs map[string]string) string {
	var b strings.Builder
	b.WriteString(meta)
	if !strings.HasSuffix(meta, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("# " + metaTag + " enter meta-repo message above this line; delete this line to commit only submodules\n")
	b.WriteString("# lines starting with '#' are comments and are ignored\n")
	b.WriteString("# ---\n")

	names := make([]string, 0, len(subs))
	for name := range subs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(subs[name])
		if !strings.HasSuffix(subs[name], "\n") {
			b.WriteString("\n")
		}
		b.WriteString("# " + name + " enter message for '" + name + "' above this line; delete this line to skip committing it\n")
	}
	return b.String()
}

// Parse implements the §6.3 parse rules: lines starting with '#' are
// comments unless they match "# <tag> ..." which ends the prior block and
// starts a new one. The block tagged "*" is the meta message; named blocks
// are sub messages. A missing tag suppresses that commit. A repeated tag is
// a UserError. A buffer in which no block has any text (including one in
// which no tags survive) is a UserError ("empty commit message aborts").
func Parse(buf string) (SplitMessages, error) {
	lines := strings.Split(buf, "\n")

	type block struct {
		tag   string
		lines []string
	}
	var blocks []block
	var pending []string // content lines accumulated since the last tag line
	seen := make(map[string]bool)

	isTagLine := func(line string) (string, bool) {
		if !strings.HasPrefix(line, "# ") {
			return "", false
		}
		rest := strings.TrimPrefix(line, "# ")
		fields := strings.Fields(rest)
		if len(fields) < 2 || fields[1] != "enter" {
			return "", false
		}
		return fields[0], true
	}

	for _, line := range lines {
		if tag, isTag := isTagLine(line); isTag {
			blocks = append(blocks, block{tag: tag, lines: pending})
			pending = nil
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		pending = append(pending, line)
	}
	// Trailing content with no tag line after it belongs to no block and is
	// discarded: without its tag marker there is no commit to attach it to.

	result := SplitMessages{Subs: make(map[string]string)}
	for _, blk := range blocks {
		if seen[blk.tag] {
			return SplitMessages{}, errs.NewUserError("duplicate block for %q in split commit message", blk.tag)
		}
		seen[blk.tag] = true

		text := strings.TrimRight(strings.Join(blk.lines, "\n"), "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		if blk.tag == metaTag {
			result.MetaMessage = text
			result.HasMeta = true
		} else {
			result.Subs[blk.tag] = text
		}
	}

	if !result.HasMeta && len(result.Subs) == 0 {
		return SplitMessages{}, errs.NewUserError("empty commit message, aborting commit")
	}
	return result, nil
}
