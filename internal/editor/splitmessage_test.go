package editor

import (
	"strings"
	"testing"
)

func TestFormatIncludesMetaAndSubBlocks(t *testing.T) {
	buf := Format("meta msg", map[string]string{"libA": "libA msg", "libB": ""})
	if !strings.Contains(buf, "meta msg") {
		t.Errorf("expected buffer to contain the meta message")
	}
	if !strings.Contains(buf, "libA msg") {
		t.Errorf("expected buffer to contain libA's message")
	}
	if !strings.Contains(buf, "# * enter meta-repo message") {
		t.Errorf("expected the meta tag line, got:\n%s", buf)
	}
	if !strings.Contains(buf, "# libA enter message for 'libA'") {
		t.Errorf("expected a libA tag line, got:\n%s", buf)
	}
	if !strings.Contains(buf, "# libB enter message for 'libB'") {
		t.Errorf("expected a libB tag line even with an empty starting message, got:\n%s", buf)
	}
}

func TestParseRoundTripsMetaAndSubMessages(t *testing.T) {
	buf := Format("top level change", map[string]string{"libA": "sub change"})
	got, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !got.HasMeta || got.MetaMessage != "top level change" {
		t.Errorf("expected meta message to round-trip, got %+v", got)
	}
	if got.Subs["libA"] != "sub change" {
		t.Errorf("expected libA message to round-trip, got %q", got.Subs["libA"])
	}
}

func TestParseDeletedTagLineSuppressesThatCommit(t *testing.T) {
	buf := "top level change\n" +
		"# libA enter message for 'libA' above this line; delete this line to skip committing it\n"
	// No "# * enter..." tag line present: the meta block is suppressed.
	got, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.HasMeta {
		t.Errorf("expected meta message to be suppressed when its tag line is deleted")
	}
	if got.Subs["libA"] != "top level change" {
		t.Errorf("expected the untagged content to attach to the next tag line, got %+v", got.Subs)
	}
}

func TestParseEmptyBufferIsUserError(t *testing.T) {
	_, err := Parse("# nothing here\n# just comments\n")
	if err == nil {
		t.Fatalf("expected an error for a buffer with no surviving blocks")
	}
}

func TestParseDuplicateTagIsUserError(t *testing.T) {
	buf := "first\n" +
		"# * enter meta-repo message above this line; delete this line to commit only submodules\n" +
		"second\n" +
		"# * enter meta-repo message above this line; delete this line to commit only submodules\n"
	_, err := Parse(buf)
	if err == nil {
		t.Fatalf("expected an error for a duplicate meta tag")
	}
}

func TestParseIgnoresCommentLines(t *testing.T) {
	buf := "message text\n" +
		"# this is just a comment, not a tag line\n" +
		"# * enter meta-repo message above this line; delete this line to commit only submodules\n"
	got, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.MetaMessage != "message text" {
		t.Errorf("expected comment lines to be ignored, got message %q", got.MetaMessage)
	}
}

func TestParseBlankSubBlockIsOmitted(t *testing.T) {
	buf := "\n" +
		"# libA enter message for 'libA' above this line; delete this line to skip committing it\n" +
		"meta text\n" +
		"# * enter meta-repo message above this line; delete this line to commit only submodules\n"
	got, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := got.Subs["libA"]; ok {
		t.Errorf("expected a blank sub block to be omitted from Subs, got %+v", got.Subs)
	}
}
