package meta

import "testing"

func TestChangeEqual(t *testing.T) {
	a := FileChange(File{Content: []byte("hi"), Executable: false})
	b := FileChange(File{Content: []byte("hi"), Executable: false})
	c := FileChange(File{Content: []byte("bye"), Executable: false})
	if !a.Equal(b) {
		t.Fatalf("expected equal file changes")
	}
	if a.Equal(c) {
		t.Fatalf("expected different file changes to differ")
	}
	if a.Equal(RemovedChange()) {
		t.Fatalf("different kinds must never be equal")
	}
}

func TestChangeEqualSubmodule(t *testing.T) {
	a := SubmoduleChange(Submodule{URL: "u", Sha: "s1"})
	b := SubmoduleChange(Submodule{URL: "u", Sha: "s1"})
	c := SubmoduleChange(Submodule{URL: "u", Sha: "s2"})
	if !a.Equal(b) {
		t.Fatalf("expected equal submodule changes")
	}
	if a.Equal(c) {
		t.Fatalf("expected different shas to differ")
	}
}

func TestConflictEqualRequiresAllSides(t *testing.T) {
	conflict1 := Conflict{
		Ancestor: FileSide(File{Content: []byte("a")}),
		Ours:     FileSide(File{Content: []byte("b")}),
		Theirs:   FileSide(File{Content: []byte("c")}),
	}
	conflict2 := conflict1
	if !conflict1.Equal(conflict2) {
		t.Fatalf("expected identical conflicts to be equal")
	}
	conflict2.Theirs = FileSide(File{Content: []byte("different")})
	if conflict1.Equal(conflict2) {
		t.Fatalf("expected conflicts with differing theirs to differ")
	}
}

func TestSideEqualNilVsFile(t *testing.T) {
	nilSide := NilSide()
	fileSide := FileSide(File{Content: []byte("x")})
	if nilSide.Equal(fileSide) {
		t.Fatalf("nil side must not equal a file side")
	}
	if !nilSide.Equal(NilSide()) {
		t.Fatalf("two nil sides must be equal")
	}
}

func TestAccumulateOverwritesAndRemoves(t *testing.T) {
	tree := map[string]Change{
		"a": FileChange(File{Content: []byte("1")}),
		"b": FileChange(File{Content: []byte("2")}),
	}
	delta := map[string]Change{
		"a": FileChange(File{Content: []byte("updated")}),
		"b": RemovedChange(),
		"c": FileChange(File{Content: []byte("new")}),
	}
	out := Accumulate(tree, delta)
	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}
	if !out["a"].Equal(FileChange(File{Content: []byte("updated")})) {
		t.Fatalf("expected a to be updated")
	}
	if _, ok := out["b"]; ok {
		t.Fatalf("expected b to be removed")
	}
	if !out["c"].Equal(FileChange(File{Content: []byte("new")})) {
		t.Fatalf("expected c to be added")
	}
	// tree must not be mutated
	if !tree["a"].Equal(FileChange(File{Content: []byte("1")})) {
		t.Fatalf("Accumulate must not mutate its tree argument")
	}
}

func TestAccumulateMergeDeltasRoundTrip(t *testing.T) {
	tree := map[string]Change{
		"a": FileChange(File{Content: []byte("1")}),
	}
	delta1 := map[string]Change{
		"a": FileChange(File{Content: []byte("2")}),
		"b": FileChange(File{Content: []byte("3")}),
	}
	delta2 := map[string]Change{
		"b": RemovedChange(),
		"c": FileChange(File{Content: []byte("4")}),
	}

	stepwise := Accumulate(Accumulate(tree, delta1), delta2)
	merged := Accumulate(tree, MergeDeltas(delta1, delta2))

	if len(stepwise) != len(merged) {
		t.Fatalf("expected same entry count, got %d vs %d", len(stepwise), len(merged))
	}
	for k, v := range stepwise {
		mv, ok := merged[k]
		if !ok {
			t.Fatalf("missing key %q in merged result", k)
		}
		if !v.Equal(mv) {
			t.Fatalf("value mismatch at key %q", k)
		}
	}
}

func TestIsDeepCleanRequiresNoStagedOrSubmoduleDrift(t *testing.T) {
	clean := RepoStatus{
		Submodules: map[string]SubmoduleStatus{
			"libA": {Index: SubmoduleIndex{Relation: RelationSame}},
		},
	}
	if !clean.IsDeepClean(true) {
		t.Fatalf("expected deep clean status")
	}

	dirtyStaged := clean
	dirtyStaged.Staged = map[string]FileStatus{"foo.txt": FileModified}
	if dirtyStaged.IsDeepClean(true) {
		t.Fatalf("staged changes must break deep clean")
	}

	dirtySub := RepoStatus{
		Submodules: map[string]SubmoduleStatus{
			"libA": {Index: SubmoduleIndex{Relation: RelationAhead}},
		},
	}
	if dirtySub.IsDeepClean(true) {
		t.Fatalf("ahead submodule must break deep clean")
	}
}

func TestIsDeepCleanRecursesIntoOpenWorkdir(t *testing.T) {
	nested := RepoStatus{
		Staged: map[string]FileStatus{"x.txt": FileAdded},
	}
	outer := RepoStatus{
		Submodules: map[string]SubmoduleStatus{
			"libA": {
				Index: SubmoduleIndex{Relation: RelationSame},
				Workdir: SubmoduleWorkdir{
					Present:  true,
					Relation: RelationSame,
					Status:   &nested,
				},
			},
		},
	}
	if outer.IsDeepClean(true) {
		t.Fatalf("expected dirty nested submodule to mark parent as not clean")
	}
}

func TestSequencerTypeString(t *testing.T) {
	cases := map[SequencerType]string{
		SequencerMerge:      "MERGE",
		SequencerRebase:     "REBASE",
		SequencerCherryPick: "CHERRY_PICK",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("SequencerType(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

func TestRelationString(t *testing.T) {
	if got := RelationAhead.String(); got != "AHEAD" {
		t.Errorf("RelationAhead.String() = %q, want AHEAD", got)
	}
	if got := Relation(99).String(); got != "UNKNOWN" {
		t.Errorf("out-of-range Relation.String() = %q, want UNKNOWN", got)
	}
}
