package plan

import (
	"strings"
	"testing"
)

func TestReplaceMarkerBlock(t *testing.T) {
	body := strings.Join([]string{
		"# Workstreams",
		"",
		WorkstreamTableStart,
		"| old | table |",
		WorkstreamTableEnd,
		"",
		"trailing text",
	}, "\n")
	got := ReplaceMarkerBlock(body, WorkstreamTableStart, WorkstreamTableEnd, []string{"| new | table |"})
	if strings.Contains(got, "old") {
		t.Fatal("old content not replaced")
	}
	if !strings.Contains(got, "| new | table |") {
		t.Fatal("new content missing")
	}
	if !strings.Contains(got, "trailing text") {
		t.Fatal("text outside the markers was touched")
	}
}

func TestReplaceMarkerBlockMissingMarkers(t *testing.T) {
	body := "# Notes\n\nhand-written\n"
	if got := ReplaceMarkerBlock(body, JobTableStart, JobTableEnd, []string{"x"}); got != body {
		t.Fatalf("body without markers must stay unchanged, got:\n%s", got)
	}
}

func TestAppendToSectionExisting(t *testing.T) {
	body := "# Progress Log\n\n- 2026-01-01 first\n\n# Decisions\n\nnone\n"
	got := AppendToSection(body, "# Progress Log", "- 2026-01-02 second")
	idx1 := strings.Index(got, "first")
	idx2 := strings.Index(got, "second")
	idxDec := strings.Index(got, "# Decisions")
	if idx2 < idx1 || idx2 > idxDec {
		t.Fatalf("entry landed in the wrong place:\n%s", got)
	}
}

func TestAppendToSectionCreates(t *testing.T) {
	got := AppendToSection("# Objective\n\nstuff\n", "# Progress Log", "- 2026-01-01 note")
	if !strings.Contains(got, "# Progress Log\n\n- 2026-01-01 note\n") {
		t.Fatalf("section not created:\n%s", got)
	}
}

func TestSection(t *testing.T) {
	body := "# A\n\none\ntwo\n\n# B\n\nthree\n"
	lines := Section(body, "# A")
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "one") || !strings.Contains(joined, "two") || strings.Contains(joined, "three") {
		t.Fatalf("section lines = %v", lines)
	}
	if Section(body, "# Missing") != nil {
		t.Fatal("missing section must return nil")
	}
}
