package plan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"planforge/internal/domain"
)

const testTS = "2026-03-01T12:00:00Z"

func scaffold(t *testing.T) Store {
	t.Helper()
	root := t.TempDir()
	s := Store{Root: root}
	if err := s.SaveDoc(filepath.Join(root, "plan.md"), NewProjectDoc("PJ-20260301-001", "Test Project", testTS)); err != nil {
		t.Fatal(err)
	}
	wsDir := filepath.Join(root, "workstreams", "WS-20260301-001-core")
	if err := os.MkdirAll(filepath.Join(wsDir, "jobs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveDoc(filepath.Join(wsDir, "plan.md"), NewWorkstreamDoc("WS-20260301-001", "Core", nil, testTS)); err != nil {
		t.Fatal(err)
	}
	addJobDoc(t, s, wsDir, "WI-20260301-001", "First job", nil)
	addJobDoc(t, s, wsDir, "WI-20260301-002", "Second job", []string{"WI-20260301-001"})
	return s
}

func addJobDoc(t *testing.T, s Store, wsDir, id, title string, deps []string) {
	t.Helper()
	dir := filepath.Join(wsDir, "jobs", id+"-"+Kebab(title))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	doc := NewJobDoc(id, title, deps, "normal", domain.DefaultStakes["normal"], 0, testTS)
	if err := s.SaveDoc(filepath.Join(dir, "plan.md"), doc); err != nil {
		t.Fatal(err)
	}
}

func TestResolveRoot(t *testing.T) {
	s := scaffold(t)
	// resolution must walk past the workstream's own plan.md to the project
	nested := filepath.Join(s.Root, "workstreams", "WS-20260301-001-core", "jobs")
	got, err := ResolveRoot(nested)
	if err != nil {
		t.Fatal(err)
	}
	// macOS tempdirs resolve through symlinks, compare suffix instead
	if !strings.HasSuffix(got, filepath.Base(s.Root)) {
		t.Fatalf("ResolveRoot = %s, want %s", got, s.Root)
	}
	if _, err := ResolveRoot(t.TempDir()); err == nil {
		t.Fatal("expected error outside a project")
	}
}

func TestScanTree(t *testing.T) {
	s := scaffold(t)
	tree, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if tree.Project.ID != "PJ-20260301-001" || tree.Project.Status != domain.StatusPlanned {
		t.Fatalf("project = %+v", tree.Project)
	}
	if len(tree.Workstreams) != 1 || len(tree.Jobs) != 2 {
		t.Fatalf("scan found %d workstreams, %d jobs", len(tree.Workstreams), len(tree.Jobs))
	}
	if tree.Jobs[0].WorkstreamID != "WS-20260301-001" {
		t.Fatalf("job workstream = %q", tree.Jobs[0].WorkstreamID)
	}
	entry, n := tree.Job("WI-20260301-002")
	if n != 1 || entry.DependsOn[0] != "WI-20260301-001" {
		t.Fatalf("job lookup = %+v (%d)", entry, n)
	}
	if _, n := tree.Job("WI-20260301-404"); n != 0 {
		t.Fatalf("missing job matches = %d", n)
	}
	if got := tree.WorkstreamJobs("WS-20260301-001"); len(got) != 2 {
		t.Fatalf("workstream jobs = %d", len(got))
	}
}

func TestScanAmbiguousJobID(t *testing.T) {
	s := scaffold(t)
	// same id planted under a second workstream
	ws2 := filepath.Join(s.Root, "workstreams", "WS-20260301-002-extra")
	if err := os.MkdirAll(filepath.Join(ws2, "jobs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveDoc(filepath.Join(ws2, "plan.md"), NewWorkstreamDoc("WS-20260301-002", "Extra", nil, testTS)); err != nil {
		t.Fatal(err)
	}
	addJobDoc(t, s, ws2, "WI-20260301-001", "Duplicate", nil)

	tree, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if _, n := tree.Job("WI-20260301-001"); n != 2 {
		t.Fatalf("duplicate id matches = %d", n)
	}
}

func TestFindJobDir(t *testing.T) {
	s := scaffold(t)
	dir, err := s.FindJobDir("WI-20260301-002")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(dir, "WI-20260301-002-second-job") {
		t.Fatalf("dir = %s", dir)
	}
	if _, err := s.FindJobDir("WI-20260301-404"); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

func TestAppendProgress(t *testing.T) {
	doc := NewJobDoc("WI-20260301-001", "Job", nil, "normal", domain.DefaultStakes["normal"], 0, testTS)
	AppendProgress(doc, testTS, "started iteration 1")
	if !strings.Contains(doc.Body, "- "+testTS+" started iteration 1") {
		t.Fatalf("progress entry missing:\n%s", doc.Body)
	}
}

func TestDisplayPath(t *testing.T) {
	s := scaffold(t)
	abs := filepath.Join(s.Root, "workstreams", "WS-20260301-001-core", "plan.md")
	if got := s.DisplayPath(abs); got != filepath.Join("workstreams", "WS-20260301-001-core", "plan.md") {
		t.Fatalf("DisplayPath = %s", got)
	}
}

func TestRenderTables(t *testing.T) {
	s := scaffold(t)
	tree, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	wsTable := strings.Join(RenderWorkstreamTable(tree.Workstreams), "\n")
	// the jobs column reads the frontmatter jobs list, which sync maintains
	if !strings.Contains(wsTable, "| WS-20260301-001 | planned | Core |  | 0 |") {
		t.Fatalf("workstream table:\n%s", wsTable)
	}
	jobTable := strings.Join(RenderJobTable(tree.Jobs), "\n")
	if !strings.Contains(jobTable, "| WI-20260301-002 | planned | Second job | WI-20260301-001 | normal |  |") {
		t.Fatalf("job table:\n%s", jobTable)
	}
	if empty := RenderJobTable(nil); !strings.Contains(strings.Join(empty, "\n"), "(none)") {
		t.Fatalf("empty table:\n%v", empty)
	}
}

func TestRenderTableEscapesPipes(t *testing.T) {
	entry := JobEntry{Job: domain.Job{ID: "WI-20260301-001", Status: "planned", Title: "a | b"}}
	got := strings.Join(RenderJobTable([]JobEntry{entry}), "\n")
	if !strings.Contains(got, `a \| b`) {
		t.Fatalf("pipe not escaped:\n%s", got)
	}
}
