package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"planforge/internal/domain"
	"planforge/internal/graph"
	"planforge/internal/plan"
)

// Finding severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Finding is one plan lint result.
type Finding struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Path     string `json:"path"`
	Message  string `json:"message"`
}

// CheckReport is the result of a full plan lint.
type CheckReport struct {
	Findings []Finding `json:"findings"`
}

// Errors counts error-severity findings.
func (r CheckReport) Errors() int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Check lints the whole plan tree: document structure, identifier and
// directory agreement, dependency integrity and cycles.
func (e Engine) Check() (CheckReport, error) {
	t, err := e.Store.Scan()
	if err != nil {
		return CheckReport{}, err
	}
	var r CheckReport
	add := func(severity, code, path, format string, args ...any) {
		r.Findings = append(r.Findings, Finding{
			Severity: severity,
			Code:     code,
			Path:     e.Store.DisplayPath(path),
			Message:  fmt.Sprintf(format, args...),
		})
	}

	checkDoc := func(doc *plan.Doc, path, wantKind, wantPrefix, id, status, title, dir string) {
		if doc.FM.String("schema") != domain.Schema {
			add(SeverityError, "bad_schema", path, "schema is %q, want %q", doc.FM.String("schema"), domain.Schema)
		}
		if kind := doc.FM.String("kind"); kind != wantKind {
			add(SeverityError, "bad_kind", path, "kind is %q, want %q", kind, wantKind)
		}
		prefix, ok := plan.ParseID(id)
		if !ok || prefix != wantPrefix {
			add(SeverityError, "bad_id", path, "id %q does not match %s-YYYYMMDD-NNN", id, wantPrefix)
		}
		if dir != "" && !strings.HasPrefix(filepath.Base(dir), id+"-") {
			add(SeverityError, "id_dir_mismatch", path, "directory %s does not start with %s-", filepath.Base(dir), id)
		}
		if !domain.ValidStatus(status) {
			add(SeverityError, "bad_status", path, "unknown status %q", status)
		}
		if title == "" {
			add(SeverityWarning, "missing_title", path, "title is empty")
		}
	}

	projPath := filepath.Join(e.Store.Root, "plan.md")
	checkDoc(t.ProjectDoc, projPath, domain.KindProject, plan.ProjectPrefix, t.Project.ID, t.Project.Status, t.Project.Title, "")

	scannedWS := map[string]bool{}
	for _, ws := range t.Workstreams {
		wsPath := filepath.Join(ws.Dir, "plan.md")
		checkDoc(ws.Doc, wsPath, domain.KindWorkstream, plan.WorkstreamPrefix, ws.ID, ws.Status, ws.Title, ws.Dir)
		scannedWS[ws.ID] = true
		for _, dep := range ws.DependsOn {
			if _, ok := t.Workstream(dep); !ok {
				add(SeverityError, "dangling_workstream_dependency", wsPath, "depends_on references unknown workstream %s", dep)
			}
		}
		listed := map[string]bool{}
		for _, id := range ws.Jobs {
			listed[id] = true
		}
		for _, j := range t.WorkstreamJobs(ws.ID) {
			if !listed[j.ID] {
				add(SeverityWarning, "jobs_list_drift", wsPath, "job %s on disk but missing from jobs list; run sync", j.ID)
			}
		}
	}
	for _, id := range t.Project.Workstreams {
		if !scannedWS[id] {
			add(SeverityError, "dangling_workstream", projPath, "workstreams list references unknown workstream %s", id)
		}
	}

	for _, j := range t.Jobs {
		jobPath := filepath.Join(j.Dir, "plan.md")
		checkDoc(j.Doc, jobPath, domain.KindJob, plan.JobPrefix, j.ID, j.Status, j.Title, j.Dir)
		if j.Stakes != "" {
			if _, ok := domain.DefaultStakes[j.Stakes]; !ok {
				if e.Config == nil || e.Config.Stakes[j.Stakes] == (domain.StakesPolicy{}) {
					add(SeverityWarning, "unknown_stakes", jobPath, "stakes %q not in the stakes table", j.Stakes)
				}
			}
		}
		if j.MaxIterations < 1 {
			add(SeverityWarning, "bad_iteration_budget", jobPath, "max_iterations %d is below 1", j.MaxIterations)
		}
		if j.RewardTarget <= 0 {
			add(SeverityWarning, "missing_reward_target", jobPath, "reward_target is not set")
		}
		if want := j.ID + "-DONE"; j.CompletionPromise != want {
			add(SeverityWarning, "bad_completion_promise", jobPath, "completion_promise is %q, want %q", j.CompletionPromise, want)
		}
		for _, h := range []string{"# Objective", "# Acceptance Criteria", "# Progress Log"} {
			if plan.Section(j.Doc.Body, h) == nil {
				add(SeverityWarning, "missing_section", jobPath, "body has no %q section", strings.TrimPrefix(h, "# "))
			}
		}
	}

	g := graph.Build(jobsOf(t))
	for _, d := range g.Diagnostics {
		severity := SeverityError
		if d.Kind == graph.DiagDuplicate {
			severity = SeverityWarning
		}
		path := ""
		if entry, n := t.Job(d.JobID); n == 1 {
			path = filepath.Join(entry.Dir, "plan.md")
		}
		add(severity, d.Kind, path, "%s", d.Message)
	}
	if cyc := g.CycleNodes(); len(cyc) > 0 {
		add(SeverityError, "dependency_cycle", projPath, "dependency cycle involving %s", strings.Join(cyc, ", "))
	}
	return r, nil
}
