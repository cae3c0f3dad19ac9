package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"planforge/internal/domain"
)

// Store reads and writes the plan documents of one project tree.
type Store struct {
	Root string
}

// ResolveRoot walks up from start looking for the project plan.md. Plain
// plan.md presence is not enough: workstream and job directories carry one
// too, so the document's kind has to say project.
func ResolveRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, "plan.md")
		if data, err := os.ReadFile(candidate); err == nil {
			if doc, err := Parse(candidate, data); err == nil && doc.FM.String("kind") == domain.KindProject {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no project plan.md found in %s or any parent", start)
		}
		dir = parent
	}
}

// LoadDoc reads and parses a plan document.
func (s Store) LoadDoc(path string) (*Doc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, data)
}

// SaveDoc renders and writes a plan document.
func (s Store) SaveDoc(path string, doc *Doc) error {
	data, err := doc.Render()
	if err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// WorkstreamEntry pairs a parsed workstream with its directory and document.
type WorkstreamEntry struct {
	domain.Workstream
	Dir string
	Doc *Doc
}

// JobEntry pairs a parsed job with its directory and document.
type JobEntry struct {
	domain.Job
	Dir string
	Doc *Doc
}

// Tree is one full scan of a project.
type Tree struct {
	Project     domain.Project
	ProjectDoc  *Doc
	Workstreams []WorkstreamEntry
	Jobs        []JobEntry

	jobsByID map[string][]*JobEntry
	wsByID   map[string]*WorkstreamEntry
}

// Scan loads the project document plus every workstream and job under it.
func (s Store) Scan() (*Tree, error) {
	projPath := filepath.Join(s.Root, "plan.md")
	projDoc, err := s.LoadDoc(projPath)
	if err != nil {
		return nil, err
	}
	t := &Tree{
		Project:    projectFromDoc(projDoc),
		ProjectDoc: projDoc,
		jobsByID:   map[string][]*JobEntry{},
		wsByID:     map[string]*WorkstreamEntry{},
	}
	wsDirs, err := s.WorkstreamDirs()
	if err != nil {
		return nil, err
	}
	for _, wsDir := range wsDirs {
		wsDoc, err := s.LoadDoc(filepath.Join(wsDir, "plan.md"))
		if err != nil {
			return nil, err
		}
		t.Workstreams = append(t.Workstreams, WorkstreamEntry{
			Workstream: workstreamFromDoc(wsDoc),
			Dir:        wsDir,
			Doc:        wsDoc,
		})
		jobDirs, err := sortedDirs(filepath.Join(wsDir, "jobs"))
		if err != nil {
			return nil, err
		}
		wsID := t.Workstreams[len(t.Workstreams)-1].ID
		for _, jobDir := range jobDirs {
			jobDoc, err := s.LoadDoc(filepath.Join(jobDir, "plan.md"))
			if err != nil {
				return nil, err
			}
			j := jobFromDoc(jobDoc)
			j.WorkstreamID = wsID
			t.Jobs = append(t.Jobs, JobEntry{Job: j, Dir: jobDir, Doc: jobDoc})
		}
	}
	for i := range t.Workstreams {
		t.wsByID[t.Workstreams[i].ID] = &t.Workstreams[i]
	}
	for i := range t.Jobs {
		t.jobsByID[t.Jobs[i].ID] = append(t.jobsByID[t.Jobs[i].ID], &t.Jobs[i])
	}
	return t, nil
}

// WorkstreamDirs lists workstream directories sorted by name.
func (s Store) WorkstreamDirs() ([]string, error) {
	return sortedDirs(filepath.Join(s.Root, "workstreams"))
}

func sortedDirs(parent string) ([]string, error) {
	entries, err := os.ReadDir(parent)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, filepath.Join(parent, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Job resolves a work-item id to exactly one entry. The second return is the
// number of matches so callers can tell missing from ambiguous.
func (t *Tree) Job(id string) (*JobEntry, int) {
	matches := t.jobsByID[id]
	if len(matches) != 1 {
		return nil, len(matches)
	}
	return matches[0], 1
}

// Workstream resolves a workstream id.
func (t *Tree) Workstream(id string) (*WorkstreamEntry, bool) {
	ws, ok := t.wsByID[id]
	return ws, ok
}

// WorkstreamJobs returns the jobs scanned under a workstream.
func (t *Tree) WorkstreamJobs(wsID string) []JobEntry {
	var out []JobEntry
	for _, j := range t.Jobs {
		if j.WorkstreamID == wsID {
			out = append(out, j)
		}
	}
	return out
}

// FindJobDir locates the unique directory for a work-item id without a full
// scan.
func (s Store) FindJobDir(id string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Root, "workstreams", "WS-*", "jobs", id+"-*"))
	if err != nil {
		return "", err
	}
	if len(matches) != 1 {
		return "", fmt.Errorf("expected exactly 1 job dir for %s, got %d", id, len(matches))
	}
	return matches[0], nil
}

// AppendProgress adds a timestamped bullet to the document's progress log.
func AppendProgress(doc *Doc, ts, note string) {
	doc.Body = AppendToSection(doc.Body, "# Progress Log", fmt.Sprintf("- %s %s", ts, note))
}

func projectFromDoc(doc *Doc) domain.Project {
	fm := doc.FM
	return domain.Project{
		ID:          fm.String("id"),
		Title:       fm.String("title"),
		Status:      fm.String("status"),
		Workstreams: fm.StringList("workstreams"),
		StartedAt:   fm.String("started_at"),
		UpdatedAt:   fm.String("updated_at"),
		CompletedAt: fm.String("completed_at"),
	}
}

func workstreamFromDoc(doc *Doc) domain.Workstream {
	fm := doc.FM
	return domain.Workstream{
		ID:          fm.String("id"),
		Title:       fm.String("title"),
		Status:      fm.String("status"),
		DependsOn:   fm.StringList("depends_on"),
		Jobs:        fm.StringList("jobs"),
		StartedAt:   fm.String("started_at"),
		UpdatedAt:   fm.String("updated_at"),
		CompletedAt: fm.String("completed_at"),
	}
}

func jobFromDoc(doc *Doc) domain.Job {
	fm := doc.FM
	j := domain.Job{
		ID:                   fm.String("id"),
		Title:                fm.String("title"),
		Status:               fm.String("status"),
		DependsOn:            fm.StringList("depends_on"),
		AgreementStatus:      fm.String("agreement_status"),
		Stakes:               fm.String("stakes"),
		Outputs:              fm.StringList("outputs"),
		VerificationEvidence: fm.StringList("verification_evidence"),
		RewardLastEvalAt:     fm.String("reward_last_eval_at"),
		TruthLastStatus:      fm.String("truth_last_status"),
		TruthLastFailures:    fm.StringList("truth_last_failures"),
		TruthLastCheckedAt:   fm.String("truth_last_checked_at"),
		TruthInputSnapshot:   fm.String("truth_input_snapshot"),
		CompletionPromise:    fm.String("completion_promise"),
		StartedAt:            fm.String("started_at"),
		UpdatedAt:            fm.String("updated_at"),
		CompletedAt:          fm.String("completed_at"),
	}
	j.Iteration, _ = fm.Int("iteration")
	j.MaxIterations, _ = fm.Int("max_iterations")
	if v, ok := fm.Float("estimate_hours"); ok && v > 0 {
		j.EstimateHours = v
		j.HasEstimate = true
	}
	if v, ok := fm.Float("reward_target"); ok {
		j.RewardTarget = v
	}
	if v, ok := fm.Float("reward_last_score"); ok {
		j.RewardLastScore = &v
	}
	return j
}

// EnsureDirs creates the standard per-entity subdirectories.
func EnsureDirs(base string, names ...string) error {
	for _, n := range names {
		if err := os.MkdirAll(filepath.Join(base, n), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// DisplayPath makes path relative to the project root when possible.
func (s Store) DisplayPath(path string) string {
	if rel, err := filepath.Rel(s.Root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
