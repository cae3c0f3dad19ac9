package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"planforge/internal/config"
	"planforge/internal/domain"
	"planforge/internal/events"
	"planforge/internal/plan"
)

// ErrNotFound is returned when an id resolves to no plan document.
var ErrNotFound = errors.New("not found")

type Engine struct {
	DB     *sql.DB
	Store  plan.Store
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, store plan.Store, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Store:  store,
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) ts() string {
	return e.now().UTC().Format(time.RFC3339)
}

// appendEvent runs one event append in its own transaction.
func (e Engine) appendEvent(ctx context.Context, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	w := e.Events
	if w.Now == nil {
		w.Now = e.Now
	}
	if err := w.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// InitProject scaffolds a new project tree at the store root.
func (e Engine) InitProject(ctx context.Context, title, slug, actorID string) (domain.Project, error) {
	if title == "" {
		return domain.Project{}, errors.New("title is required")
	}
	root := e.Store.Root
	planPath := filepath.Join(root, "plan.md")
	if _, err := os.Stat(planPath); err == nil {
		return domain.Project{}, fmt.Errorf("%s already contains plan.md", root)
	}
	ts := e.ts()
	id := plan.NextID(plan.ProjectPrefix, plan.DateStamp(e.now()), nil)

	if err := plan.EnsureDirs(root, "workstreams", "notes"); err != nil {
		return domain.Project{}, err
	}
	doc := plan.NewProjectDoc(id, title, ts)
	if err := e.Store.SaveDoc(planPath, doc); err != nil {
		return domain.Project{}, err
	}
	cfgPath := config.Path(root)
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault()), 0o644); err != nil {
			return domain.Project{}, err
		}
	}
	if err := e.appendEvent(ctx, "project.created", domain.KindProject, id, actorID, events.EventPayload{"title": title}); err != nil {
		return domain.Project{}, err
	}
	return domain.Project{ID: id, Title: title, Status: domain.StatusPlanned, UpdatedAt: ts}, nil
}

// AddWorkstream scaffolds a workstream and wires it into the project plan.
func (e Engine) AddWorkstream(ctx context.Context, title, slug string, dependsOn []string, actorID string) (domain.Workstream, error) {
	if title == "" {
		return domain.Workstream{}, errors.New("title is required")
	}
	t, err := e.Store.Scan()
	if err != nil {
		return domain.Workstream{}, err
	}
	for _, dep := range dependsOn {
		if _, ok := t.Workstream(dep); !ok {
			return domain.Workstream{}, fmt.Errorf("depends_on workstream %s: %w", dep, ErrNotFound)
		}
	}
	ts := e.ts()
	var existing []string
	for _, ws := range t.Workstreams {
		existing = append(existing, ws.ID)
	}
	id := plan.NextID(plan.WorkstreamPrefix, plan.DateStamp(e.now()), existing)
	if slug == "" {
		slug = plan.Kebab(title)
	} else {
		slug = plan.Kebab(slug)
	}
	wsDir := filepath.Join(e.Store.Root, "workstreams", id+"-"+slug)
	if err := plan.EnsureDirs(wsDir, "jobs", "notes", "outputs", "logs", "artifacts"); err != nil {
		return domain.Workstream{}, err
	}
	doc := plan.NewWorkstreamDoc(id, title, dependsOn, ts)
	if err := e.Store.SaveDoc(filepath.Join(wsDir, "plan.md"), doc); err != nil {
		return domain.Workstream{}, err
	}

	// rewire project doc and index from a fresh scan
	t, err = e.Store.Scan()
	if err != nil {
		return domain.Workstream{}, err
	}
	var wsIDs []string
	for _, ws := range t.Workstreams {
		wsIDs = append(wsIDs, ws.ID)
	}
	t.ProjectDoc.FM.Set("workstreams", wsIDs)
	t.ProjectDoc.FM.Set("updated_at", ts)
	t.ProjectDoc.Body = plan.ReplaceMarkerBlock(t.ProjectDoc.Body,
		plan.WorkstreamTableStart, plan.WorkstreamTableEnd, plan.RenderWorkstreamTable(t.Workstreams))
	if err := e.Store.SaveDoc(filepath.Join(e.Store.Root, "plan.md"), t.ProjectDoc); err != nil {
		return domain.Workstream{}, err
	}
	if err := e.Store.WriteIndex(t, ts); err != nil {
		return domain.Workstream{}, err
	}
	if err := e.appendEvent(ctx, "workstream.created", domain.KindWorkstream, id, actorID, events.EventPayload{"title": title, "depends_on": dependsOn}); err != nil {
		return domain.Workstream{}, err
	}
	return domain.Workstream{ID: id, Title: title, Status: domain.StatusPlanned, DependsOn: dependsOn, UpdatedAt: ts}, nil
}

// JobCreateOptions are parameters for adding a job.
type JobCreateOptions struct {
	WorkstreamID  string
	Title         string
	Slug          string
	DependsOn     []string
	Stakes        string
	EstimateHours float64
	ActorID       string
}

// AddJob scaffolds a job under a workstream with stakes-derived defaults.
func (e Engine) AddJob(ctx context.Context, opts JobCreateOptions) (domain.Job, error) {
	if opts.Title == "" {
		return domain.Job{}, errors.New("title is required")
	}
	if e.Config == nil {
		return domain.Job{}, errors.New("config not loaded")
	}
	t, err := e.Store.Scan()
	if err != nil {
		return domain.Job{}, err
	}
	ws, ok := t.Workstream(opts.WorkstreamID)
	if !ok {
		return domain.Job{}, fmt.Errorf("workstream %s: %w", opts.WorkstreamID, ErrNotFound)
	}
	level, policy := e.Config.StakesPolicy(opts.Stakes)
	ts := e.ts()
	var existing []string
	for _, j := range t.Jobs {
		existing = append(existing, j.ID)
	}
	id := plan.NextID(plan.JobPrefix, plan.DateStamp(e.now()), existing)
	slug := opts.Slug
	if slug == "" {
		slug = plan.Kebab(opts.Title)
	} else {
		slug = plan.Kebab(slug)
	}
	jobDir := filepath.Join(ws.Dir, "jobs", id+"-"+slug)
	if err := plan.EnsureDirs(jobDir, "outputs", "artifacts", "notes", "logs"); err != nil {
		return domain.Job{}, err
	}
	doc := plan.NewJobDoc(id, opts.Title, opts.DependsOn, level, policy, opts.EstimateHours, ts)
	if err := e.Store.SaveDoc(filepath.Join(jobDir, "plan.md"), doc); err != nil {
		return domain.Job{}, err
	}

	// wire into the workstream doc
	jobs := append(ws.Jobs, id)
	ws.Doc.FM.Set("jobs", jobs)
	ws.Doc.FM.Set("updated_at", ts)
	wsJobs := append(t.WorkstreamJobs(ws.ID), plan.JobEntry{
		Job: domain.Job{ID: id, Title: opts.Title, Status: domain.StatusPlanned, DependsOn: opts.DependsOn, Stakes: level},
		Dir: jobDir,
	})
	ws.Doc.Body = plan.ReplaceMarkerBlock(ws.Doc.Body, plan.JobTableStart, plan.JobTableEnd, plan.RenderJobTable(wsJobs))
	if err := e.Store.SaveDoc(filepath.Join(ws.Dir, "plan.md"), ws.Doc); err != nil {
		return domain.Job{}, err
	}
	if err := e.appendEvent(ctx, "job.created", domain.KindJob, id, opts.ActorID, events.EventPayload{
		"title":      opts.Title,
		"workstream": ws.ID,
		"stakes":     level,
		"depends_on": opts.DependsOn,
	}); err != nil {
		return domain.Job{}, err
	}
	j := domain.Job{
		ID: id, WorkstreamID: ws.ID, Title: opts.Title, Status: domain.StatusPlanned,
		DependsOn: opts.DependsOn, AgreementStatus: "pending", Stakes: level,
		MaxIterations: policy.MaxIterations, RewardTarget: policy.RewardTarget,
		CompletionPromise: id + "-DONE", UpdatedAt: ts,
	}
	if opts.EstimateHours > 0 {
		j.EstimateHours = opts.EstimateHours
		j.HasEstimate = true
	}
	return j, nil
}

// loadJob resolves one job by id from a fresh scan.
func (e Engine) loadJob(id string) (*plan.Tree, *plan.JobEntry, error) {
	t, err := e.Store.Scan()
	if err != nil {
		return nil, nil, err
	}
	entry, n := t.Job(id)
	if n == 0 {
		return nil, nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if n > 1 {
		return nil, nil, fmt.Errorf("job %s resolves to %d directories", id, n)
	}
	return t, entry, nil
}
