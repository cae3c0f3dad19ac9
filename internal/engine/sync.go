package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"planforge/internal/domain"
	"planforge/internal/events"
	"planforge/internal/graph"
	"planforge/internal/plan"
	"planforge/internal/rollup"
	"planforge/internal/schedule"
	"planforge/internal/snapshot"
)

// StatusChange records one rollup transition.
type StatusChange struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

// syncTree recomputes workstream and project rollups from a fresh scan,
// rewrites the generated tables and the workstream index, and emits one
// event per transition.
func (e Engine) syncTree(ctx context.Context, actorID string) ([]StatusChange, error) {
	t, err := e.Store.Scan()
	if err != nil {
		return nil, err
	}
	ts := e.ts()
	var changes []StatusChange

	for i := range t.Workstreams {
		ws := &t.Workstreams[i]
		jobs := t.WorkstreamJobs(ws.ID)
		var statuses, ids []string
		for _, j := range jobs {
			statuses = append(statuses, j.Status)
			ids = append(ids, j.ID)
		}
		tr := rollup.Apply(ws.Doc.FM, rollup.FromChildren(statuses), ts)
		if tr.Changed {
			plan.AppendProgress(ws.Doc, ts, fmt.Sprintf("status %s -> %s (rollup)", tr.From, tr.To))
			changes = append(changes, StatusChange{ID: ws.ID, From: tr.From, To: tr.To})
			ws.Status = tr.To
		}
		ws.Doc.FM.Set("jobs", ids)
		ws.Jobs = ids
		ws.Doc.Body = plan.ReplaceMarkerBlock(ws.Doc.Body, plan.JobTableStart, plan.JobTableEnd, plan.RenderJobTable(jobs))
		if err := e.Store.SaveDoc(filepath.Join(ws.Dir, "plan.md"), ws.Doc); err != nil {
			return nil, err
		}
	}

	var wsStatuses, wsIDs []string
	for _, ws := range t.Workstreams {
		wsStatuses = append(wsStatuses, ws.Status)
		wsIDs = append(wsIDs, ws.ID)
	}
	tr := rollup.Apply(t.ProjectDoc.FM, rollup.FromChildren(wsStatuses), ts)
	if tr.Changed {
		plan.AppendProgress(t.ProjectDoc, ts, fmt.Sprintf("status %s -> %s (rollup)", tr.From, tr.To))
		changes = append(changes, StatusChange{ID: t.Project.ID, From: tr.From, To: tr.To})
	}
	t.ProjectDoc.FM.Set("workstreams", wsIDs)
	t.ProjectDoc.Body = plan.ReplaceMarkerBlock(t.ProjectDoc.Body,
		plan.WorkstreamTableStart, plan.WorkstreamTableEnd, plan.RenderWorkstreamTable(t.Workstreams))
	if err := e.Store.SaveDoc(filepath.Join(e.Store.Root, "plan.md"), t.ProjectDoc); err != nil {
		return nil, err
	}
	if err := e.Store.WriteIndex(t, ts); err != nil {
		return nil, err
	}

	for _, c := range changes {
		kind := domain.KindWorkstream
		if strings.HasPrefix(c.ID, plan.ProjectPrefix+"-") {
			kind = domain.KindProject
		}
		if err := e.appendEvent(ctx, "rollup.applied", kind, c.ID, actorID, events.EventPayload{
			"from": c.From, "to": c.To,
		}); err != nil {
			return nil, err
		}
	}
	return changes, nil
}

// SyncPlan recomputes every rollup and regenerates the derived tables.
func (e Engine) SyncPlan(ctx context.Context, actorID string) ([]StatusChange, error) {
	return e.syncTree(ctx, actorID)
}

func jobsOf(t *plan.Tree) []domain.Job {
	out := make([]domain.Job, 0, len(t.Jobs))
	for _, j := range t.Jobs {
		out = append(out, j.Job)
	}
	return out
}

// Orchestrate computes the current scheduling plan.
func (e Engine) Orchestrate(ctx context.Context) (schedule.Plan, error) {
	t, err := e.Store.Scan()
	if err != nil {
		return schedule.Plan{}, err
	}
	jobs := jobsOf(t)
	g := graph.Build(jobs)
	opts := schedule.Options{MaxParallel: schedule.DefaultParallel}
	if e.Config != nil {
		opts.MaxParallel = e.Config.MaxParallelAgents
		opts.Serial = e.Config.Serial()
	}
	return schedule.Build(jobs, g, opts), nil
}

// InvalidationReport lists the jobs reset because an upstream output changed.
type InvalidationReport struct {
	ChangedJob  string   `json:"changed_job"`
	Stale       []string `json:"stale"`
	StaleInputs int      `json:"stale_inputs"`
}

// Invalidate reacts to a change in one job's outputs. Each job downstream
// of it is judged on its own inputs: its recorded snapshot is diffed against
// a fresh capture of its dependencies' outputs, and only a mismatch resets
// its truth state to unknown with failures cleared. Resetting a job's truth
// does not by itself invalidate further downstream; propagation follows
// actual output changes. Statuses stay as they are; only the truth record
// is wiped.
func (e Engine) Invalidate(ctx context.Context, changedID, actorID string) (InvalidationReport, error) {
	t, _, err := e.loadJob(changedID)
	if err != nil {
		return InvalidationReport{}, err
	}
	g := graph.Build(jobsOf(t))
	report := InvalidationReport{ChangedJob: changedID}

	ts := e.ts()
	var stale []string
	for _, id := range g.Downstream(changedID) {
		entry, n := t.Job(id)
		if n != 1 {
			continue
		}
		drift := e.snapshotDrift(t, entry)
		if len(drift) == 0 {
			continue
		}
		report.StaleInputs += len(drift)
		stale = append(stale, id)
		entry.Doc.FM.Set("truth_last_status", "unknown")
		entry.Doc.FM.Set("truth_last_failures", []string{})
		entry.Doc.FM.Set("updated_at", ts)
		plan.AppendProgress(entry.Doc, ts, "truth reset: input snapshot no longer matches dependency outputs")
		if err := e.Store.SaveDoc(filepath.Join(entry.Dir, "plan.md"), entry.Doc); err != nil {
			return report, err
		}
	}
	report.Stale = stale
	if err := e.appendEvent(ctx, "job.invalidated", domain.KindJob, changedID, actorID, events.EventPayload{
		"stale": stale,
	}); err != nil {
		return report, err
	}
	return report, nil
}

// snapshotDrift diffs a job's recorded input snapshot against a fresh
// capture of its own dependency outputs. A job with no readable snapshot
// has recorded no truth assumptions worth invalidating and reports no
// drift; the dependencies gate still refuses to complete it.
func (e Engine) snapshotDrift(t *plan.Tree, entry *plan.JobEntry) []snapshot.Change {
	if entry.TruthInputSnapshot == "" {
		return nil
	}
	recorded, err := snapshot.Load(filepath.Join(entry.Dir, entry.TruthInputSnapshot))
	if err != nil {
		return nil
	}
	current := snapshot.Capture(entry.ID, e.depInputs(t, entry), e.Store.DisplayPath, e.now())
	return snapshot.Diff(recorded, current)
}

// AgentLogOptions describe one execution event reported by a worker.
type AgentLogOptions struct {
	AgentID     string
	AgentType   string
	WorkItemID  string
	Status      string
	Message     string
	DurationSec float64
}

// LogAgentEvent appends a worker execution event to the event store.
func (e Engine) LogAgentEvent(ctx context.Context, opts AgentLogOptions) error {
	if opts.AgentID == "" {
		return fmt.Errorf("agent id is required")
	}
	return e.appendEvent(ctx, "agent.log", domain.KindJob, opts.WorkItemID, opts.AgentID, events.EventPayload{
		"agent_type":   opts.AgentType,
		"status":       opts.Status,
		"message":      opts.Message,
		"duration_sec": opts.DurationSec,
	})
}

// ListEvents returns the newest events from the store.
func (e Engine) ListEvents(ctx context.Context, n int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	w := e.Events
	if w.DB == nil {
		w.DB = e.DB
	}
	return w.Latest(ctx, n, evtType, entityKind, entityID)
}
