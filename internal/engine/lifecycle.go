package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"planforge/internal/domain"
	"planforge/internal/events"
	"planforge/internal/gate"
	"planforge/internal/plan"
	"planforge/internal/snapshot"
)

const snapshotRelPath = "artifacts/input-snapshot.json"

// depInputs resolves a job's dependencies into snapshot capture inputs.
func (e Engine) depInputs(t *plan.Tree, j *plan.JobEntry) []snapshot.DepInput {
	var deps []snapshot.DepInput
	seen := map[string]bool{}
	for _, depID := range j.DependsOn {
		if seen[depID] {
			continue
		}
		seen[depID] = true
		d := snapshot.DepInput{ID: depID}
		if entry, n := t.Job(depID); n == 1 {
			d.Found = true
			d.Dir = entry.Dir
			d.PlanPath = e.Store.DisplayPath(filepath.Join(entry.Dir, "plan.md"))
			d.Outputs = entry.Outputs
		}
		deps = append(deps, d)
	}
	return deps
}

// JobAgree marks a job's scope as agreed, unlocking the agreement gate.
func (e Engine) JobAgree(ctx context.Context, id, actorID string) (domain.Job, error) {
	_, entry, err := e.loadJob(id)
	if err != nil {
		return domain.Job{}, err
	}
	ts := e.ts()
	entry.Doc.FM.Set("agreement_status", "agreed")
	entry.Doc.FM.Set("updated_at", ts)
	plan.AppendProgress(entry.Doc, ts, "agreement recorded")
	if err := e.Store.SaveDoc(filepath.Join(entry.Dir, "plan.md"), entry.Doc); err != nil {
		return domain.Job{}, err
	}
	if err := e.appendEvent(ctx, "job.agreed", domain.KindJob, id, actorID, nil); err != nil {
		return domain.Job{}, err
	}
	entry.AgreementStatus = "agreed"
	entry.UpdatedAt = ts
	return entry.Job, nil
}

// StartJob transitions a job to in_progress, bumps its iteration counter and
// captures an input snapshot of its dependency outputs. Unmet dependencies
// stop the start unless override is set, in which case the override and its
// note go into the progress log.
func (e Engine) StartJob(ctx context.Context, id string, override bool, note, actorID string) (domain.Job, error) {
	t, entry, err := e.loadJob(id)
	if err != nil {
		return domain.Job{}, err
	}
	if entry.AgreementStatus != "agreed" {
		return domain.Job{}, fmt.Errorf("job %s agreement_status is %q, must be \"agreed\"", id, entry.AgreementStatus)
	}
	switch entry.Status {
	case domain.StatusPlanned, domain.StatusBlocked:
	case domain.StatusInProgress:
		return domain.Job{}, fmt.Errorf("job %s already in_progress", id)
	default:
		return domain.Job{}, fmt.Errorf("job %s is %s and cannot start", id, entry.Status)
	}

	var unmet []string
	for _, depID := range entry.DependsOn {
		dep, n := t.Job(depID)
		if n != 1 || !domain.SatisfiesDependency(dep.Status) {
			unmet = append(unmet, depID)
		}
	}
	if len(unmet) > 0 && !override {
		return domain.Job{}, fmt.Errorf("job %s has unmet dependencies: %s", id, strings.Join(unmet, ", "))
	}

	ts := e.ts()
	fm := entry.Doc.FM
	fm.Set("status", domain.StatusInProgress)
	fm.Set("iteration", entry.Iteration+1)
	if entry.StartedAt == "" {
		fm.Set("started_at", ts)
	}
	fm.Set("updated_at", ts)
	if len(unmet) > 0 {
		msg := "override start despite unmet dependencies " + strings.Join(unmet, ", ")
		if note != "" {
			msg += ": " + note
		}
		plan.AppendProgress(entry.Doc, ts, msg)
	}
	plan.AppendProgress(entry.Doc, ts, fmt.Sprintf("started iteration %d", entry.Iteration+1))

	if len(entry.DependsOn) > 0 {
		snap := snapshot.Capture(id, e.depInputs(t, entry), e.Store.DisplayPath, e.now())
		if err := snapshot.Write(filepath.Join(entry.Dir, snapshotRelPath), snap); err != nil {
			return domain.Job{}, err
		}
		fm.Set("truth_input_snapshot", snapshotRelPath)
	}
	if err := e.Store.SaveDoc(filepath.Join(entry.Dir, "plan.md"), entry.Doc); err != nil {
		return domain.Job{}, err
	}
	if _, err := e.syncTree(ctx, actorID); err != nil {
		return domain.Job{}, err
	}
	if err := e.appendEvent(ctx, "job.started", domain.KindJob, id, actorID, events.EventPayload{
		"iteration": entry.Iteration + 1,
		"override":  override,
	}); err != nil {
		return domain.Job{}, err
	}
	entry.Status = domain.StatusInProgress
	entry.Iteration++
	entry.UpdatedAt = ts
	return entry.Job, nil
}

// RecordTruth stores the latest verification outcome for a job. Computing
// the outcome is someone else's problem; the engine only records it.
func (e Engine) RecordTruth(ctx context.Context, id, status string, failures []string, actorID string) (domain.Job, error) {
	switch status {
	case "pass", "fail", "unknown":
	default:
		return domain.Job{}, fmt.Errorf("truth status must be pass, fail or unknown, got %q", status)
	}
	_, entry, err := e.loadJob(id)
	if err != nil {
		return domain.Job{}, err
	}
	ts := e.ts()
	if failures == nil {
		failures = []string{}
	}
	entry.Doc.FM.Set("truth_last_status", status)
	entry.Doc.FM.Set("truth_last_failures", failures)
	entry.Doc.FM.Set("truth_last_checked_at", ts)
	entry.Doc.FM.Set("updated_at", ts)
	plan.AppendProgress(entry.Doc, ts, fmt.Sprintf("truth recorded: %s (%d failures)", status, len(failures)))
	if err := e.Store.SaveDoc(filepath.Join(entry.Dir, "plan.md"), entry.Doc); err != nil {
		return domain.Job{}, err
	}
	if err := e.appendEvent(ctx, "job.truth", domain.KindJob, id, actorID, events.EventPayload{
		"status":   status,
		"failures": failures,
	}); err != nil {
		return domain.Job{}, err
	}
	entry.TruthLastStatus = status
	entry.TruthLastFailures = failures
	entry.TruthLastCheckedAt = ts
	return entry.Job, nil
}

// RecordReward stores the latest reward score for a job. The scorer is an
// opaque collaborator; only its result lands in the plan.
func (e Engine) RecordReward(ctx context.Context, id string, score float64, actorID string) (domain.Job, error) {
	_, entry, err := e.loadJob(id)
	if err != nil {
		return domain.Job{}, err
	}
	ts := e.ts()
	entry.Doc.FM.Set("reward_last_score", score)
	entry.Doc.FM.Set("reward_last_eval_at", ts)
	entry.Doc.FM.Set("updated_at", ts)
	plan.AppendProgress(entry.Doc, ts, fmt.Sprintf("reward recorded: %.1f (target %.1f)", score, entry.RewardTarget))
	if err := e.Store.SaveDoc(filepath.Join(entry.Dir, "plan.md"), entry.Doc); err != nil {
		return domain.Job{}, err
	}
	if err := e.appendEvent(ctx, "job.reward", domain.KindJob, id, actorID, events.EventPayload{
		"score":  score,
		"target": entry.RewardTarget,
	}); err != nil {
		return domain.Job{}, err
	}
	entry.RewardLastScore = &score
	entry.RewardLastEvalAt = ts
	return entry.Job, nil
}

// CaptureSnapshot records a fresh input snapshot for a job.
func (e Engine) CaptureSnapshot(ctx context.Context, id, actorID string) (string, error) {
	t, entry, err := e.loadJob(id)
	if err != nil {
		return "", err
	}
	ts := e.ts()
	snap := snapshot.Capture(id, e.depInputs(t, entry), e.Store.DisplayPath, e.now())
	path := filepath.Join(entry.Dir, snapshotRelPath)
	if err := snapshot.Write(path, snap); err != nil {
		return "", err
	}
	entry.Doc.FM.Set("truth_input_snapshot", snapshotRelPath)
	entry.Doc.FM.Set("updated_at", ts)
	if err := e.Store.SaveDoc(filepath.Join(entry.Dir, "plan.md"), entry.Doc); err != nil {
		return "", err
	}
	if err := e.appendEvent(ctx, "job.snapshot", domain.KindJob, id, actorID, events.EventPayload{
		"inputs": snap.InputCount,
	}); err != nil {
		return "", err
	}
	return path, nil
}

// CancelJob marks a job cancelled. Cancelled jobs satisfy their dependents.
func (e Engine) CancelJob(ctx context.Context, id, reason, actorID string) (domain.Job, error) {
	_, entry, err := e.loadJob(id)
	if err != nil {
		return domain.Job{}, err
	}
	if entry.Status == domain.StatusDone || entry.Status == domain.StatusCancelled {
		return domain.Job{}, fmt.Errorf("job %s is already %s", id, entry.Status)
	}
	ts := e.ts()
	entry.Doc.FM.Set("status", domain.StatusCancelled)
	entry.Doc.FM.Set("updated_at", ts)
	msg := "cancelled"
	if reason != "" {
		msg += ": " + reason
	}
	plan.AppendProgress(entry.Doc, ts, msg)
	if err := e.Store.SaveDoc(filepath.Join(entry.Dir, "plan.md"), entry.Doc); err != nil {
		return domain.Job{}, err
	}
	if _, err := e.syncTree(ctx, actorID); err != nil {
		return domain.Job{}, err
	}
	if err := e.appendEvent(ctx, "job.cancelled", domain.KindJob, id, actorID, events.EventPayload{"reason": reason}); err != nil {
		return domain.Job{}, err
	}
	entry.Status = domain.StatusCancelled
	entry.UpdatedAt = ts
	return entry.Job, nil
}

// CompleteJob runs the gate chain and, when every gate passes, marks the job
// done in one write: status, completed_at, progress note and completion
// promise event together. A failed gate changes nothing; an exhausted
// iteration budget forces the job to blocked.
func (e Engine) CompleteJob(ctx context.Context, id, actorID string) (domain.Job, gate.Result, error) {
	t, entry, err := e.loadJob(id)
	if err != nil {
		return domain.Job{}, gate.Result{}, err
	}
	if entry.Status == domain.StatusDone || entry.Status == domain.StatusCancelled {
		return domain.Job{}, gate.Result{}, fmt.Errorf("job %s is already %s", id, entry.Status)
	}

	in := gate.Inputs{
		Job:    entry.Job,
		JobDir: entry.Dir,
		ResolveDep: func(depID string) (*domain.Job, int) {
			dep, n := t.Job(depID)
			if n != 1 {
				return nil, n
			}
			return &dep.Job, 1
		},
	}
	if entry.TruthInputSnapshot != "" {
		rec, err := snapshot.Load(filepath.Join(entry.Dir, entry.TruthInputSnapshot))
		if err != nil {
			return domain.Job{}, gate.Result{}, fmt.Errorf("job %s: %w", id, err)
		}
		in.Recorded = rec
	}
	if len(entry.DependsOn) > 0 {
		in.Current = snapshot.Capture(id, e.depInputs(t, entry), e.Store.DisplayPath, e.now())
	}

	res := gate.Evaluate(in)
	ts := e.ts()

	if res.ForcedBlocked {
		entry.Doc.FM.Set("status", domain.StatusBlocked)
		entry.Doc.FM.Set("updated_at", ts)
		plan.AppendProgress(entry.Doc, ts, "blocked: "+res.Message)
		if err := e.Store.SaveDoc(filepath.Join(entry.Dir, "plan.md"), entry.Doc); err != nil {
			return domain.Job{}, res, err
		}
		if _, err := e.syncTree(ctx, actorID); err != nil {
			return domain.Job{}, res, err
		}
		if err := e.appendEvent(ctx, "job.blocked", domain.KindJob, id, actorID, events.EventPayload{
			"reason": res.Message,
		}); err != nil {
			return domain.Job{}, res, err
		}
		entry.Status = domain.StatusBlocked
		return entry.Job, res, nil
	}

	if !res.OK {
		if err := e.appendEvent(ctx, "job.gate_failed", domain.KindJob, id, actorID, events.EventPayload{
			"gate":    string(res.Gate),
			"message": res.Message,
		}); err != nil {
			return domain.Job{}, res, err
		}
		return entry.Job, res, nil
	}

	promise := domain.Promise(id)
	entry.Doc.FM.Set("status", domain.StatusDone)
	entry.Doc.FM.Set("completed_at", ts)
	entry.Doc.FM.Set("updated_at", ts)
	plan.AppendProgress(entry.Doc, ts, "completed "+promise)
	if err := e.Store.SaveDoc(filepath.Join(entry.Dir, "plan.md"), entry.Doc); err != nil {
		return domain.Job{}, res, err
	}
	if _, err := e.syncTree(ctx, actorID); err != nil {
		return domain.Job{}, res, err
	}
	if err := e.appendEvent(ctx, "job.completed", domain.KindJob, id, actorID, events.EventPayload{
		"promise": promise,
	}); err != nil {
		return domain.Job{}, res, err
	}
	entry.Status = domain.StatusDone
	entry.CompletedAt = ts
	entry.UpdatedAt = ts
	return entry.Job, res, nil
}
