package plan

import (
	"strings"

	"planforge/internal/domain"
)

// NewProjectDoc builds the initial project plan document.
func NewProjectDoc(id, title, ts string) *Doc {
	fm := NewFrontmatter()
	fm.Set("schema", domain.Schema)
	fm.Set("kind", domain.KindProject)
	fm.Set("id", id)
	fm.Set("title", title)
	fm.Set("status", domain.StatusPlanned)
	fm.Set("workstreams", []string{})
	fm.Set("started_at", "")
	fm.Set("updated_at", ts)
	fm.Set("completed_at", "")
	fm.Set("completion_promise", id+"-DONE")
	body := strings.Join([]string{
		"# Goal",
		"",
		"_State the project goal._",
		"",
		"# Acceptance Criteria",
		"",
		"- _Define what done means for the whole project._",
		"",
		"# Workstreams",
		"",
		WorkstreamTableStart,
		"| Workstream | Status | Title | Depends On | Jobs |",
		"| --- | --- | --- | --- | --- |",
		"| (none) |  |  |  |  |",
		WorkstreamTableEnd,
		"",
		"# Success Hook",
		"",
		"- Acceptance criteria: all workstreams done",
		"- Completion promise: `" + domain.Promise(id) + "`",
		"",
		"# Progress Log",
		"",
		"- " + ts + " created project",
		"",
		"# Decisions",
		"",
	}, "\n")
	return &Doc{FM: fm, Body: body}
}

// NewWorkstreamDoc builds the initial workstream plan document.
func NewWorkstreamDoc(id, title string, dependsOn []string, ts string) *Doc {
	fm := NewFrontmatter()
	fm.Set("schema", domain.Schema)
	fm.Set("kind", domain.KindWorkstream)
	fm.Set("id", id)
	fm.Set("title", title)
	fm.Set("status", domain.StatusPlanned)
	fm.Set("depends_on", append([]string{}, dependsOn...))
	fm.Set("jobs", []string{})
	fm.Set("started_at", "")
	fm.Set("updated_at", ts)
	fm.Set("completed_at", "")
	fm.Set("completion_promise", id+"-DONE")
	body := strings.Join([]string{
		"# Purpose (How This Supports The Project Goal)",
		"",
		"_Explain how this workstream supports the project goal._",
		"",
		"# Jobs",
		"",
		JobTableStart,
		"| Work Item | Status | Title | Depends On | Stakes | Reward |",
		"| --- | --- | --- | --- | --- | --- |",
		"| (none) |  |  |  |  |  |",
		JobTableEnd,
		"",
		"# Dependencies",
		"",
		"_Workstream-level dependencies._",
		"",
		"# Success Hook",
		"",
		"- Acceptance criteria: all jobs done",
		"- Completion promise: `" + domain.Promise(id) + "`",
		"",
		"# Progress Log",
		"",
		"- " + ts + " created workstream",
		"",
	}, "\n")
	return &Doc{FM: fm, Body: body}
}

// NewJobDoc builds the initial job plan document with stakes-derived
// defaults already applied.
func NewJobDoc(id, title string, dependsOn []string, stakes string, policy domain.StakesPolicy, estimateHours float64, ts string) *Doc {
	fm := NewFrontmatter()
	fm.Set("schema", domain.Schema)
	fm.Set("kind", domain.KindJob)
	fm.Set("id", id)
	fm.Set("title", title)
	fm.Set("status", domain.StatusPlanned)
	fm.Set("depends_on", append([]string{}, dependsOn...))
	fm.Set("agreement_status", "pending")
	fm.Set("stakes", stakes)
	fm.Set("iteration", 0)
	fm.Set("max_iterations", policy.MaxIterations)
	if estimateHours > 0 {
		fm.Set("estimate_hours", estimateHours)
	} else {
		fm.Set("estimate_hours", "")
	}
	fm.Set("outputs", []string{})
	fm.Set("verification_evidence", []string{})
	fm.Set("reward_target", policy.RewardTarget)
	fm.Set("reward_last_score", "")
	fm.Set("reward_last_eval_at", "")
	fm.Set("truth_last_status", "")
	fm.Set("truth_last_failures", []string{})
	fm.Set("truth_last_checked_at", "")
	fm.Set("truth_input_snapshot", "")
	fm.Set("started_at", "")
	fm.Set("updated_at", ts)
	fm.Set("completed_at", "")
	fm.Set("completion_promise", id+"-DONE")
	body := strings.Join([]string{
		"# Objective",
		"",
		"_State what this job must produce._",
		"",
		"# Inputs",
		"",
		"- _Dependency outputs and reference material._",
		"",
		"# Outputs",
		"",
		"- _Declared output files, relative to the job directory._",
		"",
		"# Acceptance Criteria",
		"",
		"- _Checkable statements about the outputs._",
		"",
		"# Verification",
		"",
		"- _How the outputs get verified; write evidence under artifacts/._",
		"",
		"# Success Hook",
		"",
		"- Completion promise: `" + domain.Promise(id) + "`",
		"",
		"# Progress Log",
		"",
		"- " + ts + " created job",
		"",
	}, "\n")
	return &Doc{FM: fm, Body: body}
}
