package domain

// Plan document schema marker and kinds.
const (
	Schema = "planforge.plan.v1"

	KindProject    = "project"
	KindWorkstream = "workstream"
	KindJob        = "job"
)

// Statuses shared by projects, workstreams and jobs.
const (
	StatusPlanned    = "planned"
	StatusInProgress = "in_progress"
	StatusBlocked    = "blocked"
	StatusDone       = "done"
	StatusCancelled  = "cancelled"
)

// ValidStatus reports whether s is one of the known statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusBlocked, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// SatisfiesDependency reports whether a dependency in status s unblocks
// its dependents. Cancelled work never happens, so it cannot block.
func SatisfiesDependency(s string) bool {
	return s == StatusDone || s == StatusCancelled
}

// StakesPolicy is the quality bar attached to a stakes level.
type StakesPolicy struct {
	RewardTarget  float64 `json:"reward_target" yaml:"reward_target"`
	MaxIterations int     `json:"max_iterations" yaml:"max_iterations"`
}

// DefaultStakes maps stakes levels to their default policy.
var DefaultStakes = map[string]StakesPolicy{
	"low":      {RewardTarget: 70, MaxIterations: 2},
	"normal":   {RewardTarget: 80, MaxIterations: 3},
	"high":     {RewardTarget: 90, MaxIterations: 5},
	"critical": {RewardTarget: 95, MaxIterations: 7},
}

type Project struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Status      string   `json:"status"`
	Workstreams []string `json:"workstreams,omitempty"`
	StartedAt   string   `json:"started_at,omitempty" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
	CompletedAt string   `json:"completed_at,omitempty" format:"date-time"`
}

type Workstream struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Status      string   `json:"status"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Jobs        []string `json:"jobs,omitempty"`
	StartedAt   string   `json:"started_at,omitempty" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
	CompletedAt string   `json:"completed_at,omitempty" format:"date-time"`
}

type Job struct {
	ID                   string   `json:"id"`
	WorkstreamID         string   `json:"workstream_id"`
	Title                string   `json:"title"`
	Status               string   `json:"status"`
	DependsOn            []string `json:"depends_on,omitempty"`
	AgreementStatus      string   `json:"agreement_status"`
	Stakes               string   `json:"stakes"`
	Iteration            int      `json:"iteration"`
	MaxIterations        int      `json:"max_iterations"`
	EstimateHours        float64  `json:"estimate_hours,omitempty"`
	HasEstimate          bool     `json:"-"`
	Outputs              []string `json:"outputs,omitempty"`
	VerificationEvidence []string `json:"verification_evidence,omitempty"`
	RewardTarget         float64  `json:"reward_target"`
	RewardLastScore      *float64 `json:"reward_last_score,omitempty"`
	RewardLastEvalAt     string   `json:"reward_last_eval_at,omitempty"`
	TruthLastStatus      string   `json:"truth_last_status,omitempty"`
	TruthLastFailures    []string `json:"truth_last_failures,omitempty"`
	TruthLastCheckedAt   string   `json:"truth_last_checked_at,omitempty"`
	TruthInputSnapshot   string   `json:"truth_input_snapshot,omitempty"`
	CompletionPromise    string   `json:"completion_promise"`
	StartedAt            string   `json:"started_at,omitempty" format:"date-time"`
	UpdatedAt            string   `json:"updated_at" format:"date-time"`
	CompletedAt          string   `json:"completed_at,omitempty" format:"date-time"`
}

// Weight is the scheduling weight of the job: its estimate when one was
// given, otherwise a flat default so unestimated work still counts.
func (j Job) Weight() float64 {
	if j.HasEstimate && j.EstimateHours > 0 {
		return j.EstimateHours
	}
	return 1.0
}

// Promise returns the completion promise token for an id.
func Promise(id string) string {
	return "<promise>" + id + "-DONE</promise>"
}

type Event struct {
	ID         string `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
