package gate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"planforge/internal/domain"
	"planforge/internal/snapshot"
)

// Gate names, in evaluation order. Evaluation stops at the first failure so
// the caller always gets exactly one reason.
type Gate string

const (
	Agreement    Gate = "agreement"
	Dependencies Gate = "dependencies"
	Truth        Gate = "truth"
	Reward       Gate = "reward"
	Evidence     Gate = "evidence"

	// IterationLimit is not a gate proper: crossing the iteration budget
	// forces blocked and supersedes the whole chain.
	IterationLimit Gate = "iteration_limit"
)

// Result is the outcome of one evaluation.
type Result struct {
	OK            bool              `json:"ok"`
	Gate          Gate              `json:"gate,omitempty"`
	Message       string            `json:"message,omitempty"`
	ForcedBlocked bool              `json:"forced_blocked,omitempty"`
	StaleInputs   []snapshot.Change `json:"stale_inputs,omitempty"`
}

func fail(g Gate, format string, args ...any) Result {
	return Result{Gate: g, Message: fmt.Sprintf(format, args...)}
}

// Inputs carries everything the evaluator needs; it never touches plan
// documents itself, only the job directory for evidence files.
type Inputs struct {
	Job    domain.Job
	JobDir string
	// ResolveDep returns the dependency job and how many jobs carry that id.
	ResolveDep func(id string) (*domain.Job, int)
	// Recorded is the input snapshot referenced by the job, nil when none.
	Recorded *snapshot.Snapshot
	// Current is a fresh capture over the same dependencies.
	Current *snapshot.Snapshot
}

// Evaluate runs the gate chain for a completion attempt.
func Evaluate(in Inputs) Result {
	j := in.Job

	if j.MaxIterations > 0 && j.Iteration > j.MaxIterations {
		return Result{
			Gate:          IterationLimit,
			ForcedBlocked: true,
			Message:       fmt.Sprintf("iteration %d exceeds max_iterations %d", j.Iteration, j.MaxIterations),
		}
	}

	if j.AgreementStatus != "agreed" {
		return fail(Agreement, "agreement_status is %q, must be \"agreed\"", j.AgreementStatus)
	}

	if r := checkDependencies(in); !r.OK {
		return r
	}

	if j.TruthLastStatus != "pass" {
		return fail(Truth, "truth_last_status is %q, must be \"pass\"", j.TruthLastStatus)
	}
	if len(j.TruthLastFailures) > 0 {
		return fail(Truth, "truth_last_failures not empty: %s", strings.Join(j.TruthLastFailures, "; "))
	}

	if j.RewardLastScore == nil {
		return fail(Reward, "reward_last_score not set (target %.0f)", j.RewardTarget)
	}
	if *j.RewardLastScore < j.RewardTarget {
		return fail(Reward, "reward_last_score %.1f below target %.1f", *j.RewardLastScore, j.RewardTarget)
	}
	if j.RewardLastEvalAt == "" {
		return fail(Reward, "reward_last_eval_at not set")
	}

	if r := checkEvidence(in); !r.OK {
		return r
	}

	return Result{OK: true}
}

func checkDependencies(in Inputs) Result {
	j := in.Job
	for _, dep := range j.DependsOn {
		d, n := in.ResolveDep(dep)
		switch {
		case n == 0:
			return fail(Dependencies, "dependency %s not found", dep)
		case n > 1:
			return fail(Dependencies, "dependency %s resolves to %d jobs", dep, n)
		case !domain.SatisfiesDependency(d.Status):
			return fail(Dependencies, "dependency %s is %s, not done", dep, d.Status)
		}
	}
	if len(j.DependsOn) > 0 {
		if in.Recorded == nil {
			return fail(Dependencies, "no input snapshot recorded; capture one before completing")
		}
		if in.Current != nil {
			if changes := snapshot.Diff(in.Recorded, in.Current); len(changes) > 0 {
				r := fail(Dependencies, "%d dependency output(s) changed since snapshot", len(changes))
				r.StaleInputs = changes
				return r
			}
		}
	}
	return Result{OK: true}
}

func checkEvidence(in Inputs) Result {
	j := in.Job
	if len(j.Outputs) == 0 {
		return fail(Evidence, "no outputs declared")
	}
	promise := domain.Promise(j.ID)
	promiseSeen := false
	for _, rel := range j.Outputs {
		path := filepath.Join(in.JobDir, rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return fail(Evidence, "output %s missing", rel)
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			return fail(Evidence, "output %s is empty", rel)
		}
		if strings.Contains(string(data), promise) {
			promiseSeen = true
		}
	}
	for _, rel := range j.VerificationEvidence {
		st, err := os.Stat(filepath.Join(in.JobDir, rel))
		if err != nil || st.IsDir() || st.Size() == 0 {
			return fail(Evidence, "verification evidence %s missing or empty", rel)
		}
	}
	if !promiseSeen {
		return fail(Evidence, "completion promise %s not found in any output", promise)
	}
	return Result{OK: true}
}
