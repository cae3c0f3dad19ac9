package gate

import (
	"os"
	"path/filepath"
	"testing"

	"planforge/internal/domain"
	"planforge/internal/snapshot"
)

func passingJob(t *testing.T) (domain.Job, string) {
	t.Helper()
	dir := t.TempDir()
	score := 90.0
	j := domain.Job{
		ID:               "WI-20260301-001",
		Status:           domain.StatusInProgress,
		AgreementStatus:  "agreed",
		Iteration:        1,
		MaxIterations:    3,
		TruthLastStatus:  "pass",
		RewardTarget:     80,
		RewardLastScore:  &score,
		RewardLastEvalAt: "2026-03-01T12:00:00Z",
		Outputs:          []string{"outputs/result.md"},
	}
	writeOutput(t, dir, "outputs/result.md", "all good "+domain.Promise(j.ID)+"\n")
	return j, dir
}

func writeOutput(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func noDeps(string) (*domain.Job, int) { return nil, 0 }

func TestEvaluatePasses(t *testing.T) {
	j, dir := passingJob(t)
	res := Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: noDeps})
	if !res.OK {
		t.Fatalf("expected pass, got %+v", res)
	}
}

func TestIterationOverflowSupersedesGates(t *testing.T) {
	j, dir := passingJob(t)
	j.Iteration = 4
	j.AgreementStatus = "pending" // would fail first if gates ran
	res := Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: noDeps})
	if !res.ForcedBlocked || res.Gate != IterationLimit {
		t.Fatalf("expected forced block, got %+v", res)
	}
}

func TestGateOrderFirstFailureWins(t *testing.T) {
	j, dir := passingJob(t)
	j.AgreementStatus = "pending"
	j.TruthLastStatus = "fail"
	res := Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: noDeps})
	if res.OK || res.Gate != Agreement {
		t.Fatalf("expected agreement failure first, got %+v", res)
	}

	j.AgreementStatus = "agreed"
	res = Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: noDeps})
	if res.Gate != Truth {
		t.Fatalf("expected truth failure next, got %+v", res)
	}
}

func TestTruthGate(t *testing.T) {
	j, dir := passingJob(t)
	j.TruthLastFailures = []string{"unit tests red"}
	res := Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: noDeps})
	if res.OK || res.Gate != Truth {
		t.Fatalf("lingering failures must fail truth, got %+v", res)
	}
}

func TestRewardGate(t *testing.T) {
	j, dir := passingJob(t)
	j.RewardLastScore = nil
	res := Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: noDeps})
	if res.Gate != Reward {
		t.Fatalf("missing score: %+v", res)
	}

	low := 79.9
	j.RewardLastScore = &low
	res = Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: noDeps})
	if res.OK || res.Gate != Reward {
		t.Fatalf("below target: %+v", res)
	}

	exact := 80.0
	j.RewardLastScore = &exact
	res = Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: noDeps})
	if !res.OK {
		t.Fatalf("score equal to target must pass, got %+v", res)
	}
}

func TestDependencyGate(t *testing.T) {
	j, dir := passingJob(t)
	j.DependsOn = []string{"WI-20260301-000"}

	res := Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: noDeps})
	if res.Gate != Dependencies {
		t.Fatalf("missing dep: %+v", res)
	}

	dep := domain.Job{ID: "WI-20260301-000", Status: domain.StatusPlanned}
	resolve := func(string) (*domain.Job, int) { return &dep, 1 }
	res = Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: resolve})
	if res.Gate != Dependencies {
		t.Fatalf("unfinished dep: %+v", res)
	}

	dep.Status = domain.StatusDone
	res = Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: resolve})
	if res.Gate != Dependencies {
		t.Fatalf("missing snapshot must fail dependencies, got %+v", res)
	}

	snap := &snapshot.Snapshot{Schema: snapshot.Schema, WorkItemID: j.ID}
	res = Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: resolve, Recorded: snap, Current: snap})
	if !res.OK {
		t.Fatalf("expected pass with matching snapshot, got %+v", res)
	}
}

func TestDependencyGateStaleInputs(t *testing.T) {
	j, dir := passingJob(t)
	j.DependsOn = []string{"WI-20260301-000"}
	dep := domain.Job{ID: "WI-20260301-000", Status: domain.StatusDone}
	resolve := func(string) (*domain.Job, int) { return &dep, 1 }

	recorded := &snapshot.Snapshot{Dependencies: []snapshot.Dependency{{
		WorkItemID: dep.ID,
		JobFound:   true,
		Outputs: []snapshot.Output{{
			DependencyID: dep.ID, DeclaredOutput: "outputs/a.txt", Exists: true, SHA256: "aaa",
		}},
	}}}
	current := &snapshot.Snapshot{Dependencies: []snapshot.Dependency{{
		WorkItemID: dep.ID,
		JobFound:   true,
		Outputs: []snapshot.Output{{
			DependencyID: dep.ID, DeclaredOutput: "outputs/a.txt", Exists: true, SHA256: "bbb",
		}},
	}}}
	res := Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: resolve, Recorded: recorded, Current: current})
	if res.OK || res.Gate != Dependencies || len(res.StaleInputs) != 1 {
		t.Fatalf("expected stale input failure, got %+v", res)
	}
}

func TestEvidenceGate(t *testing.T) {
	j, dir := passingJob(t)

	j.Outputs = nil
	res := Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: noDeps})
	if res.Gate != Evidence {
		t.Fatalf("no outputs declared: %+v", res)
	}

	j.Outputs = []string{"outputs/missing.md"}
	res = Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: noDeps})
	if res.Gate != Evidence {
		t.Fatalf("missing output file: %+v", res)
	}

	j.Outputs = []string{"outputs/empty.md"}
	writeOutput(t, dir, "outputs/empty.md", "   \n")
	res = Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: noDeps})
	if res.Gate != Evidence {
		t.Fatalf("empty output file: %+v", res)
	}

	j.Outputs = []string{"outputs/result.md"}
	j.VerificationEvidence = []string{"artifacts/test-run.log"}
	res = Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: noDeps})
	if res.Gate != Evidence {
		t.Fatalf("missing evidence file: %+v", res)
	}
	writeOutput(t, dir, "artifacts/test-run.log", "ok\n")
	res = Evaluate(Inputs{Job: j, JobDir: dir, ResolveDep: noDeps})
	if !res.OK {
		t.Fatalf("expected pass with evidence present, got %+v", res)
	}
}
