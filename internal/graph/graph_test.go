package graph

import (
	"reflect"
	"testing"

	"planforge/internal/domain"
)

func job(id string, deps ...string) domain.Job {
	return domain.Job{ID: id, Status: domain.StatusPlanned, DependsOn: deps}
}

func diagKinds(g *Graph) map[string]int {
	out := map[string]int{}
	for _, d := range g.Diagnostics {
		out[d.Kind]++
	}
	return out
}

func TestBuildEdges(t *testing.T) {
	g := Build([]domain.Job{
		job("WI-20260301-001"),
		job("WI-20260301-002", "WI-20260301-001"),
		job("WI-20260301-003", "WI-20260301-001", "WI-20260301-002"),
	})
	if len(g.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", g.Diagnostics)
	}
	if !reflect.DeepEqual(g.Deps["WI-20260301-003"], []string{"WI-20260301-001", "WI-20260301-002"}) {
		t.Fatalf("deps = %v", g.Deps["WI-20260301-003"])
	}
	if !reflect.DeepEqual(g.Dependents["WI-20260301-001"], []string{"WI-20260301-002", "WI-20260301-003"}) {
		t.Fatalf("dependents = %v", g.Dependents["WI-20260301-001"])
	}
}

func TestBuildDiagnostics(t *testing.T) {
	g := Build([]domain.Job{
		job("WI-20260301-001", "WI-20260301-404"),                    // dangling
		job("WI-20260301-002", "WI-20260301-002"),                    // self
		job("WI-20260301-003", "WI-20260301-001", "WI-20260301-001"), // duplicate
		job("WI-20260301-004", "WI-20260301-005"),                    // ambiguous target
		job("WI-20260301-005"),
		job("WI-20260301-005"),
	})
	kinds := diagKinds(g)
	for _, want := range []string{DiagDangling, DiagSelf, DiagDuplicate, DiagAmbiguous} {
		if kinds[want] == 0 {
			t.Errorf("missing %s diagnostic: %+v", want, g.Diagnostics)
		}
	}
	// no edge is built from a diagnosed dependency
	if len(g.Deps["WI-20260301-001"]) != 0 || len(g.Deps["WI-20260301-004"]) != 0 {
		t.Fatalf("edges built from broken deps: %v", g.Deps)
	}
}

func TestCycleNodes(t *testing.T) {
	g := Build([]domain.Job{
		job("WI-20260301-001", "WI-20260301-003"),
		job("WI-20260301-002", "WI-20260301-001"),
		job("WI-20260301-003", "WI-20260301-002"),
		job("WI-20260301-004"),
	})
	cyc := g.CycleNodes()
	want := []string{"WI-20260301-001", "WI-20260301-002", "WI-20260301-003"}
	if !reflect.DeepEqual(cyc, want) {
		t.Fatalf("cycle = %v, want %v", cyc, want)
	}
}

func TestCycleNodesAcyclic(t *testing.T) {
	g := Build([]domain.Job{
		job("WI-20260301-001"),
		job("WI-20260301-002", "WI-20260301-001"),
	})
	if cyc := g.CycleNodes(); len(cyc) != 0 {
		t.Fatalf("acyclic graph reported cycle %v", cyc)
	}
}

func TestDownstream(t *testing.T) {
	g := Build([]domain.Job{
		job("WI-20260301-001"),
		job("WI-20260301-002", "WI-20260301-001"),
		job("WI-20260301-003", "WI-20260301-002"),
		job("WI-20260301-004", "WI-20260301-001"),
		job("WI-20260301-005"),
	})
	got := g.Downstream("WI-20260301-001")
	want := []string{"WI-20260301-002", "WI-20260301-003", "WI-20260301-004"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("downstream = %v, want %v", got, want)
	}
	if got := g.Downstream("WI-20260301-005"); len(got) != 0 {
		t.Fatalf("leaf downstream = %v", got)
	}
}
