package graph

import (
	"sort"

	"planforge/internal/domain"
)

// Diagnostic kinds reported while building a graph.
const (
	DiagDangling  = "dangling_dependency"
	DiagAmbiguous = "ambiguous_dependency"
	DiagSelf      = "self_dependency"
	DiagDuplicate = "duplicate_dependency"
)

// Diagnostic describes one structural problem found in the dependency data.
type Diagnostic struct {
	Kind    string `json:"kind"`
	JobID   string `json:"job_id"`
	Dep     string `json:"dependency,omitempty"`
	Message string `json:"message"`
}

// Graph holds the job dependency structure. Edges only connect known,
// unambiguous jobs; everything else surfaces as a diagnostic.
type Graph struct {
	Nodes       []string
	Deps        map[string][]string
	Dependents  map[string][]string
	Diagnostics []Diagnostic
}

// Build constructs the graph in one pass over nodes and edges.
func Build(jobs []domain.Job) *Graph {
	g := &Graph{
		Deps:       map[string][]string{},
		Dependents: map[string][]string{},
	}
	count := map[string]int{}
	for _, j := range jobs {
		count[j.ID]++
	}
	for _, j := range jobs {
		g.Nodes = append(g.Nodes, j.ID)
		seen := map[string]bool{}
		for _, dep := range j.DependsOn {
			if dep == j.ID {
				g.Diagnostics = append(g.Diagnostics, Diagnostic{
					Kind: DiagSelf, JobID: j.ID, Dep: dep,
					Message: j.ID + " depends on itself",
				})
				continue
			}
			if seen[dep] {
				g.Diagnostics = append(g.Diagnostics, Diagnostic{
					Kind: DiagDuplicate, JobID: j.ID, Dep: dep,
					Message: j.ID + " lists dependency " + dep + " more than once",
				})
				continue
			}
			seen[dep] = true
			switch count[dep] {
			case 0:
				g.Diagnostics = append(g.Diagnostics, Diagnostic{
					Kind: DiagDangling, JobID: j.ID, Dep: dep,
					Message: j.ID + " depends on unknown job " + dep,
				})
				continue
			case 1:
			default:
				g.Diagnostics = append(g.Diagnostics, Diagnostic{
					Kind: DiagAmbiguous, JobID: j.ID, Dep: dep,
					Message: j.ID + " depends on " + dep + " which resolves to multiple jobs",
				})
				continue
			}
			g.Deps[j.ID] = append(g.Deps[j.ID], dep)
			g.Dependents[dep] = append(g.Dependents[dep], j.ID)
		}
	}
	sort.Strings(g.Nodes)
	return g
}

// CycleNodes returns, sorted, every node that sits on or behind a dependency
// cycle: the nodes a Kahn peel never reaches.
func (g *Graph) CycleNodes() []string {
	indeg := map[string]int{}
	for _, n := range g.Nodes {
		indeg[n] = len(g.Deps[n])
	}
	queue := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if indeg[n] == 0 {
			queue = append(queue, n)
		}
	}
	processed := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		processed++
		for _, m := range g.Dependents[n] {
			indeg[m]--
			if indeg[m] == 0 {
				queue = append(queue, m)
			}
		}
	}
	if processed == len(g.Nodes) {
		return nil
	}
	var cyc []string
	for _, n := range g.Nodes {
		if indeg[n] > 0 {
			cyc = append(cyc, n)
		}
	}
	sort.Strings(cyc)
	return cyc
}

// Downstream returns the transitive dependents of id, sorted, excluding id
// itself.
func (g *Graph) Downstream(id string) []string {
	seen := map[string]bool{}
	queue := append([]string{}, g.Dependents[id]...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if seen[n] {
			continue
		}
		seen[n] = true
		queue = append(queue, g.Dependents[n]...)
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
