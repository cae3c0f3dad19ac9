package schedule

import (
	"encoding/json"
	"sort"

	"planforge/internal/domain"
	"planforge/internal/graph"
)

// DefaultParallel is the parallel limit used when config gives none.
const DefaultParallel = 3

// Options control wave slicing.
type Options struct {
	MaxParallel int
	Serial      bool
}

// Limit returns the effective parallel limit.
func (o Options) Limit() int {
	if o.Serial {
		return 1
	}
	if o.MaxParallel > 0 {
		return o.MaxParallel
	}
	return DefaultParallel
}

// Blocked reasons, in reporting order.
const (
	ReasonMissingDeps = "missing_dependencies"
	ReasonNotDoneDeps = "not_done_dependencies"
)

// Blocked describes why a planned job cannot start yet.
type Blocked struct {
	ID          string   `json:"id"`
	Reasons     []string `json:"reasons"`
	MissingDeps []string `json:"missing_dependencies,omitempty"`
	NotDoneDeps []string `json:"not_done_dependencies,omitempty"`
}

// Path is the critical path through the plan.
type Path struct {
	Nodes       []string `json:"nodes"`
	TotalWeight float64  `json:"total_weight"`
}

// Plan is one scheduling pass over the project.
type Plan struct {
	Runnable      []string
	Blocked       []Blocked
	Waves         [][]string
	ParallelLimit int
	CriticalPath  Path
	Cycles        []string
}

// MarshalJSON duplicates the wave groups under the legacy "groups" key so
// older consumers keep working; both keys always carry the same value.
func (p Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Runnable       []string   `json:"runnable"`
		Blocked        []Blocked  `json:"blocked"`
		ParallelGroups [][]string `json:"parallel_groups"`
		Groups         [][]string `json:"groups"`
		ParallelLimit  int        `json:"parallel_limit"`
		CriticalPath   Path       `json:"critical_path"`
		Cycles         []string   `json:"cycles,omitempty"`
	}{
		Runnable:       p.Runnable,
		Blocked:        p.Blocked,
		ParallelGroups: p.Waves,
		Groups:         p.Waves,
		ParallelLimit:  p.ParallelLimit,
		CriticalPath:   p.CriticalPath,
		Cycles:         p.Cycles,
	})
}

// Build computes the runnable set, blocked reasons, execution waves and the
// critical path for the given jobs.
func Build(jobs []domain.Job, g *graph.Graph, opts Options) Plan {
	limit := opts.Limit()
	p := Plan{ParallelLimit: limit, Cycles: g.CycleNodes()}

	count := map[string]int{}
	byID := map[string]domain.Job{}
	for _, j := range jobs {
		count[j.ID]++
		byID[j.ID] = j
	}
	inCycle := map[string]bool{}
	for _, n := range p.Cycles {
		inCycle[n] = true
	}

	for _, j := range jobs {
		if j.Status != domain.StatusPlanned {
			continue
		}
		var missing, notDone []string
		for _, dep := range j.DependsOn {
			if dep == j.ID {
				continue
			}
			if count[dep] != 1 {
				missing = append(missing, dep)
				continue
			}
			if !domain.SatisfiesDependency(byID[dep].Status) {
				notDone = append(notDone, dep)
			}
		}
		sort.Strings(missing)
		sort.Strings(notDone)
		if len(missing) == 0 && len(notDone) == 0 {
			p.Runnable = append(p.Runnable, j.ID)
			continue
		}
		b := Blocked{ID: j.ID, MissingDeps: missing, NotDoneDeps: notDone}
		if len(missing) > 0 {
			b.Reasons = append(b.Reasons, ReasonMissingDeps)
		}
		if len(notDone) > 0 {
			b.Reasons = append(b.Reasons, ReasonNotDoneDeps)
		}
		p.Blocked = append(p.Blocked, b)
	}
	sort.Strings(p.Runnable)
	sort.Slice(p.Blocked, func(i, j int) bool { return p.Blocked[i].ID < p.Blocked[j].ID })

	p.Waves = waves(jobs, count, byID, inCycle, limit)
	p.CriticalPath = criticalPath(g, byID, inCycle)
	return p
}

// waves peels the remaining (non-terminal, acyclic) jobs layer by layer and
// slices each layer to the parallel limit. Jobs with unresolvable
// dependencies never peel and so never appear.
func waves(jobs []domain.Job, count map[string]int, byID map[string]domain.Job, inCycle map[string]bool, limit int) [][]string {
	pending := map[string]int{}
	dependents := map[string][]string{}
	for _, j := range jobs {
		if inCycle[j.ID] || domain.SatisfiesDependency(j.Status) {
			continue
		}
		deg := 0
		for _, dep := range j.DependsOn {
			if dep == j.ID {
				continue
			}
			if count[dep] != 1 || inCycle[dep] {
				deg = -1 // unresolvable, keep out of every wave
				break
			}
			if !domain.SatisfiesDependency(byID[dep].Status) {
				deg++
				dependents[dep] = append(dependents[dep], j.ID)
			}
		}
		if deg >= 0 {
			pending[j.ID] = deg
		}
	}

	var out [][]string
	for {
		var layer []string
		for id, deg := range pending {
			if deg == 0 {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			break
		}
		sort.Strings(layer)
		for i := 0; i < len(layer); i += limit {
			hi := i + limit
			if hi > len(layer) {
				hi = len(layer)
			}
			out = append(out, layer[i:hi])
		}
		for _, id := range layer {
			delete(pending, id)
			for _, dep := range dependents[id] {
				if _, ok := pending[dep]; ok {
					pending[dep]--
				}
			}
		}
	}
	return out
}

// criticalPath runs the longest-path DP over the acyclic part of the graph.
// All ties break toward the smaller identifier so output is reproducible.
func criticalPath(g *graph.Graph, byID map[string]domain.Job, inCycle map[string]bool) Path {
	indeg := map[string]int{}
	var order []string
	for _, n := range g.Nodes {
		if inCycle[n] {
			continue
		}
		indeg[n] = len(g.Deps[n])
	}
	queue := make([]string, 0, len(indeg))
	for _, n := range g.Nodes {
		if !inCycle[n] && indeg[n] == 0 {
			queue = append(queue, n)
		}
	}
	sort.Strings(queue)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		next := []string{}
		for _, m := range g.Dependents[n] {
			if inCycle[m] {
				continue
			}
			indeg[m]--
			if indeg[m] == 0 {
				next = append(next, m)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
	}

	dist := map[string]float64{}
	back := map[string]string{}
	for _, n := range order {
		best := 0.0
		bestPred := ""
		preds := append([]string{}, g.Deps[n]...)
		sort.Strings(preds)
		for _, pred := range preds {
			if inCycle[pred] {
				continue
			}
			if d := dist[pred]; d > best {
				best = d
				bestPred = pred
			}
		}
		dist[n] = best + byID[n].Weight()
		back[n] = bestPred
	}

	end := ""
	sorted := append([]string{}, order...)
	sort.Strings(sorted)
	for _, n := range sorted {
		if end == "" || dist[n] > dist[end] {
			end = n
		}
	}
	if end == "" {
		return Path{Nodes: []string{}}
	}
	var rev []string
	for n := end; n != ""; n = back[n] {
		rev = append(rev, n)
	}
	nodes := make([]string, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		nodes = append(nodes, rev[i])
	}
	return Path{Nodes: nodes, TotalWeight: dist[end]}
}
