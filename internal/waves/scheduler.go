package waves

import (
	"sort"

	"github.com/chainpress/chainpress/internal/analyze"
)

// Plan is the computed publish order.
type Plan struct {
	// Waves is the ordered sequence of parallelizable groups. Every
	// unit appears in exactly one wave; within a wave, paths are
	// sorted.
	Waves [][]string

	// Index maps unit path -> wave index.
	Index map[string]int

	// CycleEdges lists dependency edges that were broken to untangle
	// cycles, as {dependent, dependency} pairs. For these edges, and
	// only these, the dependency may be scheduled at or after the
	// dependent's wave.
	CycleEdges [][2]string
}

// WaveCount returns the number of waves.
func (p *Plan) WaveCount() int {
	return len(p.Waves)
}

// UnitCount returns the total number of scheduled units.
func (p *Plan) UnitCount() int {
	return len(p.Index)
}

// Visit colors for the iterative DFS. The "visiting" marker is what
// detects back-edges without recursion.
const (
	unvisited = iota
	visiting
	visited
)

// Compute derives the wave plan for a graph.
//
// First a depth-first traversal establishes a topological visitation
// order, breaking cycles at the first re-encountered node. Then each
// unit is assigned the earliest wave strictly after all of its
// (non-cycle-broken) dependencies.
func Compute(g *analyze.Graph) *Plan {
	plan := &Plan{Index: make(map[string]int, g.Len())}

	state := make(map[string]int, g.Len())
	order := make([]string, 0, g.Len())
	broken := make(map[[2]string]bool)

	// sortedDeps keeps traversal deterministic regardless of the
	// order references appeared in source files.
	sortedDeps := func(path string) []string {
		deps := append([]string(nil), g.Deps(path)...)
		sort.Strings(deps)
		return deps
	}

	type frame struct {
		path string
		deps []string
		next int
	}

	for _, root := range g.Paths() {
		if state[root] != unvisited {
			continue
		}
		stack := []frame{{path: root, deps: sortedDeps(root)}}
		state[root] = visiting

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(top.deps) {
				dep := top.deps[top.next]
				top.next++
				switch state[dep] {
				case unvisited:
					state[dep] = visiting
					stack = append(stack, frame{path: dep, deps: sortedDeps(dep)})
				case visiting:
					// Back-edge: dep is an ancestor of the current
					// path. Treat as satisfied and record the break.
					edge := [2]string{top.path, dep}
					if !broken[edge] {
						broken[edge] = true
						plan.CycleEdges = append(plan.CycleEdges, edge)
					}
				}
			} else {
				state[top.path] = visited
				order = append(order, top.path)
				stack = stack[:len(stack)-1]
			}
		}
	}

	// Wave assignment in topological order: every non-broken
	// dependency already has a wave when its dependent is assigned.
	for _, path := range order {
		wave := 0
		for _, dep := range g.Deps(path) {
			if broken[[2]string{path, dep}] {
				continue
			}
			if w, ok := plan.Index[dep]; ok && w+1 > wave {
				wave = w + 1
			}
		}
		plan.Index[path] = wave
		for len(plan.Waves) <= wave {
			plan.Waves = append(plan.Waves, nil)
		}
		plan.Waves[wave] = append(plan.Waves[wave], path)
	}

	for _, wave := range plan.Waves {
		sort.Strings(wave)
	}
	sort.Slice(plan.CycleEdges, func(i, j int) bool {
		if plan.CycleEdges[i][0] != plan.CycleEdges[j][0] {
			return plan.CycleEdges[i][0] < plan.CycleEdges[j][0]
		}
		return plan.CycleEdges[i][1] < plan.CycleEdges[j][1]
	})

	return plan
}
