package analyze

import "sort"

// Node is one graph entry: the unit, its surviving dependency edges,
// and the published flag the orchestrator flips as waves complete.
type Node struct {
	Unit *ContentUnit

	// Deps holds edges to units present in the graph. An edge A→B
	// means A references B. Dangling references were dropped at
	// construction.
	Deps []string

	Published bool
}

// Graph is an arena of nodes indexed by unit path. Edges are path
// lists rather than live pointers so traversal never recurses through
// object references and cycle handling stays explicit.
type Graph struct {
	nodes map[string]*Node
}

// NewGraph builds a graph from a set of units, dropping every
// reference to a path not present in the set.
func NewGraph(units []*ContentUnit) *Graph {
	g := &Graph{nodes: make(map[string]*Node, len(units))}
	for _, u := range units {
		g.nodes[u.Path] = &Node{Unit: u}
	}
	for _, u := range units {
		node := g.nodes[u.Path]
		for _, ref := range u.Refs {
			if _, ok := g.nodes[ref]; ok {
				node.Deps = append(node.Deps, ref)
			}
		}
	}
	return g
}

// Node returns the node for a path, or nil.
func (g *Graph) Node(path string) *Node {
	return g.nodes[path]
}

// Len returns the number of units in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Paths returns every unit path in sorted order. Sorted iteration is
// what makes scheduling deterministic.
func (g *Graph) Paths() []string {
	paths := make([]string, 0, len(g.nodes))
	for p := range g.nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Deps returns the dependency edges of a path (nil for unknown paths).
func (g *Graph) Deps(path string) []string {
	if n := g.nodes[path]; n != nil {
		return n.Deps
	}
	return nil
}
