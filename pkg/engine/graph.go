package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Graph is the directed acyclic dependency graph over declarations.
// Edges point from a dependency to its dependents. Topological order is
// computed lazily by callers via TopoOrder, since deletes need the reverse
// of the same graph.
type Graph struct {
	// Nodes maps logical name to declaration.
	Nodes map[string]*Declaration

	// Edges lists all dependency edges.
	Edges []GraphEdge

	// dependents maps a name to the names depending on it.
	dependents map[string][]string

	// dependencies maps a name to the names it depends on.
	dependencies map[string][]string
}

// GraphEdge is one dependency edge: To depends on From.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GraphBuilder turns a validated model into a dependency graph, detecting
// cycles before any provider call can happen.
type GraphBuilder struct{}

// NewGraphBuilder creates a new graph builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{}
}

// Build constructs the dependency graph from the model's references and
// explicit dependencies. Fails with a permanent CYCLE_ERROR reporting the
// full cycle path when the declarations are cyclic.
func (b *GraphBuilder) Build(model *Model) (*Graph, error) {
	g := &Graph{
		Nodes:        make(map[string]*Declaration, len(model.Declarations)),
		dependents:   make(map[string][]string),
		dependencies: make(map[string][]string),
	}

	for _, name := range model.Names {
		g.Nodes[name] = model.Declarations[name]
	}

	// Deduplicate edges: a reference and an explicit depends_on may name
	// the same pair.
	seen := make(map[GraphEdge]bool)
	addEdge := func(from, to string) error {
		if from == to {
			return NewPermanentError(
				fmt.Sprintf("resource %q depends on itself", to), nil).
				WithCode(ErrCodeCycle)
		}
		edge := GraphEdge{From: from, To: to}
		if seen[edge] {
			return nil
		}
		seen[edge] = true
		g.Edges = append(g.Edges, edge)
		g.dependents[from] = append(g.dependents[from], to)
		g.dependencies[to] = append(g.dependencies[to], from)
		return nil
	}

	for _, ref := range model.References {
		if err := addEdge(ref.Target, ref.Source); err != nil {
			return nil, err
		}
	}
	for _, name := range model.Names {
		for _, dep := range model.Declarations[name].DependsOn {
			if err := addEdge(dep, name); err != nil {
				return nil, err
			}
		}
	}

	for _, deps := range g.dependents {
		sort.Strings(deps)
	}
	for _, deps := range g.dependencies {
		sort.Strings(deps)
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, NewPermanentError(
			fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> ")), nil).
			WithCode(ErrCodeCycle)
	}

	return g, nil
}

// Dependencies returns the names the given resource depends on.
func (g *Graph) Dependencies(name string) []string {
	return g.dependencies[name]
}

// Dependents returns the names depending on the given resource.
func (g *Graph) Dependents(name string) []string {
	return g.dependents[name]
}

// findCycle runs depth-first coloring over the graph and returns the first
// cycle path found, or nil for an acyclic graph. Iteration is in sorted
// name order so diagnostics are deterministic.
func (g *Graph) findCycle() []string {
	const (
		white = 0 // unvisited
		grey  = 1 // on the current DFS path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(g.Nodes))

	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	var path []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = grey
		path = append(path, name)

		for _, dep := range g.dependents[name] {
			switch color[dep] {
			case grey:
				// Close the loop for the diagnostic.
				start := 0
				for i, p := range path {
					if p == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, path[start:]...), dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}

		path = path[:len(path)-1]
		color[name] = black
		return false
	}

	for _, name := range names {
		if color[name] == white && visit(name) {
			return cycle
		}
	}
	return nil
}

// TopoOrder returns every node name in ascending topological order:
// dependencies before dependents. Within a level, names are sorted so the
// order is reproducible across runs. The graph must be acyclic (guaranteed
// by Build).
func (g *Graph) TopoOrder() []string {
	inDegree := make(map[string]int, len(g.Nodes))
	for name := range g.Nodes {
		inDegree[name] = len(g.dependencies[name])
	}

	var ready []string
	for name, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		var unlocked []string
		for _, dep := range g.dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				unlocked = append(unlocked, dep)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}

	return order
}

// ToDOT generates a DOT representation of the graph for visualization with
// Graphviz tools.
func (g *Graph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph DependencyGraph {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		d := g.Nodes[name]
		sb.WriteString(fmt.Sprintf("  %q [label=\"%s\\n%s\"];\n", name, name, d.Type))
	}
	sb.WriteString("\n")

	for _, edge := range g.Edges {
		sb.WriteString(fmt.Sprintf("  %q -> %q;\n", edge.From, edge.To))
	}

	sb.WriteString("}\n")
	return sb.String()
}
