package graph

import (
	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"
)

// CallGraph converts the nodes and the edges passing the filter into a
// lattice graph. Unresolved edges are skipped.
func (g *Graph) CallGraph(filter Filter) *lattice.Graph {
	lg := &lattice.Graph{Nodes: g.NodeIDs()}
	for _, e := range g.edges {
		if e.TargetNodeID == "" || !filter.Matches(e.Category) {
			continue
		}
		lg.Edges = append(lg.Edges, lattice.Edge{
			Caller: e.Source,
			Callee: e.TargetNodeID,
		})
	}
	lg.Dedup()
	return lg
}

// CondensationGraph converts a decomposition into a lattice graph with one
// node per component.
func CondensationGraph(d *SCCDecomposition) *lattice.Graph {
	lg := &lattice.Graph{}
	for _, id := range d.TopologicalOrder {
		lg.Nodes = append(lg.Nodes, id)
		for _, target := range d.CondensationEdges[id] {
			lg.Edges = append(lg.Edges, lattice.Edge{Caller: id, Callee: target})
		}
	}
	lg.Dedup()
	return lg
}

// DOT renders the graph restricted to the filter in Graphviz format.
func (g *Graph) DOT(filter Filter, title string) string {
	return render.DOT(g.CallGraph(filter), title)
}

// CondensedDOT renders the component graph for the filter.
func (g *Graph) CondensedDOT(filter Filter, title string) (string, error) {
	d, err := g.SCCDecompositionFor(filter)
	if err != nil {
		return "", err
	}
	return render.DOT(CondensationGraph(d), title), nil
}
