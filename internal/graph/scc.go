package graph

// SCCDecomposition partitions the nodes of a graph into strongly connected
// components. Component ids are derived from the first discovered member.
type SCCDecomposition struct {
	// Members lists the node ids of every component in discovery order.
	Members map[string][]string
	// NodeToSCC maps every node id to its component id.
	NodeToSCC map[string]string
	// TopologicalOrder lists component ids with leaves first: a component
	// only depends on components listed before it.
	TopologicalOrder []string
	// CondensationEdges holds the edges between different components.
	CondensationEdges map[string][]string
}

// Groups returns the members of every component in topological order.
func (d *SCCDecomposition) Groups() [][]string {
	groups := make([][]string, 0, len(d.TopologicalOrder))
	for _, id := range d.TopologicalOrder {
		members := d.Members[id]
		group := make([]string, len(members))
		copy(group, members)
		groups = append(groups, group)
	}
	return groups
}

// Cycles returns the ids of components with more than one member.
func (d *SCCDecomposition) Cycles() []string {
	var cycles []string
	for _, id := range d.TopologicalOrder {
		if len(d.Members[id]) > 1 {
			cycles = append(cycles, id)
		}
	}
	return cycles
}

// ComputeSCCDecomposition runs Tarjan's algorithm over the edges passing the
// filter. Unresolved edges and edges referencing unknown nodes are ignored.
// For the same input order the result is always identical.
func ComputeSCCDecomposition(nodes []Node, edges []Edge, filter Filter) *SCCDecomposition {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}

	adjacency := make([][]int, len(nodes))
	for _, e := range edges {
		from, to, ok := resolveEdge(index, e, filter)
		if ok {
			adjacency[from] = append(adjacency[from], to)
		}
	}

	t := newTarjan(adjacency)
	for i := range nodes {
		if t.ids[i] < 0 {
			t.visit(i)
		}
	}

	d := &SCCDecomposition{
		Members:           make(map[string][]string, len(t.components)),
		NodeToSCC:         make(map[string]string, len(nodes)),
		TopologicalOrder:  make([]string, 0, len(t.components)),
		CondensationEdges: make(map[string][]string, len(t.components)),
	}
	for _, component := range t.components {
		sccID := "scc_" + nodes[component[0]].ID
		members := make([]string, len(component))
		for i, n := range component {
			members[i] = nodes[n].ID
			d.NodeToSCC[nodes[n].ID] = sccID
		}
		d.Members[sccID] = members
		d.TopologicalOrder = append(d.TopologicalOrder, sccID)
		d.CondensationEdges[sccID] = nil
	}

	seen := map[[2]string]struct{}{}
	for _, e := range edges {
		if _, _, ok := resolveEdge(index, e, filter); !ok {
			continue
		}
		from, to := d.NodeToSCC[e.Source], d.NodeToSCC[e.TargetNodeID]
		if from == to {
			continue
		}
		key := [2]string{from, to}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		d.CondensationEdges[from] = append(d.CondensationEdges[from], to)
	}
	return d
}

func resolveEdge(index map[string]int, e Edge, filter Filter) (int, int, bool) {
	if !filter.Matches(e.Category) || e.TargetNodeID == "" {
		return 0, 0, false
	}
	from, ok := index[e.Source]
	if !ok {
		return 0, 0, false
	}
	to, ok := index[e.TargetNodeID]
	if !ok {
		return 0, 0, false
	}
	return from, to, true
}

type tarjan struct {
	adjacency  [][]int
	ids        []int
	low        []int
	onStack    []bool
	stack      []int
	timer      int
	components [][]int // completion order, sinks first
}

// frame is a suspended visit of a node, next is the adjacency position to
// continue with.
type frame struct {
	node int
	next int
}

func newTarjan(adjacency [][]int) *tarjan {
	t := &tarjan{
		adjacency: adjacency,
		ids:       make([]int, len(adjacency)),
		low:       make([]int, len(adjacency)),
		onStack:   make([]bool, len(adjacency)),
	}
	for i := range t.ids {
		t.ids[i] = -1
	}
	return t
}

func (t *tarjan) push(n int) {
	t.ids[n] = t.timer
	t.low[n] = t.timer
	t.timer++
	t.stack = append(t.stack, n)
	t.onStack[n] = true
}

// visit runs the depth first search iteratively so that long call chains
// can not exhaust the goroutine stack.
func (t *tarjan) visit(root int) {
	t.push(root)
	callStack := []frame{{node: root}}

	for len(callStack) > 0 {
		top := &callStack[len(callStack)-1]
		if top.next < len(t.adjacency[top.node]) {
			w := t.adjacency[top.node][top.next]
			top.next++
			switch {
			case t.ids[w] < 0:
				t.push(w)
				callStack = append(callStack, frame{node: w})
			case t.onStack[w]:
				t.low[top.node] = min(t.low[top.node], t.ids[w])
			}
			continue
		}

		v := top.node
		callStack = callStack[:len(callStack)-1]
		if len(callStack) > 0 {
			parent := callStack[len(callStack)-1].node
			t.low[parent] = min(t.low[parent], t.low[v])
		}
		if t.low[v] == t.ids[v] {
			t.popComponent(v)
		}
	}
}

func (t *tarjan) popComponent(root int) {
	i := len(t.stack) - 1
	for t.stack[i] != root {
		i--
	}
	component := make([]int, len(t.stack)-i)
	copy(component, t.stack[i:])
	for _, n := range component {
		t.onStack[n] = false
	}
	t.stack = t.stack[:i]
	t.components = append(t.components, component)
}
