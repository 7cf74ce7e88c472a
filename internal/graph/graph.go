// Package graph implements the mutable dependency graph over program blocks,
// its strongly connected component decomposition and snapshot handling.
package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/retroenv/c64re/internal/bitmask"
	"github.com/retroenv/c64re/internal/nodeid"
	"github.com/retroenv/retrogolib/set"
)

var (
	ErrNodeNotFound     = errors.New("node not found")
	ErrDuplicateNode    = errors.New("node already exists")
	ErrSplitOutOfRange  = errors.New("split address not within node")
	ErrDanglingEdge     = errors.New("edge references missing node")
	ErrInvalidEdgeType  = errors.New("invalid edge type")
	ErrInvalidNode      = errors.New("invalid node")
	ErrSameNode         = errors.New("node can not be merged with itself")
	ErrInvalidFilter    = errors.New("invalid edge filter")
	ErrDiscoveryInvalid = errors.New("invalid speculative discovery")
	ErrDiscoveryMissing = errors.New("speculative discovery not found")
)

const (
	splitDiscoverer = "split"
	splitPhase      = "enrichment"
)

// Graph is the mutable dependency graph. Node ids are opaque strings.
// Every edge source and resolved edge target references an existing node.
// Iteration follows node insertion order to keep results reproducible.
type Graph struct {
	nodes map[string]*Node
	order []string

	edges    []Edge
	bySource map[string][]int
	byTarget map[string][]int

	entryPoints []string
	irqHandlers []string

	sccCache map[Filter]*SCCDecomposition

	quarantined     map[string]SpeculativeDiscovery
	quarantineOrder []string
}

// Reader is the read only view of a graph handed to analysis passes.
type Reader interface {
	Node(id string) (Node, bool)
	Nodes() []Node
	NodeCount() int
	EdgeCount() int
	Edges() []Edge
	EdgesFrom(id string) []Edge
	EdgesTo(id string) []Edge
	Children(id string, filter Filter) []Node
	Parents(id string, filter Filter) []Node
	HasSelfLoop(id string) bool
	EntryPoints() []string
	IRQHandlers() []string
}

var _ Reader = (*Graph)(nil)

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes:       map[string]*Node{},
		bySource:    map[string][]int{},
		byTarget:    map[string][]int{},
		sccCache:    map[Filter]*SCCDecomposition{},
		quarantined: map[string]SpeculativeDiscovery{},
	}
}

// AddNode adds a node. The id must be unique and the range not empty.
func (g *Graph) AddNode(node Node) error {
	if node.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidNode)
	}
	if uint32(node.Start) >= node.End {
		return fmt.Errorf("%w '%s': empty range $%04X-$%04X", ErrInvalidNode, node.ID, node.Start, node.End)
	}
	if _, ok := g.nodes[node.ID]; ok {
		return fmt.Errorf("%w: '%s'", ErrDuplicateNode, node.ID)
	}

	n := node.clone()
	g.nodes[n.ID] = &n
	g.order = append(g.order, n.ID)
	g.invalidate()
	return nil
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// NodeByBlockID returns a copy of the node derived from the block with the
// given id. Split and merge keep this link intact, a reclassification of the
// block does not change it.
func (g *Graph) NodeByBlockID(blockID string) (Node, bool) {
	if blockID == "" {
		return Node{}, false
	}
	for _, id := range g.order {
		if n := g.nodes[id]; n.BlockID == blockID {
			return n.clone(), true
		}
	}
	return Node{}, false
}

// NodesOverlapping returns copies of the nodes intersecting [start, end).
func (g *Graph) NodesOverlapping(start uint16, end uint32) []Node {
	var nodes []Node
	for _, id := range g.order {
		n := g.nodes[id]
		if uint32(n.Start) < end && n.End > uint32(start) {
			nodes = append(nodes, n.clone())
		}
	}
	return nodes
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Nodes returns copies of all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	nodes := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id].clone())
	}
	return nodes
}

// NodeIDs returns all node ids in insertion order.
func (g *Graph) NodeIDs() []string {
	return slices.Clone(g.order)
}

// RemoveNode removes a node and every edge that has it as source or target.
// Removing a missing node is a no-op.
func (g *Graph) RemoveNode(id string) {
	if _, ok := g.nodes[id]; !ok {
		return
	}

	delete(g.nodes, id)
	g.order = slices.DeleteFunc(g.order, func(s string) bool { return s == id })
	g.edges = slices.DeleteFunc(g.edges, func(e Edge) bool {
		return e.Source == id || e.TargetNodeID == id
	})
	g.entryPoints = slices.DeleteFunc(g.entryPoints, func(s string) bool { return s == id })
	g.irqHandlers = slices.DeleteFunc(g.irqHandlers, func(s string) bool { return s == id })
	g.rebuildIndices()
	g.invalidate()
}

// AddEdge adds an edge. The source and a non empty target node id have to
// reference existing nodes. A missing category is derived from the type.
func (g *Graph) AddEdge(edge Edge) error {
	category, ok := CategoryOf(edge.Type)
	if !ok {
		return fmt.Errorf("%w '%s'", ErrInvalidEdgeType, edge.Type)
	}
	switch edge.Category {
	case "":
		edge.Category = category
	case category:
	default:
		return fmt.Errorf("%w: %s edge with category '%s'", ErrInvalidEdgeType, edge.Type, edge.Category)
	}
	if _, ok := g.nodes[edge.Source]; !ok {
		return fmt.Errorf("%w: source '%s'", ErrDanglingEdge, edge.Source)
	}
	if edge.TargetNodeID != "" {
		if _, ok := g.nodes[edge.TargetNodeID]; !ok {
			return fmt.Errorf("%w: target '%s'", ErrDanglingEdge, edge.TargetNodeID)
		}
	}

	g.edges = append(g.edges, edge)
	g.indexEdge(len(g.edges) - 1)
	g.invalidate()
	return nil
}

// Edges returns copies of all edges in insertion order.
func (g *Graph) Edges() []Edge {
	return slices.Clone(g.edges)
}

// EdgesFrom returns the edges having the node as source.
func (g *Graph) EdgesFrom(id string) []Edge {
	return g.collect(g.bySource[id])
}

// EdgesTo returns the edges having the node as resolved target.
func (g *Graph) EdgesTo(id string) []Edge {
	return g.collect(g.byTarget[id])
}

// Children returns the distinct target nodes of outgoing edges passing the filter.
func (g *Graph) Children(id string, filter Filter) []Node {
	var ids []string
	for _, i := range g.bySource[id] {
		e := g.edges[i]
		if filter.Matches(e.Category) && e.TargetNodeID != "" {
			ids = append(ids, e.TargetNodeID)
		}
	}
	return g.distinctNodes(ids)
}

// Parents returns the distinct source nodes of incoming edges passing the filter.
func (g *Graph) Parents(id string, filter Filter) []Node {
	var ids []string
	for _, i := range g.byTarget[id] {
		e := g.edges[i]
		if filter.Matches(e.Category) {
			ids = append(ids, e.Source)
		}
	}
	return g.distinctNodes(ids)
}

// HasSelfLoop returns whether an edge leads from the node back to itself.
func (g *Graph) HasSelfLoop(id string) bool {
	for _, i := range g.bySource[id] {
		if g.edges[i].TargetNodeID == id {
			return true
		}
	}
	return false
}

// SplitNode replaces a node by two nodes covering [start, splitAt) and
// [splitAt, end). Outgoing edges move to the half containing their source
// instruction, incoming edges to the half containing their target address.
// The split address belongs to the second half. Code nodes get a fallthrough
// edge from the first to the second half. Entry points and IRQ handlers
// referencing the node are moved to the first half.
func (g *Graph) SplitNode(id string, splitAt uint16, id1, id2 string) error {
	if err := g.CheckSplitNode(id, splitAt, id1, id2); err != nil {
		return err
	}
	node := g.nodes[id]

	first := node.clone()
	first.ID = id1
	first.End = uint32(splitAt)
	first.BankingState = nil

	second := node.clone()
	second.ID = id2
	second.Start = splitAt
	second.BlockID = id2
	second.BankingState = nil

	delete(g.nodes, id)
	g.nodes[id1] = &first
	g.nodes[id2] = &second
	pos := slices.Index(g.order, id)
	g.order = slices.Replace(g.order, pos, pos+1, id1, id2)

	for i := range g.edges {
		e := &g.edges[i]
		if e.Source == id {
			e.Source = pickHalf(e.SourceInstruction, splitAt, id1, id2)
		}
		if e.TargetNodeID == id {
			e.TargetNodeID = pickHalf(e.Target, splitAt, id1, id2)
		}
	}

	if node.Type == nodeid.Code {
		g.edges = append(g.edges, Edge{
			Source:            id1,
			Target:            splitAt,
			TargetNodeID:      id2,
			Type:              Fallthrough,
			Category:          CategoryControlFlow,
			SourceInstruction: splitAt - 1,
			Confidence:        100,
			DiscoveredBy:      splitDiscoverer,
			DiscoveredInPhase: splitPhase,
		})
	}

	g.entryPoints = replaceIDs(g.entryPoints, id1, id)
	g.irqHandlers = replaceIDs(g.irqHandlers, id1, id)
	g.rebuildIndices()
	g.invalidate()
	return nil
}

// MergeNodes replaces two nodes by one spanning [min(start), max(end)).
// The merged node keeps the attributes of the node with the lower start.
// Edges between the two nodes are dropped, all other edges are redirected.
func (g *Graph) MergeNodes(id1, id2, newID string) error {
	if err := g.CheckMergeNodes(id1, id2, newID); err != nil {
		return err
	}
	n1, n2 := g.nodes[id1], g.nodes[id2]

	lower := n1
	if n2.Start < n1.Start {
		lower = n2
	}
	merged := lower.clone()
	merged.ID = newID
	merged.Start = min(n1.Start, n2.Start)
	merged.End = max(n1.End, n2.End)

	pair := func(s string) bool { return s == id1 || s == id2 }
	g.edges = slices.DeleteFunc(g.edges, func(e Edge) bool {
		return pair(e.Source) && pair(e.TargetNodeID) && e.Source != e.TargetNodeID
	})
	for i := range g.edges {
		e := &g.edges[i]
		if pair(e.Source) {
			e.Source = newID
		}
		if pair(e.TargetNodeID) {
			e.TargetNodeID = newID
		}
	}

	pos := slices.IndexFunc(g.order, pair)
	g.order = slices.DeleteFunc(g.order, pair)
	g.order = slices.Insert(g.order, pos, newID)
	delete(g.nodes, id1)
	delete(g.nodes, id2)
	g.nodes[newID] = &merged

	g.entryPoints = replaceIDs(g.entryPoints, newID, id1, id2)
	g.irqHandlers = replaceIDs(g.irqHandlers, newID, id1, id2)
	g.rebuildIndices()
	g.invalidate()
	return nil
}

// CheckSplitNode returns the error SplitNode would return without
// modifying the graph.
func (g *Graph) CheckSplitNode(id string, splitAt uint16, id1, id2 string) error {
	node, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrNodeNotFound, id)
	}
	if splitAt <= node.Start || uint32(splitAt) >= node.End {
		return fmt.Errorf("%w: $%04X not within '%s' $%04X-$%04X", ErrSplitOutOfRange, splitAt, id, node.Start, node.End)
	}
	if id1 == "" || id2 == "" || id1 == id2 {
		return fmt.Errorf("%w: invalid split ids '%s' and '%s'", ErrInvalidNode, id1, id2)
	}
	for _, newID := range []string{id1, id2} {
		if _, exists := g.nodes[newID]; exists && newID != id {
			return fmt.Errorf("%w: '%s'", ErrDuplicateNode, newID)
		}
	}
	return nil
}

// CheckMergeNodes returns the error MergeNodes would return without
// modifying the graph.
func (g *Graph) CheckMergeNodes(id1, id2, newID string) error {
	_, ok1 := g.nodes[id1]
	_, ok2 := g.nodes[id2]
	if !ok1 || !ok2 {
		return fmt.Errorf("%w: one or both of '%s', '%s'", ErrNodeNotFound, id1, id2)
	}
	if id1 == id2 {
		return fmt.Errorf("%w: '%s'", ErrSameNode, id1)
	}
	if newID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidNode)
	}
	if _, exists := g.nodes[newID]; exists && newID != id1 && newID != id2 {
		return fmt.Errorf("%w: '%s'", ErrDuplicateNode, newID)
	}
	return nil
}

// SetNodeType changes the kind of a node and keeps its id. This is not a
// structural change and keeps cached decompositions.
func (g *Graph) SetNodeType(id string, kind nodeid.Kind) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrNodeNotFound, id)
	}
	if kind != nodeid.Code && kind != nodeid.Data {
		return fmt.Errorf("%w '%s': unsupported type '%s'", ErrInvalidNode, id, kind)
	}
	n.Type = kind
	return nil
}

// SetBankingState attaches the banking state to a node. This is not a
// structural change and keeps cached decompositions.
func (g *Graph) SetBankingState(id string, onEntry, onExit bitmask.Snapshot) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrNodeNotFound, id)
	}
	n.BankingState = &BankingState{OnEntry: onEntry, OnExit: onExit}
	return nil
}

// UpdatePipelineState modifies the pipeline state of a node in place.
func (g *Graph) UpdatePipelineState(id string, update func(*PipelineState)) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrNodeNotFound, id)
	}
	update(&n.PipelineState)
	return nil
}

// SetEntryPoints sets the program entry nodes.
func (g *Graph) SetEntryPoints(ids []string) error {
	if err := g.checkNodes(ids); err != nil {
		return fmt.Errorf("setting entry points: %w", err)
	}
	g.entryPoints = slices.Clone(ids)
	return nil
}

// EntryPoints returns the program entry nodes.
func (g *Graph) EntryPoints() []string {
	return slices.Clone(g.entryPoints)
}

// SetIRQHandlers sets the interrupt handler nodes.
func (g *Graph) SetIRQHandlers(ids []string) error {
	if err := g.checkNodes(ids); err != nil {
		return fmt.Errorf("setting IRQ handlers: %w", err)
	}
	g.irqHandlers = slices.Clone(ids)
	return nil
}

// IRQHandlers returns the interrupt handler nodes.
func (g *Graph) IRQHandlers() []string {
	return slices.Clone(g.irqHandlers)
}

// ReachableNodes returns the ids of all nodes reachable over any edge from
// the entry points and IRQ handlers, in node insertion order.
func (g *Graph) ReachableNodes() []string {
	visited := g.reachable()
	var ids []string
	for _, id := range g.order {
		if visited.Contains(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// DeadNodes returns the nodes not reachable from any entry point.
func (g *Graph) DeadNodes() []Node {
	visited := g.reachable()
	var nodes []Node
	for _, id := range g.order {
		if !visited.Contains(id) {
			nodes = append(nodes, g.nodes[id].clone())
		}
	}
	return nodes
}

func (g *Graph) reachable() set.Set[string] {
	visited := set.New[string]()
	queue := append(slices.Clone(g.entryPoints), g.irqHandlers...)

	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if visited.Contains(id) {
			continue
		}
		visited.Add(id)

		for _, i := range g.bySource[id] {
			target := g.edges[i].TargetNodeID
			if target != "" && !visited.Contains(target) {
				queue = append(queue, target)
			}
		}
	}
	return visited
}

// SCCDecomposition returns the decomposition over all edges. The result is
// cached and the same pointer is returned until a structural change.
func (g *Graph) SCCDecomposition() *SCCDecomposition {
	d, _ := g.SCCDecompositionFor(FilterAll)
	return d
}

// SCCDecompositionFor returns the cached decomposition for an edge filter.
func (g *Graph) SCCDecompositionFor(filter Filter) (*SCCDecomposition, error) {
	if !filter.Valid() {
		return nil, fmt.Errorf("%w '%s'", ErrInvalidFilter, filter)
	}
	if d, ok := g.sccCache[filter]; ok {
		return d, nil
	}
	d := ComputeSCCDecomposition(g.Nodes(), g.edges, filter)
	g.sccCache[filter] = d
	return d, nil
}

// TopologicalSort returns the component groups over all edges, leaves first.
// A group with more than one member is a cycle that has to be handled as a unit.
func (g *Graph) TopologicalSort() [][]string {
	return g.SCCDecomposition().Groups()
}

// TopologicalSortFor returns the component groups for an edge filter.
func (g *Graph) TopologicalSortFor(filter Filter) ([][]string, error) {
	d, err := g.SCCDecompositionFor(filter)
	if err != nil {
		return nil, err
	}
	return d.Groups(), nil
}

func (g *Graph) invalidate() {
	clear(g.sccCache)
}

func (g *Graph) indexEdge(i int) {
	e := g.edges[i]
	g.bySource[e.Source] = append(g.bySource[e.Source], i)
	if e.TargetNodeID != "" {
		g.byTarget[e.TargetNodeID] = append(g.byTarget[e.TargetNodeID], i)
	}
}

func (g *Graph) rebuildIndices() {
	clear(g.bySource)
	clear(g.byTarget)
	for i := range g.edges {
		g.indexEdge(i)
	}
}

func (g *Graph) collect(indices []int) []Edge {
	edges := make([]Edge, 0, len(indices))
	for _, i := range indices {
		edges = append(edges, g.edges[i])
	}
	return edges
}

func (g *Graph) distinctNodes(ids []string) []Node {
	seen := set.New[string]()
	var nodes []Node
	for _, id := range ids {
		if seen.Contains(id) {
			continue
		}
		seen.Add(id)
		if n, ok := g.nodes[id]; ok {
			nodes = append(nodes, n.clone())
		}
	}
	return nodes
}

func (g *Graph) checkNodes(ids []string) error {
	for _, id := range ids {
		if _, ok := g.nodes[id]; !ok {
			return fmt.Errorf("%w: '%s'", ErrNodeNotFound, id)
		}
	}
	return nil
}

func pickHalf(address, splitAt uint16, id1, id2 string) string {
	if address < splitAt {
		return id1
	}
	return id2
}

// replaceIDs replaces all old ids by the new one, keeping the first
// occurrence of the new id only.
func replaceIDs(ids []string, newID string, old ...string) []string {
	result := make([]string, 0, len(ids))
	added := false
	for _, id := range ids {
		if slices.Contains(old, id) || id == newID {
			if added {
				continue
			}
			id = newID
			added = true
		}
		result = append(result, id)
	}
	return result
}
