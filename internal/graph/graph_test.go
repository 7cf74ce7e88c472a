package graph

import (
	"errors"
	"testing"

	"github.com/retroenv/c64re/internal/bitmask"
	"github.com/retroenv/c64re/internal/nodeid"
	"github.com/retroenv/retrogolib/assert"
)

func codeNode(id string, start uint16, end uint32) Node {
	return Node{ID: id, Type: nodeid.Code, Start: start, End: end, BlockID: id, DiscoveredBy: "test", EndConfidence: 100}
}

func dataNode(id string, start uint16, end uint32) Node {
	n := codeNode(id, start, end)
	n.Type = nodeid.Data
	return n
}

func edge(source, target string, typ EdgeType, sourceInstruction, targetAddress uint16) Edge {
	return Edge{
		Source:            source,
		Target:            targetAddress,
		TargetNodeID:      target,
		Type:              typ,
		SourceInstruction: sourceInstruction,
		Confidence:        100,
		DiscoveredBy:      "test",
		DiscoveredInPhase: "static_analysis",
	}
}

func newTestGraph(t *testing.T, nodes []Node, edges []Edge) *Graph {
	t.Helper()
	g := New()
	for _, n := range nodes {
		assert.NoError(t, g.AddNode(n))
	}
	for _, e := range edges {
		assert.NoError(t, g.AddEdge(e))
	}
	return g
}

// assertNoDanglingEdges checks that every edge references existing nodes.
func assertNoDanglingEdges(t *testing.T, g *Graph) {
	t.Helper()
	for _, e := range g.Edges() {
		_, ok := g.Node(e.Source)
		assert.True(t, ok, "missing source "+e.Source)
		if e.TargetNodeID != "" {
			_, ok = g.Node(e.TargetNodeID)
			assert.True(t, ok, "missing target "+e.TargetNodeID)
		}
	}
}

func TestAddNode(t *testing.T) {
	g := New()
	assert.NoError(t, g.AddNode(codeNode("A", 0x1000, 0x1010)))
	assert.Equal(t, 1, g.NodeCount())

	assert.True(t, errors.Is(g.AddNode(codeNode("A", 0x2000, 0x2010)), ErrDuplicateNode))
	assert.True(t, errors.Is(g.AddNode(codeNode("", 0x2000, 0x2010)), ErrInvalidNode))
	assert.True(t, errors.Is(g.AddNode(codeNode("B", 0x2000, 0x2000)), ErrInvalidNode))

	n, ok := g.Node("A")
	assert.True(t, ok)
	assert.Equal(t, uint16(0x1000), n.Start)
	_, ok = g.Node("B")
	assert.False(t, ok)
}

func TestAddEdge(t *testing.T) {
	g := newTestGraph(t, []Node{codeNode("A", 0x1000, 0x1010), codeNode("B", 0x2000, 0x2010)}, nil)

	assert.NoError(t, g.AddEdge(edge("A", "B", Call, 0x1000, 0x2000)))
	e := g.EdgesFrom("A")[0]
	assert.Equal(t, CategoryControlFlow, e.Category)
	assert.Len(t, g.EdgesTo("B"), 1)

	// unresolved target into ROM
	assert.NoError(t, g.AddEdge(edge("A", "", Call, 0x1003, 0xFFD2)))
	assert.Len(t, g.EdgesFrom("A"), 2)

	assert.True(t, errors.Is(g.AddEdge(edge("X", "B", Call, 0, 0)), ErrDanglingEdge))
	assert.True(t, errors.Is(g.AddEdge(edge("A", "X", Call, 0, 0)), ErrDanglingEdge))
	assert.True(t, errors.Is(g.AddEdge(edge("A", "B", EdgeType("goto"), 0, 0)), ErrInvalidEdgeType))

	mismatched := edge("A", "B", Call, 0x1006, 0x2000)
	mismatched.Category = CategoryData
	assert.True(t, errors.Is(g.AddEdge(mismatched), ErrInvalidEdgeType))
	matching := edge("A", "B", DataRead, 0x1009, 0x2000)
	matching.Category = CategoryData
	assert.NoError(t, g.AddEdge(matching))
	assert.Equal(t, 3, g.EdgeCount())
}

func TestNodeLookup(t *testing.T) {
	g := newTestGraph(t, []Node{
		codeNode("A", 0x1000, 0x1010),
		dataNode("B", 0x1010, 0x1020),
		{ID: "C", Type: nodeid.Code, Start: 0x1020, End: 0x1030},
	}, nil)

	n, ok := g.NodeByBlockID("B")
	assert.True(t, ok)
	assert.Equal(t, "B", n.ID)
	_, ok = g.NodeByBlockID("")
	assert.False(t, ok)
	_, ok = g.NodeByBlockID("C")
	assert.False(t, ok)

	overlapping := g.NodesOverlapping(0x100F, 0x1021)
	assert.Len(t, overlapping, 3)
	assert.Empty(t, g.NodesOverlapping(0x1030, 0x1040))
	assert.Len(t, g.NodesOverlapping(0x1010, 0x1020), 1)

	assert.NoError(t, g.SetNodeType("B", nodeid.Code))
	n, _ = g.Node("B")
	assert.Equal(t, nodeid.Code, n.Type)
	assert.True(t, errors.Is(g.SetNodeType("X", nodeid.Code), ErrNodeNotFound))
	assert.True(t, errors.Is(g.SetNodeType("B", nodeid.Kind("rom")), ErrInvalidNode))
}

func TestRemoveNodeCascades(t *testing.T) {
	g := newTestGraph(t,
		[]Node{codeNode("A", 0x1000, 0x1010), codeNode("B", 0x2000, 0x2010), codeNode("C", 0x3000, 0x3010)},
		[]Edge{
			edge("A", "B", Call, 0x1000, 0x2000),
			edge("B", "C", Jump, 0x2000, 0x3000),
			edge("C", "A", Jump, 0x3000, 0x1000),
		})
	assert.NoError(t, g.SetEntryPoints([]string{"A", "B"}))

	g.RemoveNode("B")
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())
	assert.Len(t, g.EdgesTo("B"), 0)
	assert.Len(t, g.EdgesFrom("B"), 0)
	assert.Equal(t, []string{"A"}, g.EntryPoints())
	assertNoDanglingEdges(t, g)

	// idempotent
	g.RemoveNode("B")
	assert.Equal(t, 2, g.NodeCount())
}

func TestChildrenAndParents(t *testing.T) {
	g := newTestGraph(t,
		[]Node{codeNode("A", 0x1000, 0x1010), codeNode("B", 0x2000, 0x2010), dataNode("D", 0x3000, 0x3010)},
		[]Edge{
			edge("A", "B", Call, 0x1000, 0x2000),
			edge("A", "B", Jump, 0x1005, 0x2000),
			edge("A", "D", DataRead, 0x1008, 0x3000),
			edge("B", "D", DataWrite, 0x2000, 0x3000),
		})

	children := g.Children("A", FilterAll)
	assert.Len(t, children, 2)
	assert.Equal(t, "B", children[0].ID)
	assert.Equal(t, "D", children[1].ID)

	children = g.Children("A", FilterControlFlow)
	assert.Len(t, children, 1)
	assert.Equal(t, "B", children[0].ID)

	parents := g.Parents("D", FilterData)
	assert.Len(t, parents, 2)
	assert.Len(t, g.Parents("D", FilterControlFlow), 0)
}

func TestHasSelfLoop(t *testing.T) {
	g := newTestGraph(t,
		[]Node{codeNode("A", 0x1000, 0x1010), codeNode("B", 0x2000, 0x2010)},
		[]Edge{
			edge("A", "A", Branch, 0x1004, 0x1000),
			edge("A", "B", Call, 0x1006, 0x2000),
		})
	assert.True(t, g.HasSelfLoop("A"))
	assert.False(t, g.HasSelfLoop("B"))
}

func TestSplitNode(t *testing.T) {
	g := newTestGraph(t,
		[]Node{codeNode("A", 0x1000, 0x2000), codeNode("B", 0x3000, 0x3010), codeNode("C", 0x4000, 0x4010)},
		[]Edge{
			edge("A", "B", Call, 0x1010, 0x3000),
			edge("A", "C", Jump, 0x1080, 0x4000),
			edge("B", "A", Jump, 0x3000, 0x1000),
			edge("C", "A", Branch, 0x4002, 0x1090),
		})
	assert.NoError(t, g.SetEntryPoints([]string{"A"}))

	assert.NoError(t, g.SplitNode("A", 0x1080, "A1", "A2"))

	_, ok := g.Node("A")
	assert.False(t, ok)
	a1, ok := g.Node("A1")
	assert.True(t, ok)
	assert.Equal(t, uint16(0x1000), a1.Start)
	assert.Equal(t, uint32(0x1080), a1.End)
	a2, ok := g.Node("A2")
	assert.True(t, ok)
	assert.Equal(t, uint16(0x1080), a2.Start)
	assert.Equal(t, uint32(0x2000), a2.End)

	// outgoing by source instruction, boundary belongs to the second half
	assert.Equal(t, "A1", g.EdgesTo("B")[0].Source)
	assert.Equal(t, "A2", g.EdgesTo("C")[0].Source)
	// incoming by target address
	assert.Equal(t, "A1", g.EdgesFrom("B")[0].TargetNodeID)
	assert.Equal(t, "A2", g.EdgesFrom("C")[0].TargetNodeID)

	fallthroughs := g.EdgesTo("A2")
	var found bool
	for _, e := range fallthroughs {
		if e.Type == Fallthrough && e.Source == "A1" {
			found = true
			assert.Equal(t, uint16(0x107F), e.SourceInstruction)
		}
	}
	assert.True(t, found)

	assert.Equal(t, []string{"A1"}, g.EntryPoints())
	assert.Equal(t, []string{"A1", "A2", "B", "C"}, g.NodeIDs())
	assertNoDanglingEdges(t, g)
}

func TestSplitNodeKeepsID(t *testing.T) {
	g := newTestGraph(t, []Node{dataNode("data_1000", 0x1000, 0x1100)}, nil)
	assert.NoError(t, g.SplitNode("data_1000", 0x1040, "data_1000", "data_1040"))

	n, ok := g.Node("data_1000")
	assert.True(t, ok)
	assert.Equal(t, uint32(0x1040), n.End)
	// data nodes do not fall through
	assert.Equal(t, 0, g.EdgeCount())
}

func TestSplitNodeErrors(t *testing.T) {
	g := newTestGraph(t, []Node{codeNode("A", 0x1000, 0x2000), codeNode("B", 0x3000, 0x3010)}, nil)

	assert.True(t, errors.Is(g.SplitNode("X", 0x1080, "X1", "X2"), ErrNodeNotFound))
	for _, splitAt := range []uint16{0x1000, 0x2000, 0x0FFF} {
		assert.True(t, errors.Is(g.SplitNode("A", splitAt, "A1", "A2"), ErrSplitOutOfRange))
	}
	assert.True(t, errors.Is(g.SplitNode("A", 0x1080, "B", "A2"), ErrDuplicateNode))
	assert.True(t, errors.Is(g.SplitNode("A", 0x1080, "A1", "A1"), ErrInvalidNode))
	assert.Equal(t, 2, g.NodeCount())
}

func TestMergeNodes(t *testing.T) {
	g := newTestGraph(t,
		[]Node{codeNode("B", 0x1080, 0x1100), codeNode("A", 0x1000, 0x1080), codeNode("C", 0x2000, 0x2010)},
		[]Edge{
			edge("A", "B", Fallthrough, 0x107F, 0x1080),
			edge("B", "A", Branch, 0x1090, 0x1000),
			edge("B", "B", Branch, 0x10A0, 0x1080),
			edge("B", "C", Call, 0x10B0, 0x2000),
			edge("C", "A", Jump, 0x2000, 0x1000),
		})
	assert.NoError(t, g.SetEntryPoints([]string{"B", "A"}))
	d := g.SCCDecomposition()

	assert.NoError(t, g.MergeNodes("B", "A", "AB"))

	n, ok := g.Node("AB")
	assert.True(t, ok)
	assert.Equal(t, uint16(0x1000), n.Start)
	assert.Equal(t, uint32(0x1100), n.End)
	assert.Equal(t, "A", n.BlockID)
	assert.Equal(t, 2, g.NodeCount())

	// edges between the pair are dropped, existing self loops stay
	assert.Equal(t, 3, g.EdgeCount())
	assert.True(t, g.HasSelfLoop("AB"))
	assert.Equal(t, "AB", g.EdgesTo("C")[0].Source)
	assert.Equal(t, "C", g.EdgesTo("AB")[1].Source)
	assert.Equal(t, []string{"AB"}, g.EntryPoints())
	assert.Equal(t, []string{"AB", "C"}, g.NodeIDs())
	assert.True(t, d != g.SCCDecomposition())
	assertNoDanglingEdges(t, g)
}

func TestMergeNodesErrors(t *testing.T) {
	g := newTestGraph(t, []Node{codeNode("A", 0x1000, 0x1080), codeNode("B", 0x1080, 0x1100), codeNode("C", 0x2000, 0x2010)}, nil)

	assert.True(t, errors.Is(g.MergeNodes("A", "X", "AX"), ErrNodeNotFound))
	assert.True(t, errors.Is(g.MergeNodes("A", "A", "AA"), ErrSameNode))
	assert.True(t, errors.Is(g.MergeNodes("A", "B", "C"), ErrDuplicateNode))
	assert.NoError(t, g.MergeNodes("A", "B", "A"))
	assert.Equal(t, 2, g.NodeCount())
}

func TestSCCCache(t *testing.T) {
	g := newTestGraph(t,
		[]Node{codeNode("A", 0x1000, 0x1010), codeNode("B", 0x2000, 0x2010)},
		[]Edge{edge("A", "B", Call, 0x1000, 0x2000)})

	d1 := g.SCCDecomposition()
	assert.True(t, d1 == g.SCCDecomposition())

	// non structural changes keep the cache
	assert.NoError(t, g.SetBankingState("A", bitmask.DefaultSnapshot(), bitmask.DefaultSnapshot()))
	assert.NoError(t, g.UpdatePipelineState("A", func(s *PipelineState) { s.Confidence = 0.5 }))
	assert.NoError(t, g.SetEntryPoints([]string{"A"}))
	assert.True(t, d1 == g.SCCDecomposition())

	mutations := []func(){
		func() { assert.NoError(t, g.AddNode(codeNode("C", 0x3000, 0x3010))) },
		func() { assert.NoError(t, g.AddEdge(edge("B", "C", Jump, 0x2000, 0x3000))) },
		func() { assert.NoError(t, g.SplitNode("C", 0x3008, "C1", "C2")) },
		func() { assert.NoError(t, g.MergeNodes("C1", "C2", "C")) },
		func() { g.RemoveNode("C") },
	}
	for _, mutate := range mutations {
		before := g.SCCDecomposition()
		mutate()
		after := g.SCCDecomposition()
		assert.True(t, before != after)
		assert.True(t, after == g.SCCDecomposition())
	}

	cf, err := g.SCCDecompositionFor(FilterControlFlow)
	assert.NoError(t, err)
	assert.True(t, cf != g.SCCDecomposition())
	_, err = g.SCCDecompositionFor(Filter("calls"))
	assert.True(t, errors.Is(err, ErrInvalidFilter))
}

func TestTwoCycle(t *testing.T) {
	g := newTestGraph(t,
		[]Node{codeNode("A", 0x1000, 0x1010), codeNode("B", 0x2000, 0x2010)},
		[]Edge{
			edge("A", "B", Jump, 0x1000, 0x2000),
			edge("B", "A", Jump, 0x2000, 0x1000),
		})

	d := g.SCCDecomposition()
	assert.Equal(t, d.NodeToSCC["A"], d.NodeToSCC["B"])
	assert.Equal(t, [][]string{{"A", "B"}}, g.TopologicalSort())
}

func TestReachability(t *testing.T) {
	g := newTestGraph(t,
		[]Node{
			codeNode("main", 0x0810, 0x0820),
			codeNode("sub", 0x0820, 0x0830),
			dataNode("table", 0x0900, 0x0910),
			codeNode("irq", 0x0A00, 0x0A10),
			codeNode("irqsub", 0x0A10, 0x0A20),
			codeNode("orphan", 0x0B00, 0x0B10),
		},
		[]Edge{
			edge("main", "sub", Call, 0x0810, 0x0820),
			edge("sub", "table", DataRead, 0x0820, 0x0900),
			edge("irq", "irqsub", Call, 0x0A00, 0x0A10),
			edge("orphan", "main", Jump, 0x0B00, 0x0810),
		})
	assert.NoError(t, g.SetEntryPoints([]string{"main"}))
	assert.NoError(t, g.SetIRQHandlers([]string{"irq"}))

	assert.Equal(t, []string{"main", "sub", "table", "irq", "irqsub"}, g.ReachableNodes())
	dead := g.DeadNodes()
	assert.Len(t, dead, 1)
	assert.Equal(t, "orphan", dead[0].ID)

	assert.True(t, errors.Is(g.SetEntryPoints([]string{"missing"}), ErrNodeNotFound))
}

func TestNodeCopiesDoNotAlias(t *testing.T) {
	g := newTestGraph(t, []Node{codeNode("A", 0x1000, 0x1010)}, nil)
	assert.NoError(t, g.SetBankingState("A", bitmask.DefaultSnapshot(), bitmask.UnknownSnapshot()))

	n, _ := g.Node("A")
	n.End = 0x2000
	n.BankingState.OnEntry = bitmask.UnknownSnapshot()

	stored, _ := g.Node("A")
	assert.Equal(t, uint32(0x1010), stored.End)
	assert.Equal(t, bitmask.Yes, stored.BankingState.OnEntry.KernalMapped)
}
