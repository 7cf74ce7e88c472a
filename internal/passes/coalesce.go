// Package passes contains the built-in edit proposers.
package passes

import (
	"context"
	"slices"

	"github.com/retroenv/c64re/internal/edit"
	"github.com/retroenv/c64re/internal/graph"
	"github.com/retroenv/c64re/internal/nodeid"
	"github.com/retroenv/c64re/internal/scheduler"
)

// CoalescePriority runs coalescing before passes that analyze node contents.
const CoalescePriority = 10

// Coalesce merges a code node with its fallthrough successor if the
// successor is entered from nowhere else. Entry points and IRQ handlers are
// never merged into their predecessor. Nodes derived from blocks are merged
// together with their blocks, a node pair of which only one is derived from
// a block is left alone.
type Coalesce struct{}

// Name returns the proposer name.
func (Coalesce) Name() string { return "coalesce" }

// Priority returns the proposer priority.
func (Coalesce) Priority() int { return CoalescePriority }

// Propose returns a node merge for a single node group.
func (Coalesce) Propose(_ context.Context, group []string, view scheduler.View) ([]edit.Edit, error) {
	if len(group) != 1 {
		return nil, nil
	}
	id := group[0]
	node, ok := view.Graph.Node(id)
	if !ok || node.Type != nodeid.Code {
		return nil, nil
	}

	successor, ok := fallthroughSuccessor(view.Graph, node)
	if !ok {
		return nil, nil
	}

	switch {
	case node.BlockID == "" && successor.BlockID == "":
		merge := edit.MergeNodes{
			First:  id,
			Second: successor.ID,
			NewID:  id,
		}
		return []edit.Edit{merge}, nil

	case node.BlockID != "" && successor.BlockID != "":
		// block backed nodes are merged together with their blocks
		merge := edit.CoalesceBlocks{
			First:  node.Start,
			Second: successor.Start,
			Reason: "straight line fallthrough",
		}
		return []edit.Edit{merge}, nil

	default:
		return nil, nil
	}
}

func fallthroughSuccessor(g graph.Reader, node graph.Node) (graph.Node, bool) {
	var successor string
	for _, e := range g.EdgesFrom(node.ID) {
		// calls return to the next instruction
		if e.Category != graph.CategoryControlFlow || e.Type == graph.Call {
			continue
		}
		if e.Type != graph.Fallthrough || e.TargetNodeID == "" || e.TargetNodeID == node.ID {
			return graph.Node{}, false
		}
		if successor != "" && successor != e.TargetNodeID {
			return graph.Node{}, false
		}
		successor = e.TargetNodeID
	}
	if successor == "" {
		return graph.Node{}, false
	}

	next, ok := g.Node(successor)
	if !ok || next.Type != nodeid.Code || uint32(next.Start) != node.End {
		return graph.Node{}, false
	}
	for _, e := range g.EdgesTo(successor) {
		if e.Category == graph.CategoryControlFlow && e.Source != node.ID {
			return graph.Node{}, false
		}
	}
	if isRoot(g, successor) {
		return graph.Node{}, false
	}
	return next, true
}

func isRoot(g graph.Reader, id string) bool {
	return slices.Contains(g.EntryPoints(), id) || slices.Contains(g.IRQHandlers(), id)
}
