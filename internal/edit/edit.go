// Package edit implements proposed program changes as values that are
// applied serially to the block store and the graph.
package edit

import (
	"errors"
	"fmt"

	"github.com/retroenv/c64re/internal/block"
	"github.com/retroenv/c64re/internal/graph"
	"github.com/retroenv/c64re/internal/nodeid"
)

var (
	// ErrRejected is returned for edits that are well formed but not allowed.
	ErrRejected = errors.New("edit rejected")
	// ErrOutOfSync is returned when a block edit can not find the graph node
	// derived from the block although nodes cover its range.
	ErrOutOfSync = errors.New("graph out of sync with block store")
)

// minSplitSize is the smallest block half a split may produce.
const minSplitSize = 2

// Kind names an edit type. It is used as label in edit scripts.
type Kind string

// Edit kinds.
const (
	KindReclassifyBlock Kind = "reclassify_block"
	KindSplitBlock      Kind = "split_block"
	KindMergeBlocks     Kind = "merge_blocks"
	KindCoalesceBlocks  Kind = "coalesce_blocks"
	KindSplitNode       Kind = "split_node"
	KindMergeNodes      Kind = "merge_nodes"
	KindAddNode         Kind = "add_node"
	KindAddEdge         Kind = "add_edge"
)

// Edit is a single proposed mutation.
type Edit interface {
	Kind() Kind
	String() string

	apply(store *block.Store, g *graph.Graph) error
}

// ReclassifyBlock changes the type of the block starting at Address and the
// kind of the graph node derived from it. The node keeps its id.
type ReclassifyBlock struct {
	Address uint16
	Type    block.Type
	Reason  string
}

// SplitBlock splits the block starting at Address and the graph node
// derived from it. Both halves must be at least 2 bytes long.
type SplitBlock struct {
	Address uint16
	SplitAt uint16
	Reason  string
}

// MergeBlocks merges two adjacent data or unknown blocks and their graph
// nodes. The result keeps the id of the lower block.
type MergeBlocks struct {
	First  uint16
	Second uint16
	Reason string
}

// CoalesceBlocks joins two adjacent code blocks and their graph nodes. The
// result keeps the id and type of the lower block.
type CoalesceBlocks struct {
	First  uint16
	Second uint16
	Reason string
}

// SplitNode splits a graph node into the nodes First and Second.
type SplitNode struct {
	ID      string
	SplitAt uint16
	First   string
	Second  string
}

// MergeNodes replaces two graph nodes by NewID.
type MergeNodes struct {
	First  string
	Second string
	NewID  string
}

// AddNode adds a graph node.
type AddNode struct {
	Node graph.Node
}

// AddEdge adds a graph edge.
type AddEdge struct {
	Edge graph.Edge
}

func (e ReclassifyBlock) Kind() Kind { return KindReclassifyBlock }
func (e SplitBlock) Kind() Kind      { return KindSplitBlock }
func (e MergeBlocks) Kind() Kind     { return KindMergeBlocks }
func (e CoalesceBlocks) Kind() Kind  { return KindCoalesceBlocks }
func (e SplitNode) Kind() Kind       { return KindSplitNode }
func (e MergeNodes) Kind() Kind      { return KindMergeNodes }
func (e AddNode) Kind() Kind         { return KindAddNode }
func (e AddEdge) Kind() Kind         { return KindAddEdge }

func (e ReclassifyBlock) String() string {
	return fmt.Sprintf("%s %s -> %s", e.Kind(), nodeid.FormatAddress(e.Address), e.Type)
}

func (e SplitBlock) String() string {
	return fmt.Sprintf("%s %s at %s", e.Kind(), nodeid.FormatAddress(e.Address), nodeid.FormatAddress(e.SplitAt))
}

func (e MergeBlocks) String() string {
	return fmt.Sprintf("%s %s + %s", e.Kind(), nodeid.FormatAddress(e.First), nodeid.FormatAddress(e.Second))
}

func (e CoalesceBlocks) String() string {
	return fmt.Sprintf("%s %s + %s", e.Kind(), nodeid.FormatAddress(e.First), nodeid.FormatAddress(e.Second))
}

func (e SplitNode) String() string {
	return fmt.Sprintf("%s %s at %s -> %s, %s", e.Kind(), e.ID, nodeid.FormatAddress(e.SplitAt), e.First, e.Second)
}

func (e MergeNodes) String() string {
	return fmt.Sprintf("%s %s + %s -> %s", e.Kind(), e.First, e.Second, e.NewID)
}

func (e AddNode) String() string {
	return fmt.Sprintf("%s %s", e.Kind(), e.Node.ID)
}

func (e AddEdge) String() string {
	target := e.Edge.TargetNodeID
	if target == "" {
		target = nodeid.FormatAddress(e.Edge.Target)
	}
	return fmt.Sprintf("%s %s -%s-> %s", e.Kind(), e.Edge.Source, e.Edge.Type, target)
}

func (e ReclassifyBlock) apply(store *block.Store, g *graph.Graph) error {
	var nodeID string
	var hasNode bool
	if b, ok := store.Block(e.Address); ok {
		var err error
		if nodeID, hasNode, err = blockNode(g, b); err != nil {
			return err
		}
	}

	if err := store.Reclassify(e.Address, e.Type, e.Reason); err != nil {
		return fmt.Errorf("reclassifying block: %w", err)
	}
	if hasNode {
		if err := g.SetNodeType(nodeID, block.KindOf(e.Type)); err != nil {
			return fmt.Errorf("updating node type: %w", err)
		}
	}
	return nil
}

func (e SplitBlock) apply(store *block.Store, g *graph.Graph) error {
	b, ok := store.Block(e.Address)
	if !ok {
		return fmt.Errorf("%w at address $%04X", block.ErrBlockNotFound, e.Address)
	}
	if e.SplitAt <= b.Address || uint32(e.SplitAt) >= b.EndAddress {
		return fmt.Errorf("%w: $%04X not within block $%04X-$%04X",
			block.ErrSplitOutOfRange, e.SplitAt, b.Address, b.EndAddress)
	}
	if e.SplitAt-b.Address < minSplitSize || b.EndAddress-uint32(e.SplitAt) < minSplitSize {
		return fmt.Errorf("%w: split of $%04X at $%04X leaves a half smaller than %d bytes",
			ErrRejected, e.Address, e.SplitAt, minSplitSize)
	}

	nodeID, hasNode, err := blockNode(g, b)
	if err != nil {
		return err
	}
	secondID := nodeid.New(b.Kind(), e.SplitAt).String()
	if hasNode {
		if err := g.CheckSplitNode(nodeID, e.SplitAt, nodeID, secondID); err != nil {
			return fmt.Errorf("checking node split: %w", err)
		}
	}

	if err := store.Split(e.Address, e.SplitAt, e.Reason); err != nil {
		return fmt.Errorf("splitting block: %w", err)
	}
	if hasNode {
		if err := g.SplitNode(nodeID, e.SplitAt, nodeID, secondID); err != nil {
			return fmt.Errorf("splitting node: %w", err)
		}
	}
	return nil
}

func (e MergeBlocks) apply(store *block.Store, g *graph.Graph) error {
	first, second, err := adjacentBlocks(store, e.First, e.Second)
	if err != nil {
		return err
	}
	for _, b := range []block.Block{first, second} {
		if b.Kind() != nodeid.Data {
			return fmt.Errorf("%w: block $%04X is of type %s, only data and unknown blocks can be merged",
				ErrRejected, b.Address, b.Type)
		}
	}
	return mergeBlocks(store, g, first, second, e.Reason)
}

func (e CoalesceBlocks) apply(store *block.Store, g *graph.Graph) error {
	first, second, err := adjacentBlocks(store, e.First, e.Second)
	if err != nil {
		return err
	}
	for _, b := range []block.Block{first, second} {
		if b.Kind() != nodeid.Code {
			return fmt.Errorf("%w: block $%04X is of type %s, only code blocks can be coalesced",
				ErrRejected, b.Address, b.Type)
		}
	}
	return mergeBlocks(store, g, first, second, e.Reason)
}

// adjacentBlocks returns the blocks starting at both addresses ordered by
// address. The first block has to end where the second one starts.
func adjacentBlocks(store *block.Store, address1, address2 uint16) (block.Block, block.Block, error) {
	first, ok1 := store.Block(address1)
	second, ok2 := store.Block(address2)
	if !ok1 || !ok2 {
		return block.Block{}, block.Block{}, fmt.Errorf("%w: one or both of $%04X, $%04X",
			block.ErrBlockNotFound, address1, address2)
	}
	if second.Address < first.Address {
		first, second = second, first
	}
	if first.Address == second.Address || first.EndAddress != uint32(second.Address) {
		return block.Block{}, block.Block{}, fmt.Errorf("%w: $%04X and $%04X", block.ErrNotAdjacent, address1, address2)
	}
	return first, second, nil
}

// mergeBlocks merges two adjacent blocks in the store together with the
// graph nodes derived from them. Either both or none of the blocks must
// have a node.
func mergeBlocks(store *block.Store, g *graph.Graph, first, second block.Block, reason string) error {
	id1, has1, err := blockNode(g, first)
	if err != nil {
		return err
	}
	id2, has2, err := blockNode(g, second)
	if err != nil {
		return err
	}
	if has1 != has2 {
		return fmt.Errorf("%w: only one of the blocks '%s' and '%s' has a graph node",
			ErrOutOfSync, first.ID, second.ID)
	}
	if has1 {
		if err := g.CheckMergeNodes(id1, id2, id1); err != nil {
			return fmt.Errorf("checking node merge: %w", err)
		}
	}

	if err := store.Merge(first.Address, second.Address, reason); err != nil {
		return fmt.Errorf("merging blocks: %w", err)
	}
	if has1 {
		if err := g.MergeNodes(id1, id2, id1); err != nil {
			return fmt.Errorf("merging nodes: %w", err)
		}
	}
	return nil
}

// blockNode returns the id of the graph node derived from the block. The
// node is found through the block id, which stays stable when the block is
// reclassified. A block without node is accepted only if no node overlaps
// its range.
func blockNode(g *graph.Graph, b block.Block) (string, bool, error) {
	if n, ok := g.NodeByBlockID(b.ID); ok {
		if n.Start != b.Address || n.End != b.EndAddress {
			return "", false, fmt.Errorf("%w: node '%s' $%04X-$%04X does not match block '%s' $%04X-$%04X",
				ErrOutOfSync, n.ID, n.Start, n.End, b.ID, b.Address, b.EndAddress)
		}
		return n.ID, true, nil
	}
	if nodes := g.NodesOverlapping(b.Address, b.EndAddress); len(nodes) > 0 {
		return "", false, fmt.Errorf("%w: no node for block '%s' $%04X-$%04X but node '%s' overlaps it",
			ErrOutOfSync, b.ID, b.Address, b.EndAddress, nodes[0].ID)
	}
	return "", false, nil
}

func (e SplitNode) apply(_ *block.Store, g *graph.Graph) error {
	if err := g.SplitNode(e.ID, e.SplitAt, e.First, e.Second); err != nil {
		return fmt.Errorf("splitting node: %w", err)
	}
	return nil
}

func (e MergeNodes) apply(_ *block.Store, g *graph.Graph) error {
	if err := g.MergeNodes(e.First, e.Second, e.NewID); err != nil {
		return fmt.Errorf("merging nodes: %w", err)
	}
	return nil
}

func (e AddNode) apply(_ *block.Store, g *graph.Graph) error {
	if err := g.AddNode(e.Node); err != nil {
		return fmt.Errorf("adding node: %w", err)
	}
	return nil
}

func (e AddEdge) apply(_ *block.Store, g *graph.Graph) error {
	if err := g.AddEdge(e.Edge); err != nil {
		return fmt.Errorf("adding edge: %w", err)
	}
	return nil
}
