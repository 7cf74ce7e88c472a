package graph

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// Metadata holds summary counts computed when a snapshot is taken.
type Metadata struct {
	TotalNodes       int `json:"totalNodes"`
	TotalEdges       int `json:"totalEdges"`
	ReachableNodes   int `json:"reachableNodes"`
	DeadNodes        int `json:"deadNodes"`
	BankingAnnotated int `json:"bankingAnnotated"`
}

// Snapshot is the serialized form of a graph.
type Snapshot struct {
	Nodes       map[string]Node        `json:"nodes"`
	Edges       []Edge                 `json:"edges"`
	EntryPoints []string               `json:"entryPoints"`
	IRQHandlers []string               `json:"irqHandlers"`
	Quarantined []SpeculativeDiscovery `json:"quarantined,omitempty"`
	Metadata    Metadata               `json:"metadata"`
}

// Snapshot returns a deep copy of the graph contents with current metadata.
func (g *Graph) Snapshot() Snapshot {
	s := Snapshot{
		Nodes:       make(map[string]Node, len(g.nodes)),
		Edges:       g.Edges(),
		EntryPoints: g.EntryPoints(),
		IRQHandlers: g.IRQHandlers(),
		Quarantined: g.Quarantined(),
	}
	if s.Edges == nil {
		s.Edges = []Edge{}
	}
	if s.EntryPoints == nil {
		s.EntryPoints = []string{}
	}
	if s.IRQHandlers == nil {
		s.IRQHandlers = []string{}
	}

	for id, n := range g.nodes {
		s.Nodes[id] = n.clone()
		if n.BankingState != nil {
			s.Metadata.BankingAnnotated++
		}
	}

	reachable := len(g.ReachableNodes())
	s.Metadata.TotalNodes = len(g.nodes)
	s.Metadata.TotalEdges = len(g.edges)
	s.Metadata.ReachableNodes = reachable
	s.Metadata.DeadNodes = len(g.nodes) - reachable
	return s
}

// MarshalJSON encodes the graph as its snapshot.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Snapshot())
}

// FromSnapshot builds a graph from a snapshot. Nodes are added in id order,
// edges in their stored order. The metadata is ignored since it is derived.
// Edges referencing missing nodes are rejected.
func FromSnapshot(s Snapshot) (*Graph, error) {
	g := New()

	ids := make([]string, 0, len(s.Nodes))
	for id := range s.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		n := s.Nodes[id]
		if n.ID == "" {
			n.ID = id
		}
		if n.ID != id {
			return nil, fmt.Errorf("%w: node key '%s' holds id '%s'", ErrInvalidNode, id, n.ID)
		}
		if err := g.AddNode(n); err != nil {
			return nil, fmt.Errorf("adding node: %w", err)
		}
	}

	for i, e := range s.Edges {
		if err := g.AddEdge(e); err != nil {
			return nil, fmt.Errorf("adding edge %d: %w", i, err)
		}
	}
	if err := g.SetEntryPoints(s.EntryPoints); err != nil {
		return nil, err
	}
	if err := g.SetIRQHandlers(s.IRQHandlers); err != nil {
		return nil, err
	}
	for _, d := range s.Quarantined {
		if err := g.Quarantine(d); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// FromJSON decodes a graph from its JSON snapshot.
func FromJSON(data []byte) (*Graph, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding graph snapshot: %w", err)
	}
	return FromSnapshot(s)
}

// Equal returns whether both graphs hold the same nodes, edges, entry points
// and IRQ handlers. Node insertion order is not compared.
func (g *Graph) Equal(other *Graph) bool {
	if len(g.nodes) != len(other.nodes) ||
		!slices.Equal(g.edges, other.edges) ||
		!slices.Equal(g.entryPoints, other.entryPoints) ||
		!slices.Equal(g.irqHandlers, other.irqHandlers) {
		return false
	}

	for id, n := range g.nodes {
		o, ok := other.nodes[id]
		if !ok || !nodesEqual(*n, *o) {
			return false
		}
	}
	return true
}

func nodesEqual(a, b Node) bool {
	if (a.BankingState == nil) != (b.BankingState == nil) {
		return false
	}
	if a.BankingState != nil {
		if !a.BankingState.OnEntry.Equal(b.BankingState.OnEntry) ||
			!a.BankingState.OnExit.Equal(b.BankingState.OnExit) {
			return false
		}
	}
	a.BankingState, b.BankingState = nil, nil
	return a == b
}
