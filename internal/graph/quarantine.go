package graph

import (
	"fmt"
	"slices"
)

// DiscoveryType is the kind of a speculative discovery.
type DiscoveryType string

// Discovery types.
const (
	DiscoveryCode DiscoveryType = "code"
	DiscoveryData DiscoveryType = "data"
	DiscoveryEdge DiscoveryType = "edge"
)

// SpeculativeDiscovery is a finding that is kept out of the graph until it
// is corroborated.
type SpeculativeDiscovery struct {
	ID             string        `json:"id"`
	Type           DiscoveryType `json:"type"`
	Address        *uint16       `json:"address,omitempty"`
	Edge           *Edge         `json:"edge,omitempty"`
	DiscoveredBy   string        `json:"discoveredBy"`
	Corroborations []string      `json:"corroborations"`
	Confidence     int           `json:"confidence"`
}

// Quarantine stores a discovery, replacing an earlier one with the same id.
func (g *Graph) Quarantine(d SpeculativeDiscovery) error {
	if d.ID == "" {
		return fmt.Errorf("%w: empty id", ErrDiscoveryInvalid)
	}
	if d.Type == DiscoveryEdge && d.Edge == nil {
		return fmt.Errorf("%w '%s': edge discovery without edge", ErrDiscoveryInvalid, d.ID)
	}

	if _, ok := g.quarantined[d.ID]; !ok {
		g.quarantineOrder = append(g.quarantineOrder, d.ID)
	}
	g.quarantined[d.ID] = cloneDiscovery(d)
	return nil
}

// PromoteQuarantined moves a discovery into the graph. A carried edge is
// added through AddEdge, on failure the discovery stays quarantined.
func (g *Graph) PromoteQuarantined(id string) error {
	d, ok := g.quarantined[id]
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrDiscoveryMissing, id)
	}
	if d.Edge != nil {
		if err := g.AddEdge(*d.Edge); err != nil {
			return fmt.Errorf("promoting discovery '%s': %w", id, err)
		}
	}

	delete(g.quarantined, id)
	g.quarantineOrder = slices.DeleteFunc(g.quarantineOrder, func(s string) bool { return s == id })
	return nil
}

// Quarantined returns all quarantined discoveries in insertion order.
func (g *Graph) Quarantined() []SpeculativeDiscovery {
	discoveries := make([]SpeculativeDiscovery, 0, len(g.quarantineOrder))
	for _, id := range g.quarantineOrder {
		discoveries = append(discoveries, cloneDiscovery(g.quarantined[id]))
	}
	return discoveries
}

func cloneDiscovery(d SpeculativeDiscovery) SpeculativeDiscovery {
	if d.Address != nil {
		address := *d.Address
		d.Address = &address
	}
	if d.Edge != nil {
		edge := *d.Edge
		d.Edge = &edge
	}
	d.Corroborations = slices.Clone(d.Corroborations)
	return d
}
