package graph

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/retroenv/c64re/internal/block"
	"github.com/retroenv/c64re/internal/nodeid"
)

const (
	staticDiscoverer = "static_analysis"
	staticPhase      = "static_analysis"
)

// Build creates a graph from a block list. Every block becomes a node
// named after its kind and start address. Every instruction with an absolute
// or relative operand becomes an edge, resolved to the node containing the
// target if one exists. A code block whose last instruction does not end
// the control flow gets a fallthrough edge to the block starting at its end.
// IRQ handler blocks are registered as IRQ handlers.
func Build(blocks []block.Block, entryPoints []uint16) (*Graph, error) {
	g := New()
	ids := make(map[uint16]string, len(blocks))

	sorted := slices.Clone(blocks)
	slices.SortFunc(sorted, func(a, b block.Block) int {
		return cmp.Compare(a.Address, b.Address)
	})

	for _, b := range blocks {
		id := b.NodeID().String()
		ids[b.Address] = id
		err := g.AddNode(Node{
			ID:            id,
			Type:          b.Kind(),
			Start:         b.Address,
			End:           b.EndAddress,
			BlockID:       b.ID,
			DiscoveredBy:  staticDiscoverer,
			EndConfidence: 100,
		})
		if err != nil {
			return nil, fmt.Errorf("adding node for block '%s': %w", b.ID, err)
		}
	}

	resolve := func(address uint16) string {
		i, found := slices.BinarySearchFunc(sorted, address, func(b block.Block, target uint16) int {
			return cmp.Compare(b.Address, target)
		})
		if !found {
			i--
		}
		if i < 0 || !sorted[i].Contains(address) {
			return ""
		}
		return ids[sorted[i].Address]
	}

	var irqHandlers []string
	for _, b := range blocks {
		source := ids[b.Address]
		if b.Type == block.IRQHandler || b.IsIRQHandler {
			irqHandlers = append(irqHandlers, source)
		}

		for _, ins := range b.Instructions {
			target, ok := operandAddress(ins)
			if !ok {
				continue
			}
			typ, ok := EdgeTypeFor(ins.Mnemonic, ins.AddressingMode, target)
			if !ok {
				continue
			}
			err := g.AddEdge(Edge{
				Source:            source,
				Target:            target,
				TargetNodeID:      resolve(target),
				Type:              typ,
				SourceInstruction: ins.Address,
				Confidence:        100,
				DiscoveredBy:      staticDiscoverer,
				DiscoveredInPhase: staticPhase,
			})
			if err != nil {
				return nil, fmt.Errorf("adding edge at $%04X: %w", ins.Address, err)
			}
		}

		if err := addFallthrough(g, b, source, ids); err != nil {
			return nil, err
		}
	}

	var entries []string
	for _, address := range entryPoints {
		id := resolve(address)
		if id == "" {
			return nil, fmt.Errorf("%w: no node contains entry point %s", ErrNodeNotFound, nodeid.FormatAddress(address))
		}
		entries = append(entries, id)
	}
	if err := g.SetEntryPoints(entries); err != nil {
		return nil, err
	}
	if err := g.SetIRQHandlers(irqHandlers); err != nil {
		return nil, err
	}
	return g, nil
}

func addFallthrough(g *Graph, b block.Block, source string, ids map[uint16]string) error {
	if b.Kind() != nodeid.Code || len(b.Instructions) == 0 || b.EndAddress > 0xFFFF {
		return nil
	}
	last := b.Instructions[len(b.Instructions)-1]
	if !FallsThrough(last.Mnemonic) {
		return nil
	}
	next := uint16(b.EndAddress)
	target, ok := ids[next]
	if !ok {
		return nil
	}

	err := g.AddEdge(Edge{
		Source:            source,
		Target:            next,
		TargetNodeID:      target,
		Type:              Fallthrough,
		SourceInstruction: next - 1,
		Confidence:        100,
		DiscoveredBy:      staticDiscoverer,
		DiscoveredInPhase: staticPhase,
	})
	if err != nil {
		return fmt.Errorf("adding fallthrough edge at $%04X: %w", next-1, err)
	}
	return nil
}

// operandAddress extracts the target address of an instruction operand like
// $0810, $0810,X or ($0314).
func operandAddress(ins block.Instruction) (uint16, bool) {
	switch ins.AddressingMode {
	case "immediate", "implied", "accumulator":
		return 0, false
	}

	operand := ins.Operand
	start, end := -1, len(operand)
	for i, c := range operand {
		if c == '$' {
			start = i
			continue
		}
		if start >= 0 && !isHexDigit(c) {
			end = i
			break
		}
	}
	if start < 0 {
		return 0, false
	}

	address, err := nodeid.ParseAddress(operand[start:end])
	if err != nil {
		return 0, false
	}
	return address, true
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
