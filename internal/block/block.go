// Package block contains the block record and the versioned store that owns
// the partition of the address space into code and data blocks.
package block

import (
	"maps"
	"slices"

	"github.com/retroenv/c64re/internal/nodeid"
)

// Type is the classification of a block.
type Type string

// Block types.
const (
	Subroutine Type = "subroutine"
	IRQHandler Type = "irq_handler"
	Fragment   Type = "fragment"
	Data       Type = "data"
	Unknown    Type = "unknown"
)

// Valid returns whether the type is one of the known block types.
func (t Type) Valid() bool {
	switch t {
	case Subroutine, IRQHandler, Fragment, Data, Unknown:
		return true
	default:
		return false
	}
}

// Reachability describes how a block was found from an entry point.
type Reachability string

// Reachability values.
const (
	Proven   Reachability = "proven"
	Indirect Reachability = "indirect"
	Unproven Reachability = "unproven"
)

// Instruction is a decoded instruction inside of a code block.
type Instruction struct {
	Address        uint16 `json:"address"`
	RawBytes       string `json:"rawBytes"` // hex string like "A9 00"
	Mnemonic       string `json:"mnemonic"`
	Operand        string `json:"operand"`
	AddressingMode string `json:"addressingMode"`
	Label          string `json:"label,omitempty"`
}

// Block is a contiguous address range with a single classification.
// EndAddress is exclusive and can be $10000 for a block ending at $FFFF.
type Block struct {
	ID           string       `json:"id"`
	Address      uint16       `json:"address"`
	EndAddress   uint32       `json:"endAddress"`
	Type         Type         `json:"type"`
	Reachability Reachability `json:"reachability"`

	Instructions []Instruction `json:"instructions,omitempty"`
	Raw          []byte        `json:"raw,omitempty"`

	IsIRQHandler bool              `json:"isIrqHandler,omitempty"`
	Labels       []string          `json:"labels,omitempty"`
	Comments     []string          `json:"comments,omitempty"`
	Annotations  map[string]string `json:"annotations,omitempty"`
}

// Kind returns the graph node kind for the block type.
func (b Block) Kind() nodeid.Kind {
	return KindOf(b.Type)
}

// KindOf maps a block type to a graph node kind. Data and unknown blocks
// become data nodes, everything else is code.
func KindOf(t Type) nodeid.Kind {
	switch t {
	case Data, Unknown:
		return nodeid.Data
	default:
		return nodeid.Code
	}
}

// NodeID returns the graph node identifier derived from the block.
func (b Block) NodeID() nodeid.ID {
	return nodeid.New(b.Kind(), b.Address)
}

// Size returns the number of bytes covered by the block.
func (b Block) Size() uint32 {
	return b.EndAddress - uint32(b.Address)
}

// Contains returns whether the address is inside of the block.
func (b Block) Contains(address uint16) bool {
	return address >= b.Address && uint32(address) < b.EndAddress
}

// Clone returns a deep copy that shares no memory with the original.
func (b Block) Clone() Block {
	b.Instructions = slices.Clone(b.Instructions)
	b.Raw = slices.Clone(b.Raw)
	b.Labels = slices.Clone(b.Labels)
	b.Comments = slices.Clone(b.Comments)
	b.Annotations = maps.Clone(b.Annotations)
	return b
}
