package graph

import (
	"github.com/retroenv/c64re/internal/bitmask"
	"github.com/retroenv/c64re/internal/nodeid"
)

// Category groups edge types by whether they affect control flow.
type Category string

// Edge categories.
const (
	CategoryControlFlow Category = "control_flow"
	CategoryData        Category = "data"
)

// Filter selects the edge categories that participate in a traversal.
type Filter string

// Edge filters.
const (
	FilterControlFlow Filter = "control_flow"
	FilterData        Filter = "data"
	FilterAll         Filter = "all"
)

// Matches returns whether edges of the category pass the filter.
func (f Filter) Matches(c Category) bool {
	switch f {
	case FilterAll:
		return true
	case FilterControlFlow:
		return c == CategoryControlFlow
	case FilterData:
		return c == CategoryData
	default:
		return false
	}
}

// Valid returns whether the filter is known.
func (f Filter) Valid() bool {
	switch f {
	case FilterAll, FilterControlFlow, FilterData:
		return true
	default:
		return false
	}
}

// EdgeType is the kind of dependency an edge represents.
type EdgeType string

// Control flow edge types.
const (
	Branch       EdgeType = "branch"
	Fallthrough  EdgeType = "fallthrough"
	Jump         EdgeType = "jump"
	IndirectJump EdgeType = "indirect_jump"
	Call         EdgeType = "call"
	RTSDispatch  EdgeType = "rts_dispatch" // pushed address followed by RTS
)

// Data edge types.
const (
	DataRead      EdgeType = "data_read"
	DataWrite     EdgeType = "data_write"
	PointerRef    EdgeType = "pointer_ref"
	HardwareRead  EdgeType = "hardware_read"
	HardwareWrite EdgeType = "hardware_write"
	SMCWrite      EdgeType = "smc_write"
	VectorWrite   EdgeType = "vector_write"
)

// CategoryOf returns the category of an edge type, ok is false for
// unsupported types.
func CategoryOf(t EdgeType) (Category, bool) {
	switch t {
	case Branch, Fallthrough, Jump, IndirectJump, Call, RTSDispatch:
		return CategoryControlFlow, true
	case DataRead, DataWrite, PointerRef, HardwareRead, HardwareWrite, SMCWrite, VectorWrite:
		return CategoryData, true
	default:
		return "", false
	}
}

// PipelineState tracks the analysis progress of a node across runs.
type PipelineState struct {
	StaticEnrichmentComplete bool    `json:"staticEnrichmentComplete"`
	AIEnrichmentComplete     bool    `json:"aiEnrichmentComplete"`
	ReverseEngineered        bool    `json:"reverseEngineered"`
	Confidence               float64 `json:"confidence"` // 0.0 - 1.0
	Stage3Iterations         int     `json:"stage3Iterations"`
	BailCount                int     `json:"bailCount"`
	BailReason               string  `json:"bailReason,omitempty"`
}

// BankingState is the banking snapshot on entry and exit of a node.
type BankingState struct {
	OnEntry bitmask.Snapshot `json:"onEntry"`
	OnExit  bitmask.Snapshot `json:"onExit"`
}

// Node is a block level vertex of the dependency graph.
type Node struct {
	ID            string        `json:"id"`
	Type          nodeid.Kind   `json:"type"`
	Start         uint16        `json:"start"`
	End           uint32        `json:"end"` // exclusive
	BlockID       string        `json:"blockId"`
	DiscoveredBy  string        `json:"discoveredBy"`
	EndConfidence int           `json:"endConfidence"` // 0-100
	BankingState  *BankingState `json:"bankingState,omitempty"`
	PipelineState PipelineState `json:"pipelineState"`
}

// Contains returns whether the address is inside of the node range.
func (n Node) Contains(address uint16) bool {
	return address >= n.Start && uint32(address) < n.End
}

func (n Node) clone() Node {
	if n.BankingState != nil {
		state := *n.BankingState
		n.BankingState = &state
	}
	return n
}

// Edge is a directed dependency from a node to a target address. An empty
// TargetNodeID marks a target outside of the known nodes, like a ROM routine.
type Edge struct {
	Source            string   `json:"source"`
	Target            uint16   `json:"target"`
	TargetNodeID      string   `json:"targetNodeId,omitempty"`
	Type              EdgeType `json:"type"`
	Category          Category `json:"category"`
	SourceInstruction uint16   `json:"sourceInstruction"`
	Confidence        int      `json:"confidence"` // 0-100
	DiscoveredBy      string   `json:"discoveredBy"`
	DiscoveredInPhase string   `json:"discoveredInPhase"`
}
