package edit

import (
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/retroenv/c64re/internal/block"
	"github.com/retroenv/c64re/internal/graph"
	"github.com/retroenv/c64re/internal/nodeid"
)

const scriptDiscoverer = "edit_script"

var errMissingAttribute = errors.New("missing attribute")

// hclScript is the top level structure of an edit script. Edits are applied
// in the order they appear in the file.
type hclScript struct {
	Edits []*hclEdit `hcl:"edit,block"`
}

// hclEdit holds the attributes of all edit kinds, the label selects which
// ones are used.
type hclEdit struct {
	Kind string `hcl:"kind,label"`

	Reason string `hcl:"reason,optional"`

	Address string `hcl:"address,optional"`
	SplitAt string `hcl:"split_at,optional"`
	Type    string `hcl:"type,optional"`
	First   string `hcl:"first,optional"`
	Second  string `hcl:"second,optional"`

	ID       string `hcl:"id,optional"`
	FirstID  string `hcl:"first_id,optional"`
	SecondID string `hcl:"second_id,optional"`
	NewID    string `hcl:"new_id,optional"`

	NodeType string `hcl:"node_type,optional"`
	Start    string `hcl:"start,optional"`
	End      string `hcl:"end,optional"`
	BlockID  string `hcl:"block_id,optional"`

	Source            string `hcl:"source,optional"`
	Target            string `hcl:"target,optional"`
	TargetNode        string `hcl:"target_node,optional"`
	EdgeType          string `hcl:"edge_type,optional"`
	SourceInstruction string `hcl:"source_instruction,optional"`
	Confidence        *int   `hcl:"confidence,optional"`
}

// LoadFile parses an HCL edit script file.
func LoadFile(path string) ([]Edit, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	return decode(file, path)
}

// Parse parses an HCL edit script from memory, filename is used in messages.
func Parse(src []byte, filename string) ([]Edit, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return decode(file, filename)
}

func decode(file *hcl.File, filename string) ([]Edit, error) {
	var script hclScript
	if diags := gohcl.DecodeBody(file.Body, nil, &script); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	edits := make([]Edit, 0, len(script.Edits))
	for i, e := range script.Edits {
		converted, err := e.convert()
		if err != nil {
			return nil, fmt.Errorf("edit %d (%s) in file %s: %w", i+1, e.Kind, filename, err)
		}
		edits = append(edits, converted)
	}
	return edits, nil
}

func (e *hclEdit) convert() (Edit, error) {
	switch Kind(e.Kind) {
	case KindReclassifyBlock:
		return e.reclassifyBlock()
	case KindSplitBlock:
		return e.splitBlock()
	case KindMergeBlocks:
		return e.mergeBlocks()
	case KindCoalesceBlocks:
		return e.coalesceBlocks()
	case KindSplitNode:
		return e.splitNode()
	case KindMergeNodes:
		return e.mergeNodes()
	case KindAddNode:
		return e.addNode()
	case KindAddEdge:
		return e.addEdge()
	default:
		return nil, fmt.Errorf("unsupported edit kind '%s'", e.Kind)
	}
}

func (e *hclEdit) reclassifyBlock() (Edit, error) {
	address, err := addressAttr("address", e.Address)
	if err != nil {
		return nil, err
	}
	typ := block.Type(e.Type)
	if !typ.Valid() {
		return nil, fmt.Errorf("%w '%s'", block.ErrInvalidBlockType, e.Type)
	}
	return ReclassifyBlock{Address: address, Type: typ, Reason: e.Reason}, nil
}

func (e *hclEdit) splitBlock() (Edit, error) {
	address, err := addressAttr("address", e.Address)
	if err != nil {
		return nil, err
	}
	splitAt, err := addressAttr("split_at", e.SplitAt)
	if err != nil {
		return nil, err
	}
	return SplitBlock{Address: address, SplitAt: splitAt, Reason: e.Reason}, nil
}

func (e *hclEdit) mergeBlocks() (Edit, error) {
	first, second, err := e.blockPair()
	if err != nil {
		return nil, err
	}
	return MergeBlocks{First: first, Second: second, Reason: e.Reason}, nil
}

func (e *hclEdit) coalesceBlocks() (Edit, error) {
	first, second, err := e.blockPair()
	if err != nil {
		return nil, err
	}
	return CoalesceBlocks{First: first, Second: second, Reason: e.Reason}, nil
}

func (e *hclEdit) blockPair() (uint16, uint16, error) {
	first, err := addressAttr("first", e.First)
	if err != nil {
		return 0, 0, err
	}
	second, err := addressAttr("second", e.Second)
	if err != nil {
		return 0, 0, err
	}
	return first, second, nil
}

func (e *hclEdit) splitNode() (Edit, error) {
	if err := required("id", e.ID, "first_id", e.FirstID, "second_id", e.SecondID); err != nil {
		return nil, err
	}
	splitAt, err := addressAttr("split_at", e.SplitAt)
	if err != nil {
		return nil, err
	}
	return SplitNode{ID: e.ID, SplitAt: splitAt, First: e.FirstID, Second: e.SecondID}, nil
}

func (e *hclEdit) mergeNodes() (Edit, error) {
	if err := required("first_id", e.FirstID, "second_id", e.SecondID, "new_id", e.NewID); err != nil {
		return nil, err
	}
	return MergeNodes{First: e.FirstID, Second: e.SecondID, NewID: e.NewID}, nil
}

func (e *hclEdit) addNode() (Edit, error) {
	if err := required("id", e.ID); err != nil {
		return nil, err
	}
	start, err := addressAttr("start", e.Start)
	if err != nil {
		return nil, err
	}
	if err := required("end", e.End); err != nil {
		return nil, err
	}
	end, err := nodeid.ParseEndAddress(e.End)
	if err != nil {
		return nil, fmt.Errorf("attribute end: %w", err)
	}

	kind := nodeid.Kind(e.NodeType)
	switch kind {
	case nodeid.Code, nodeid.Data:
	case "":
		kind = nodeid.Code
	default:
		return nil, fmt.Errorf("unsupported node type '%s'", e.NodeType)
	}

	node := graph.Node{
		ID:           e.ID,
		Type:         kind,
		Start:        start,
		End:          end,
		BlockID:      e.BlockID,
		DiscoveredBy: scriptDiscoverer,
	}
	return AddNode{Node: node}, nil
}

func (e *hclEdit) addEdge() (Edit, error) {
	if err := required("source", e.Source, "edge_type", e.EdgeType); err != nil {
		return nil, err
	}
	target, err := addressAttr("target", e.Target)
	if err != nil {
		return nil, err
	}

	edge := graph.Edge{
		Source:       e.Source,
		Target:       target,
		TargetNodeID: e.TargetNode,
		Type:         graph.EdgeType(e.EdgeType),
		Confidence:   100,
		DiscoveredBy: scriptDiscoverer,
	}
	if e.SourceInstruction != "" {
		edge.SourceInstruction, err = addressAttr("source_instruction", e.SourceInstruction)
		if err != nil {
			return nil, err
		}
	}
	if e.Confidence != nil {
		edge.Confidence = *e.Confidence
	}
	return AddEdge{Edge: edge}, nil
}

func addressAttr(name, value string) (uint16, error) {
	if value == "" {
		return 0, fmt.Errorf("%w '%s'", errMissingAttribute, name)
	}
	address, err := nodeid.ParseAddress(value)
	if err != nil {
		return 0, fmt.Errorf("attribute %s: %w", name, err)
	}
	return address, nil
}

// required expects name and value pairs.
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("%w '%s'", errMissingAttribute, pairs[i])
		}
	}
	return nil
}
