package edit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/retroenv/c64re/internal/block"
	"github.com/retroenv/c64re/internal/graph"
	"github.com/retroenv/c64re/internal/nodeid"
	"github.com/retroenv/retrogolib/assert"
)

const testScript = `
edit "reclassify_block" {
  address = "$0810"
  type    = "data"
  reason  = "sprite data"
}

edit "split_block" {
  address  = "$0800"
  split_at = "0x0808"
}

edit "merge_blocks" {
  first  = "$0830"
  second = "0840"
}

edit "split_node" {
  id        = "code_0900"
  split_at  = "$0910"
  first_id  = "code_0900"
  second_id = "code_0910"
}

edit "merge_nodes" {
  first_id  = "code_0900"
  second_id = "code_0910"
  new_id    = "code_0900"
}

edit "add_node" {
  id        = "data_c000"
  node_type = "data"
  start     = "$C000"
  end       = "$10000"
}

edit "add_edge" {
  source             = "code_0800"
  target             = "$FFD2"
  edge_type          = "call"
  source_instruction = "$0805"
  confidence         = 80
}

edit "coalesce_blocks" {
  first  = "$0800"
  second = "$0810"
  reason = "straight line code"
}
`

//nolint:funlen // test functions can be long
func TestParse(t *testing.T) {
	edits, err := Parse([]byte(testScript), "test.hcl")
	assert.NoError(t, err)
	assert.Len(t, edits, 8)

	assert.Equal(t, ReclassifyBlock{Address: 0x0810, Type: block.Data, Reason: "sprite data"}, edits[0])
	assert.Equal(t, SplitBlock{Address: 0x0800, SplitAt: 0x0808}, edits[1])
	assert.Equal(t, MergeBlocks{First: 0x0830, Second: 0x0840}, edits[2])
	assert.Equal(t, SplitNode{ID: "code_0900", SplitAt: 0x0910, First: "code_0900", Second: "code_0910"}, edits[3])
	assert.Equal(t, MergeNodes{First: "code_0900", Second: "code_0910", NewID: "code_0900"}, edits[4])

	addNode, ok := edits[5].(AddNode)
	assert.True(t, ok)
	assert.Equal(t, "data_c000", addNode.Node.ID)
	assert.Equal(t, nodeid.Data, addNode.Node.Type)
	assert.Equal(t, uint16(0xC000), addNode.Node.Start)
	assert.Equal(t, uint32(0x10000), addNode.Node.End)

	addEdge, ok := edits[6].(AddEdge)
	assert.True(t, ok)
	assert.Equal(t, graph.Edge{
		Source:            "code_0800",
		Target:            0xFFD2,
		Type:              graph.Call,
		SourceInstruction: 0x0805,
		Confidence:        80,
		DiscoveredBy:      scriptDiscoverer,
	}, addEdge.Edge)

	assert.Equal(t, CoalesceBlocks{First: 0x0800, Second: 0x0810, Reason: "straight line code"}, edits[7])
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		err    string
	}{
		{
			name:   "syntax",
			script: `edit "split_block" {`,
			err:    "failed to parse HCL file",
		},
		{
			name:   "unknown attribute",
			script: `edit "split_block" { size = 3 }`,
			err:    "failed to decode HCL file",
		},
		{
			name:   "unknown kind",
			script: `edit "delete_block" {}`,
			err:    "unsupported edit kind 'delete_block'",
		},
		{
			name:   "missing attribute",
			script: `edit "split_block" { address = "$0800" }`,
			err:    "missing attribute 'split_at'",
		},
		{
			name:   "invalid address",
			script: "edit \"split_block\" {\n  address = \"$0800\"\n  split_at = \"$12345\"\n}",
			err:    "attribute split_at",
		},
		{
			name:   "invalid block type",
			script: "edit \"reclassify_block\" {\n  address = \"$0800\"\n  type = \"sprite\"\n}",
			err:    "invalid block type 'sprite'",
		},
		{
			name:   "invalid node type",
			script: "edit \"add_node\" {\n  id = \"x\"\n  start = \"$0800\"\n  end = \"$0900\"\n  node_type = \"rom\"\n}",
			err:    "unsupported node type 'rom'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.script), "test.hcl")
			assert.ErrorContains(t, err, tt.err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edits.hcl")
	assert.NoError(t, os.WriteFile(path, []byte(testScript), 0o600))

	edits, err := LoadFile(path)
	assert.NoError(t, err)
	assert.Len(t, edits, 8)
	assert.Equal(t, KindCoalesceBlocks, edits[7].Kind())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}
