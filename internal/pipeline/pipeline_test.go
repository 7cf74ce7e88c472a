package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/retroenv/c64re/internal/block"
	"github.com/retroenv/c64re/internal/checkpoint"
	"github.com/retroenv/c64re/internal/options"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

const testScript = `
edit "add_edge" {
  source             = "code_0820"
  target             = "$0838"
  target_node        = "data_0830"
  edge_type          = "data_read"
  source_instruction = "$0820"
}

edit "merge_blocks" {
  first  = "$0830"
  second = "$0840"
  reason = "one table"
}
`

func testBlocks() []block.Block {
	return []block.Block{
		{
			ID: "code_0800", Address: 0x0800, EndAddress: 0x0810, Type: block.Subroutine,
			Instructions: []block.Instruction{
				{Address: 0x0800, Mnemonic: "jsr", Operand: "$0820", AddressingMode: "absolute"},
			},
		},
		{ID: "code_0810", Address: 0x0810, EndAddress: 0x0820, Type: block.Fragment},
		{ID: "code_0820", Address: 0x0820, EndAddress: 0x0830, Type: block.Subroutine},
		{ID: "data_0830", Address: 0x0830, EndAddress: 0x0840, Type: block.Data},
		{ID: "data_0840", Address: 0x0840, EndAddress: 0x0850, Type: block.Data},
	}
}

func createTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	return tmpFile
}

func openCheckpoints(t *testing.T) *checkpoint.Store {
	t.Helper()
	s, err := checkpoint.Open(log.NewTestLogger(t), "")
	assert.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})
	return s
}

func TestNew(t *testing.T) {
	logger := log.NewTestLogger(t)
	p := New(logger, nil)

	assert.NotNil(t, p)
	assert.NotNil(t, p.logger)
	assert.Nil(t, p.checkpoints)
}

//nolint:funlen // test functions can be long
func TestExecute(t *testing.T) {
	logger := log.NewTestLogger(t)
	checkpoints := openCheckpoints(t)
	p := New(logger, checkpoints)

	dir := t.TempDir()
	blocksFile := filepath.Join(dir, "blocks.json")
	assert.NoError(t, WriteBlocks(blocksFile, testBlocks()))
	script := createTempFile(t, "edits.hcl", []byte(testScript))

	opts := options.Run{
		Input: options.Input{
			Blocks:      blocksFile,
			EntryPoints: []string{"$0800"},
		},
		Output: options.Output{
			Graph:  filepath.Join(dir, "out-graph.json"),
			Blocks: filepath.Join(dir, "out-blocks.json"),
			Stage:  "enriched",
		},
		Edits:  script,
		Passes: true,
	}

	result, err := p.Execute(context.Background(), opts)
	assert.NoError(t, err)
	assert.Len(t, result.Edits, 2)
	for _, r := range result.Edits {
		assert.NoError(t, r.Err)
	}
	assert.Equal(t, 1, result.Report.Applied)
	assert.Equal(t, []string{"code_0800"}, result.Report.Touched)

	g, err := ReadGraph(opts.Output.Graph)
	assert.NoError(t, err)
	assert.True(t, g.Equal(result.Graph))
	assert.Equal(t, 3, g.NodeCount())
	node, ok := g.Node("code_0800")
	assert.True(t, ok)
	assert.Equal(t, uint32(0x0820), node.End)
	assert.Equal(t, []string{"code_0800"}, g.EntryPoints())

	assert.Len(t, g.EdgesTo("data_0830"), 1)

	// the fallthrough into code_0810 was coalesced in store and graph
	blocks, err := ReadBlocks(opts.Output.Blocks)
	assert.NoError(t, err)
	assert.Len(t, blocks, 3)
	assert.Equal(t, uint32(0x0820), blocks[0].EndAddress)
	assert.Equal(t, uint32(0x0850), blocks[2].EndAddress)

	store, loaded, err := p.Load(options.Input{Stage: "enriched"})
	assert.NoError(t, err)
	assert.Equal(t, 3, store.Len())
	assert.True(t, loaded.Equal(result.Graph))
}

func TestLoadFromFiles(t *testing.T) {
	p := New(log.NewTestLogger(t), nil)
	dir := t.TempDir()

	blocksFile := filepath.Join(dir, "blocks.json")
	assert.NoError(t, WriteBlocks(blocksFile, testBlocks()))
	store, g, err := p.Load(options.Input{Blocks: blocksFile})
	assert.NoError(t, err)
	assert.Equal(t, 5, store.Len())
	assert.Empty(t, g.EntryPoints())

	graphFile := filepath.Join(dir, "graph.json")
	assert.NoError(t, WriteGraph(graphFile, g))
	_, loaded, err := p.Load(options.Input{Graph: graphFile, Blocks: blocksFile})
	assert.NoError(t, err)
	assert.True(t, g.Equal(loaded))
}

func TestLoadErrors(t *testing.T) {
	p := New(log.NewTestLogger(t), nil)
	blocksFile := filepath.Join(t.TempDir(), "blocks.json")
	assert.NoError(t, WriteBlocks(blocksFile, testBlocks()))

	_, _, err := p.Load(options.Input{Stage: "static"})
	assert.True(t, errors.Is(err, errNoCheckpoints))

	_, _, err = p.Load(options.Input{Blocks: filepath.Join(t.TempDir(), "missing.json")})
	assert.ErrorContains(t, err, "reading blocks file")

	_, _, err = p.Load(options.Input{Blocks: blocksFile, EntryPoints: []string{"$zz"}})
	assert.ErrorContains(t, err, "parsing entry point")

	_, _, err = p.Load(options.Input{Blocks: blocksFile, EntryPoints: []string{"$C000"}})
	assert.ErrorContains(t, err, "building graph")

	invalid := createTempFile(t, "graph.json", []byte(`{"nodes": {}, "edges": [{"source": "x", "type": "jump"}]}`))
	_, _, err = p.Load(options.Input{Graph: invalid})
	assert.ErrorContains(t, err, "decoding graph file")
}

func TestStoreWithoutCheckpoints(t *testing.T) {
	p := New(log.NewTestLogger(t), nil)
	store, g, err := p.Load(options.Input{})
	assert.NoError(t, err)

	err = p.Store(options.Output{Stage: "x"}, store, g)
	assert.True(t, errors.Is(err, errNoCheckpoints))
}
