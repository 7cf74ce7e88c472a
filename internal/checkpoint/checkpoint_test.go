package checkpoint

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/retroenv/c64re/internal/bitmask"
	"github.com/retroenv/c64re/internal/block"
	"github.com/retroenv/c64re/internal/graph"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

func testBlocks() []block.Block {
	return []block.Block{
		{
			ID: "code_0800", Address: 0x0800, EndAddress: 0x0810, Type: block.Subroutine,
			Reachability: block.Proven,
			Instructions: []block.Instruction{
				{Address: 0x0800, RawBytes: "20 10 08", Mnemonic: "jsr", Operand: "$0810", AddressingMode: "absolute"},
			},
		},
		{ID: "code_0810", Address: 0x0810, EndAddress: 0x0820, Type: block.Subroutine},
		{ID: "data_0820", Address: 0x0820, EndAddress: 0x0824, Type: block.Data, Raw: []byte{1, 2, 3, 4}},
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(log.NewTestLogger(t), "")
	assert.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})
	return s
}

func TestGraphRoundTrip(t *testing.T) {
	s := openTestStore(t)

	g, err := graph.Build(testBlocks(), []uint16{0x0800})
	assert.NoError(t, err)
	assert.NoError(t, g.SetBankingState("code_0810", bitmask.DefaultSnapshot(), bitmask.UnknownSnapshot()))

	assert.NoError(t, s.SaveGraph("static", g))
	loaded, err := s.LoadGraph("static")
	assert.NoError(t, err)
	assert.True(t, g.Equal(loaded))
}

func TestBlocksRoundTrip(t *testing.T) {
	s := openTestStore(t)

	blocks := testBlocks()
	assert.NoError(t, s.SaveBlocks("static", blocks))
	loaded, err := s.LoadBlocks("static")
	assert.NoError(t, err)
	assert.Equal(t, blocks, loaded)
}

func TestSave(t *testing.T) {
	s := openTestStore(t)

	blocks := testBlocks()
	store, err := block.New(blocks)
	assert.NoError(t, err)
	g, err := graph.Build(blocks, []uint16{0x0800})
	assert.NoError(t, err)

	assert.NoError(t, s.Save("enriched", g, store))
	assert.NoError(t, s.SaveBlocks("static", blocks))

	stages, err := s.Stages()
	assert.NoError(t, err)
	assert.Equal(t, []string{"enriched", "static"}, stages)

	loaded, err := s.LoadBlocks("enriched")
	assert.NoError(t, err)
	assert.Len(t, loaded, 3)

	assert.NoError(t, s.Delete("enriched"))
	stages, err = s.Stages()
	assert.NoError(t, err)
	assert.Equal(t, []string{"static"}, stages)
}

func TestErrors(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LoadGraph("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.LoadBlocks("missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = s.SaveBlocks("a/b", testBlocks())
	assert.True(t, errors.Is(err, ErrInvalidStage))
	err = s.SaveGraph("", graph.New())
	assert.True(t, errors.Is(err, ErrInvalidStage))
}

func TestPersistsOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints")
	logger := log.NewTestLogger(t)

	s, err := Open(logger, path)
	assert.NoError(t, err)
	assert.NoError(t, s.SaveBlocks("static", testBlocks()))
	assert.NoError(t, s.Close())

	s, err = Open(logger, path)
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, s.Close())
	}()

	stages, err := s.Stages()
	assert.NoError(t, err)
	assert.Equal(t, []string{"static"}, stages)
}
