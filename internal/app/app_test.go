package app

import (
	"testing"

	"github.com/retroenv/c64re/internal/block"
	"github.com/retroenv/c64re/internal/graph"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

func TestVersionString(t *testing.T) {
	assert.Equal(t, "dev", VersionString("dev", ""))
	assert.Equal(t, "1.0.0 (abc1234)", VersionString("1.0.0", "abc1234def"))
	assert.Equal(t, "1.0.0 (abc)", VersionString("1.0.0", "abc"))
}

func TestPrintInfo(t *testing.T) {
	logger := log.NewTestLogger(t)
	blocks := []block.Block{
		{ID: "code_0800", Address: 0x0800, EndAddress: 0x0810, Type: block.Subroutine},
		{ID: "data_0810", Address: 0x0810, EndAddress: 0x0820, Type: block.Data},
	}
	store, err := block.New(blocks)
	assert.NoError(t, err)
	g, err := graph.Build(blocks, []uint16{0x0800})
	assert.NoError(t, err)

	PrintBanner(logger, false, "dev", "", "")
	PrintInfo(logger, store, g)
}
