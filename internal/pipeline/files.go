package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/retroenv/c64re/internal/block"
	"github.com/retroenv/c64re/internal/graph"
	"github.com/retroenv/c64re/internal/nodeid"
)

// ReadGraph reads a graph snapshot JSON file.
func ReadGraph(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph file: %w", err)
	}
	g, err := graph.FromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("decoding graph file '%s': %w", path, err)
	}
	return g, nil
}

// ReadBlocks reads a block list JSON file.
func ReadBlocks(path string) ([]block.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading blocks file: %w", err)
	}
	var blocks []block.Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, fmt.Errorf("decoding blocks file '%s': %w", path, err)
	}
	return blocks, nil
}

// WriteGraph writes the graph snapshot as indented JSON.
func WriteGraph(path string, g *graph.Graph) error {
	return writeJSON(path, g.Snapshot())
}

// WriteBlocks writes a block list as indented JSON.
func WriteBlocks(path string, blocks []block.Block) error {
	return writeJSON(path, blocks)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding '%s': %w", path, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

func parseEntryPoints(values []string) ([]uint16, error) {
	entryPoints := make([]uint16, 0, len(values))
	for _, s := range values {
		address, err := nodeid.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("parsing entry point: %w", err)
		}
		entryPoints = append(entryPoints, address)
	}
	return entryPoints, nil
}
