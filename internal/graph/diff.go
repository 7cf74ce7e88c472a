package graph

import (
	"encoding/json"
	"fmt"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// Diff compares two graphs by their snapshots and returns a readable
// structural diff. Equal graphs return an empty string.
func Diff(left, right *Graph, coloring bool) (string, error) {
	leftJSON, err := json.Marshal(left.Snapshot())
	if err != nil {
		return "", fmt.Errorf("encoding left graph: %w", err)
	}
	rightJSON, err := json.Marshal(right.Snapshot())
	if err != nil {
		return "", fmt.Errorf("encoding right graph: %w", err)
	}
	return DiffJSON(leftJSON, rightJSON, coloring)
}

// DiffJSON compares two graph snapshots in JSON form.
func DiffJSON(leftJSON, rightJSON []byte, coloring bool) (string, error) {
	differ := gojsondiff.New()
	delta, err := differ.Compare(leftJSON, rightJSON)
	if err != nil {
		return "", fmt.Errorf("comparing snapshots: %w", err)
	}
	if !delta.Modified() {
		return "", nil
	}

	var leftObj any
	if err := json.Unmarshal(leftJSON, &leftObj); err != nil {
		return "", fmt.Errorf("decoding left snapshot: %w", err)
	}

	cfg := formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       coloring,
	}
	text, err := formatter.NewAsciiFormatter(leftObj, cfg).Format(delta)
	if err != nil {
		return "", fmt.Errorf("formatting diff: %w", err)
	}
	return text, nil
}
