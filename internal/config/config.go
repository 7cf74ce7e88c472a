// Package config handles application configuration and setup
package config

import (
	"fmt"

	"github.com/retroenv/c64re/internal/graph"
	"github.com/retroenv/retrogolib/log"
)

// Options are the global tool options.
type Options struct {
	Debug         bool
	Quiet         bool
	Filter        string // edge filter used for ordering and rendering
	CheckpointDir string // checkpoint database directory
}

// DefaultOptions returns the options used if no flags are given.
func DefaultOptions() Options {
	return Options{
		Filter: string(graph.FilterAll),
	}
}

// EdgeFilter returns the validated edge filter.
func (o Options) EdgeFilter() (graph.Filter, error) {
	filter := graph.Filter(o.Filter)
	if !filter.Valid() {
		return "", fmt.Errorf("unsupported filter '%s', valid options: %s, %s, %s",
			o.Filter, graph.FilterControlFlow, graph.FilterData, graph.FilterAll)
	}
	return filter, nil
}

// CreateLogger creates a logger with appropriate settings
func CreateLogger(debug, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	if debug {
		cfg.Level = log.DebugLevel
	} else if quiet {
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}
