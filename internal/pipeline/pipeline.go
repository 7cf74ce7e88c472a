// Package pipeline orchestrates loading a program, applying edits, running
// the passes and storing the results.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/retroenv/c64re/internal/app"
	"github.com/retroenv/c64re/internal/block"
	"github.com/retroenv/c64re/internal/checkpoint"
	"github.com/retroenv/c64re/internal/edit"
	"github.com/retroenv/c64re/internal/graph"
	"github.com/retroenv/c64re/internal/options"
	"github.com/retroenv/c64re/internal/passes"
	"github.com/retroenv/c64re/internal/scheduler"
	"github.com/retroenv/retrogolib/log"
)

var errNoCheckpoints = errors.New("no checkpoint database configured")

// Pipeline orchestrates the complete edit workflow.
type Pipeline struct {
	logger      *log.Logger
	checkpoints *checkpoint.Store
}

// Result contains the program state after a pipeline run.
type Result struct {
	Store  *block.Store
	Graph  *graph.Graph
	Edits  []edit.Result
	Report scheduler.Report
}

// New creates a new pipeline. The checkpoint store is optional.
func New(logger *log.Logger, checkpoints *checkpoint.Store) *Pipeline {
	return &Pipeline{
		logger:      logger,
		checkpoints: checkpoints,
	}
}

// Execute runs the complete pipeline.
func (p *Pipeline) Execute(ctx context.Context, opts options.Run) (*Result, error) {
	store, g, err := p.Load(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("loading program: %w", err)
	}
	app.PrintInfo(p.logger, store, g)

	result := &Result{
		Store: store,
		Graph: g,
	}

	if opts.Edits != "" {
		if err := p.applyScript(ctx, opts.Edits, result); err != nil {
			return nil, err
		}
	}

	if opts.Passes {
		if err := p.runPasses(ctx, result); err != nil {
			return nil, err
		}
	}

	if err := p.Store(opts.Output, store, g); err != nil {
		return nil, fmt.Errorf("storing result: %w", err)
	}
	return result, nil
}

// Load reads the program from files or a checkpoint stage. Without a graph
// input the graph is built from the blocks.
func (p *Pipeline) Load(in options.Input) (*block.Store, *graph.Graph, error) {
	var blocks []block.Block
	var g *graph.Graph
	var err error

	if in.Stage != "" {
		if p.checkpoints == nil {
			return nil, nil, errNoCheckpoints
		}
		if blocks, err = p.checkpoints.LoadBlocks(in.Stage); err != nil {
			return nil, nil, err
		}
		if g, err = p.checkpoints.LoadGraph(in.Stage); err != nil {
			return nil, nil, err
		}
	} else {
		if in.Blocks != "" {
			if blocks, err = ReadBlocks(in.Blocks); err != nil {
				return nil, nil, err
			}
		}
		if in.Graph != "" {
			if g, err = ReadGraph(in.Graph); err != nil {
				return nil, nil, err
			}
		}
	}

	store, err := block.New(blocks)
	if err != nil {
		return nil, nil, fmt.Errorf("creating block store: %w", err)
	}

	if g == nil {
		entryPoints, err := parseEntryPoints(in.EntryPoints)
		if err != nil {
			return nil, nil, err
		}
		if g, err = graph.Build(blocks, entryPoints); err != nil {
			return nil, nil, fmt.Errorf("building graph: %w", err)
		}
		p.logger.Debug("Graph built from blocks", log.Int("nodes", g.NodeCount()))
	}
	return store, g, nil
}

// Store writes the program to the configured files and checkpoint stage.
func (p *Pipeline) Store(out options.Output, store block.Reader, g *graph.Graph) error {
	if out.Graph != "" {
		if err := WriteGraph(out.Graph, g); err != nil {
			return err
		}
	}
	if out.Blocks != "" {
		if err := WriteBlocks(out.Blocks, store.AllBlocks()); err != nil {
			return err
		}
	}
	if out.Stage != "" {
		if p.checkpoints == nil {
			return errNoCheckpoints
		}
		if err := p.checkpoints.Save(out.Stage, g, store); err != nil {
			return fmt.Errorf("saving checkpoint: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) applyScript(ctx context.Context, path string, result *Result) error {
	edits, err := edit.LoadFile(path)
	if err != nil {
		return fmt.Errorf("loading edit script: %w", err)
	}

	applier := edit.NewApplier(p.logger, result.Store, result.Graph)
	result.Edits, err = applier.Apply(ctx, edits)
	if err != nil {
		return fmt.Errorf("applying edit script: %w", err)
	}

	failed := edit.Failed(result.Edits)
	p.logger.Info("Edit script applied",
		log.String("file", path),
		log.Int("applied", len(edits)-len(failed)),
		log.Int("rejected", len(failed)))
	return nil
}

func (p *Pipeline) runPasses(ctx context.Context, result *Result) error {
	reg, err := passes.Default()
	if err != nil {
		return err
	}

	s := scheduler.New(p.logger, result.Store, result.Graph, reg)
	result.Report, err = s.Run(ctx)
	if err != nil {
		return fmt.Errorf("running passes: %w", err)
	}
	return nil
}
