package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/retroenv/c64re/internal/checkpoint"
	"github.com/retroenv/c64re/internal/graph"
	"github.com/retroenv/c64re/internal/nodeid"
	"github.com/retroenv/c64re/internal/options"
	"github.com/retroenv/c64re/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"
)

var (
	errNoInput  = errors.New("no input given, use --graph, --blocks or --stage")
	errNoScript = errors.New("no edit script given, use --edits")
)

func (c *CLI) orderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "order <graph.json>",
		Short: "Print the processing order of the nodes, leaves first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, filter, err := c.readGraph(args[0])
			if err != nil {
				return err
			}
			groups, err := g.TopologicalSortFor(filter)
			if err != nil {
				return fmt.Errorf("ordering graph: %w", err)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), scheduleTree(g, groups).String())
			return err
		},
	}
}

// scheduleTree renders the groups in processing order. Components with more
// than one member become branches.
func scheduleTree(g *graph.Graph, groups [][]string) treeprint.Tree {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("schedule (%d groups)", len(groups)))

	for _, group := range groups {
		if len(group) == 1 {
			tree.AddNode(nodeLabel(g, group[0]))
			continue
		}
		branch := tree.AddBranch(fmt.Sprintf("cycle (%d nodes)", len(group)))
		for _, id := range group {
			branch.AddNode(nodeLabel(g, id))
		}
	}
	return tree
}

func nodeLabel(g *graph.Graph, id string) string {
	node, _ := g.Node(id)
	label := fmt.Sprintf("%s [%s-$%04X)", id, nodeid.FormatAddress(node.Start), node.End)
	if g.HasSelfLoop(id) {
		label += " self-loop"
	}
	return label
}

func (c *CLI) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <graph.json>",
		Short: "Print graph statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, filter, err := c.readGraph(args[0])
			if err != nil {
				return err
			}
			d, err := g.SCCDecompositionFor(filter)
			if err != nil {
				return fmt.Errorf("decomposing graph: %w", err)
			}
			return writeStats(cmd.OutOrStdout(), g, d)
		},
	}
}

func writeStats(w io.Writer, g *graph.Graph, d *graph.SCCDecomposition) error {
	var selfLoops int
	for _, id := range g.NodeIDs() {
		if g.HasSelfLoop(id) {
			selfLoops++
		}
	}

	stats := []struct {
		name  string
		value int
	}{
		{"nodes", g.NodeCount()},
		{"edges", g.EdgeCount()},
		{"entry points", len(g.EntryPoints())},
		{"irq handlers", len(g.IRQHandlers())},
		{"reachable", len(g.ReachableNodes())},
		{"dead", len(g.DeadNodes())},
		{"components", len(d.TopologicalOrder)},
		{"cycles", len(d.Cycles())},
		{"self-loops", selfLoops},
		{"quarantined", len(g.Quarantined())},
	}
	for _, s := range stats {
		if _, err := fmt.Fprintf(w, "%-13s %d\n", s.name+":", s.value); err != nil {
			return err
		}
	}
	return nil
}

func (c *CLI) dotCommand() *cobra.Command {
	var condensed bool
	cmd := &cobra.Command{
		Use:   "dot <graph.json>",
		Short: "Render the graph in Graphviz DOT format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, filter, err := c.readGraph(args[0])
			if err != nil {
				return err
			}

			title := filepath.Base(args[0])
			dot := g.DOT(filter, title)
			if condensed {
				if dot, err = g.CondensedDOT(filter, title); err != nil {
					return fmt.Errorf("rendering components: %w", err)
				}
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), dot)
			return err
		},
	}
	cmd.Flags().BoolVar(&condensed, "condensed", false, "render one node per strongly connected component")
	return cmd
}

func (c *CLI) diffCommand() *cobra.Command {
	var noColor bool
	cmd := &cobra.Command{
		Use:   "diff <a.json> <b.json>",
		Short: "Print the structural difference of two graph snapshots",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			left, err := pipeline.ReadGraph(args[0])
			if err != nil {
				return err
			}
			right, err := pipeline.ReadGraph(args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			text, err := graph.Diff(left, right, coloring(out, noColor))
			if err != nil {
				return err
			}
			if text == "" {
				text = "graphs are equal\n"
			}
			_, err = fmt.Fprint(out, text)
			return err
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}

func (c *CLI) applyCommand() *cobra.Command {
	var opts options.Run
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply an HCL edit script to a graph and its blocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Edits == "" {
				return errNoScript
			}
			return c.execute(cmd, opts)
		},
	}
	addRunFlags(cmd, &opts)
	return cmd
}

func (c *CLI) runCommand() *cobra.Command {
	var opts options.Run
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Apply an optional edit script and run the passes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.Passes = true
			return c.execute(cmd, opts)
		},
	}
	addRunFlags(cmd, &opts)
	return cmd
}

func addRunFlags(cmd *cobra.Command, opts *options.Run) {
	addInputFlags(cmd, &opts.Input)
	flags := cmd.Flags()
	flags.StringVar(&opts.Edits, "edits", "", "HCL edit script to apply")
	flags.StringVar(&opts.Output.Graph, "out-graph", "", "name of the output graph JSON file")
	flags.StringVar(&opts.Output.Blocks, "out-blocks", "", "name of the output blocks JSON file")
	flags.StringVar(&opts.Output.Stage, "out-stage", "", "checkpoint stage to save the result to")
}

func addInputFlags(cmd *cobra.Command, in *options.Input) {
	flags := cmd.Flags()
	flags.StringVar(&in.Graph, "graph", "", "graph snapshot JSON file")
	flags.StringVar(&in.Blocks, "blocks", "", "block list JSON file")
	flags.StringVar(&in.Stage, "stage", "", "checkpoint stage to load")
	flags.StringSliceVar(&in.EntryPoints, "entry", nil, "entry point addresses used when building the graph from blocks")
}

func (c *CLI) execute(cmd *cobra.Command, opts options.Run) error {
	if opts.Input.Graph == "" && opts.Input.Blocks == "" && opts.Input.Stage == "" {
		return errNoInput
	}

	requireDatabase := opts.Input.Stage != "" || opts.Output.Stage != ""
	return c.withPipeline(requireDatabase, func(p *pipeline.Pipeline, _ *checkpoint.Store) error {
		result, err := p.Execute(cmd.Context(), opts)
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), result, opts.Passes)
	})
}

func writeResult(w io.Writer, result *pipeline.Result, passes bool) error {
	for _, r := range result.Edits {
		var err error
		if r.Err == nil {
			_, err = fmt.Fprintf(w, "applied  %s\n", r.Edit)
		} else {
			_, err = fmt.Fprintf(w, "rejected %s: %v\n", r.Edit, r.Err)
		}
		if err != nil {
			return err
		}
	}

	if !passes {
		return nil
	}
	report := result.Report
	_, err := fmt.Fprintf(w, "passes: %d rounds, %d groups, %d applied, %d rejected\n",
		report.Rounds, report.Groups, report.Applied, len(report.Failed))
	return err
}

func (c *CLI) checkpointCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage the stages of the checkpoint database",
	}
	cmd.AddCommand(
		c.checkpointSaveCommand(),
		c.checkpointLoadCommand(),
		c.checkpointListCommand(),
		c.checkpointDeleteCommand(),
	)
	return cmd
}

func (c *CLI) checkpointSaveCommand() *cobra.Command {
	var in options.Input
	cmd := &cobra.Command{
		Use:   "save <stage>",
		Short: "Save a graph and its blocks as a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Graph == "" && in.Blocks == "" {
				return errNoInput
			}
			return c.withPipeline(true, func(p *pipeline.Pipeline, _ *checkpoint.Store) error {
				store, g, err := p.Load(in)
				if err != nil {
					return err
				}
				if err := p.Store(options.Output{Stage: args[0]}, store, g); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "saved stage %s: %d nodes, %d blocks\n",
					args[0], g.NodeCount(), store.Len())
				return err
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&in.Graph, "graph", "", "graph snapshot JSON file")
	flags.StringVar(&in.Blocks, "blocks", "", "block list JSON file")
	flags.StringSliceVar(&in.EntryPoints, "entry", nil, "entry point addresses used when building the graph from blocks")
	return cmd
}

func (c *CLI) checkpointLoadCommand() *cobra.Command {
	var out options.Output
	cmd := &cobra.Command{
		Use:   "load <stage>",
		Short: "Write the graph and blocks of a stage to files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withPipeline(true, func(p *pipeline.Pipeline, _ *checkpoint.Store) error {
				store, g, err := p.Load(options.Input{Stage: args[0]})
				if err != nil {
					return err
				}
				if err := p.Store(out, store, g); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "loaded stage %s: %d nodes, %d blocks\n",
					args[0], g.NodeCount(), store.Len())
				return err
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&out.Graph, "out-graph", "", "name of the output graph JSON file")
	flags.StringVar(&out.Blocks, "out-blocks", "", "name of the output blocks JSON file")
	return cmd
}

func (c *CLI) checkpointListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the stored stages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withPipeline(true, func(_ *pipeline.Pipeline, checkpoints *checkpoint.Store) error {
				stages, err := checkpoints.Stages()
				if err != nil {
					return err
				}
				for _, stage := range stages {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), stage); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func (c *CLI) checkpointDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <stage>",
		Short: "Delete a stored stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return c.withPipeline(true, func(_ *pipeline.Pipeline, checkpoints *checkpoint.Store) error {
				return checkpoints.Delete(args[0])
			})
		},
	}
}
