// Package cli handles command line interface logic
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/retroenv/c64re/internal/app"
	"github.com/retroenv/c64re/internal/checkpoint"
	"github.com/retroenv/c64re/internal/config"
	"github.com/retroenv/c64re/internal/graph"
	"github.com/retroenv/c64re/internal/pipeline"
	"github.com/retroenv/retrogolib/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errNoDatabase = errors.New("no checkpoint database directory set, use --db")

// CLI is the c64re command tree.
type CLI struct {
	version string
	commit  string
	date    string

	opts      config.Options
	logger    *log.Logger
	newLogger func(debug, quiet bool) *log.Logger
}

// New returns a command line interface for the given build information.
func New(version, commit, date string) *CLI {
	return &CLI{
		version:   version,
		commit:    commit,
		date:      date,
		newLogger: config.CreateLogger,
	}
}

// Execute parses the arguments and runs the selected command. Command output
// is written to stdout, logging goes to the logger.
func (c *CLI) Execute(ctx context.Context, args []string, stdout io.Writer) error {
	c.opts = config.DefaultOptions()
	root := c.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stdout)

	if err := root.ExecuteContext(ctx); err != nil {
		return fmt.Errorf("executing command: %w", err)
	}
	return nil
}

func (c *CLI) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           app.Name,
		Short:         "Inspect and edit C64 program graphs",
		Version:       app.VersionString(c.version, c.commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			c.logger = c.newLogger(c.opts.Debug, c.opts.Quiet)
			app.PrintBanner(c.logger, c.opts.Quiet, c.version, c.commit, c.date)
			if _, err := c.opts.EdgeFilter(); err != nil {
				return err
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVar(&c.opts.Debug, "debug", false, "enable debug logging")
	flags.BoolVarP(&c.opts.Quiet, "quiet", "q", false, "perform operations quietly")
	flags.StringVar(&c.opts.Filter, "filter", c.opts.Filter, "edge filter: control_flow, data or all")
	flags.StringVar(&c.opts.CheckpointDir, "db", "", "checkpoint database directory")

	root.AddCommand(
		c.orderCommand(),
		c.statsCommand(),
		c.dotCommand(),
		c.diffCommand(),
		c.applyCommand(),
		c.runCommand(),
		c.checkpointCommand(),
	)
	return root
}

// withPipeline runs fn with a pipeline that has the checkpoint database
// opened if one is configured.
func (c *CLI) withPipeline(requireDatabase bool, fn func(p *pipeline.Pipeline, checkpoints *checkpoint.Store) error) error {
	if c.opts.CheckpointDir == "" {
		if requireDatabase {
			return errNoDatabase
		}
		return fn(pipeline.New(c.logger, nil), nil)
	}

	checkpoints, err := checkpoint.Open(c.logger, c.opts.CheckpointDir)
	if err != nil {
		return err
	}

	err = fn(pipeline.New(c.logger, checkpoints), checkpoints)
	if closeErr := checkpoints.Close(); closeErr != nil {
		c.logger.Error("Closing checkpoint database failed", log.Err(closeErr))
	}
	return err
}

func (c *CLI) readGraph(path string) (*graph.Graph, graph.Filter, error) {
	filter, err := c.opts.EdgeFilter()
	if err != nil {
		return nil, "", err
	}
	g, err := pipeline.ReadGraph(path)
	if err != nil {
		return nil, "", err
	}
	return g, filter, nil
}

// coloring returns whether colored output should be written to w.
func coloring(w io.Writer, disabled bool) bool {
	if disabled {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
