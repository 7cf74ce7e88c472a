// Package scheduler walks the control flow dependency order of a graph and
// lets registered proposers suggest edits for every node group.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/retroenv/c64re/internal/block"
	"github.com/retroenv/c64re/internal/edit"
	"github.com/retroenv/c64re/internal/graph"
	"github.com/retroenv/c64re/internal/registry"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrogolib/set"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/retroenv/c64re/internal/scheduler"

	// DefaultMaxRounds limits how often the order is recomputed in one run.
	DefaultMaxRounds = 10000
)

// ErrRoundLimit is returned when the graph keeps changing after the
// configured number of rounds.
var ErrRoundLimit = errors.New("round limit reached")

// View is the read only state handed to proposers.
type View struct {
	Graph  graph.Reader
	Blocks block.Reader
}

// Proposer inspects a group of nodes and returns the edits it suggests.
// A group with more than one member is a control flow cycle.
type Proposer interface {
	Name() string
	Priority() int
	Propose(ctx context.Context, group []string, view View) ([]edit.Edit, error)
}

// Report summarizes a scheduler run.
type Report struct {
	Rounds  int           // order computations
	Groups  int           // groups handed to proposers
	Applied int           // edits applied
	Failed  []edit.Result // edits that were rejected
	Touched []string      // ids of nodes whose group received applied edits
}

// Scheduler owns the store and graph for the duration of a run and applies
// all proposed edits serially.
type Scheduler struct {
	logger    *log.Logger
	store     *block.Store
	graph     *graph.Graph
	applier   *edit.Applier
	proposers *registry.Registry[Proposer]
	tracer    trace.Tracer
	maxRounds int
}

// New returns a scheduler for the given store, graph and proposers.
func New(logger *log.Logger, store *block.Store, g *graph.Graph, proposers *registry.Registry[Proposer]) *Scheduler {
	return &Scheduler{
		logger:    logger,
		store:     store,
		graph:     g,
		applier:   edit.NewApplier(logger, store, g),
		proposers: proposers,
		tracer:    otel.Tracer(tracerName),
		maxRounds: DefaultMaxRounds,
	}
}

// SetMaxRounds sets the number of order computations after which a run
// is aborted.
func (s *Scheduler) SetMaxRounds(rounds int) {
	s.maxRounds = rounds
}

// Run processes all control flow groups leaves first. After a group
// received applied edits, the order is recomputed and the groups that were
// not processed yet are continued with.
func (s *Scheduler) Run(ctx context.Context) (Report, error) {
	ctx, span := s.tracer.Start(ctx, "schedule")
	defer span.End()

	var report Report
	processed := set.New[string]()
	touched := set.New[string]()
	proposers := s.proposers.Entries()

	for changed := true; changed; {
		if report.Rounds == s.maxRounds {
			return report, fmt.Errorf("%w: graph still changing after %d rounds", ErrRoundLimit, s.maxRounds)
		}
		report.Rounds++
		changed = false

		order, err := s.graph.TopologicalSortFor(graph.FilterControlFlow)
		if err != nil {
			return report, fmt.Errorf("computing order: %w", err)
		}

		for _, group := range order {
			key := strings.Join(group, ",")
			if processed.Contains(key) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return report, fmt.Errorf("scheduling group %s: %w", key, err)
			}
			processed.Add(key)
			report.Groups++

			applied, err := s.processGroup(ctx, group, proposers, &report)
			if err != nil {
				return report, err
			}
			s.markProcessed(group)
			if applied == 0 {
				continue
			}

			for _, id := range group {
				if !touched.Contains(id) {
					touched.Add(id)
					report.Touched = append(report.Touched, id)
				}
			}
			changed = true
			break
		}
	}

	slices.Sort(report.Touched)

	span.SetAttributes(
		attribute.Int("rounds", report.Rounds),
		attribute.Int("applied", report.Applied))
	s.logger.Info("Scheduling finished",
		log.Int("rounds", report.Rounds),
		log.Int("groups", report.Groups),
		log.Int("applied", report.Applied),
		log.Int("rejected", len(report.Failed)))
	return report, nil
}

func (s *Scheduler) processGroup(ctx context.Context, group []string, proposers []Proposer, report *Report) (int, error) {
	ctx, span := s.tracer.Start(ctx, "group",
		trace.WithAttributes(attribute.StringSlice("nodes", group)))
	defer span.End()

	view := View{Graph: s.graph, Blocks: s.store}
	var applied int

	for _, p := range proposers {
		edits, err := p.Propose(ctx, group, view)
		if err != nil {
			s.logger.Warn("Proposer failed",
				log.String("proposer", p.Name()),
				log.String("group", strings.Join(group, ",")),
				log.Err(err))
			continue
		}
		if len(edits) == 0 {
			continue
		}

		results, err := s.applier.Apply(ctx, edits)
		if err != nil {
			return applied, fmt.Errorf("applying edits of %s: %w", p.Name(), err)
		}
		for _, r := range results {
			if r.Err != nil {
				report.Failed = append(report.Failed, r)
				continue
			}
			applied++
		}
		s.logger.Debug("Proposer edits processed",
			log.String("proposer", p.Name()),
			log.Int("proposed", len(edits)),
			log.Int("applied", applied))
	}

	report.Applied += applied
	span.SetAttributes(attribute.Int("applied", applied))
	return applied, nil
}

// markProcessed records the static pass on all group members that still
// exist after the edits.
func (s *Scheduler) markProcessed(group []string) {
	for _, id := range group {
		if _, ok := s.graph.Node(id); !ok {
			continue
		}
		_ = s.graph.UpdatePipelineState(id, func(state *graph.PipelineState) {
			state.StaticEnrichmentComplete = true
		})
	}
}
