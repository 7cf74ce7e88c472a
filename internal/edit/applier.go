package edit

import (
	"context"
	"fmt"

	"github.com/retroenv/c64re/internal/block"
	"github.com/retroenv/c64re/internal/graph"
	"github.com/retroenv/retrogolib/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/retroenv/c64re/internal/edit"

// Result is the outcome of a single edit. Err is nil if the edit was applied.
type Result struct {
	Edit Edit
	Err  error
}

// Applier is the single owner that mutates the block store and the graph.
type Applier struct {
	logger *log.Logger
	store  *block.Store
	graph  *graph.Graph
	tracer trace.Tracer
}

// NewApplier returns an applier for the given store and graph.
func NewApplier(logger *log.Logger, store *block.Store, g *graph.Graph) *Applier {
	return &Applier{
		logger: logger,
		store:  store,
		graph:  g,
		tracer: otel.Tracer(tracerName),
	}
}

// Apply applies the edits one after another. A failed edit does not stop
// the batch, its error is returned in the matching result. The returned
// error is only set if the context was cancelled, in which case the results
// of the edits processed so far are returned.
func (a *Applier) Apply(ctx context.Context, edits []Edit) ([]Result, error) {
	ctx, span := a.tracer.Start(ctx, "apply edits",
		trace.WithAttributes(attribute.Int("edits", len(edits))))
	defer span.End()

	results := make([]Result, 0, len(edits))
	var applied int
	for _, e := range edits {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return results, fmt.Errorf("applying edits: %w", err)
		}

		err := e.apply(a.store, a.graph)
		results = append(results, Result{Edit: e, Err: err})
		if err != nil {
			a.logger.Warn("Edit not applied",
				log.String("edit", e.String()),
				log.Err(err))
			continue
		}

		applied++
		a.logger.Debug("Edit applied",
			log.String("edit", e.String()),
			log.Int("store_version", int(a.store.Version())))
	}

	span.SetAttributes(attribute.Int("applied", applied))
	return results, nil
}

// Failed returns the results of edits that could not be applied.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
