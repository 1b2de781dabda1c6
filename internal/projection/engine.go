package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/p-blackswan/agent-ledger-indexer/internal/clarity"
	"github.com/p-blackswan/agent-ledger-indexer/internal/ledger"
	"github.com/p-blackswan/agent-ledger-indexer/internal/metrics"
)

// EventSource pages a contract's full event log. *ledger.Client satisfies it.
type EventSource interface {
	FetchAllEvents(ctx context.Context, contractID string) ([]ledger.Event, error)
}

// Engine rebuilds snapshots from the ledger.
type Engine struct {
	source    EventSource
	contracts ledger.Contracts
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEngine creates an engine reading the given contracts from source.
func NewEngine(source EventSource, contracts ledger.Contracts, m *metrics.Metrics, logger zerolog.Logger) *Engine {
	return &Engine{
		source:    source,
		contracts: contracts,
		metrics:   m,
		logger:    logger.With().Str("component", "projection").Logger(),
		now:       time.Now,
	}
}

// Build fetches all five logs concurrently, then folds them in order from an
// empty state. It fails only if ctx is cancelled; unreadable pages just
// shorten a stream.
func (e *Engine) Build(ctx context.Context) (*Snapshot, error) {
	start := e.now()

	var streams Streams
	g, gctx := errgroup.WithContext(ctx)
	fetch := func(name string, dst *[]clarity.Record) {
		id := e.contracts.ID(name)
		g.Go(func() error {
			events, err := e.source.FetchAllEvents(gctx, id)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", id, err)
			}
			records := make([]clarity.Record, len(events))
			for i, ev := range events {
				records[i] = ev.Payload()
			}
			*dst = records
			return nil
		})
	}
	fetch(e.contracts.Registry, &streams.Registry)
	fetch(e.contracts.TaskBoard, &streams.TaskBoard)
	fetch(e.contracts.Vault, &streams.Vault)
	fetch(e.contracts.Reputation, &streams.Reputation)
	fetch(e.contracts.Launchpad, &streams.Launchpad)

	if err := g.Wait(); err != nil {
		e.metrics.RecordRebuild(false, 0)
		return nil, err
	}

	snap := Fold(streams)
	snap.BuiltAt = e.now()
	snap.BuildDuration = snap.BuiltAt.Sub(start)

	e.record(snap)
	return snap, nil
}

func (e *Engine) record(snap *Snapshot) {
	e.metrics.RecordRebuild(true, snap.BuildDuration.Seconds())
	snap.Stats.Each(func(stream string, st StreamStats) {
		e.metrics.AddEvents(stream, "applied", st.Applied)
		e.metrics.AddEvents(stream, "skipped", st.Skipped)
		e.metrics.AddEvents(stream, "unknown", st.Unknown)
		e.metrics.AddEvents(stream, "duplicate", st.Duplicates)
		e.metrics.AddEvents(stream, "gated", st.Gated)
		e.metrics.AddEvents(stream, "orphan", st.Orphans)
	})
	e.metrics.SetEntities("agents", len(snap.agentOrder))
	e.metrics.SetEntities("tasks", len(snap.taskOrder))
	e.metrics.SetEntities("curves", len(snap.curveOrder))

	e.logger.Info().
		Int("events", snap.Stats.Events()).
		Int("agents", len(snap.agentOrder)).
		Int("tasks", len(snap.taskOrder)).
		Int("curves", len(snap.curveOrder)).
		Int("dropped_orphans", snap.Stats.DroppedOrphanEvents()).
		Dur("duration", snap.BuildDuration).
		Msg("projection rebuilt")
}
