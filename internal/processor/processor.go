// Package processor turns game change events into explorer aggregate
// and index writes.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/explorer/internal/events"
	"github.com/freeeve/explorer/internal/explorer"
	"github.com/freeeve/explorer/internal/movetree"
	"github.com/freeeve/explorer/internal/stream"
)

// Config configures a Processor.
type Config struct {
	Writer    *Writer
	Logger    zerolog.Logger
	BatchSize int           // max events handled per batch
	BatchWait time.Duration // max wait to fill a batch
	Workers   int           // concurrent events per batch
}

// Processor consumes game change events and writes the resulting
// deltas. Failed events are logged and counted, never retried; the
// rest of the batch proceeds.
type Processor struct {
	writer   *Writer
	log      zerolog.Logger
	batch    int
	wait     time.Duration
	workers  int
	failures atomic.Uint64
	handled  atomic.Uint64
	dropped  atomic.Uint64
}

// New returns a Processor.
func New(cfg Config) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.BatchWait <= 0 {
		cfg.BatchWait = time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	return &Processor{
		writer:  cfg.Writer,
		log:     cfg.Logger,
		batch:   cfg.BatchSize,
		wait:    cfg.BatchWait,
		workers: cfg.Workers,
	}
}

// Run consumes change events from sub until ctx is done.
func (p *Processor) Run(ctx context.Context, sub *stream.Subscription) error {
	for {
		batch, err := sub.NextBatch(ctx, p.batch, p.wait)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		if err != nil {
			return err
		}

		g := errgroup.Group{}
		g.SetLimit(p.workers)
		for _, data := range batch {
			data := data
			g.Go(func() error {
				var ev events.GameChanged
				if err := json.Unmarshal(data, &ev); err != nil {
					p.fail("", fmt.Errorf("unmarshal change event: %w", err))
					return nil
				}
				if err := p.HandleChange(ctx, ev); err != nil {
					p.fail(ev.ID, err)
					return nil
				}
				p.handled.Add(1)
				return nil
			})
		}
		// Tasks report their own failures and always return nil.
		_ = g.Wait()
	}
}

func (p *Processor) fail(eventID string, err error) {
	p.failures.Add(1)
	p.log.Error().Err(err).Str("event", eventID).Msg("change event failed")
}

func (p *Processor) drop(eventID, fen string, err error) {
	p.dropped.Add(1)
	p.log.Error().Err(err).Str("event", eventID).Str("fen", fen).Msg("position update dropped")
}

// Failures returns the number of events that failed since start.
func (p *Processor) Failures() uint64 { return p.failures.Load() }

// Handled returns the number of events processed since start.
func (p *Processor) Handled() uint64 { return p.handled.Load() }

// Dropped returns the number of position updates dropped since start.
func (p *Processor) Dropped() uint64 { return p.dropped.Load() }

// HandleChange applies one game change to the explorer. PGN edits that
// do not alter the move tree or listing state produce no writes.
func (p *Processor) HandleChange(ctx context.Context, ev events.GameChanged) error {
	if ev.Old != nil && ev.New != nil &&
		ev.Old.Pgn == ev.New.Pgn && ev.Old.Unlisted == ev.New.Unlisted {
		return nil
	}

	oldPositions, err := explorer.ExtractPositions(ev.Old)
	if err != nil {
		// A previously indexed game should always reparse; if it does
		// not, treat it as never indexed rather than blocking deletes.
		p.log.Warn().Err(err).Str("event", ev.ID).Msg("old image failed to parse")
		oldPositions = map[string]explorer.PositionExtraction{}
	}
	newPositions, err := explorer.ExtractPositions(ev.New)
	if err != nil {
		return err
	}

	updates := explorer.Diff(oldPositions, newPositions)
	if len(updates) == 0 {
		return nil
	}

	game := ev.New
	if game == nil {
		game = ev.Old
	}
	cohort := explorer.ExplorerCohort(game)

	// Each update stands alone: a failed write is logged and dropped
	// without holding back the game's other positions.
	var (
		mu      sync.Mutex
		indexed []events.IndexedPosition
	)
	g := errgroup.Group{}
	g.SetLimit(p.workers)
	for _, u := range updates {
		u := u
		g.Go(func() error {
			if err := p.writer.Apply(ctx, cohort, u); err != nil {
				p.drop(ev.ID, u.Fen, err)
				return nil
			}
			switch {
			case u.NewResult != explorer.ResultNone && ev.New != nil:
				if err := p.writer.PutGameIndex(ctx, ev.New, u.Fen, u.NewResult); err != nil {
					p.drop(ev.ID, u.Fen, fmt.Errorf("index: %w", err))
					return nil
				}
				if u.Fen != movetree.StartingFEN {
					mu.Lock()
					indexed = append(indexed, events.IndexedPosition{Fen: u.Fen, Result: u.NewResult})
					mu.Unlock()
				}
			case u.NewResult == explorer.ResultNone && u.OldResult != explorer.ResultNone:
				if err := p.writer.DeleteGameIndex(ctx, game, u.Fen); err != nil {
					p.drop(ev.ID, u.Fen, fmt.Errorf("unindex: %w", err))
				}
			}
			return nil
		})
	}
	// Tasks report their own failures and always return nil.
	_ = g.Wait()

	// Any put, create or edit, notifies followers of the touched lines.
	if ev.New != nil {
		p.writer.AnnounceIndexed(*ev.New, indexed)
	}
	return nil
}
