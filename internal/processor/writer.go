package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/freeeve/explorer/internal/events"
	"github.com/freeeve/explorer/internal/explorer"
	"github.com/freeeve/explorer/internal/movetree"
	"github.com/freeeve/explorer/internal/store"
)

// Publisher publishes events for downstream consumers. *stream.Publisher
// implements it.
type Publisher interface {
	Publish(subject string, v any) error
}

// Writer applies position updates and game index records to the store.
// Counter writes are atomic, so concurrent writers converge without
// coordination.
type Writer struct {
	store store.PositionStore
	pub   Publisher
	log   zerolog.Logger
}

// NewWriter returns a Writer. pub may be nil when no downstream
// consumers exist (backfills, tests).
func NewWriter(s store.PositionStore, pub Publisher, log zerolog.Logger) *Writer {
	return &Writer{store: s, pub: pub, log: log}
}

// Apply applies one position update for one cohort. When the position
// record does not exist yet and the update is the game's first
// contribution, the record is created seeded with every legal move
// zeroed, so move ordering survives sparse data. Create races fall back
// to the plain update path.
func (w *Writer) Apply(ctx context.Context, cohort string, u explorer.PositionUpdate) error {
	pos, err := w.store.GetPosition(ctx, u.Fen)
	if errors.Is(err, store.ErrNotFound) {
		if u.OldResult != explorer.ResultNone {
			// A decrement for a position that was never recorded.
			// Creating it would persist negative counters; let the
			// conditional update surface the mismatch instead.
			return w.store.ApplyUpdate(ctx, u.Fen, cohort, u)
		}
		created, err := w.create(ctx, cohort, u)
		if err != nil {
			return err
		}
		if created {
			return nil
		}
		// Lost the create race; the position exists now.
		pos, err = w.store.GetPosition(ctx, u.Fen)
		if err != nil {
			return fmt.Errorf("reload position: %w", err)
		}
	} else if err != nil {
		return err
	}

	if _, ok := pos.Results[cohort]; !ok {
		err := w.store.InitCohort(ctx, pos, cohort)
		if err != nil && !errors.Is(err, store.ErrConditionFailed) {
			return err
		}
	}
	return w.store.ApplyUpdate(ctx, u.Fen, cohort, u)
}

// create builds a fresh position record with the update already folded
// in and writes it conditionally. It reports false when another writer
// created the record first.
func (w *Writer) create(ctx context.Context, cohort string, u explorer.PositionUpdate) (bool, error) {
	sans, err := movetree.LegalMoves(u.Fen)
	if err != nil {
		return false, fmt.Errorf("seed moves for %q: %w", u.Fen, err)
	}

	pos := &explorer.Position{
		Fen:     u.Fen,
		ID:      explorer.PositionID,
		Results: map[string]explorer.ResultCounts{cohort: {}},
		Moves:   make(map[string]explorer.Move, len(sans)),
	}
	for _, san := range sans {
		pos.Moves[san] = explorer.Move{
			SAN:     san,
			Results: map[string]explorer.ResultCounts{cohort: {}},
		}
	}

	rc := pos.Results[cohort]
	rc.Add(u.OldResult, -1)
	rc.Add(u.NewResult, 1)
	pos.Results[cohort] = rc
	for _, m := range u.Moves {
		mv, ok := pos.Moves[m.SAN]
		if !ok {
			mv = explorer.Move{SAN: m.SAN, Results: map[string]explorer.ResultCounts{cohort: {}}}
		}
		counts := mv.Results[cohort]
		counts.Add(m.OldResult, -1)
		counts.Add(m.NewResult, 1)
		mv.Results[cohort] = counts
		pos.Moves[m.SAN] = mv
	}

	err = w.store.CreatePosition(ctx, pos)
	if errors.Is(err, store.ErrConditionFailed) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create position: %w", err)
	}
	return true, nil
}

// PutGameIndex upserts the per-position index record for a game. The
// starting position is never indexed.
func (w *Writer) PutGameIndex(ctx context.Context, g *explorer.GameRecord, fen string, result explorer.Result) error {
	if fen == movetree.StartingFEN {
		return nil
	}
	rec := &explorer.Game{
		Fen:    fen,
		ID:     store.GameID(explorer.ExplorerCohort(g), g.ID),
		Cohort: g.Cohort,
		Owner:  g.Owner,
		Result: result,
		Game:   g.Embed(),
	}
	return w.store.PutGame(ctx, rec)
}

// DeleteGameIndex removes the per-position index record for a game.
func (w *Writer) DeleteGameIndex(ctx context.Context, g *explorer.GameRecord, fen string) error {
	if fen == movetree.StartingFEN {
		return nil
	}
	return w.store.DeleteGame(ctx, fen, store.GameID(explorer.ExplorerCohort(g), g.ID))
}

// AnnounceIndexed publishes a GameIndexed event for the notifier,
// carrying the positions this change put index records under.
func (w *Writer) AnnounceIndexed(g explorer.GameRecord, positions []events.IndexedPosition) {
	if w.pub == nil || len(positions) == 0 {
		return
	}
	if err := w.pub.Publish(events.SubjectGameIndexed, events.NewGameIndexed(g, positions)); err != nil {
		w.log.Warn().Err(err).Str("game", g.ID).Msg("publish indexed event failed")
	}
}
