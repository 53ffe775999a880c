// Package openingtree builds an in-memory explorer over one player's
// games. Unlike the shared explorer, counters are not precomputed per
// cohort: every read recomputes from the underlying game sets, so any
// filter combination works without reindexing.
package openingtree

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/freeeve/explorer/internal/explorer"
	"github.com/freeeve/explorer/internal/movetree"
)

// GameData is the per-game metadata kept for filtering.
type GameData struct {
	ID             string          `json:"id"`
	White          string          `json:"white"`
	Black          string          `json:"black"`
	WhiteElo       int             `json:"whiteElo,omitempty"`
	BlackElo       int             `json:"blackElo,omitempty"`
	Rated          bool            `json:"rated"`
	TimeClass      string          `json:"timeClass,omitempty"`
	PlayedAt       time.Time       `json:"playedAt"`
	Color          string          `json:"color"`
	OpponentRating int             `json:"opponentRating,omitempty"`
	Result         explorer.Result `json:"result"`
}

// positionData tracks which games reach a position and which moves they
// play from it. Values are the game's result relative to the position.
type positionData struct {
	games map[string]explorer.Result
	moves map[string]map[string]explorer.Result
}

// Tree is a mergeable per-player opening tree. Safe for concurrent use.
type Tree struct {
	mu        sync.RWMutex
	positions map[string]*positionData
	games     map[string]*GameData
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{
		positions: map[string]*positionData{},
		games:     map[string]*GameData{},
	}
}

// IndexGame parses the game's PGN and adds it to the tree. Reindexing
// the same game ID replaces its previous contribution only if the new
// parse succeeds first.
func (t *Tree) IndexGame(g GameData, pgn string) error {
	rec := &explorer.GameRecord{ID: g.ID, Pgn: pgn}
	positions, err := explorer.ExtractPositions(rec)
	if err != nil {
		return fmt.Errorf("index game %s: %w", g.ID, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.games[g.ID]; ok {
		t.removeLocked(g.ID)
	}
	t.games[g.ID] = &g
	for fen, pos := range positions {
		pd := t.positions[fen]
		if pd == nil {
			pd = &positionData{
				games: map[string]explorer.Result{},
				moves: map[string]map[string]explorer.Result{},
			}
			t.positions[fen] = pd
		}
		pd.games[g.ID] = pos.Result
		for san, mv := range pos.Moves {
			byGame := pd.moves[san]
			if byGame == nil {
				byGame = map[string]explorer.Result{}
				pd.moves[san] = byGame
			}
			byGame[g.ID] = mv.Result
		}
	}
	return nil
}

// RemoveGame deletes a game's contribution from the tree.
func (t *Tree) RemoveGame(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(id)
}

func (t *Tree) removeLocked(id string) {
	delete(t.games, id)
	for fen, pd := range t.positions {
		delete(pd.games, id)
		for san, byGame := range pd.moves {
			delete(byGame, id)
			if len(byGame) == 0 {
				delete(pd.moves, san)
			}
		}
		if len(pd.games) == 0 {
			delete(t.positions, fen)
		}
	}
}

// Merge folds other into t. Shared game IDs keep other's version.
func (t *Tree) Merge(other *Tree) {
	other.mu.RLock()
	defer other.mu.RUnlock()
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, g := range other.games {
		t.games[id] = g
	}
	for fen, opd := range other.positions {
		pd := t.positions[fen]
		if pd == nil {
			pd = &positionData{
				games: map[string]explorer.Result{},
				moves: map[string]map[string]explorer.Result{},
			}
			t.positions[fen] = pd
		}
		for id, r := range opd.games {
			pd.games[id] = r
		}
		for san, byGame := range opd.moves {
			dst := pd.moves[san]
			if dst == nil {
				dst = map[string]explorer.Result{}
				pd.moves[san] = dst
			}
			for id, r := range byGame {
				dst[id] = r
			}
		}
	}
}

// MoveStats is the recomputed aggregate for one continuation.
type MoveStats struct {
	SAN     string                `json:"san"`
	Results explorer.ResultCounts `json:"results"`
}

// PositionStats is the recomputed aggregate for one position.
type PositionStats struct {
	Fen     string                `json:"normalizedFen"`
	Results explorer.ResultCounts `json:"results"`
	Moves   []MoveStats           `json:"moves"`
}

// Position recomputes the aggregate for a position over the games that
// pass the filters. The FEN is normalized before lookup. ok is false
// when no filtered game reaches the position.
func (t *Tree) Position(fen string, f Filters) (PositionStats, bool) {
	norm, err := movetree.NormalizeFEN(fen)
	if err != nil {
		return PositionStats{}, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	pd, ok := t.positions[norm]
	if !ok {
		return PositionStats{}, false
	}

	stats := PositionStats{Fen: norm}
	matched := false
	for id, r := range pd.games {
		g := t.games[id]
		if g == nil || !f.Match(g) {
			continue
		}
		stats.Results.Add(r, 1)
		matched = true
	}
	if !matched {
		return PositionStats{}, false
	}

	for san, byGame := range pd.moves {
		ms := MoveStats{SAN: san}
		for id, r := range byGame {
			g := t.games[id]
			if g == nil || !f.Match(g) {
				continue
			}
			ms.Results.Add(r, 1)
		}
		if ms.Results.Total() > 0 {
			stats.Moves = append(stats.Moves, ms)
		}
	}
	sort.Slice(stats.Moves, func(i, j int) bool {
		ti, tj := stats.Moves[i].Results.Total(), stats.Moves[j].Results.Total()
		if ti != tj {
			return ti > tj
		}
		return stats.Moves[i].SAN < stats.Moves[j].SAN
	})
	return stats, true
}

// Games returns the filtered games reaching a position, most recent
// first.
func (t *Tree) Games(fen string, f Filters) []GameData {
	norm, err := movetree.NormalizeFEN(fen)
	if err != nil {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	pd, ok := t.positions[norm]
	if !ok {
		return nil
	}

	var out []GameData
	for id := range pd.games {
		g := t.games[id]
		if g == nil || !f.Match(g) {
			continue
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlayedAt.Equal(out[j].PlayedAt) {
			return out[i].PlayedAt.After(out[j].PlayedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Size returns the number of indexed games and distinct positions.
func (t *Tree) Size() (games, positions int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.games), len(t.positions)
}
