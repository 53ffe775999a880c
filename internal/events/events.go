// Package events defines the messages flowing between the explorer
// services and the subjects they travel on.
package events

import (
	"github.com/google/uuid"

	"github.com/freeeve/explorer/internal/explorer"
)

const (
	// SubjectGameChanged carries game create, update and delete images
	// from the game service into the processor.
	SubjectGameChanged = "explorer.games.changed"

	// SubjectGameIndexed carries freshly indexed games from the
	// processor into the follower notifier.
	SubjectGameIndexed = "explorer.games.indexed"
)

// GameChanged is one game mutation. Old is nil for a create, New is nil
// for a delete; both are set for an update.
type GameChanged struct {
	ID  string               `json:"id"`
	Old *explorer.GameRecord `json:"old,omitempty"`
	New *explorer.GameRecord `json:"new,omitempty"`
}

// NewGameChanged builds a GameChanged event with a fresh event ID.
func NewGameChanged(old, new *explorer.GameRecord) GameChanged {
	return GameChanged{ID: uuid.NewString(), Old: old, New: new}
}

// IndexedPosition is one position a game was indexed under, with the
// result the game contributed there.
type IndexedPosition struct {
	Fen    string          `json:"fen"`
	Result explorer.Result `json:"result"`
}

// GameIndexed announces that a game was written to the explorer index.
// Positions lists only the positions touched by this change, so edits
// fan out to followers of the new lines without re-notifying the rest
// of the game. Removals never notify followers.
type GameIndexed struct {
	ID        string              `json:"id"`
	Game      explorer.GameRecord `json:"game"`
	Positions []IndexedPosition   `json:"positions"`
}

// NewGameIndexed builds a GameIndexed event with a fresh event ID.
func NewGameIndexed(game explorer.GameRecord, positions []IndexedPosition) GameIndexed {
	return GameIndexed{ID: uuid.NewString(), Game: game, Positions: positions}
}
