// Package store persists explorer aggregates, game index records,
// followers and notifications. The production implementation is backed
// by DynamoDB; Memory provides the same semantics for tests and local
// runs.
package store

import (
	"context"
	"errors"

	"github.com/freeeve/explorer/internal/explorer"
)

// ErrNotFound is returned when a key is not found in the store.
var ErrNotFound = errors.New("not found")

// ErrConditionFailed is returned when a conditional write loses a race,
// such as two processors creating the same position record at once.
var ErrConditionFailed = errors.New("condition failed")

// PositionReader serves explorer reads.
type PositionReader interface {
	// GetPosition returns the aggregate for a normalized FEN, or
	// ErrNotFound if no game has reached the position yet.
	GetPosition(ctx context.Context, fen string) (*explorer.Position, error)

	// ListGames returns every game index record under a normalized FEN.
	ListGames(ctx context.Context, fen string) ([]explorer.Game, error)

	// ListFollowers returns every follower of a normalized FEN.
	ListFollowers(ctx context.Context, fen string) ([]explorer.Follower, error)
}

// PositionStore extends PositionReader with the writes the processor
// needs.
type PositionStore interface {
	PositionReader

	// CreatePosition writes a fresh aggregate record. It fails with
	// ErrConditionFailed if the position already exists.
	CreatePosition(ctx context.Context, pos *explorer.Position) error

	// InitCohort seeds zeroed counters for a cohort on an existing
	// position and each of its moves. It fails with ErrConditionFailed
	// if the cohort is already initialized.
	InitCohort(ctx context.Context, pos *explorer.Position, cohort string) error

	// ApplyUpdate atomically adjusts the counters of one position for
	// one cohort. The position and cohort must already exist.
	ApplyUpdate(ctx context.Context, fen, cohort string, u explorer.PositionUpdate) error

	// PutGame upserts a game index record.
	PutGame(ctx context.Context, g *explorer.Game) error

	// DeleteGame removes a game index record. Deleting an absent record
	// is not an error.
	DeleteGame(ctx context.Context, fen, id string) error

	// PutFollower upserts a follower record.
	PutFollower(ctx context.Context, f *explorer.Follower) error

	// DeleteFollower removes a follower record.
	DeleteFollower(ctx context.Context, fen, username string) error
}

// NotificationStore delivers new-game notifications to followers.
type NotificationStore interface {
	// NotifyGame upserts the follower's notification for a position,
	// bumping its counter and appending the triggering game.
	NotifyGame(ctx context.Context, username, fen string, game explorer.GameEmbed) error
}

// GameID returns the range key of a game index record for the given
// explorer cohort.
func GameID(explorerCohort, gameID string) string {
	return "GAME#" + explorerCohort + "#" + gameID
}

// FollowerID returns the range key of a follower record.
func FollowerID(username string) string {
	return "FOLLOWER#" + username
}
