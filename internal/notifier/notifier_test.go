package notifier

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/freeeve/explorer/internal/events"
	"github.com/freeeve/explorer/internal/explorer"
	"github.com/freeeve/explorer/internal/movetree"
	"github.com/freeeve/explorer/internal/store"
)

func dojoGame(cohort, pgn string) *explorer.GameRecord {
	return &explorer.GameRecord{
		Cohort: cohort,
		ID:     "g1",
		Owner:  "alice",
		Pgn:    pgn,
	}
}

func mastersGame(timeClass, whiteElo, blackElo string) *explorer.GameRecord {
	return &explorer.GameRecord{
		Cohort:    "masters",
		ID:        "m1",
		Owner:     "masters",
		TimeClass: timeClass,
		Headers: explorer.GameHeaders{
			WhiteElo: whiteElo,
			BlackElo: blackElo,
		},
		Pgn: `[Result "1-0"]

1. e4 e5 1-0`,
	}
}

func dojoFollower(username string, f explorer.DojoFilter) *explorer.Follower {
	return &explorer.Follower{
		Username: username,
		ID:       store.FollowerID(username),
		Metadata: explorer.FollowMetadata{Dojo: f},
	}
}

func TestMatchesDojoCohortRange(t *testing.T) {
	f := dojoFollower("bob", explorer.DojoFilter{
		Enabled:   true,
		MinCohort: "1200-1300",
		MaxCohort: "1800-1900",
	})

	tests := []struct {
		cohort string
		want   bool
	}{
		{"1500-1600", true},
		{"1200-1300", true},
		{"1800-1900", true},
		{"1000-1100", false},
		{"2000-2100", false},
		{"bogus", false},
	}
	for _, tt := range tests {
		g := dojoGame(tt.cohort, "")
		if got := Matches(f, g, explorer.ResultWhite); got != tt.want {
			t.Errorf("cohort %s: match = %v, want %v", tt.cohort, got, tt.want)
		}
	}
}

func TestMatchesDojoDisabled(t *testing.T) {
	f := dojoFollower("bob", explorer.DojoFilter{})
	if Matches(f, dojoGame("1500-1600", ""), explorer.ResultWhite) {
		t.Error("disabled filter matched")
	}
}

func TestMatchesDojoDisableVariations(t *testing.T) {
	f := dojoFollower("bob", explorer.DojoFilter{Enabled: true, DisableVariations: true})
	g := dojoGame("1500-1600", "")
	if Matches(f, g, explorer.ResultAnalysis) {
		t.Error("variation-only reach should not match")
	}
	if !Matches(f, g, explorer.ResultDraws) {
		t.Error("mainline reach should match")
	}
}

func TestMatchesMasters(t *testing.T) {
	f := &explorer.Follower{
		Username: "bob",
		Metadata: explorer.FollowMetadata{
			Masters: explorer.MastersFilter{
				Enabled:          true,
				TimeControls:     []string{"Blitz", "rapid"},
				MinAverageRating: 2400,
			},
		},
	}

	if !Matches(f, mastersGame("blitz", "2500", "2450"), explorer.ResultWhite) {
		t.Error("qualifying masters game should match")
	}
	if Matches(f, mastersGame("classical", "2500", "2450"), explorer.ResultWhite) {
		t.Error("disallowed time class matched")
	}
	if Matches(f, mastersGame("blitz", "2200", "2100"), explorer.ResultWhite) {
		t.Error("low average rating matched")
	}
	if Matches(f, mastersGame("blitz", "2500", "n/a"), explorer.ResultWhite) {
		t.Error("malformed rating matched")
	}
	// Missing ratings count as zero.
	if Matches(f, mastersGame("blitz", "", ""), explorer.ResultWhite) {
		t.Error("missing ratings matched a 2400 floor")
	}

	// Dojo-only follower never matches masters games.
	d := dojoFollower("carol", explorer.DojoFilter{Enabled: true})
	if Matches(d, mastersGame("blitz", "2500", "2450"), explorer.ResultWhite) {
		t.Error("dojo-only follower matched a masters game")
	}
}

func TestProcessBatchDelivers(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	afterE4, err := movetree.NormalizeFEN("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1")
	if err != nil {
		t.Fatal(err)
	}
	follower := dojoFollower("bob", explorer.DojoFilter{Enabled: true})
	follower.Fen = afterE4
	if err := s.PutFollower(ctx, follower); err != nil {
		t.Fatalf("PutFollower: %v", err)
	}

	n := New(Config{Followers: s, Notifications: s, Logger: zerolog.Nop()})
	g := dojoGame("1500-1600", `[Result "1-0"]

1. e4 e5 1-0`)
	ev := events.NewGameIndexed(*g, []events.IndexedPosition{
		{Fen: afterE4, Result: explorer.ResultWhite},
	})
	n.ProcessBatch(ctx, []events.GameIndexed{ev})

	got := s.Notifications("bob")
	if len(got) != 1 {
		t.Fatalf("notifications = %+v, want 1", got)
	}
	if got[0].Fen != afterE4 {
		t.Errorf("notification fen = %q, want %q", got[0].Fen, afterE4)
	}
	if got[0].Game.ID != "g1" {
		t.Errorf("notification game = %+v", got[0].Game)
	}
}

func TestProcessBatchSkipsStartingPosition(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	follower := dojoFollower("bob", explorer.DojoFilter{Enabled: true})
	follower.Fen = movetree.StartingFEN
	if err := s.PutFollower(ctx, follower); err != nil {
		t.Fatalf("PutFollower: %v", err)
	}

	n := New(Config{Followers: s, Notifications: s, Logger: zerolog.Nop()})
	g := dojoGame("1500-1600", `[Result "1-0"]

1. e4 e5 1-0`)
	ev := events.NewGameIndexed(*g, []events.IndexedPosition{
		{Fen: movetree.StartingFEN, Result: explorer.ResultWhite},
	})
	n.ProcessBatch(ctx, []events.GameIndexed{ev})

	if got := s.Notifications("bob"); len(got) != 0 {
		t.Errorf("starting position follower notified: %+v", got)
	}
}

func TestProcessBatchFiltersByResult(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	// The followed position only appears inside a variation.
	afterD4, err := movetree.NormalizeFEN("rnbqkbnr/pppppppp/8/8/3P4/8/PPP1PPPP/RNBQKBNR b KQkq d3 0 1")
	if err != nil {
		t.Fatal(err)
	}
	follower := dojoFollower("bob", explorer.DojoFilter{Enabled: true, DisableVariations: true})
	follower.Fen = afterD4
	if err := s.PutFollower(ctx, follower); err != nil {
		t.Fatalf("PutFollower: %v", err)
	}

	n := New(Config{Followers: s, Notifications: s, Logger: zerolog.Nop()})
	g := dojoGame("1500-1600", `[Result "1-0"]

1. e4 (1. d4) e5 1-0`)
	ev := events.NewGameIndexed(*g, []events.IndexedPosition{
		{Fen: afterD4, Result: explorer.ResultAnalysis},
	})
	n.ProcessBatch(ctx, []events.GameIndexed{ev})

	if got := s.Notifications("bob"); len(got) != 0 {
		t.Errorf("variation-only reach notified: %+v", got)
	}
}
