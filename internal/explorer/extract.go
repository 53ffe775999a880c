package explorer

import (
	"fmt"

	"github.com/freeeve/explorer/internal/movetree"
)

// ExtractPositions parses a game's PGN and returns every position it
// reaches, keyed by normalized FEN. Positions and moves on the mainline
// carry the game's result; anything reached only through a variation
// carries analysis. Unlisted games extract as empty.
func ExtractPositions(g *GameRecord) (map[string]PositionExtraction, error) {
	positions := map[string]PositionExtraction{}
	if g == nil || g.Unlisted {
		return positions, nil
	}

	game, err := movetree.Parse(g.Pgn)
	if err != nil {
		return nil, fmt.Errorf("game %s: %w", g.ID, err)
	}

	result := ResultFromTag(game.Tags["Result"])

	ensure := func(fen string, mainline bool) (string, error) {
		norm, err := movetree.NormalizeFEN(fen)
		if err != nil {
			return "", fmt.Errorf("game %s: %w", g.ID, err)
		}
		if _, ok := positions[norm]; !ok {
			r := ResultAnalysis
			if mainline {
				r = result
			}
			positions[norm] = PositionExtraction{
				Fen:    norm,
				Result: r,
				Moves:  map[string]MoveExtraction{},
			}
		}
		return norm, nil
	}

	// A game without moves contributes nothing, not even its setup
	// position.
	if game.Root == nil {
		return positions, nil
	}
	if _, err := ensure(game.SetupFEN, true); err != nil {
		return nil, err
	}

	type frame struct {
		mv       *movetree.Move
		mainline bool
	}

	// Depth-first with the continuation pushed last, so the line a move
	// belongs to is fully visited before its variations. Mainline
	// positions therefore always claim a shared fen first.
	stack := []frame{{game.Root, true}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		mv := f.mv

		before, err := ensure(mv.FenBefore, f.mainline)
		if err != nil {
			return nil, err
		}
		if _, err := ensure(mv.FenAfter, f.mainline); err != nil {
			return nil, err
		}

		if mv.SAN != movetree.NullMoveSAN {
			pos := positions[before]
			_, seen := pos.Moves[mv.SAN]
			if f.mainline || !seen {
				r := ResultAnalysis
				if f.mainline {
					r = result
				}
				pos.Moves[mv.SAN] = MoveExtraction{SAN: mv.SAN, Result: r}
			}
		}

		for i := len(mv.Variations) - 1; i >= 0; i-- {
			stack = append(stack, frame{mv.Variations[i], false})
		}
		if mv.Next != nil {
			stack = append(stack, frame{mv.Next, f.mainline})
		}
	}

	return positions, nil
}
