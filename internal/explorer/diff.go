package explorer

import "sort"

// Diff computes the per-position updates that move the aggregates from
// reflecting the old extraction to reflecting the new one. Positions and
// moves whose result did not change produce no update; Diff(x, x) is
// empty. Output order is deterministic.
func Diff(old, new map[string]PositionExtraction) []PositionUpdate {
	fens := make([]string, 0, len(old)+len(new))
	seen := make(map[string]bool, len(old)+len(new))
	for fen := range old {
		fens = append(fens, fen)
		seen[fen] = true
	}
	for fen := range new {
		if !seen[fen] {
			fens = append(fens, fen)
		}
	}
	sort.Strings(fens)

	var updates []PositionUpdate
	for _, fen := range fens {
		oldPos, hadOld := old[fen]
		newPos, hasNew := new[fen]

		u := PositionUpdate{Fen: fen}
		if hadOld {
			u.OldResult = oldPos.Result
		}
		if hasNew {
			u.NewResult = newPos.Result
		}

		sans := make([]string, 0, len(oldPos.Moves)+len(newPos.Moves))
		seenSAN := make(map[string]bool, len(oldPos.Moves)+len(newPos.Moves))
		for san := range oldPos.Moves {
			sans = append(sans, san)
			seenSAN[san] = true
		}
		for san := range newPos.Moves {
			if !seenSAN[san] {
				sans = append(sans, san)
			}
		}
		sort.Strings(sans)

		for _, san := range sans {
			mu := MoveUpdate{SAN: san}
			if m, ok := oldPos.Moves[san]; ok {
				mu.OldResult = m.Result
			}
			if m, ok := newPos.Moves[san]; ok {
				mu.NewResult = m.Result
			}
			if mu.OldResult != mu.NewResult {
				u.Moves = append(u.Moves, mu)
			}
		}

		if u.OldResult != u.NewResult || len(u.Moves) > 0 {
			updates = append(updates, u)
		}
	}
	return updates
}
