package openingtree

import (
	"strings"
	"time"
)

// Filters selects which indexed games contribute to a recomputed
// aggregate. Zero values mean "no constraint".
type Filters struct {
	// Color restricts to games where the player had this color,
	// "white" or "black".
	Color string

	// Rated restricts to rated (true) or casual (false) games.
	Rated *bool

	// TimeClasses restricts to these time classes, case-insensitive.
	TimeClasses []string

	// Since and Until bound when the game was played, inclusive.
	Since time.Time
	Until time.Time

	// MinOpponentRating and MaxOpponentRating bound the opponent's
	// rating, inclusive. Zero means unbounded.
	MinOpponentRating int
	MaxOpponentRating int
}

// Match reports whether a game passes every filter.
func (f *Filters) Match(g *GameData) bool {
	if f.Color != "" && !strings.EqualFold(f.Color, g.Color) {
		return false
	}
	if f.Rated != nil && *f.Rated != g.Rated {
		return false
	}
	if len(f.TimeClasses) > 0 {
		found := false
		for _, tc := range f.TimeClasses {
			if strings.EqualFold(tc, g.TimeClass) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.Since.IsZero() && g.PlayedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && g.PlayedAt.After(f.Until) {
		return false
	}
	if f.MinOpponentRating > 0 && g.OpponentRating < f.MinOpponentRating {
		return false
	}
	if f.MaxOpponentRating > 0 && g.OpponentRating > f.MaxOpponentRating {
		return false
	}
	return true
}
