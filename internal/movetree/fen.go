package movetree

import (
	"fmt"
	"strings"

	"github.com/freeeve/pgn/v3"
)

// moveFlagEnPassant marks an en passant capture in pgn.Mv.Flags.
const moveFlagEnPassant = 2

// NormalizeFEN canonicalizes a FEN for use as a position key: piece
// placement, side to move and castling rights are kept, the en passant
// field is cleared unless en passant is currently a legal capture, and
// the halfmove/fullmove counters are forced to 0 and 1. Transpositions
// normalize to the same key.
func NormalizeFEN(fen string) (string, error) {
	parts := strings.Fields(strings.TrimSpace(fen))
	if len(parts) < 4 {
		return "", fmt.Errorf("invalid FEN %q: expected at least 4 fields", fen)
	}
	ep := parts[3]
	if ep != "-" && !enPassantLegal(fen) {
		ep = "-"
	}
	return parts[0] + " " + parts[1] + " " + parts[2] + " " + ep + " 0 1", nil
}

// enPassantLegal reports whether the side to move has a legal en passant
// capture available.
func enPassantLegal(fen string) bool {
	gs, err := pgn.NewGame(fen)
	if err != nil {
		return false
	}
	for _, mv := range pgn.GenerateLegalMoves(gs) {
		if mv.Flags == moveFlagEnPassant {
			return true
		}
	}
	return false
}
