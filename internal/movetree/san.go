package movetree

import (
	"github.com/freeeve/pgn/v3"
)

// LegalMoves returns the SAN of every legal move in the position. The
// rendered SANs use minimal disambiguation and no check/mate suffix,
// matching the keys produced by Parse.
func LegalMoves(fen string) ([]string, error) {
	gs, err := pgn.NewGame(fen)
	if err != nil {
		return nil, err
	}
	moves := pgn.GenerateLegalMoves(gs)
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		out = append(out, moveSAN(gs, mv))
	}
	return out, nil
}

const (
	sanFiles = "abcdefgh"
	sanRanks = "12345678"
)

// moveSAN renders a move in SAN notation for the given position.
func moveSAN(pos *pgn.GameState, mv pgn.Mv) string {
	// Castling
	if mv.Flags == 4 {
		if mv.To > mv.From {
			return "O-O"
		}
		return "O-O-O"
	}

	fromSq := int(mv.From)
	toSq := int(mv.To)
	fromFile := fromSq % 8
	fromRank := fromSq / 8
	toFile := toSq % 8
	toRank := toSq / 8

	piece := pos.PieceAt(mv.From)
	isPawn := piece == 'P' || piece == 'p'
	isCapture := pos.PieceAt(mv.To) != 0 || (isPawn && mv.Flags == moveFlagEnPassant)

	if isPawn {
		var san string
		if isCapture {
			san = string(sanFiles[fromFile]) + "x" + string(sanFiles[toFile]) + string(sanRanks[toRank])
		} else {
			san = string(sanFiles[toFile]) + string(sanRanks[toRank])
		}
		switch mv.Promo {
		case pgn.PromoQueen:
			san += "=Q"
		case pgn.PromoRook:
			san += "=R"
		case pgn.PromoBishop:
			san += "=B"
		case pgn.PromoKnight:
			san += "=N"
		}
		return san
	}

	pieceChar := piece
	if piece >= 'a' && piece <= 'z' {
		pieceChar = piece - 32
	}
	san := string(pieceChar)

	// Disambiguation: consider every other piece of the same type that
	// can reach the same square.
	sameFile, sameRank, ambiguous := false, false, false
	for _, other := range pgn.GenerateLegalMoves(pos) {
		if other.To != mv.To || other.From == mv.From {
			continue
		}
		otherPiece := pos.PieceAt(other.From)
		if otherPiece >= 'a' && otherPiece <= 'z' {
			otherPiece -= 32
		}
		if otherPiece != pieceChar {
			continue
		}
		ambiguous = true
		if int(other.From)%8 == fromFile {
			sameFile = true
		}
		if int(other.From)/8 == fromRank {
			sameRank = true
		}
	}
	if ambiguous {
		switch {
		case !sameFile:
			san += string(sanFiles[fromFile])
		case !sameRank:
			san += string(sanRanks[fromRank])
		default:
			san += string(sanFiles[fromFile]) + string(sanRanks[fromRank])
		}
	}

	if isCapture {
		san += "x"
	}
	san += string(sanFiles[toFile]) + string(sanRanks[toRank])
	return san
}
