// Package movetree builds PGN game trees on top of the pgn/v3 rules engine.
//
// The package implements no chess rules of its own: SAN parsing, move
// application, legal-move generation and FEN output are all delegated to
// github.com/freeeve/pgn/v3. What it adds is the tree structure PGN movetext
// encodes (a mainline plus recursively nested variations), which the
// flat game parser in pgn/v3 does not expose.
package movetree

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/freeeve/pgn/v3"
)

// StartingFEN is the standard initial position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// NullMoveSAN is the canonical SAN for a null move in annotated games.
// Both "Z0" and "--" in source PGNs map to it.
const NullMoveSAN = "Z0"

// Move is one node in a game tree. Variations hold the first moves of
// alternative lines played from the same position as this move.
type Move struct {
	SAN        string
	FenBefore  string
	FenAfter   string
	Next       *Move
	Variations []*Move
}

// Game is a parsed PGN game: tag pairs plus the root of the move tree.
// Root is nil for a game without moves.
type Game struct {
	Tags     map[string]string
	SetupFEN string
	Root     *Move
}

var tagPairRegex = regexp.MustCompile(`^\[(\w+)\s+"(.*)"\]\s*$`)

// Parse parses a single PGN game, movetext variations included.
// Any move that the rules engine rejects fails the whole parse.
func Parse(text string) (*Game, error) {
	g := &Game{Tags: map[string]string{}}

	var movetext strings.Builder
	inMovetext := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !inMovetext && trimmed == "" {
			continue
		}
		if !inMovetext && strings.HasPrefix(trimmed, "[") {
			if m := tagPairRegex.FindStringSubmatch(trimmed); m != nil {
				g.Tags[m[1]] = m[2]
				continue
			}
		}
		inMovetext = true
		movetext.WriteString(line)
		movetext.WriteByte('\n')
	}

	g.SetupFEN = StartingFEN
	if fen := g.Tags["FEN"]; fen != "" {
		g.SetupFEN = fen
	}

	toks, err := tokenize(movetext.String())
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks}
	root, err := p.line(g.SetupFEN)
	if err != nil {
		return nil, err
	}
	if p.i < len(p.toks) {
		return nil, fmt.Errorf("unbalanced variation at token %q", p.toks[p.i])
	}

	g.Root = root
	return g, nil
}

type parser struct {
	toks []string
	i    int
}

// line parses one line of moves starting from fen, recursing into
// variations. It stops at ")" (left for the caller) or end of input.
func (p *parser) line(fen string) (*Move, error) {
	var first, last *Move
	for p.i < len(p.toks) {
		tok := p.toks[p.i]
		if tok == ")" {
			break
		}
		if tok == "(" {
			p.i++
			if last == nil {
				return nil, errors.New("variation with no preceding move")
			}
			v, err := p.line(last.FenBefore)
			if err != nil {
				return nil, err
			}
			if p.i >= len(p.toks) || p.toks[p.i] != ")" {
				return nil, errors.New("unterminated variation")
			}
			p.i++
			if v != nil {
				last.Variations = append(last.Variations, v)
			}
			continue
		}
		p.i++

		san, ok := moveToken(tok)
		if !ok {
			continue
		}
		after, err := applySAN(fen, san)
		if err != nil {
			return nil, fmt.Errorf("move %q: %w", san, err)
		}
		m := &Move{SAN: san, FenBefore: fen, FenAfter: after}
		if last == nil {
			first = m
		} else {
			last.Next = m
		}
		last = m
		fen = after
	}
	return first, nil
}

// tokenize splits movetext into move tokens and the "(" / ")" variation
// delimiters, dropping comments.
func tokenize(s string) ([]string, error) {
	var toks []string
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '{':
			j := strings.IndexByte(s[i:], '}')
			if j < 0 {
				return nil, errors.New("unterminated comment")
			}
			i += j + 1
		case c == ';':
			j := strings.IndexByte(s[i:], '\n')
			if j < 0 {
				i = len(s)
			} else {
				i += j + 1
			}
		case c == '(' || c == ')':
			toks = append(toks, string(c))
			i++
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		default:
			j := i
			for j < len(s) && !isDelim(s[j]) {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		}
	}
	return toks, nil
}

func isDelim(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '(', ')', '{', ';':
		return true
	}
	return false
}

var moveNumberPrefix = regexp.MustCompile(`^\d+\.*`)

// moveToken cleans a raw token into a SAN, or reports that the token is
// not a move (move numbers, NAGs, game terminators).
func moveToken(tok string) (string, bool) {
	switch tok {
	case "", "*", "1-0", "0-1", "1/2-1/2":
		return "", false
	}
	if tok[0] == '$' {
		return "", false
	}
	if tok[0] >= '0' && tok[0] <= '9' {
		if strings.HasPrefix(tok, "0-0") {
			// Zero-style castling
			tok = strings.ReplaceAll(tok, "0", "O")
		} else {
			// Glued move numbers like "12...Nf6" or "1.e4"
			tok = moveNumberPrefix.ReplaceAllString(tok, "")
		}
	}
	// Check, mate and annotation suffixes are not part of the move key
	tok = strings.TrimRight(tok, "+#!?")
	if tok == "" || strings.Trim(tok, ".") == "" {
		return "", false
	}
	if tok == "--" || tok == NullMoveSAN {
		return NullMoveSAN, true
	}
	return tok, true
}

// applySAN applies one SAN to the position in fen and returns the
// resulting FEN. Null moves only flip the side to move.
func applySAN(fen, san string) (string, error) {
	if san == NullMoveSAN {
		return flipSide(fen)
	}
	gs, err := pgn.NewGame(fen)
	if err != nil {
		return "", err
	}
	mv, err := pgn.ParseSAN(gs, san)
	if err != nil {
		return "", err
	}
	if err := pgn.ApplyMove(gs, mv); err != nil {
		return "", err
	}
	return gs.ToFEN(), nil
}

// flipSide switches the side to move without making a move. The en
// passant square is cleared since no double push just happened.
func flipSide(fen string) (string, error) {
	parts := strings.Fields(fen)
	if len(parts) < 6 {
		return "", fmt.Errorf("invalid FEN %q", fen)
	}
	if parts[1] == "w" {
		parts[1] = "b"
	} else {
		parts[1] = "w"
		if n, err := strconv.Atoi(parts[5]); err == nil {
			parts[5] = strconv.Itoa(n + 1)
		}
	}
	parts[3] = "-"
	return strings.Join(parts, " "), nil
}
