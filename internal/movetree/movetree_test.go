package movetree

import (
	"strings"
	"testing"
)

const sicilianPGN = `[Event "Test"]
[Site "?"]
[Result "1-0"]

1. e4 c5 (1... e5 2. Nf3 Nc6) 2. Nf3 d6 1-0`

func TestParseMainline(t *testing.T) {
	g, err := Parse(sicilianPGN)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if g.Tags["Result"] != "1-0" {
		t.Errorf("Result tag = %q, want 1-0", g.Tags["Result"])
	}

	want := []string{"e4", "c5", "Nf3", "d6"}
	var got []string
	for m := g.Root; m != nil; m = m.Next {
		got = append(got, m.SAN)
	}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("mainline = %v, want %v", got, want)
	}
}

func TestParseVariations(t *testing.T) {
	g, err := Parse(sicilianPGN)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	c5 := g.Root.Next
	if c5 == nil || c5.SAN != "c5" {
		t.Fatalf("second mainline move = %+v, want c5", c5)
	}
	if len(c5.Variations) != 1 {
		t.Fatalf("c5 variations = %d, want 1", len(c5.Variations))
	}

	e5 := c5.Variations[0]
	if e5.SAN != "e5" {
		t.Errorf("variation first move = %q, want e5", e5.SAN)
	}
	if e5.FenBefore != c5.FenBefore {
		t.Errorf("variation starts from %q, want %q", e5.FenBefore, c5.FenBefore)
	}

	var line []string
	for m := e5; m != nil; m = m.Next {
		line = append(line, m.SAN)
	}
	if strings.Join(line, " ") != "e5 Nf3 Nc6" {
		t.Errorf("variation line = %v, want [e5 Nf3 Nc6]", line)
	}
}

func TestParseNestedVariation(t *testing.T) {
	g, err := Parse(`1. e4 e5 (1... c5 2. Nf3 (2. c3 d5) d6) 2. Nf3 *`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	e5 := g.Root.Next
	if len(e5.Variations) != 1 {
		t.Fatalf("e5 variations = %d, want 1", len(e5.Variations))
	}
	nf3 := e5.Variations[0].Next
	if nf3 == nil || nf3.SAN != "Nf3" {
		t.Fatalf("variation second move = %+v, want Nf3", nf3)
	}
	if len(nf3.Variations) != 1 || nf3.Variations[0].SAN != "c3" {
		t.Errorf("nested variation = %+v, want c3", nf3.Variations)
	}
}

func TestParseCommentsAndNAGs(t *testing.T) {
	g, err := Parse(`1. e4 $1 {best by test} e5 ; rest of line ignored
2. Nf3 1/2-1/2`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var got []string
	for m := g.Root; m != nil; m = m.Next {
		got = append(got, m.SAN)
	}
	if strings.Join(got, " ") != "e4 e5 Nf3" {
		t.Errorf("moves = %v, want [e4 e5 Nf3]", got)
	}
}

func TestParseNullMove(t *testing.T) {
	g, err := Parse(`1. e4 Z0 2. d4 *`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	z0 := g.Root.Next
	if z0 == nil || z0.SAN != NullMoveSAN {
		t.Fatalf("second move = %+v, want %s", z0, NullMoveSAN)
	}
	if !strings.Contains(z0.FenAfter, " w ") {
		t.Errorf("null move should flip side to move, got %q", z0.FenAfter)
	}
	if g.Root.Next.Next == nil || g.Root.Next.Next.SAN != "d4" {
		t.Error("expected d4 to follow the null move")
	}
}

func TestParseEmpty(t *testing.T) {
	g, err := Parse(`[Event "Empty"]

*`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if g.Root != nil {
		t.Errorf("Root = %+v, want nil", g.Root)
	}
}

func TestParseIllegalMove(t *testing.T) {
	if _, err := Parse(`1. e5 *`); err == nil {
		t.Error("expected error for illegal move")
	}
}

func TestParseGluedMoveNumbers(t *testing.T) {
	g, err := Parse(`1.e4 e5 2.Nf3 Nc6 3.Bb5!? a6 *`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var got []string
	for m := g.Root; m != nil; m = m.Next {
		got = append(got, m.SAN)
	}
	if strings.Join(got, " ") != "e4 e5 Nf3 Nc6 Bb5 a6" {
		t.Errorf("moves = %v", got)
	}
}

func TestNormalizeFENClearsEnPassant(t *testing.T) {
	// After 1. e4 the e3 square is recorded but no black pawn can take.
	fen := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	got, err := NormalizeFEN(fen)
	if err != nil {
		t.Fatalf("NormalizeFEN: %v", err)
	}
	want := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
	if got != want {
		t.Errorf("NormalizeFEN = %q, want %q", got, want)
	}
}

func TestNormalizeFENKeepsLegalEnPassant(t *testing.T) {
	// After 1. e4 c5 2. e5 d5 white can capture exd6.
	fen := "rnbqkbnr/pp2pppp/8/2ppP3/8/8/PPPP1PPP/RNBQKBNR w KQkq d6 0 3"
	got, err := NormalizeFEN(fen)
	if err != nil {
		t.Fatalf("NormalizeFEN: %v", err)
	}
	want := "rnbqkbnr/pp2pppp/8/2ppP3/8/8/PPPP1PPP/RNBQKBNR w KQkq d6 0 1"
	if got != want {
		t.Errorf("NormalizeFEN = %q, want %q", got, want)
	}
}

func TestNormalizeFENCountersReset(t *testing.T) {
	fen := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 12 34"
	got, err := NormalizeFEN(fen)
	if err != nil {
		t.Fatalf("NormalizeFEN: %v", err)
	}
	if got != StartingFEN {
		t.Errorf("NormalizeFEN = %q, want %q", got, StartingFEN)
	}
}

func TestNormalizeFENInvalid(t *testing.T) {
	if _, err := NormalizeFEN("too short"); err == nil {
		t.Error("expected error for truncated FEN")
	}
}

func TestLegalMovesStartingPosition(t *testing.T) {
	moves, err := LegalMoves(StartingFEN)
	if err != nil {
		t.Fatalf("LegalMoves: %v", err)
	}
	if len(moves) != 20 {
		t.Errorf("len(moves) = %d, want 20", len(moves))
	}
	seen := map[string]bool{}
	for _, san := range moves {
		if seen[san] {
			t.Errorf("duplicate SAN %q", san)
		}
		seen[san] = true
	}
	for _, want := range []string{"e4", "d4", "Nf3", "Nc3", "a3", "h4"} {
		if !seen[want] {
			t.Errorf("missing SAN %q in %v", want, moves)
		}
	}
}

func TestLegalMovesDisambiguation(t *testing.T) {
	// Two knights on b1 and f3 can both reach d2.
	fen := "rnbqkbnr/pppppppp/8/8/8/5N2/PPP1PPPP/RNBQKB1R w KQkq - 0 1"
	moves, err := LegalMoves(fen)
	if err != nil {
		t.Fatalf("LegalMoves: %v", err)
	}
	seen := map[string]bool{}
	for _, san := range moves {
		seen[san] = true
	}
	if !seen["Nbd2"] || !seen["Nfd2"] {
		t.Errorf("expected disambiguated Nbd2/Nfd2 in %v", moves)
	}
	if seen["Nd2"] {
		t.Errorf("ambiguous Nd2 should not appear in %v", moves)
	}
}
