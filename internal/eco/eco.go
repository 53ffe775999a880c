// Package eco provides ECO (Encyclopedia of Chess Openings) lookup.
// Openings are indexed by normalized FEN so that transpositions into a
// named line still classify.
package eco

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/freeeve/pgn/v3"

	"github.com/freeeve/explorer/internal/explorer"
	"github.com/freeeve/explorer/internal/movetree"
)

// Database holds ECO opening data indexed by normalized FEN.
type Database struct {
	byFen map[string]explorer.Opening
}

// NewDatabase creates an empty ECO database.
func NewDatabase() *Database {
	return &Database{byFen: make(map[string]explorer.Opening)}
}

// moveNumberRegex matches move numbers like "1." or "12..."
var moveNumberRegex = regexp.MustCompile(`\d+\.+\s*`)

// LoadDir loads all .tsv files from a directory.
func (db *Database) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.tsv"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .tsv files found in %s", dir)
	}

	for _, file := range files {
		if err := db.LoadFile(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// LoadFile loads a single TSV file of eco\tname\tpgn lines.
func (db *Database) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if lineNum == 1 && strings.HasPrefix(line, "eco\t") {
			continue
		}

		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}

		fen, err := finalPosition(parts[2])
		if err != nil {
			// Skip invalid lines silently
			continue
		}
		if _, ok := db.byFen[fen]; !ok {
			db.byFen[fen] = explorer.Opening{Eco: parts[0], Name: parts[1]}
		}
	}
	return scanner.Err()
}

// finalPosition plays out a line like "1. e4 e5 2. Nf3 Nc6" and returns
// the normalized FEN it ends on.
func finalPosition(moves string) (string, error) {
	pos := pgn.NewStartingPosition()
	cleaned := moveNumberRegex.ReplaceAllString(moves, "")
	for _, san := range strings.Fields(cleaned) {
		if san == "" || san[0] == '$' || san[0] == '{' {
			continue
		}
		san = strings.TrimSuffix(san, "+")
		san = strings.TrimSuffix(san, "#")

		mv, err := pgn.ParseSAN(pos, san)
		if err != nil {
			return "", fmt.Errorf("parse %q: %w", san, err)
		}
		if err := pgn.ApplyMove(pos, mv); err != nil {
			return "", fmt.Errorf("apply %q: %w", san, err)
		}
	}
	return movetree.NormalizeFEN(pos.ToFEN())
}

// Lookup returns the opening for a position, or nil if the position has
// no name. The FEN is normalized before lookup.
func (db *Database) Lookup(fen string) *explorer.Opening {
	norm, err := movetree.NormalizeFEN(fen)
	if err != nil {
		return nil
	}
	if o, ok := db.byFen[norm]; ok {
		return &o
	}
	return nil
}

// Count returns the number of openings loaded.
func (db *Database) Count() int {
	return len(db.byFen)
}
