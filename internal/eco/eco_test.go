package eco_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/freeeve/explorer/internal/eco"
	"github.com/freeeve/explorer/internal/movetree"
)

const fixture = `eco	name	pgn
B00	King's Pawn Game	1. e4
C50	Italian Game	1. e4 e5 2. Nf3 Nc6 3. Bc4
X99	Broken Line	1. e4 e9
`

func loadFixture(t *testing.T) *eco.Database {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.tsv"), []byte(fixture), 0o644); err != nil {
		t.Fatal(err)
	}
	db := eco.NewDatabase()
	if err := db.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	return db
}

func TestLoadAndLookup(t *testing.T) {
	db := loadFixture(t)

	// The broken line is skipped.
	if db.Count() != 2 {
		t.Errorf("Count = %d, want 2", db.Count())
	}

	if o := db.Lookup(movetree.StartingFEN); o != nil {
		t.Errorf("starting position = %+v, want no opening", o)
	}

	afterE4 := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	o := db.Lookup(afterE4)
	if o == nil || o.Eco != "B00" {
		t.Fatalf("after 1. e4 = %+v, want B00", o)
	}
}

func TestLookupNormalizes(t *testing.T) {
	db := loadFixture(t)

	// Noisy counters still hit the same entry.
	afterE4 := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 12 40"
	if o := db.Lookup(afterE4); o == nil || o.Eco != "B00" {
		t.Errorf("normalized lookup = %+v, want B00", o)
	}
}

func TestLookupTransposition(t *testing.T) {
	db := loadFixture(t)

	// Italian by way of 1. e4 e5 2. Bc4 Nc6 3. Nf3.
	g, err := movetree.Parse("1. e4 e5 2. Bc4 Nc6 3. Nf3 *")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	last := g.Root
	for last.Next != nil {
		last = last.Next
	}
	if o := db.Lookup(last.FenAfter); o == nil || o.Eco != "C50" {
		t.Errorf("transposed Italian = %+v, want C50", o)
	}
}

func TestLoadDirEmpty(t *testing.T) {
	db := eco.NewDatabase()
	if err := db.LoadDir(t.TempDir()); err == nil {
		t.Error("expected error for directory without .tsv files")
	}
}
