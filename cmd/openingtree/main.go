package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/freeeve/explorer/internal/logx"
	"github.com/freeeve/explorer/internal/movetree"
	"github.com/freeeve/explorer/internal/openingtree"
)

func main() {
	_ = godotenv.Load()

	var (
		username = flag.String("username", "", "player username (required)")
		chesscom = flag.Bool("chesscom", false, "load games from chess.com")
		lichess  = flag.Bool("lichess", false, "load games from lichess")
		files    = flag.String("files", "", "comma-separated local .pgn or .pgn.zst files")
		fen      = flag.String("fen", movetree.StartingFEN, "position to report on")
		color    = flag.String("color", "", "filter: player color (white or black)")
		timeCtls = flag.String("time-classes", "", "filter: comma-separated time classes")
	)
	flag.Parse()

	logger := logx.NewLogger("openingtree")

	if *username == "" {
		fmt.Fprintln(os.Stderr, "usage: openingtree -username <name> [-chesscom] [-lichess] [-files a.pgn,b.pgn.zst]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := openingtree.NewLoader(*username, logger)
	tree := openingtree.New()

	// Progress reporting while sources load
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				indexed, skipped := loader.Progress()
				logger.Info().Int("indexed", indexed).Int("skipped", skipped).Msg("loading")
			}
		}
	}()

	start := time.Now()
	if *chesscom {
		if err := loader.LoadChesscom(ctx, tree); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("load chess.com games")
		}
	}
	if *lichess {
		if err := loader.LoadLichess(ctx, tree); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("load lichess games")
		}
	}
	for _, path := range splitList(*files) {
		if err := loader.LoadFile(ctx, tree, path); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Str("file", path).Msg("load PGN file")
		}
	}
	close(done)

	indexed, skipped := loader.Progress()
	games, positions := tree.Size()
	logger.Info().
		Int("indexed", indexed).
		Int("skipped", skipped).
		Int("games", games).
		Int("positions", positions).
		Dur("took", time.Since(start)).
		Msg("tree built")

	filters := openingtree.Filters{
		Color:       *color,
		TimeClasses: splitList(*timeCtls),
	}
	stats, ok := tree.Position(*fen, filters)
	if !ok {
		logger.Warn().Str("fen", *fen).Msg("no games reach this position with these filters")
		return
	}

	fmt.Printf("%s\n", stats.Fen)
	fmt.Printf("games: %d (white %d, black %d, draws %d, analysis %d)\n",
		stats.Results.Total(), stats.Results.White, stats.Results.Black,
		stats.Results.Draws, stats.Results.Analysis)
	for _, mv := range stats.Moves {
		fmt.Printf("  %-7s %5d (white %d, black %d, draws %d)\n",
			mv.SAN, mv.Results.Total(), mv.Results.White, mv.Results.Black, mv.Results.Draws)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
