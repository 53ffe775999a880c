package openingtree

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/explorer/internal/explorer"
	"github.com/freeeve/explorer/internal/movetree"
)

// Loader builds a player's opening tree from chess.com, lichess or
// local PGN files. Games that fail to parse are skipped and counted,
// not fatal.
type Loader struct {
	Username string
	Client   *http.Client
	Workers  int

	log zerolog.Logger

	mu      sync.Mutex
	indexed int
	skipped int
}

// NewLoader returns a loader for one player's games.
func NewLoader(username string, log zerolog.Logger) *Loader {
	return &Loader{
		Username: username,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Workers:  4,
		log:      log,
	}
}

// Progress returns how many games have been indexed and skipped so far.
func (l *Loader) Progress() (indexed, skipped int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.indexed, l.skipped
}

func (l *Loader) addIndexed() {
	l.mu.Lock()
	l.indexed++
	l.mu.Unlock()
}

func (l *Loader) skip(id string, err error) {
	l.mu.Lock()
	l.skipped++
	l.mu.Unlock()
	l.log.Warn().Err(err).Str("game", id).Msg("skipping game")
}

type chesscomPlayer struct {
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

type chesscomGame struct {
	UUID      string         `json:"uuid"`
	Pgn       string         `json:"pgn"`
	Rated     bool           `json:"rated"`
	TimeClass string         `json:"time_class"`
	EndTime   int64          `json:"end_time"`
	White     chesscomPlayer `json:"white"`
	Black     chesscomPlayer `json:"black"`
}

// LoadChesscom indexes every game from the player's chess.com monthly
// archives into tree. Archives download concurrently; indexing is
// serialized by the tree itself.
func (l *Loader) LoadChesscom(ctx context.Context, tree *Tree) error {
	var archives struct {
		Archives []string `json:"archives"`
	}
	url := fmt.Sprintf("https://api.chess.com/pub/player/%s/games/archives", strings.ToLower(l.Username))
	if err := l.getJSON(ctx, url, &archives); err != nil {
		return fmt.Errorf("chess.com archives: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.Workers)
	for _, archive := range archives.Archives {
		archive := archive
		g.Go(func() error {
			var month struct {
				Games []chesscomGame `json:"games"`
			}
			if err := l.getJSON(ctx, archive, &month); err != nil {
				return fmt.Errorf("archive %s: %w", archive, err)
			}
			for _, game := range month.Games {
				if game.Pgn == "" {
					continue
				}
				data := GameData{
					ID:        game.UUID,
					White:     game.White.Username,
					Black:     game.Black.Username,
					WhiteElo:  game.White.Rating,
					BlackElo:  game.Black.Rating,
					Rated:     game.Rated,
					TimeClass: game.TimeClass,
					PlayedAt:  time.Unix(game.EndTime, 0).UTC(),
					Result:    resultFromPGN(game.Pgn),
				}
				l.finishGameData(&data)
				if err := tree.IndexGame(data, game.Pgn); err != nil {
					l.skip(data.ID, err)
					continue
				}
				l.addIndexed()
			}
			return nil
		})
	}
	return g.Wait()
}

type lichessGame struct {
	ID        string `json:"id"`
	Rated     bool   `json:"rated"`
	Speed     string `json:"speed"`
	CreatedAt int64  `json:"createdAt"`
	Players   struct {
		White lichessPlayer `json:"white"`
		Black lichessPlayer `json:"black"`
	} `json:"players"`
	Pgn string `json:"pgn"`
}

type lichessPlayer struct {
	User struct {
		Name string `json:"name"`
	} `json:"user"`
	Rating int `json:"rating"`
}

// LoadLichess indexes every game from the player's lichess export into
// tree. The export streams newline-delimited JSON.
func (l *Loader) LoadLichess(ctx context.Context, tree *Tree) error {
	url := fmt.Sprintf("https://lichess.org/api/games/user/%s?pgnInJson=true&moves=true", l.Username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/x-ndjson")
	resp, err := l.Client.Do(req)
	if err != nil {
		return fmt.Errorf("lichess export: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lichess export: status %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var game lichessGame
		if err := json.Unmarshal(line, &game); err != nil {
			l.skip("", err)
			continue
		}
		if game.Pgn == "" {
			continue
		}
		data := GameData{
			ID:        game.ID,
			White:     game.Players.White.User.Name,
			Black:     game.Players.Black.User.Name,
			WhiteElo:  game.Players.White.Rating,
			BlackElo:  game.Players.Black.Rating,
			Rated:     game.Rated,
			TimeClass: game.Speed,
			PlayedAt:  time.UnixMilli(game.CreatedAt).UTC(),
			Result:    resultFromPGN(game.Pgn),
		}
		l.finishGameData(&data)
		if err := tree.IndexGame(data, game.Pgn); err != nil {
			l.skip(data.ID, err)
			continue
		}
		l.addIndexed()
	}
	return scanner.Err()
}

// LoadFile indexes every game in a local .pgn or zstd-compressed
// .pgn.zst file into tree.
func (l *Loader) LoadFile(ctx context.Context, tree *Tree, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}
	return l.loadPGN(ctx, tree, r)
}

func (l *Loader) loadPGN(ctx context.Context, tree *Tree, r io.Reader) error {
	for _, text := range splitPGN(r) {
		if err := ctx.Err(); err != nil {
			return err
		}
		game, err := movetree.Parse(text)
		if err != nil {
			l.skip("", err)
			continue
		}
		data := l.gameDataFromTags(game.Tags)
		if err := tree.IndexGame(data, text); err != nil {
			l.skip(data.ID, err)
			continue
		}
		l.addIndexed()
	}
	return nil
}

// gameDataFromTags builds metadata for a game that only exists as PGN.
func (l *Loader) gameDataFromTags(tags map[string]string) GameData {
	data := GameData{
		ID:     uuid.NewString(),
		White:  tags["White"],
		Black:  tags["Black"],
		Result: explorer.ResultFromTag(tags["Result"]),
	}
	if v, err := strconv.Atoi(tags["WhiteElo"]); err == nil {
		data.WhiteElo = v
	}
	if v, err := strconv.Atoi(tags["BlackElo"]); err == nil {
		data.BlackElo = v
	}
	if t, err := time.Parse("2006.01.02", tags["Date"]); err == nil {
		data.PlayedAt = t
	}
	l.finishGameData(&data)
	return data
}

// finishGameData fills the player-relative fields from the absolute
// ones.
func (l *Loader) finishGameData(g *GameData) {
	if strings.EqualFold(g.White, l.Username) {
		g.Color = "white"
		g.OpponentRating = g.BlackElo
	} else {
		g.Color = "black"
		g.OpponentRating = g.WhiteElo
	}
}

func (l *Loader) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// splitPGN splits a multi-game PGN stream into individual games. A new
// game starts at a tag-pair line once the previous game has movetext.
func splitPGN(r io.Reader) []string {
	var (
		games       []string
		cur         strings.Builder
		hasMovetext bool
	)
	flush := func() {
		if text := strings.TrimSpace(cur.String()); text != "" {
			games = append(games, text)
		}
		cur.Reset()
		hasMovetext = false
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && hasMovetext {
			flush()
		}
		if trimmed != "" && !strings.HasPrefix(trimmed, "[") {
			hasMovetext = true
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
	}
	flush()
	return games
}

var resultTagPrefix = `[Result "`

// resultFromPGN reads the Result tag without a full parse.
func resultFromPGN(pgn string) explorer.Result {
	for _, line := range strings.Split(pgn, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, resultTagPrefix) {
			tag := strings.TrimPrefix(line, resultTagPrefix)
			if i := strings.IndexByte(tag, '"'); i >= 0 {
				return explorer.ResultFromTag(tag[:i])
			}
		}
	}
	return explorer.ResultAnalysis
}
