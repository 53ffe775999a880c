package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/freeeve/explorer/internal/events"
	"github.com/freeeve/explorer/internal/explorer"
	"github.com/freeeve/explorer/internal/movetree"
	"github.com/freeeve/explorer/internal/processor"
	"github.com/freeeve/explorer/internal/store"
)

func testRouter(t *testing.T) (http.Handler, *store.Memory) {
	t.Helper()
	s := store.NewMemory()
	log := zerolog.Nop()
	p := processor.New(processor.Config{
		Writer: processor.NewWriter(s, nil, log),
		Logger: log,
	})

	g := &explorer.GameRecord{
		Cohort: "1500-1600",
		ID:     "g1",
		Owner:  "alice",
		Pgn: `[Result "1-0"]

1. e4 e5 1-0`,
	}
	if err := p.HandleChange(context.Background(), events.NewGameChanged(nil, g)); err != nil {
		t.Fatalf("seed game: %v", err)
	}
	return NewRouter(log, s, nil, p), s
}

func TestPositionEndpoint(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/position?fen="+url.QueryEscape(movetree.StartingFEN), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp PositionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Fen != movetree.StartingFEN {
		t.Errorf("fen = %q", resp.Fen)
	}
	if resp.Results["1500-1600"].White != 1 {
		t.Errorf("results = %+v", resp.Results)
	}
	if resp.Moves["e4"].Results["1500-1600"].White != 1 {
		t.Errorf("moves = %+v", resp.Moves["e4"])
	}
}

func TestPositionNormalizesQuery(t *testing.T) {
	router, _ := testRouter(t)

	// Counters differ from the stored key; normalization lines them up.
	noisy := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 7 21"
	req := httptest.NewRequest(http.MethodGet, "/v1/position?fen="+url.QueryEscape(noisy), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestPositionNotFound(t *testing.T) {
	router, _ := testRouter(t)

	fen := "8/8/8/8/8/8/8/K1k5 w - - 0 1"
	req := httptest.NewRequest(http.MethodGet, "/v1/position?fen="+url.QueryEscape(fen), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestPositionBadFEN(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/position?fen=nonsense", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/position", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing fen status = %d, want 400", rec.Code)
	}
}

func TestGamesEndpoint(t *testing.T) {
	router, _ := testRouter(t)

	afterE4, err := movetree.NormalizeFEN("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1")
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/games?fen="+url.QueryEscape(afterE4), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Games []explorer.Game `json:"games"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Games) != 1 || resp.Games[0].Owner != "alice" {
		t.Errorf("games = %+v", resp.Games)
	}
}

func TestFollowerLifecycle(t *testing.T) {
	router, s := testRouter(t)
	ctx := context.Background()

	body := `{"fen": "` + movetree.StartingFEN + `", "username": "bob", "followMetadata": {"dojo": {"enabled": true}, "masters": {"enabled": false}}}`
	req := httptest.NewRequest(http.MethodPut, "/v1/followers", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body %s", rec.Code, rec.Body)
	}

	followers, err := s.ListFollowers(ctx, movetree.StartingFEN)
	if err != nil {
		t.Fatal(err)
	}
	if len(followers) != 1 || followers[0].ID != "FOLLOWER#bob" {
		t.Fatalf("followers = %+v", followers)
	}
	if !followers[0].Metadata.Dojo.Enabled {
		t.Error("dojo filter not persisted")
	}

	del := "/v1/followers?username=bob&fen=" + url.QueryEscape(movetree.StartingFEN)
	req = httptest.NewRequest(http.MethodDelete, del, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	followers, _ = s.ListFollowers(ctx, movetree.StartingFEN)
	if len(followers) != 0 {
		t.Errorf("followers after delete = %+v", followers)
	}
}

func TestStatsEndpoint(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := resp["events_handled"]; !ok {
		t.Errorf("stats missing events_handled: %+v", resp)
	}
	if _, ok := resp["events_failed"]; !ok {
		t.Errorf("stats missing events_failed: %+v", resp)
	}
	if _, ok := resp["updates_dropped"]; !ok {
		t.Errorf("stats missing updates_dropped: %+v", resp)
	}
}

func TestHealthz(t *testing.T) {
	router, _ := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
