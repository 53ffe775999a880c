// Package httpapi serves the explorer read API and follower management.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"

	"github.com/rs/zerolog"

	"github.com/freeeve/explorer/internal/eco"
	"github.com/freeeve/explorer/internal/explorer"
	"github.com/freeeve/explorer/internal/movetree"
	"github.com/freeeve/explorer/internal/processor"
	"github.com/freeeve/explorer/internal/store"
)

// Handler serves explorer queries from the position store.
type Handler struct {
	store store.PositionStore
	ecoDB *eco.Database
	proc  *processor.Processor
	log   zerolog.Logger
}

// NewRouter creates the HTTP router. ecoDB is optional - if provided,
// opening names are included in position responses. proc is optional -
// if provided, /v1/stats reports its counters.
func NewRouter(log zerolog.Logger, s store.PositionStore, ecoDB *eco.Database, proc *processor.Processor) http.Handler {
	h := &Handler{store: s, ecoDB: ecoDB, proc: proc, log: log}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(h.health))
	mux.Handle("/readyz", http.HandlerFunc(h.health))
	mux.Handle("/v1/position", http.HandlerFunc(h.position))
	mux.Handle("/v1/games", http.HandlerFunc(h.games))
	mux.Handle("/v1/followers", http.HandlerFunc(h.followers))
	mux.Handle("/v1/stats", http.HandlerFunc(h.stats))

	// pprof endpoints
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return CORS(RequestID(AccessLog(log, mux)))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// normalizedFen pulls the fen query parameter and normalizes it,
// writing the error response itself on failure.
func (h *Handler) normalizedFen(w http.ResponseWriter, r *http.Request) (string, bool) {
	fen := r.URL.Query().Get("fen")
	if fen == "" {
		http.Error(w, "missing fen parameter", http.StatusBadRequest)
		return "", false
	}
	norm, err := movetree.NormalizeFEN(fen)
	if err != nil {
		http.Error(w, "invalid FEN: "+err.Error(), http.StatusBadRequest)
		return "", false
	}
	return norm, true
}

// PositionResponse is the JSON response for a position query.
type PositionResponse struct {
	Fen     string                           `json:"normalizedFen"`
	Opening *explorer.Opening                `json:"opening,omitempty"`
	Results map[string]explorer.ResultCounts `json:"results"`
	Moves   map[string]explorer.Move         `json:"moves"`
}

func (h *Handler) position(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fen, ok := h.normalizedFen(w, r)
	if !ok {
		return
	}

	pos, err := h.store.GetPosition(r.Context(), fen)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "position not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("rid", GetRequestID(r.Context())).Msg("get position")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := PositionResponse{
		Fen:     pos.Fen,
		Opening: pos.Opening,
		Results: pos.Results,
		Moves:   pos.Moves,
	}
	if resp.Opening == nil && h.ecoDB != nil {
		resp.Opening = h.ecoDB.Lookup(fen)
	}
	writeJSON(w, resp)
}

func (h *Handler) games(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fen, ok := h.normalizedFen(w, r)
	if !ok {
		return
	}

	games, err := h.store.ListGames(r.Context(), fen)
	if err != nil {
		h.log.Error().Err(err).Str("rid", GetRequestID(r.Context())).Msg("list games")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"normalizedFen": fen,
		"games":         games,
	})
}

// FollowRequest is the body of PUT /v1/followers.
type FollowRequest struct {
	Fen      string                  `json:"fen"`
	Username string                  `json:"username"`
	Metadata explorer.FollowMetadata `json:"followMetadata"`
}

func (h *Handler) followers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		h.putFollower(w, r)
	case http.MethodDelete:
		h.deleteFollower(w, r)
	case http.MethodGet:
		h.listFollowers(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) putFollower(w http.ResponseWriter, r *http.Request) {
	var req FollowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Username == "" {
		http.Error(w, "missing username", http.StatusBadRequest)
		return
	}
	norm, err := movetree.NormalizeFEN(req.Fen)
	if err != nil {
		http.Error(w, "invalid FEN: "+err.Error(), http.StatusBadRequest)
		return
	}

	f := &explorer.Follower{
		Fen:      norm,
		ID:       store.FollowerID(req.Username),
		Username: req.Username,
		Metadata: req.Metadata,
	}
	if err := h.store.PutFollower(r.Context(), f); err != nil {
		h.log.Error().Err(err).Str("rid", GetRequestID(r.Context())).Msg("put follower")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, f)
}

func (h *Handler) deleteFollower(w http.ResponseWriter, r *http.Request) {
	fen, ok := h.normalizedFen(w, r)
	if !ok {
		return
	}
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "missing username parameter", http.StatusBadRequest)
		return
	}
	if err := h.store.DeleteFollower(r.Context(), fen, username); err != nil {
		h.log.Error().Err(err).Str("rid", GetRequestID(r.Context())).Msg("delete follower")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listFollowers(w http.ResponseWriter, r *http.Request) {
	fen, ok := h.normalizedFen(w, r)
	if !ok {
		return
	}
	followers, err := h.store.ListFollowers(r.Context(), fen)
	if err != nil {
		h.log.Error().Err(err).Str("rid", GetRequestID(r.Context())).Msg("list followers")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"normalizedFen": fen,
		"followers":     followers,
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{}
	if h.proc != nil {
		resp["events_handled"] = h.proc.Handled()
		resp["events_failed"] = h.proc.Failures()
		resp["updates_dropped"] = h.proc.Dropped()
	}
	if h.ecoDB != nil {
		resp["openings_loaded"] = h.ecoDB.Count()
	}
	writeJSON(w, resp)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
