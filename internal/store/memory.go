package store

import (
	"context"
	"sort"
	"sync"

	"github.com/freeeve/explorer/internal/explorer"
)

// Memory is an in-memory PositionStore and NotificationStore with the
// same conditional-write semantics as Dynamo. Safe for concurrent use.
type Memory struct {
	mu            sync.Mutex
	positions     map[string]*explorer.Position
	games         map[string]map[string]explorer.Game
	followers     map[string]map[string]explorer.Follower
	notifications map[string][]Notification
}

// Notification is one delivered follower notification, retained so
// tests can assert on delivery.
type Notification struct {
	Username string
	Fen      string
	Game     explorer.GameEmbed
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		positions:     map[string]*explorer.Position{},
		games:         map[string]map[string]explorer.Game{},
		followers:     map[string]map[string]explorer.Follower{},
		notifications: map[string][]Notification{},
	}
}

func copyCounts(m map[string]explorer.ResultCounts) map[string]explorer.ResultCounts {
	out := make(map[string]explorer.ResultCounts, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyPosition(pos *explorer.Position) *explorer.Position {
	cp := &explorer.Position{
		Fen:     pos.Fen,
		ID:      pos.ID,
		Results: copyCounts(pos.Results),
		Moves:   make(map[string]explorer.Move, len(pos.Moves)),
	}
	if pos.Opening != nil {
		o := *pos.Opening
		cp.Opening = &o
	}
	for san, mv := range pos.Moves {
		cp.Moves[san] = explorer.Move{SAN: mv.SAN, Results: copyCounts(mv.Results)}
	}
	return cp
}

func (s *Memory) GetPosition(ctx context.Context, fen string) (*explorer.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[fen]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPosition(pos), nil
}

func (s *Memory) CreatePosition(ctx context.Context, pos *explorer.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[pos.Fen]; ok {
		return ErrConditionFailed
	}
	s.positions[pos.Fen] = copyPosition(pos)
	return nil
}

func (s *Memory) InitCohort(ctx context.Context, pos *explorer.Position, cohort string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.positions[pos.Fen]
	if !ok {
		return ErrNotFound
	}
	if _, ok := stored.Results[cohort]; ok {
		return ErrConditionFailed
	}
	stored.Results[cohort] = explorer.ResultCounts{}
	for san, mv := range stored.Moves {
		if mv.Results == nil {
			mv.Results = map[string]explorer.ResultCounts{}
		}
		mv.Results[cohort] = explorer.ResultCounts{}
		stored.Moves[san] = mv
	}
	return nil
}

func (s *Memory) ApplyUpdate(ctx context.Context, fen, cohort string, u explorer.PositionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[fen]
	if !ok {
		return ErrNotFound
	}
	if _, ok := pos.Results[cohort]; !ok {
		return ErrConditionFailed
	}

	if u.OldResult != u.NewResult {
		rc := pos.Results[cohort]
		rc.Add(u.OldResult, -1)
		rc.Add(u.NewResult, 1)
		pos.Results[cohort] = rc
	}
	for _, m := range u.Moves {
		mv, ok := pos.Moves[m.SAN]
		if !ok {
			mv = explorer.Move{SAN: m.SAN, Results: map[string]explorer.ResultCounts{}}
		}
		if mv.Results == nil {
			mv.Results = map[string]explorer.ResultCounts{}
		}
		rc := mv.Results[cohort]
		rc.Add(m.OldResult, -1)
		rc.Add(m.NewResult, 1)
		mv.Results[cohort] = rc
		pos.Moves[m.SAN] = mv
	}
	return nil
}

func (s *Memory) PutGame(ctx context.Context, g *explorer.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.games[g.Fen]
	if !ok {
		byID = map[string]explorer.Game{}
		s.games[g.Fen] = byID
	}
	byID[g.ID] = *g
	return nil
}

func (s *Memory) DeleteGame(ctx context.Context, fen, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games[fen], id)
	return nil
}

func (s *Memory) ListGames(ctx context.Context, fen string) ([]explorer.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]explorer.Game, 0, len(s.games[fen]))
	for _, g := range s.games[fen] {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Memory) PutFollower(ctx context.Context, f *explorer.Follower) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.followers[f.Fen]
	if !ok {
		byUser = map[string]explorer.Follower{}
		s.followers[f.Fen] = byUser
	}
	byUser[f.Username] = *f
	return nil
}

func (s *Memory) DeleteFollower(ctx context.Context, fen, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.followers[fen], username)
	return nil
}

func (s *Memory) ListFollowers(ctx context.Context, fen string) ([]explorer.Follower, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]explorer.Follower, 0, len(s.followers[fen]))
	for _, f := range s.followers[fen] {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Memory) NotifyGame(ctx context.Context, username, fen string, game explorer.GameEmbed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[username] = append(s.notifications[username], Notification{
		Username: username,
		Fen:      fen,
		Game:     game,
	})
	return nil
}

// Notifications returns the notifications delivered to a user, oldest
// first.
func (s *Memory) Notifications(username string) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.notifications[username]...)
}
