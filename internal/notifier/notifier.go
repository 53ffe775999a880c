// Package notifier tells followers of a position about new games that
// reach it.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/explorer/internal/events"
	"github.com/freeeve/explorer/internal/explorer"
	"github.com/freeeve/explorer/internal/movetree"
	"github.com/freeeve/explorer/internal/store"
	"github.com/freeeve/explorer/internal/stream"
)

// Config configures a Notifier.
type Config struct {
	Followers     store.PositionReader
	Notifications store.NotificationStore
	Logger        zerolog.Logger
	BatchSize     int
	BatchWait     time.Duration
}

// Notifier consumes indexed-game events and delivers notifications to
// matching followers. Follower lists are cached for the duration of a
// batch, so popular positions are fetched once per batch rather than
// once per game.
type Notifier struct {
	followers     store.PositionReader
	notifications store.NotificationStore
	log           zerolog.Logger
	batch         int
	wait          time.Duration
}

// New returns a Notifier.
func New(cfg Config) *Notifier {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.BatchWait <= 0 {
		cfg.BatchWait = time.Second
	}
	return &Notifier{
		followers:     cfg.Followers,
		notifications: cfg.Notifications,
		log:           cfg.Logger,
		batch:         cfg.BatchSize,
		wait:          cfg.BatchWait,
	}
}

// Run consumes indexed events from sub until ctx is done.
func (n *Notifier) Run(ctx context.Context, sub *stream.Subscription) error {
	for {
		raw, err := sub.NextBatch(ctx, n.batch, n.wait)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		if err != nil {
			return err
		}

		batch := make([]events.GameIndexed, 0, len(raw))
		for _, data := range raw {
			var ev events.GameIndexed
			if err := json.Unmarshal(data, &ev); err != nil {
				n.log.Error().Err(err).Msg("unmarshal indexed event")
				continue
			}
			batch = append(batch, ev)
		}
		n.ProcessBatch(ctx, batch)
	}
}

// ProcessBatch delivers notifications for one batch of indexed games.
// Each event carries the positions the change actually touched, so only
// followers of those lines hear about it. The follower cache is scoped
// to the batch: followers added or removed mid-batch may be missed or
// notified once more.
func (n *Notifier) ProcessBatch(ctx context.Context, batch []events.GameIndexed) {
	cache := map[string][]explorer.Follower{}

	for _, ev := range batch {
		for _, ip := range ev.Positions {
			if ip.Fen == movetree.StartingFEN {
				continue
			}
			followers, ok := cache[ip.Fen]
			if !ok {
				var err error
				followers, err = n.followers.ListFollowers(ctx, ip.Fen)
				if err != nil {
					n.log.Error().Err(err).Str("fen", ip.Fen).Msg("list followers")
					continue
				}
				cache[ip.Fen] = followers
			}
			for _, f := range followers {
				if !Matches(&f, &ev.Game, ip.Result) {
					continue
				}
				if err := n.notifications.NotifyGame(ctx, f.Username, ip.Fen, ev.Game.Embed()); err != nil {
					n.log.Error().Err(err).
						Str("follower", f.Username).
						Str("fen", ip.Fen).
						Msg("deliver notification")
				}
			}
		}
	}
}

// Matches reports whether a follower's filters accept a game that
// reached the followed position with the given result.
func Matches(f *explorer.Follower, g *explorer.GameRecord, result explorer.Result) bool {
	if explorer.IsMasters(g.Cohort) {
		return matchesMasters(&f.Metadata.Masters, g)
	}
	return matchesDojo(&f.Metadata.Dojo, g, result)
}

func matchesMasters(m *explorer.MastersFilter, g *explorer.GameRecord) bool {
	if !m.Enabled {
		return false
	}
	if len(m.TimeControls) > 0 {
		tc := strings.ToLower(g.TimeClass)
		found := false
		for _, allowed := range m.TimeControls {
			if strings.ToLower(allowed) == tc {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if m.MinAverageRating > 0 {
		avg, ok := averageRating(g.Headers)
		if !ok || avg < m.MinAverageRating {
			return false
		}
	}
	return true
}

func matchesDojo(d *explorer.DojoFilter, g *explorer.GameRecord, result explorer.Result) bool {
	if !d.Enabled {
		return false
	}
	if d.DisableVariations && result == explorer.ResultAnalysis {
		return false
	}
	idx := explorer.CohortIndex(g.Cohort)
	if idx < 0 {
		return false
	}
	if d.MinCohort != "" {
		if min := explorer.CohortIndex(d.MinCohort); min >= 0 && idx < min {
			return false
		}
	}
	if d.MaxCohort != "" {
		if max := explorer.CohortIndex(d.MaxCohort); max >= 0 && idx > max {
			return false
		}
	}
	return true
}

// averageRating averages the two Elo headers. A missing header counts
// as zero; a malformed one fails the filter.
func averageRating(h explorer.GameHeaders) (int, bool) {
	parse := func(s string) (int, bool) {
		if s == "" {
			return 0, true
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	white, ok := parse(h.WhiteElo)
	if !ok {
		return 0, false
	}
	black, ok := parse(h.BlackElo)
	if !ok {
		return 0, false
	}
	return (white + black) / 2, true
}
