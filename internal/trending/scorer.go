// Package trending maintains the materialized ranking of upcoming shows.
// Scores are recomputed periodically (one leader per cluster cycle) or on
// demand, never on the read path: GET requests only ever touch the snapshot.
package trending

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/encorelive/encore/internal/domain"
	"github.com/encorelive/encore/internal/metrics"
)

// HorizonDays bounds the scoring window: shows further out than this are not
// ranked at all.
const HorizonDays = 180

const recomputeTimeout = 30 * time.Second

// urgencyWeight boosts shows that are close: fans care most right before the
// concert.
func urgencyWeight(daysUntil int) float64 {
	switch {
	case daysUntil <= 7:
		return 2.0
	case daysUntil <= 14:
		return 1.5
	case daysUntil <= 30:
		return 1.2
	default:
		return 1.0
	}
}

// engagementWeight rewards broad participation over a few heavy voters.
// Ranges from 1.0 (no votes) to 2.0 (every vote from a distinct user).
func engagementWeight(totalVotes, uniqueVoters int) float64 {
	if totalVotes == 0 {
		return 1.0
	}
	return 1.0 + float64(uniqueVoters)/float64(totalVotes)
}

// popularityWeight boosts shows with high page traffic.
func popularityWeight(viewCount int) float64 {
	switch {
	case viewCount > 1000:
		return 1.5
	case viewCount > 500:
		return 1.3
	case viewCount > 100:
		return 1.1
	default:
		return 1.0
	}
}

// Score computes the trending score for one show's stats as of now.
func Score(stats domain.ShowVoteStats, now time.Time) float64 {
	startOfDay := now.UTC().Truncate(24 * time.Hour)
	daysUntil := int(stats.ShowDate.Sub(startOfDay).Hours() / 24)

	return float64(stats.TotalVotes) *
		urgencyWeight(daysUntil) *
		engagementWeight(stats.TotalVotes, stats.UniqueVoters) *
		popularityWeight(stats.ViewCount)
}

// leaderElector decides whether this instance runs the periodic recompute.
type leaderElector interface {
	TryBecomeLeader(ctx context.Context) (bool, error)
}

// Scorer recomputes the trending snapshot.
type Scorer struct {
	store  domain.TrendingStore
	leader leaderElector
	clock  clockwork.Clock
}

func NewScorer(store domain.TrendingStore, leader leaderElector, clock clockwork.Clock) *Scorer {
	return &Scorer{store: store, leader: leader, clock: clock}
}

// Recompute scores all shows inside the horizon and atomically replaces the
// snapshot. Shows with neither votes nor views are dropped from the ranking.
func (s *Scorer) Recompute(ctx context.Context) error {
	start := s.clock.Now()
	err := s.recompute(ctx)
	metrics.TrendingRecomputeDuration.Observe(s.clock.Since(start).Seconds())

	if err != nil {
		metrics.TrendingRecomputesTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.TrendingRecomputesTotal.WithLabelValues("success").Inc()
	return nil
}

func (s *Scorer) recompute(ctx context.Context) error {
	stats, err := s.store.ListUpcomingShowStats(ctx, HorizonDays)
	if err != nil {
		return fmt.Errorf("failed to load show stats: %w", err)
	}

	now := s.clock.Now().UTC()
	ranked := make([]domain.TrendingShow, 0, len(stats))
	for _, st := range stats {
		if st.TotalVotes == 0 && st.ViewCount == 0 {
			continue
		}
		ranked = append(ranked, domain.TrendingShow{
			ShowID:       st.ShowID,
			Artist:       st.Artist,
			Venue:        st.Venue,
			ShowDate:     st.ShowDate,
			Score:        Score(st, now),
			TotalVotes:   st.TotalVotes,
			UniqueVoters: st.UniqueVoters,
			ComputedAt:   now,
		})
	}

	// Deterministic order: score descending, sooner show wins ties.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ShowDate.Before(ranked[j].ShowDate)
	})

	if err := s.store.ReplaceTrendingSnapshot(ctx, ranked); err != nil {
		return fmt.Errorf("failed to replace trending snapshot: %w", err)
	}

	metrics.TrendingRankedShows.Set(float64(len(ranked)))
	slog.Info("Trending snapshot recomputed", "ranked_shows", len(ranked))
	return nil
}

// Run recomputes on every tick while this instance wins the leader election.
// Returns when ctx is cancelled.
func (s *Scorer) Run(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.runOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scorer) runOnce(ctx context.Context) {
	isLeader, err := s.leader.TryBecomeLeader(ctx)
	if err != nil {
		slog.Error("Trending leader election failed", "error", err)
		metrics.TrendingRecomputesTotal.WithLabelValues("election_error").Inc()
		return
	}
	if !isLeader {
		slog.Debug("Skipping trending recompute, another instance is leader")
		return
	}

	recomputeCtx, cancel := context.WithTimeout(ctx, recomputeTimeout)
	defer cancel()

	if err := s.Recompute(recomputeCtx); err != nil {
		slog.Error("Trending recompute failed", "error", err)
	}
}
