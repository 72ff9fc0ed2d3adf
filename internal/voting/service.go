// Package voting implements the vote casting engine: the ordered pipeline of
// rate limit check, transactional ledger mutation, and post-commit side
// effects (cache invalidation and fanout publish). Side effects are strictly
// best-effort; once the transaction commits, the vote stands.
package voting

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/encorelive/encore/internal/domain"
	"github.com/encorelive/encore/internal/metrics"
)

// sideEffectTimeout bounds post-commit Redis work. Detached from the request
// context so a client disconnect cannot skip an invalidation.
const sideEffectTimeout = 2 * time.Second

// Service is the vote casting engine.
type Service struct {
	limiter   domain.RateLimiter
	store     domain.VoteStore
	cache     domain.ShowSongCache
	publisher domain.VoteEventPublisher
	clock     clockwork.Clock
}

func NewService(limiter domain.RateLimiter, store domain.VoteStore, cache domain.ShowSongCache, publisher domain.VoteEventPublisher, clock clockwork.Clock) *Service {
	return &Service{
		limiter:   limiter,
		store:     store,
		cache:     cache,
		publisher: publisher,
		clock:     clock,
	}
}

// CastVote runs the full cast pipeline. The rate limit check comes first and
// consumes no quota; quota enforcement itself happens inside the store's
// transaction.
func (s *Service) CastVote(ctx context.Context, p domain.CastVoteParams) (*domain.VoteResult, error) {
	if !s.limiter.Allow(p.UserID) {
		metrics.RateLimitedTotal.Inc()
		metrics.VotesCastTotal.WithLabelValues("rate_limited").Inc()
		return nil, domain.ErrRateLimited
	}

	start := s.clock.Now()
	result, err := s.store.CastVote(ctx, p)
	metrics.VoteCastDuration.Observe(s.clock.Since(start).Seconds())

	if err != nil {
		metrics.VotesCastTotal.WithLabelValues(castOutcome(err)).Inc()
		return nil, err
	}
	metrics.VotesCastTotal.WithLabelValues("success").Inc()

	s.runSideEffects(ctx, p.ShowID, domain.VoteUpdate{
		SetlistSongID: p.SetlistSongID,
		SongID:        p.SongID,
		NewVoteCount:  result.NewVoteCount,
		VoterID:       p.UserID,
	})

	return result, nil
}

// RemoveVote deletes the caller's vote and runs the same side effects as a
// cast, with the decremented count.
func (s *Service) RemoveVote(ctx context.Context, voteID, userID uuid.UUID) (*domain.RemoveResult, error) {
	result, vote, err := s.store.RemoveVote(ctx, voteID, userID)
	if err != nil {
		metrics.VotesRemovedTotal.WithLabelValues(removeOutcome(err)).Inc()
		return nil, err
	}
	metrics.VotesRemovedTotal.WithLabelValues("success").Inc()

	s.runSideEffects(ctx, vote.ShowID, domain.VoteUpdate{
		SetlistSongID: vote.SetlistSongID,
		SongID:        vote.SongID,
		NewVoteCount:  result.NewVoteCount,
		VoterID:       userID,
	})

	return result, nil
}

// GetQuota reports the user's remaining vote capacity from committed state.
// Advisory only: the authoritative check happens inside CastVote.
func (s *Service) GetQuota(ctx context.Context, userID, showID uuid.UUID) (*domain.QuotaStatus, error) {
	daily, show, err := s.store.CountVotes(ctx, userID, showID)
	if err != nil {
		return nil, err
	}
	return &domain.QuotaStatus{
		DailyUsed:      daily,
		DailyRemaining: max(domain.DailyVoteLimit-daily, 0),
		ShowUsed:       show,
		ShowRemaining:  max(domain.ShowVoteLimit-show, 0),
	}, nil
}

// GetVoteHistory returns one page of the user's votes, newest first.
func (s *Service) GetVoteHistory(ctx context.Context, userID uuid.UUID, page, limit int) (*domain.VoteHistoryPage, error) {
	return s.store.GetUserVoteHistory(ctx, userID, page, limit)
}

// runSideEffects invalidates the show's cached ranking and publishes the vote
// update. Failures are logged and counted but never surfaced: the transaction
// already committed and the TTL bounds any staleness.
func (s *Service) runSideEffects(ctx context.Context, showID uuid.UUID, update domain.VoteUpdate) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := s.cache.Invalidate(ctx, showID); err != nil {
		metrics.SideEffectFailuresTotal.WithLabelValues("cache_invalidate").Inc()
		slog.Warn("Cache invalidation failed after commit",
			"show_id", showID.String(),
			"error", err,
		)
	}

	if err := s.publisher.PublishVoteUpdate(ctx, showID, update); err != nil {
		metrics.SideEffectFailuresTotal.WithLabelValues("broadcast").Inc()
		slog.Warn("Vote update publish failed after commit",
			"show_id", showID.String(),
			"error", err,
		)
	}
}

func castOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrDuplicateVote):
		return "duplicate"
	case errors.Is(err, domain.ErrDailyLimitExceeded):
		return "daily_limit"
	case errors.Is(err, domain.ErrShowLimitExceeded):
		return "show_limit"
	case errors.Is(err, domain.ErrSetlistSongNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func removeOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrVoteNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	default:
		return "error"
	}
}
