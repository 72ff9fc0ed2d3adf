package domain

import (
	"context"

	"github.com/google/uuid"
)

// CastVoteParams identifies the vote being cast. The setlistSongID to
// (showID, songID) resolution happens upstream in the setlist-management
// collaborator; the store verifies the song belongs to the show.
type CastVoteParams struct {
	UserID        uuid.UUID
	ShowID        uuid.UUID
	SongID        uuid.UUID
	SetlistSongID uuid.UUID
}

// VoteStore is the unit-of-work boundary of the vote ledger. CastVote and
// RemoveVote each execute as one atomic transaction: duplicate check, quota
// recount, vote row mutation, vote_count adjustment, and analytics upsert all
// commit or roll back together. No partial state is ever visible.
type VoteStore interface {
	// CastVote inserts a vote, increments the song's vote_count, and upserts
	// the per-(user, show, day) analytics counters. Fails with
	// ErrDuplicateVote, ErrDailyLimitExceeded, ErrShowLimitExceeded, or
	// ErrSetlistSongNotFound; quota checks run under the same transaction's
	// locks so concurrent casts cannot overshoot.
	CastVote(ctx context.Context, p CastVoteParams) (*VoteResult, error)

	// RemoveVote deletes the vote, decrements vote_count (floored at zero),
	// and decrements the analytics counters. Fails with ErrVoteNotFound or
	// ErrUnauthorized when the caller does not own the vote.
	RemoveVote(ctx context.Context, voteID, userID uuid.UUID) (*RemoveResult, *Vote, error)

	// CountVotes returns the user's committed daily and per-show vote counts
	// outside any transaction. The same counts are re-derived inside CastVote.
	CountVotes(ctx context.Context, userID, showID uuid.UUID) (daily, show int, err error)

	// GetUserVoteHistory returns one page of the user's votes, newest first.
	GetUserVoteHistory(ctx context.Context, userID uuid.UUID, page, limit int) (*VoteHistoryPage, error)
}

// SetlistReader serves the per-show ranking from the source of truth. The
// aggregate cache fronts it.
type SetlistReader interface {
	// GetShowSongs lists a show's songs ordered by vote_count descending.
	GetShowSongs(ctx context.Context, showID uuid.UUID) ([]SongVoteCount, error)
}

// TrendingStore feeds and persists the trending snapshot.
type TrendingStore interface {
	// ListUpcomingShowStats aggregates vote stats for shows within the
	// horizon, starting today.
	ListUpcomingShowStats(ctx context.Context, horizonDays int) ([]ShowVoteStats, error)

	// ReplaceTrendingSnapshot swaps the materialized snapshot atomically.
	ReplaceTrendingSnapshot(ctx context.Context, rows []TrendingShow) error

	// GetTopShows reads the snapshot, highest score first.
	GetTopShows(ctx context.Context, limit int) ([]TrendingShow, error)
}

// ShowSongCache is the read-through cache of per-show rankings. Invalidation
// deletes the key; the next read repopulates.
type ShowSongCache interface {
	GetShowSongs(ctx context.Context, showID uuid.UUID) ([]SongVoteCount, error)
	Invalidate(ctx context.Context, showID uuid.UUID) error
}

// VoteEventPublisher publishes committed vote deltas to the per-show channel.
// Best-effort: failures degrade freshness only, never ledger correctness.
type VoteEventPublisher interface {
	PublishVoteUpdate(ctx context.Context, showID uuid.UUID, update VoteUpdate) error
}

// RateLimiter is the short-window abuse throttle applied before any store
// work. Not a security boundary; state is per-process and not persisted.
type RateLimiter interface {
	Allow(userID uuid.UUID) bool
}
