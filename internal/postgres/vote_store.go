package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/encorelive/encore/internal/domain"
)

// startOfTodayUTC is the SQL expression for UTC midnight as a timestamptz.
// Quota days are UTC calendar days regardless of server or user timezone.
const startOfTodayUTC = "(date_trunc('day', now() AT TIME ZONE 'utc') AT TIME ZONE 'utc')"

// VoteStore implements domain.VoteStore on PostgreSQL. Every cast and removal
// runs as a single transaction holding a per-user advisory lock, so a user's
// concurrent requests serialize and the quota recount inside the transaction
// cannot overshoot.
type VoteStore struct {
	pool *pgxpool.Pool
}

var _ domain.VoteStore = (*VoteStore)(nil)

func NewVoteStore(pool *pgxpool.Pool) *VoteStore {
	return &VoteStore{pool: pool}
}

// lockUser takes a transaction-scoped advisory lock keyed by the user ID.
// Released automatically at commit or rollback.
func lockUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	_, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", userID.String())
	if err != nil {
		return fmt.Errorf("failed to lock user %s: %w", userID, err)
	}
	return nil
}

func countVotesTx(ctx context.Context, tx pgx.Tx, userID, showID uuid.UUID) (daily, show int, err error) {
	err = tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM votes WHERE user_id = $1 AND created_at >= "+startOfTodayUTC,
		userID,
	).Scan(&daily)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count daily votes: %w", err)
	}

	err = tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM votes WHERE user_id = $1 AND show_id = $2",
		userID, showID,
	).Scan(&show)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count show votes: %w", err)
	}

	return daily, show, nil
}

func (s *VoteStore) CastVote(ctx context.Context, p domain.CastVoteParams) (*domain.VoteResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storeError("cast vote: begin", err)
	}
	defer tx.Rollback(ctx)

	if err := lockUser(ctx, tx, p.UserID); err != nil {
		return nil, storeError("cast vote", err)
	}

	// Cheap duplicate check before any counting; the unique constraint on
	// (user_id, setlist_song_id) is the backstop.
	var existingID uuid.UUID
	err = tx.QueryRow(ctx,
		"SELECT id FROM votes WHERE user_id = $1 AND setlist_song_id = $2",
		p.UserID, p.SetlistSongID,
	).Scan(&existingID)
	switch {
	case err == nil:
		return nil, domain.ErrDuplicateVote
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, storeError("cast vote: duplicate check", err)
	}

	var songShowID uuid.UUID
	err = tx.QueryRow(ctx,
		"SELECT show_id FROM setlist_songs WHERE id = $1",
		p.SetlistSongID,
	).Scan(&songShowID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, domain.ErrSetlistSongNotFound
	case err != nil:
		return nil, storeError("cast vote: song lookup", err)
	case songShowID != p.ShowID:
		return nil, domain.ErrSetlistSongNotFound
	}

	daily, show, err := countVotesTx(ctx, tx, p.UserID, p.ShowID)
	if err != nil {
		return nil, storeError("cast vote", err)
	}
	if daily >= domain.DailyVoteLimit {
		return nil, domain.ErrDailyLimitExceeded
	}
	if show >= domain.ShowVoteLimit {
		return nil, domain.ErrShowLimitExceeded
	}

	var voteID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO votes (user_id, show_id, song_id, setlist_song_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		p.UserID, p.ShowID, p.SongID, p.SetlistSongID,
	).Scan(&voteID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateVote
		}
		return nil, storeError("cast vote: insert", err)
	}

	var newCount int
	err = tx.QueryRow(ctx,
		"UPDATE setlist_songs SET vote_count = vote_count + 1 WHERE id = $1 RETURNING vote_count",
		p.SetlistSongID,
	).Scan(&newCount)
	if err != nil {
		return nil, storeError("cast vote: increment count", err)
	}

	// Analytics rollup keyed on (user, show). daily_votes resets when the row
	// last changed on an earlier UTC day.
	_, err = tx.Exec(ctx, `
		INSERT INTO vote_analytics (user_id, show_id, vote_date, daily_votes, show_votes)
		VALUES ($1, $2, (now() AT TIME ZONE 'utc')::date, 1, 1)
		ON CONFLICT (user_id, show_id) DO UPDATE SET
			daily_votes = CASE
				WHEN vote_analytics.vote_date = EXCLUDED.vote_date
				THEN vote_analytics.daily_votes + 1
				ELSE 1
			END,
			vote_date   = EXCLUDED.vote_date,
			show_votes  = vote_analytics.show_votes + 1,
			updated_at  = now()`,
		p.UserID, p.ShowID,
	)
	if err != nil {
		return nil, storeError("cast vote: analytics upsert", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeError("cast vote: commit", err)
	}

	return &domain.VoteResult{
		VoteID:              voteID,
		NewVoteCount:        newCount,
		DailyVotesRemaining: domain.DailyVoteLimit - daily - 1,
		ShowVotesRemaining:  domain.ShowVoteLimit - show - 1,
	}, nil
}

func (s *VoteStore) RemoveVote(ctx context.Context, voteID, userID uuid.UUID) (*domain.RemoveResult, *domain.Vote, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, storeError("remove vote: begin", err)
	}
	defer tx.Rollback(ctx)

	if err := lockUser(ctx, tx, userID); err != nil {
		return nil, nil, storeError("remove vote", err)
	}

	var vote domain.Vote
	err = tx.QueryRow(ctx, `
		SELECT id, user_id, show_id, song_id, setlist_song_id, created_at
		FROM votes WHERE id = $1`,
		voteID,
	).Scan(&vote.ID, &vote.UserID, &vote.ShowID, &vote.SongID, &vote.SetlistSongID, &vote.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil, domain.ErrVoteNotFound
	case err != nil:
		return nil, nil, storeError("remove vote: lookup", err)
	case vote.UserID != userID:
		return nil, nil, domain.ErrUnauthorized
	}

	if _, err := tx.Exec(ctx, "DELETE FROM votes WHERE id = $1", voteID); err != nil {
		return nil, nil, storeError("remove vote: delete", err)
	}

	var newCount int
	err = tx.QueryRow(ctx,
		"UPDATE setlist_songs SET vote_count = GREATEST(vote_count - 1, 0) WHERE id = $1 RETURNING vote_count",
		vote.SetlistSongID,
	).Scan(&newCount)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Song removed out from under us; the vote row is gone, count is moot.
		newCount = 0
	case err != nil:
		return nil, nil, storeError("remove vote: decrement count", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE vote_analytics SET
			show_votes  = GREATEST(show_votes - 1, 0),
			daily_votes = CASE
				WHEN vote_date = (now() AT TIME ZONE 'utc')::date
				THEN GREATEST(daily_votes - 1, 0)
				ELSE daily_votes
			END,
			updated_at  = now()
		WHERE user_id = $1 AND show_id = $2`,
		userID, vote.ShowID,
	)
	if err != nil {
		return nil, nil, storeError("remove vote: analytics update", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, storeError("remove vote: commit", err)
	}

	return &domain.RemoveResult{NewVoteCount: newCount}, &vote, nil
}

func (s *VoteStore) CountVotes(ctx context.Context, userID, showID uuid.UUID) (daily, show int, err error) {
	err = s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM votes WHERE user_id = $1 AND created_at >= "+startOfTodayUTC,
		userID,
	).Scan(&daily)
	if err != nil {
		return 0, 0, storeError("count daily votes", err)
	}

	err = s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM votes WHERE user_id = $1 AND show_id = $2",
		userID, showID,
	).Scan(&show)
	if err != nil {
		return 0, 0, storeError("count show votes", err)
	}

	return daily, show, nil
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

func (s *VoteStore) GetUserVoteHistory(ctx context.Context, userID uuid.UUID, page, limit int) (*domain.VoteHistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var total int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM votes WHERE user_id = $1",
		userID,
	).Scan(&total)
	if err != nil {
		return nil, storeError("vote history: count", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, show_id, song_id, setlist_song_id, created_at
		FROM votes
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, storeError("vote history: query", err)
	}
	defer rows.Close()

	votes := make([]domain.Vote, 0, limit)
	for rows.Next() {
		var v domain.Vote
		if err := rows.Scan(&v.ID, &v.UserID, &v.ShowID, &v.SongID, &v.SetlistSongID, &v.CreatedAt); err != nil {
			return nil, storeError("vote history: scan", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("vote history: rows", err)
	}

	return &domain.VoteHistoryPage{
		Votes:      votes,
		Page:       page,
		Limit:      limit,
		TotalCount: total,
	}, nil
}
