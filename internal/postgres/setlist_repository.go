package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/encorelive/encore/internal/domain"
)

// SetlistRepository serves per-show song rankings from the source of truth.
// The Redis cache fronts it; this is the miss path.
type SetlistRepository struct {
	pool *pgxpool.Pool
}

var _ domain.SetlistReader = (*SetlistRepository)(nil)

func NewSetlistRepository(pool *pgxpool.Pool) *SetlistRepository {
	return &SetlistRepository{pool: pool}
}

func (r *SetlistRepository) GetShowSongs(ctx context.Context, showID uuid.UUID) ([]domain.SongVoteCount, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM shows WHERE id = $1)",
		showID,
	).Scan(&exists)
	if err != nil {
		return nil, storeError("show songs: show lookup", err)
	}
	if !exists {
		return nil, domain.ErrShowNotFound
	}

	rows, err := r.pool.Query(ctx, `
		SELECT song_id, vote_count
		FROM setlist_songs
		WHERE show_id = $1
		ORDER BY vote_count DESC, position ASC`,
		showID,
	)
	if err != nil {
		return nil, storeError("show songs: query", err)
	}
	defer rows.Close()

	songs := make([]domain.SongVoteCount, 0)
	for rows.Next() {
		var s domain.SongVoteCount
		if err := rows.Scan(&s.SongID, &s.VoteCount); err != nil {
			return nil, storeError("show songs: scan", err)
		}
		songs = append(songs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("show songs: rows", err)
	}

	return songs, nil
}

// ShowExists reports whether a show exists, used by the websocket handler
// before accepting a subscription.
func (r *SetlistRepository) ShowExists(ctx context.Context, showID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM shows WHERE id = $1)",
		showID,
	).Scan(&exists)
	if err != nil {
		return false, storeError("show exists", err)
	}
	return exists, nil
}
