package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/encorelive/encore/internal/domain"
)

// TrendingRepository feeds the trending scorer with raw aggregates and
// persists the materialized snapshot it produces.
type TrendingRepository struct {
	pool *pgxpool.Pool
}

var _ domain.TrendingStore = (*TrendingRepository)(nil)

func NewTrendingRepository(pool *pgxpool.Pool) *TrendingRepository {
	return &TrendingRepository{pool: pool}
}

func (r *TrendingRepository) ListUpcomingShowStats(ctx context.Context, horizonDays int) ([]domain.ShowVoteStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.artist, s.venue, s.show_date, s.view_count,
		       COUNT(v.id)                  AS total_votes,
		       COUNT(DISTINCT v.user_id)    AS unique_voters
		FROM shows s
		LEFT JOIN votes v ON v.show_id = s.id
		WHERE s.show_date >= (now() AT TIME ZONE 'utc')::date
		  AND s.show_date <  (now() AT TIME ZONE 'utc')::date + $1::int
		GROUP BY s.id, s.artist, s.venue, s.show_date, s.view_count`,
		horizonDays,
	)
	if err != nil {
		return nil, storeError("trending stats: query", err)
	}
	defer rows.Close()

	stats := make([]domain.ShowVoteStats, 0)
	for rows.Next() {
		var st domain.ShowVoteStats
		if err := rows.Scan(&st.ShowID, &st.Artist, &st.Venue, &st.ShowDate, &st.ViewCount, &st.TotalVotes, &st.UniqueVoters); err != nil {
			return nil, storeError("trending stats: scan", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("trending stats: rows", err)
	}

	return stats, nil
}

// ReplaceTrendingSnapshot swaps the whole snapshot in one transaction so
// readers never see a partially written ranking.
func (r *TrendingRepository) ReplaceTrendingSnapshot(ctx context.Context, shows []domain.TrendingShow) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storeError("trending snapshot: begin", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM trending_shows"); err != nil {
		return storeError("trending snapshot: clear", err)
	}

	if len(shows) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"trending_shows"},
			[]string{"show_id", "score", "total_votes", "unique_voters", "computed_at"},
			pgx.CopyFromSlice(len(shows), func(i int) ([]any, error) {
				s := shows[i]
				return []any{s.ShowID, s.Score, s.TotalVotes, s.UniqueVoters, s.ComputedAt}, nil
			}),
		)
		if err != nil {
			return storeError("trending snapshot: copy", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storeError("trending snapshot: commit", err)
	}
	return nil
}

func (r *TrendingRepository) GetTopShows(ctx context.Context, limit int) ([]domain.TrendingShow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.show_id, s.artist, s.venue, s.show_date,
		       t.score, t.total_votes, t.unique_voters, t.computed_at
		FROM trending_shows t
		JOIN shows s ON s.id = t.show_id
		ORDER BY t.score DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, storeError("top shows: query", err)
	}
	defer rows.Close()

	shows := make([]domain.TrendingShow, 0, limit)
	for rows.Next() {
		var t domain.TrendingShow
		if err := rows.Scan(&t.ShowID, &t.Artist, &t.Venue, &t.ShowDate, &t.Score, &t.TotalVotes, &t.UniqueVoters, &t.ComputedAt); err != nil {
			return nil, storeError("top shows: scan", err)
		}
		shows = append(shows, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("top shows: rows", err)
	}

	return shows, nil
}
