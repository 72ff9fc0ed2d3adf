package trending

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encorelive/encore/internal/domain"
)

// mockTrendingStore implements domain.TrendingStore for tests.
type mockTrendingStore struct {
	mu                        sync.Mutex
	listUpcomingShowStatsFn   func(ctx context.Context, horizonDays int) ([]domain.ShowVoteStats, error)
	replaceTrendingSnapshotFn func(ctx context.Context, rows []domain.TrendingShow) error
	lastSnapshot              []domain.TrendingShow
	replaceCalls              int
}

func (m *mockTrendingStore) ListUpcomingShowStats(ctx context.Context, horizonDays int) ([]domain.ShowVoteStats, error) {
	if m.listUpcomingShowStatsFn != nil {
		return m.listUpcomingShowStatsFn(ctx, horizonDays)
	}
	return nil, nil
}

func (m *mockTrendingStore) ReplaceTrendingSnapshot(ctx context.Context, rows []domain.TrendingShow) error {
	m.mu.Lock()
	m.lastSnapshot = rows
	m.replaceCalls++
	m.mu.Unlock()
	if m.replaceTrendingSnapshotFn != nil {
		return m.replaceTrendingSnapshotFn(ctx, rows)
	}
	return nil
}

func (m *mockTrendingStore) GetTopShows(_ context.Context, _ int) ([]domain.TrendingShow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSnapshot, nil
}

func (m *mockTrendingStore) snapshot() []domain.TrendingShow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSnapshot
}

func (m *mockTrendingStore) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaceCalls
}

// mockLeader implements leaderElector.
type mockLeader struct {
	mu       sync.Mutex
	isLeader bool
	err      error
	attempts int
}

func (m *mockLeader) TryBecomeLeader(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	return m.isLeader, m.err
}

func statsIn(days int, total, unique, views int) domain.ShowVoteStats {
	showDate := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, days)
	return domain.ShowVoteStats{
		ShowID:       uuid.New(),
		Artist:       "Artist",
		Venue:        "Venue",
		ShowDate:     showDate,
		ViewCount:    views,
		TotalVotes:   total,
		UniqueVoters: unique,
	}
}

func TestScore_AllWeightsApply(t *testing.T) {
	// 20 votes from 20 distinct voters, 5 days out, 1500 views:
	// 20 * 2.0 (urgency) * 2.0 (engagement) * 1.5 (popularity) = 120.
	stats := statsIn(5, 20, 20, 1500)
	assert.InDelta(t, 120.0, Score(stats, time.Now()), 1e-9)
}

func TestScore_RepeatVotersLowerEngagement(t *testing.T) {
	// 20 votes from 5 voters: engagement 1 + 5/20 = 1.25.
	stats := statsIn(60, 20, 5, 0)
	assert.InDelta(t, 20*1.0*1.25*1.0, Score(stats, time.Now()), 1e-9)
}

func TestScore_ZeroVotesScoresZero(t *testing.T) {
	stats := statsIn(5, 0, 0, 5000)
	assert.Zero(t, Score(stats, time.Now()))
}

func TestUrgencyWeight_Boundaries(t *testing.T) {
	cases := []struct {
		days   int
		weight float64
	}{
		{0, 2.0},
		{7, 2.0},
		{8, 1.5},
		{14, 1.5},
		{15, 1.2},
		{30, 1.2},
		{31, 1.0},
		{180, 1.0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.weight, urgencyWeight(tc.days), "days=%d", tc.days)
	}
}

func TestPopularityWeight_Boundaries(t *testing.T) {
	cases := []struct {
		views  int
		weight float64
	}{
		{0, 1.0},
		{100, 1.0},
		{101, 1.1},
		{500, 1.1},
		{501, 1.3},
		{1000, 1.3},
		{1001, 1.5},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.weight, popularityWeight(tc.views), "views=%d", tc.views)
	}
}

func TestRecompute_RanksAndExcludes(t *testing.T) {
	hot := statsIn(3, 50, 40, 2000)
	mild := statsIn(90, 10, 10, 50)
	viewsOnly := statsIn(10, 0, 0, 300)
	dead := statsIn(10, 0, 0, 0)

	store := &mockTrendingStore{
		listUpcomingShowStatsFn: func(_ context.Context, horizonDays int) ([]domain.ShowVoteStats, error) {
			assert.Equal(t, HorizonDays, horizonDays)
			return []domain.ShowVoteStats{mild, dead, hot, viewsOnly}, nil
		},
	}
	scorer := NewScorer(store, &mockLeader{}, clockwork.NewRealClock())

	require.NoError(t, scorer.Recompute(context.Background()))

	snapshot := store.snapshot()
	require.Len(t, snapshot, 3, "shows with no votes and no views are dropped")
	assert.Equal(t, hot.ShowID, snapshot[0].ShowID)
	assert.Equal(t, mild.ShowID, snapshot[1].ShowID)
	assert.Equal(t, viewsOnly.ShowID, snapshot[2].ShowID)
	assert.Zero(t, snapshot[2].Score, "viewed but voteless shows rank with score zero")

	for _, row := range snapshot {
		assert.False(t, row.ComputedAt.IsZero())
	}
}

func TestRecompute_StoreErrorPropagates(t *testing.T) {
	wantErr := errors.New("boom")
	store := &mockTrendingStore{
		listUpcomingShowStatsFn: func(_ context.Context, _ int) ([]domain.ShowVoteStats, error) {
			return nil, wantErr
		},
	}
	scorer := NewScorer(store, &mockLeader{}, clockwork.NewRealClock())

	err := scorer.Recompute(context.Background())
	assert.ErrorIs(t, err, wantErr)
	assert.Zero(t, store.calls())
}

func TestRecompute_EmptyHorizonWritesEmptySnapshot(t *testing.T) {
	store := &mockTrendingStore{}
	scorer := NewScorer(store, &mockLeader{}, clockwork.NewRealClock())

	require.NoError(t, scorer.Recompute(context.Background()))
	assert.Equal(t, 1, store.calls())
	assert.Empty(t, store.snapshot())
}

func TestRun_OnlyLeaderRecomputes(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &mockTrendingStore{
		listUpcomingShowStatsFn: func(_ context.Context, _ int) ([]domain.ShowVoteStats, error) {
			return []domain.ShowVoteStats{statsIn(5, 1, 1, 0)}, nil
		},
	}
	leader := &mockLeader{isLeader: false}
	scorer := NewScorer(store, leader, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scorer.Run(ctx, time.Hour)

	clock.BlockUntilContext(t.Context(), 1)
	clock.Advance(time.Hour)

	require.Eventually(t, func() bool {
		leader.mu.Lock()
		defer leader.mu.Unlock()
		return leader.attempts == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, store.calls(), "followers never touch the snapshot")

	leader.mu.Lock()
	leader.isLeader = true
	leader.mu.Unlock()

	clock.Advance(time.Hour)
	require.Eventually(t, func() bool {
		return store.calls() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	scorer := NewScorer(&mockTrendingStore{}, &mockLeader{}, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scorer.Run(ctx, time.Hour)
		close(done)
	}()

	clock.BlockUntilContext(t.Context(), 1)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
