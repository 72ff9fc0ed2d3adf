package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/encorelive/encore/internal/broadcast"
	"github.com/encorelive/encore/internal/config"
	"github.com/encorelive/encore/internal/domain"
)

// --- Mocks ---

type mockVotingService struct {
	castVoteFn       func(ctx context.Context, p domain.CastVoteParams) (*domain.VoteResult, error)
	removeVoteFn     func(ctx context.Context, voteID, userID uuid.UUID) (*domain.RemoveResult, error)
	getQuotaFn       func(ctx context.Context, userID, showID uuid.UUID) (*domain.QuotaStatus, error)
	getVoteHistoryFn func(ctx context.Context, userID uuid.UUID, page, limit int) (*domain.VoteHistoryPage, error)
}

func (m *mockVotingService) CastVote(ctx context.Context, p domain.CastVoteParams) (*domain.VoteResult, error) {
	if m.castVoteFn != nil {
		return m.castVoteFn(ctx, p)
	}
	return &domain.VoteResult{VoteID: uuid.New(), NewVoteCount: 1}, nil
}

func (m *mockVotingService) RemoveVote(ctx context.Context, voteID, userID uuid.UUID) (*domain.RemoveResult, error) {
	if m.removeVoteFn != nil {
		return m.removeVoteFn(ctx, voteID, userID)
	}
	return &domain.RemoveResult{}, nil
}

func (m *mockVotingService) GetQuota(ctx context.Context, userID, showID uuid.UUID) (*domain.QuotaStatus, error) {
	if m.getQuotaFn != nil {
		return m.getQuotaFn(ctx, userID, showID)
	}
	return &domain.QuotaStatus{}, nil
}

func (m *mockVotingService) GetVoteHistory(ctx context.Context, userID uuid.UUID, page, limit int) (*domain.VoteHistoryPage, error) {
	if m.getVoteHistoryFn != nil {
		return m.getVoteHistoryFn(ctx, userID, page, limit)
	}
	return &domain.VoteHistoryPage{Page: page, Limit: limit}, nil
}

type mockCache struct {
	getShowSongsFn func(ctx context.Context, showID uuid.UUID) ([]domain.SongVoteCount, error)
}

func (m *mockCache) GetShowSongs(ctx context.Context, showID uuid.UUID) ([]domain.SongVoteCount, error) {
	if m.getShowSongsFn != nil {
		return m.getShowSongsFn(ctx, showID)
	}
	return nil, domain.ErrShowNotFound
}

func (m *mockCache) Invalidate(_ context.Context, _ uuid.UUID) error { return nil }

type mockTrendingReader struct {
	getTopShowsFn func(ctx context.Context, limit int) ([]domain.TrendingShow, error)
}

func (m *mockTrendingReader) GetTopShows(ctx context.Context, limit int) ([]domain.TrendingShow, error) {
	if m.getTopShowsFn != nil {
		return m.getTopShowsFn(ctx, limit)
	}
	return nil, nil
}

type mockRecomputer struct {
	recomputeFn func(ctx context.Context) error
}

func (m *mockRecomputer) Recompute(ctx context.Context) error {
	if m.recomputeFn != nil {
		return m.recomputeFn(ctx)
	}
	return nil
}

type mockShowDirectory struct {
	showExistsFn func(ctx context.Context, showID uuid.UUID) (bool, error)
}

func (m *mockShowDirectory) ShowExists(ctx context.Context, showID uuid.UUID) (bool, error) {
	if m.showExistsFn != nil {
		return m.showExistsFn(ctx, showID)
	}
	return false, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockRedisPinger struct {
	err error
}

func (m *mockRedisPinger) Ping(ctx context.Context) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
	}
	return cmd
}

// --- Test server assembly ---

type testDeps struct {
	votes    *mockVotingService
	cache    *mockCache
	trending *mockTrendingReader
	scorer   *mockRecomputer
	shows    *mockShowDirectory
	db       *mockPinger
	redis    *mockRedisPinger
}

func (deps *testDeps) fill() {
	if deps.votes == nil {
		deps.votes = &mockVotingService{}
	}
	if deps.cache == nil {
		deps.cache = &mockCache{}
	}
	if deps.trending == nil {
		deps.trending = &mockTrendingReader{}
	}
	if deps.scorer == nil {
		deps.scorer = &mockRecomputer{}
	}
	if deps.shows == nil {
		deps.shows = &mockShowDirectory{}
	}
	if deps.db == nil {
		deps.db = &mockPinger{}
	}
	if deps.redis == nil {
		deps.redis = &mockRedisPinger{}
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Port:                "0",
		WSMaxConnections:    100,
		WSMaxPerIP:          10,
		WSConnectionsPerSec: 100,
		WSConnectionBurst:   100,
		WSMaxClientsPerShow: 100,
	}
}

func newTestServer(t *testing.T, deps *testDeps) *Server {
	t.Helper()
	return newTestServerWithConfig(t, deps, testConfig())
}

func newTestServerWithConfig(t *testing.T, deps *testDeps, cfg *config.Config) *Server {
	t.Helper()
	deps.fill()

	broadcaster := broadcast.NewBroadcaster(nil, nil, clockwork.NewRealClock(), cfg.WSMaxClientsPerShow)
	t.Cleanup(func() { broadcaster.Stop() })

	return NewServer(cfg, deps.votes, deps.cache, deps.trending, deps.scorer, deps.shows, broadcaster, deps.db, deps.redis)
}

// doRequest runs a request through the full middleware chain.
func doRequest(srv *Server, method, path, userID, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

var errBoom = errors.New("boom")
