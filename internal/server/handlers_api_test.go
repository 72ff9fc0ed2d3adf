package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encorelive/encore/internal/domain"
)

func castPath(showID, setlistSongID uuid.UUID) string {
	return fmt.Sprintf("/api/shows/%s/songs/%s/votes", showID, setlistSongID)
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCastVote_Created(t *testing.T) {
	userID := uuid.New()
	showID := uuid.New()
	songID := uuid.New()
	setlistSongID := uuid.New()

	votes := &mockVotingService{
		castVoteFn: func(_ context.Context, p domain.CastVoteParams) (*domain.VoteResult, error) {
			assert.Equal(t, userID, p.UserID)
			assert.Equal(t, showID, p.ShowID)
			assert.Equal(t, songID, p.SongID)
			assert.Equal(t, setlistSongID, p.SetlistSongID)
			return &domain.VoteResult{
				VoteID:              uuid.New(),
				NewVoteCount:        7,
				DailyVotesRemaining: 42,
				ShowVotesRemaining:  6,
			}, nil
		},
	}
	srv := newTestServer(t, &testDeps{votes: votes})

	body := fmt.Sprintf(`{"songId":%q}`, songID)
	rec := doRequest(srv, http.MethodPost, castPath(showID, setlistSongID), userID.String(), body)

	require.Equal(t, http.StatusCreated, rec.Code)
	var result domain.VoteResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 7, result.NewVoteCount)
	assert.Equal(t, 42, result.DailyVotesRemaining)
}

func TestCastVote_MissingIdentity(t *testing.T) {
	srv := newTestServer(t, &testDeps{})

	rec := doRequest(srv, http.MethodPost, castPath(uuid.New(), uuid.New()), "", `{"songId":"x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCastVote_MalformedIdentity(t *testing.T) {
	srv := newTestServer(t, &testDeps{})

	rec := doRequest(srv, http.MethodPost, castPath(uuid.New(), uuid.New()), "not-a-uuid", `{"songId":"x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCastVote_InvalidIDs(t *testing.T) {
	srv := newTestServer(t, &testDeps{})
	userID := uuid.NewString()

	rec := doRequest(srv, http.MethodPost, "/api/shows/not-a-uuid/songs/"+uuid.NewString()+"/votes", userID, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/shows/"+uuid.NewString()+"/songs/not-a-uuid/votes", userID, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodPost, castPath(uuid.New(), uuid.New()), userID, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "songId is required")
}

func TestCastVote_ErrorMapping(t *testing.T) {
	cases := []struct {
		name          string
		err           error
		wantStatus    int
		wantRetryable bool
	}{
		{"duplicate", domain.ErrDuplicateVote, http.StatusConflict, false},
		{"daily limit", domain.ErrDailyLimitExceeded, http.StatusUnprocessableEntity, false},
		{"show limit", domain.ErrShowLimitExceeded, http.StatusUnprocessableEntity, false},
		{"unknown song", domain.ErrSetlistSongNotFound, http.StatusNotFound, false},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests, true},
		{"store unavailable", domain.ErrStoreUnavailable, http.StatusServiceUnavailable, true},
		{"unexpected", errBoom, http.StatusInternalServerError, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			votes := &mockVotingService{
				castVoteFn: func(_ context.Context, _ domain.CastVoteParams) (*domain.VoteResult, error) {
					return nil, tc.err
				},
			}
			srv := newTestServer(t, &testDeps{votes: votes})

			body := fmt.Sprintf(`{"songId":%q}`, uuid.New())
			rec := doRequest(srv, http.MethodPost, castPath(uuid.New(), uuid.New()), uuid.NewString(), body)

			require.Equal(t, tc.wantStatus, rec.Code)
			resp := errorBody(t, rec)
			assert.Equal(t, tc.wantRetryable, resp["retryable"], "retryable flag tells clients whether to back off and retry")
		})
	}
}

func TestRemoveVote_OK(t *testing.T) {
	userID := uuid.New()
	voteID := uuid.New()

	votes := &mockVotingService{
		removeVoteFn: func(_ context.Context, gotVoteID, gotUserID uuid.UUID) (*domain.RemoveResult, error) {
			assert.Equal(t, voteID, gotVoteID)
			assert.Equal(t, userID, gotUserID)
			return &domain.RemoveResult{NewVoteCount: 3}, nil
		},
	}
	srv := newTestServer(t, &testDeps{votes: votes})

	rec := doRequest(srv, http.MethodDelete, "/api/votes/"+voteID.String(), userID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.RemoveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 3, result.NewVoteCount)
}

func TestRemoveVote_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", domain.ErrVoteNotFound, http.StatusNotFound},
		{"not owner", domain.ErrUnauthorized, http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			votes := &mockVotingService{
				removeVoteFn: func(_ context.Context, _, _ uuid.UUID) (*domain.RemoveResult, error) {
					return nil, tc.err
				},
			}
			srv := newTestServer(t, &testDeps{votes: votes})

			rec := doRequest(srv, http.MethodDelete, "/api/votes/"+uuid.NewString(), uuid.NewString(), "")
			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}

func TestShowVotes_OK(t *testing.T) {
	showID := uuid.New()
	ranking := []domain.SongVoteCount{
		{SongID: uuid.New(), VoteCount: 5},
		{SongID: uuid.New(), VoteCount: 2},
	}
	cache := &mockCache{
		getShowSongsFn: func(_ context.Context, gotShowID uuid.UUID) ([]domain.SongVoteCount, error) {
			assert.Equal(t, showID, gotShowID)
			return ranking, nil
		},
	}
	srv := newTestServer(t, &testDeps{cache: cache})

	rec := doRequest(srv, http.MethodGet, "/api/shows/"+showID.String()+"/votes", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp showVotesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, showID, resp.ShowID)
	assert.Equal(t, ranking, resp.Songs)
	assert.Equal(t, 7, resp.TotalVotes)
}

func TestShowVotes_UnknownShow(t *testing.T) {
	srv := newTestServer(t, &testDeps{}) // default cache returns ErrShowNotFound

	rec := doRequest(srv, http.MethodGet, "/api/shows/"+uuid.NewString()+"/votes", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVoteHistory_PassesPagination(t *testing.T) {
	userID := uuid.New()
	votes := &mockVotingService{
		getVoteHistoryFn: func(_ context.Context, gotUserID uuid.UUID, page, limit int) (*domain.VoteHistoryPage, error) {
			assert.Equal(t, userID, gotUserID)
			assert.Equal(t, 3, page)
			assert.Equal(t, 5, limit)
			return &domain.VoteHistoryPage{Page: page, Limit: limit, TotalCount: 11}, nil
		},
	}
	srv := newTestServer(t, &testDeps{votes: votes})

	rec := doRequest(srv, http.MethodGet, "/api/users/me/votes?page=3&limit=5", userID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestVoteHistory_InvalidPagination(t *testing.T) {
	srv := newTestServer(t, &testDeps{})

	rec := doRequest(srv, http.MethodGet, "/api/users/me/votes?page=abc", uuid.NewString(), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuota_OK(t *testing.T) {
	showID := uuid.New()
	votes := &mockVotingService{
		getQuotaFn: func(_ context.Context, _, gotShowID uuid.UUID) (*domain.QuotaStatus, error) {
			assert.Equal(t, showID, gotShowID)
			return &domain.QuotaStatus{DailyUsed: 5, DailyRemaining: 45, ShowUsed: 2, ShowRemaining: 8}, nil
		},
	}
	srv := newTestServer(t, &testDeps{votes: votes})

	rec := doRequest(srv, http.MethodGet, "/api/users/me/quota?show_id="+showID.String(), uuid.NewString(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var quota domain.QuotaStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quota))
	assert.Equal(t, 45, quota.DailyRemaining)
}

func TestQuota_MissingShowID(t *testing.T) {
	srv := newTestServer(t, &testDeps{})

	rec := doRequest(srv, http.MethodGet, "/api/users/me/quota", uuid.NewString(), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrending_DefaultAndClampedLimit(t *testing.T) {
	var gotLimits []int
	trending := &mockTrendingReader{
		getTopShowsFn: func(_ context.Context, limit int) ([]domain.TrendingShow, error) {
			gotLimits = append(gotLimits, limit)
			return []domain.TrendingShow{}, nil
		},
	}
	srv := newTestServer(t, &testDeps{trending: trending})

	rec := doRequest(srv, http.MethodGet, "/api/shows/trending", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/shows/trending?limit=500", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/shows/trending?limit=0", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, []int{defaultTrendingLimit, maxTrendingLimit}, gotLimits)
}

func TestRecomputeTrending(t *testing.T) {
	called := false
	scorer := &mockRecomputer{
		recomputeFn: func(_ context.Context) error {
			called = true
			return nil
		},
	}
	srv := newTestServer(t, &testDeps{scorer: scorer})

	rec := doRequest(srv, http.MethodPost, "/api/trending/recompute", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestHealthLive(t *testing.T) {
	srv := newTestServer(t, &testDeps{})

	rec := doRequest(srv, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReady_DependencyFailure(t *testing.T) {
	srv := newTestServer(t, &testDeps{db: &mockPinger{err: errBoom}})

	rec := doRequest(srv, http.MethodGet, "/health/ready", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := errorBody(t, rec)
	assert.Equal(t, "postgres", resp["failed_check"])
}

func TestHealthReady_OK(t *testing.T) {
	srv := newTestServer(t, &testDeps{})

	rec := doRequest(srv, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
