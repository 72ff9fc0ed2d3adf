package server

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/encorelive/encore/internal/domain"
	apperrors "github.com/encorelive/encore/internal/errors"
)

const (
	defaultTrendingLimit = 10
	maxTrendingLimit     = 50
)

type castVoteRequest struct {
	SongID uuid.UUID `json:"songId"`
}

func (s *Server) handleCastVote(c echo.Context) error {
	showID, err := uuid.Parse(c.Param("show_id"))
	if err != nil {
		return apperrors.ValidationError("invalid show id")
	}
	setlistSongID, err := uuid.Parse(c.Param("setlist_song_id"))
	if err != nil {
		return apperrors.ValidationError("invalid setlist song id")
	}

	var req castVoteRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.SongID == uuid.Nil {
		return apperrors.ValidationError("songId is required")
	}

	result, err := s.votes.CastVote(c.Request().Context(), domain.CastVoteParams{
		UserID:        currentUser(c),
		ShowID:        showID,
		SongID:        req.SongID,
		SetlistSongID: setlistSongID,
	})
	if err != nil {
		return mapDomainError(err)
	}

	return c.JSON(http.StatusCreated, result)
}

func (s *Server) handleRemoveVote(c echo.Context) error {
	voteID, err := uuid.Parse(c.Param("vote_id"))
	if err != nil {
		return apperrors.ValidationError("invalid vote id")
	}

	result, err := s.votes.RemoveVote(c.Request().Context(), voteID, currentUser(c))
	if err != nil {
		return mapDomainError(err)
	}

	return c.JSON(http.StatusOK, result)
}

type showVotesResponse struct {
	ShowID     uuid.UUID              `json:"showId"`
	Songs      []domain.SongVoteCount `json:"songs"`
	TotalVotes int                    `json:"totalVotes"`
}

func (s *Server) handleShowVotes(c echo.Context) error {
	showID, err := uuid.Parse(c.Param("show_id"))
	if err != nil {
		return apperrors.ValidationError("invalid show id")
	}

	songs, err := s.cache.GetShowSongs(c.Request().Context(), showID)
	if err != nil {
		return mapDomainError(err)
	}

	total := 0
	for _, song := range songs {
		total += song.VoteCount
	}

	return c.JSON(http.StatusOK, showVotesResponse{
		ShowID:     showID,
		Songs:      songs,
		TotalVotes: total,
	})
}

func (s *Server) handleVoteHistory(c echo.Context) error {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return apperrors.ValidationError("invalid page")
	}
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		return apperrors.ValidationError("invalid limit")
	}

	history, err := s.votes.GetVoteHistory(c.Request().Context(), currentUser(c), page, limit)
	if err != nil {
		return mapDomainError(err)
	}

	return c.JSON(http.StatusOK, history)
}

func (s *Server) handleQuota(c echo.Context) error {
	showID, err := uuid.Parse(c.QueryParam("show_id"))
	if err != nil {
		return apperrors.ValidationError("show_id query parameter is required")
	}

	quota, err := s.votes.GetQuota(c.Request().Context(), currentUser(c), showID)
	if err != nil {
		return mapDomainError(err)
	}

	return c.JSON(http.StatusOK, quota)
}

func (s *Server) handleTrending(c echo.Context) error {
	limit, err := queryInt(c, "limit", defaultTrendingLimit)
	if err != nil || limit < 1 {
		return apperrors.ValidationError("invalid limit")
	}
	if limit > maxTrendingLimit {
		limit = maxTrendingLimit
	}

	shows, err := s.trending.GetTopShows(c.Request().Context(), limit)
	if err != nil {
		return mapDomainError(err)
	}

	return c.JSON(http.StatusOK, map[string]any{"shows": shows})
}

func (s *Server) handleRecomputeTrending(c echo.Context) error {
	if err := s.scorer.Recompute(c.Request().Context()); err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "recomputed"})
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
