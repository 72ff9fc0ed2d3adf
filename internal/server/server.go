// Package server wires the voting core into an Echo HTTP server: the JSON
// API, the per-show websocket endpoint, and the health and metrics surfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/encorelive/encore/internal/broadcast"
	"github.com/encorelive/encore/internal/config"
	"github.com/encorelive/encore/internal/domain"
	apperrors "github.com/encorelive/encore/internal/errors"
)

// votingService is the surface of the vote engine the handlers use.
type votingService interface {
	CastVote(ctx context.Context, p domain.CastVoteParams) (*domain.VoteResult, error)
	RemoveVote(ctx context.Context, voteID, userID uuid.UUID) (*domain.RemoveResult, error)
	GetQuota(ctx context.Context, userID, showID uuid.UUID) (*domain.QuotaStatus, error)
	GetVoteHistory(ctx context.Context, userID uuid.UUID, page, limit int) (*domain.VoteHistoryPage, error)
}

// trendingReader reads the materialized trending snapshot.
type trendingReader interface {
	GetTopShows(ctx context.Context, limit int) ([]domain.TrendingShow, error)
}

// recomputer triggers an on-demand trending recompute.
type recomputer interface {
	Recompute(ctx context.Context) error
}

// showDirectory answers show existence checks for the websocket endpoint.
type showDirectory interface {
	ShowExists(ctx context.Context, showID uuid.UUID) (bool, error)
}

// postgresHealthChecker is a minimal interface for database health checks.
type postgresHealthChecker interface {
	Ping(ctx context.Context) error
}

// redisHealthChecker is a minimal interface for Redis health checks.
type redisHealthChecker interface {
	Ping(ctx context.Context) *goredis.StatusCmd
}

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	votes       votingService
	cache       domain.ShowSongCache
	trending    trendingReader
	scorer      recomputer
	shows       showDirectory
	broadcaster *broadcast.Broadcaster
	wsLimits    *ConnectionLimits
	db          postgresHealthChecker
	redis       redisHealthChecker
}

func NewServer(
	cfg *config.Config,
	votes votingService,
	cache domain.ShowSongCache,
	trendingStore trendingReader,
	scorer recomputer,
	shows showDirectory,
	broadcaster *broadcast.Broadcaster,
	db postgresHealthChecker,
	redis redisHealthChecker,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:        e,
		config:      cfg,
		votes:       votes,
		cache:       cache,
		trending:    trendingStore,
		scorer:      scorer,
		shows:       shows,
		broadcaster: broadcaster,
		wsLimits: NewConnectionLimits(
			cfg.WSMaxConnections,
			cfg.WSMaxPerIP,
			cfg.WSConnectionsPerSec,
			cfg.WSConnectionBurst,
		),
		db:    db,
		redis: redis,
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// mapDomainError converts vote ledger sentinels into structured API errors.
func mapDomainError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrRateLimited):
		return apperrors.RateLimitedError("too many vote requests, slow down")
	case errors.Is(err, domain.ErrDuplicateVote):
		return apperrors.ConflictError("you already voted for this song")
	case errors.Is(err, domain.ErrDailyLimitExceeded):
		return apperrors.QuotaExceededError("daily vote limit reached").WithField("limit", domain.DailyVoteLimit)
	case errors.Is(err, domain.ErrShowLimitExceeded):
		return apperrors.QuotaExceededError("show vote limit reached").WithField("limit", domain.ShowVoteLimit)
	case errors.Is(err, domain.ErrUnauthorized):
		return apperrors.UnauthorizedError("vote belongs to another user")
	case errors.Is(err, domain.ErrVoteNotFound):
		return apperrors.NotFoundError("vote not found")
	case errors.Is(err, domain.ErrSetlistSongNotFound):
		return apperrors.NotFoundError("setlist song not found for this show")
	case errors.Is(err, domain.ErrShowNotFound):
		return apperrors.NotFoundError("show not found")
	case errors.Is(err, domain.ErrStoreUnavailable):
		return apperrors.UnavailableError("vote store temporarily unavailable", err)
	default:
		return apperrors.InternalError("internal server error", err)
	}
}
