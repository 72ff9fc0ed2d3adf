package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no identity required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Vote mutations (identified caller required)
	s.echo.POST("/api/shows/:show_id/songs/:setlist_song_id/votes", s.handleCastVote, s.requireUser)
	s.echo.DELETE("/api/votes/:vote_id", s.handleRemoveVote, s.requireUser)

	// Caller-scoped reads
	s.echo.GET("/api/users/me/votes", s.handleVoteHistory, s.requireUser)
	s.echo.GET("/api/users/me/quota", s.handleQuota, s.requireUser)

	// Public reads
	s.echo.GET("/api/shows/:show_id/votes", s.handleShowVotes)
	s.echo.GET("/api/shows/trending", s.handleTrending)

	// Operational trigger for the trending snapshot
	s.echo.POST("/api/trending/recompute", s.handleRecomputeTrending)

	// Live vote updates per show
	s.echo.GET("/ws/shows/:show_id", s.handleWebSocket)
}
