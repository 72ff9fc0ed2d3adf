package domain

import "errors"

var (
	ErrRateLimited         = errors.New("rate limited")
	ErrDuplicateVote       = errors.New("duplicate vote")
	ErrDailyLimitExceeded  = errors.New("daily vote limit exceeded")
	ErrShowLimitExceeded   = errors.New("show vote limit exceeded")
	ErrUnauthorized        = errors.New("vote not owned by caller")
	ErrVoteNotFound        = errors.New("vote not found")
	ErrSetlistSongNotFound = errors.New("setlist song not found")
	ErrShowNotFound        = errors.New("show not found")

	// ErrStoreUnavailable marks transient store failures (timeouts, connection
	// loss). Callers may retry; duplicate detection makes retries safe.
	ErrStoreUnavailable = errors.New("store unavailable")
)
