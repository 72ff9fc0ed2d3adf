package domain

import (
	"time"

	"github.com/google/uuid"
)

// Vote quota limits. Daily counts reset at UTC midnight; show counts last for
// the lifetime of the show.
const (
	DailyVoteLimit = 50
	ShowVoteLimit  = 10
)

// Show is a scheduled event fans vote on. The catalog fields (artist, venue,
// date) are owned by an external sync collaborator; this core only reads them
// and maintains the derived trending score.
type Show struct {
	ID        uuid.UUID
	Artist    string
	Venue     string
	ShowDate  time.Time
	ViewCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SetlistSong is a candidate song within a show's setlist. VoteCount is the
// only server-mutated aggregate in this core and changes exclusively inside
// the vote store's transaction.
type SetlistSong struct {
	ID        uuid.UUID
	ShowID    uuid.UUID
	SongID    uuid.UUID
	Title     string
	Position  int
	VoteCount int
}

// Vote is one user's vote for one setlist song. Immutable once created;
// deleted only through the owner-authorized removal path.
type Vote struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"userId"`
	SetlistSongID uuid.UUID `json:"setlistSongId"`
	ShowID        uuid.UUID `json:"showId"`
	SongID        uuid.UUID `json:"songId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SongVoteCount is one row of the per-show ranking.
type SongVoteCount struct {
	SongID    uuid.UUID `json:"songId"`
	VoteCount int       `json:"voteCount"`
}

// QuotaStatus reports a user's remaining vote capacity for a day and a show.
type QuotaStatus struct {
	DailyUsed      int `json:"dailyUsed"`
	DailyRemaining int `json:"dailyRemaining"`
	ShowUsed       int `json:"showUsed"`
	ShowRemaining  int `json:"showRemaining"`
}

// VoteResult is returned by a successful cast.
type VoteResult struct {
	VoteID              uuid.UUID `json:"voteId"`
	NewVoteCount        int       `json:"newVoteCount"`
	DailyVotesRemaining int       `json:"dailyVotesRemaining"`
	ShowVotesRemaining  int       `json:"showVotesRemaining"`
}

// RemoveResult is returned by a successful removal.
type RemoveResult struct {
	NewVoteCount int `json:"newVoteCount"`
}

// VoteUpdate is the payload broadcast to show subscribers after a committed
// vote mutation. Delivery is best-effort, at most once per subscriber.
type VoteUpdate struct {
	SetlistSongID uuid.UUID `json:"setlistSongId"`
	SongID        uuid.UUID `json:"songId"`
	NewVoteCount  int       `json:"newVoteCount"`
	VoterID       uuid.UUID `json:"voterId"`
}

// VoteHistoryPage is one page of a user's vote history, newest first.
type VoteHistoryPage struct {
	Votes      []Vote `json:"votes"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalCount int    `json:"totalCount"`
}

// TrendingShow is one row of the materialized trending snapshot.
type TrendingShow struct {
	ShowID       uuid.UUID `json:"showId"`
	Artist       string    `json:"artist"`
	Venue        string    `json:"venue"`
	ShowDate     time.Time `json:"showDate"`
	Score        float64   `json:"score"`
	TotalVotes   int       `json:"totalVotes"`
	UniqueVoters int       `json:"uniqueVoters"`
	ComputedAt   time.Time `json:"computedAt"`
}

// ShowVoteStats is the raw per-show aggregate the trending scorer reads.
type ShowVoteStats struct {
	ShowID       uuid.UUID
	Artist       string
	Venue        string
	ShowDate     time.Time
	ViewCount    int
	TotalVotes   int
	UniqueVoters int
}
