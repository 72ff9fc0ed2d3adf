package trending

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// leaderKey is the Redis key for the recompute leader election.
const leaderKey = "leader:trending_recompute"

// LeaderElection elects a single recompute leader per interval using Redis
// SETNX. The winner holds the key for the lease TTL; everyone else skips that
// cycle. If the leader crashes the key simply expires.
type LeaderElection struct {
	rdb        *goredis.Client
	instanceID string
	ttl        time.Duration
}

func NewLeaderElection(rdb *goredis.Client, instanceID string, ttl time.Duration) *LeaderElection {
	return &LeaderElection{rdb: rdb, instanceID: instanceID, ttl: ttl}
}

// TryBecomeLeader attempts to acquire the recompute lease for this cycle.
func (l *LeaderElection) TryBecomeLeader(ctx context.Context) (bool, error) {
	return l.rdb.SetNX(ctx, leaderKey, l.instanceID, l.ttl).Result()
}

// ReleaseLease voluntarily gives up the lease during graceful shutdown, but
// only when this instance still holds it.
func (l *LeaderElection) ReleaseLease(ctx context.Context) error {
	script := `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
	`
	return l.rdb.Eval(ctx, script, []string{leaderKey}, l.instanceID).Err()
}
