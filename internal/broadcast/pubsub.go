package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/encorelive/encore/internal/domain"
)

// voteChannel is the per-show Redis Pub/Sub channel name.
func voteChannel(showID uuid.UUID) string {
	return "show:" + showID.String()
}

func showIDFromChannel(channel string) (uuid.UUID, bool) {
	raw, ok := strings.CutPrefix(channel, "show:")
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Publisher publishes committed vote updates to the show's Redis channel so
// every instance's relay can fan them out to its local subscribers.
type Publisher struct {
	rdb goredis.Cmdable
}

var _ domain.VoteEventPublisher = (*Publisher)(nil)

func NewPublisher(rdb goredis.Cmdable) *Publisher {
	return &Publisher{rdb: rdb}
}

// voteEvent is the wire envelope sent to websocket subscribers.
type voteEvent struct {
	Event   string            `json:"event"`
	Payload domain.VoteUpdate `json:"payload"`
}

func (p *Publisher) PublishVoteUpdate(ctx context.Context, showID uuid.UUID, update domain.VoteUpdate) error {
	data, err := json.Marshal(voteEvent{Event: "vote_update", Payload: update})
	if err != nil {
		return fmt.Errorf("failed to marshal vote update: %w", err)
	}
	if err := p.rdb.Publish(ctx, voteChannel(showID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish vote update: %w", err)
	}
	return nil
}

// Relay bridges Redis Pub/Sub to the local broadcaster. It holds one
// connection-backed subscription whose channel set follows the shows that
// currently have local subscribers.
type Relay struct {
	sub         *goredis.PubSub
	broadcaster *Broadcaster
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewRelay starts the relay loop. Wire its Subscribe/Unsubscribe as the
// broadcaster's onFirstClient/onShowEmpty callbacks.
func NewRelay(ctx context.Context, rdb *goredis.Client, broadcaster *Broadcaster) *Relay {
	ctx, cancel := context.WithCancel(ctx)
	r := &Relay{
		sub:         rdb.Subscribe(ctx),
		broadcaster: broadcaster,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go r.run(ctx)
	return r
}

// Subscribe starts relaying the show's channel to local subscribers.
func (r *Relay) Subscribe(showID uuid.UUID) {
	if err := r.sub.Subscribe(context.Background(), voteChannel(showID)); err != nil {
		slog.Error("Failed to subscribe to show channel", "show_id", showID.String(), "error", err)
	}
}

// Unsubscribe stops relaying the show's channel.
func (r *Relay) Unsubscribe(showID uuid.UUID) {
	if err := r.sub.Unsubscribe(context.Background(), voteChannel(showID)); err != nil {
		slog.Warn("Failed to unsubscribe from show channel", "show_id", showID.String(), "error", err)
	}
}

// Close tears down the subscription and waits for the relay loop to exit.
func (r *Relay) Close() {
	r.cancel()
	_ = r.sub.Close()
	<-r.done
}

func (r *Relay) run(ctx context.Context) {
	defer close(r.done)

	msgCh := r.sub.Channel()
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			showID, ok := showIDFromChannel(msg.Channel)
			if !ok {
				slog.Warn("Ignoring message on unexpected channel", "channel", msg.Channel)
				continue
			}
			// Payload passes through verbatim: the publisher already
			// serialized the update for the wire.
			r.broadcaster.Deliver(showID, []byte(msg.Payload))
		case <-ctx.Done():
			return
		}
	}
}
