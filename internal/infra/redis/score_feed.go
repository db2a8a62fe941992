package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ElegantFalcon/Quizzy/internal/domain"
)

// ScoreFeed broadcasts leaderboard snapshots over a per-quiz Redis pub/sub
// channel. This is the low-latency side channel for live score displays,
// separate from the per-connection snapshot stream.
type ScoreFeed struct {
	client *redis.Client
}

func NewScoreFeed(client *redis.Client) *ScoreFeed {
	return &ScoreFeed{client: client}
}

// PublishLeaderboard pushes one snapshot onto the quiz's score channel.
func (f *ScoreFeed) PublishLeaderboard(ctx context.Context, lb domain.Leaderboard) error {
	payload, err := json.Marshal(lb)
	if err != nil {
		return fmt.Errorf("marshal leaderboard: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel(lb.QuizID), payload).Err(); err != nil {
		return fmt.Errorf("publish leaderboard: %w", err)
	}
	return nil
}

// SubscribeLeaderboard delivers score snapshots for one quiz until the
// context is cancelled. The caller must invoke the returned cancel function.
func (f *ScoreFeed) SubscribeLeaderboard(ctx context.Context, quizID string) (<-chan domain.Leaderboard, func(), error) {
	sub := f.client.Subscribe(ctx, f.channel(quizID))
	// Force the subscription to be established before returning.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe scores: %w", err)
	}

	out := make(chan domain.Leaderboard, 8)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var lb domain.Leaderboard
			if err := json.Unmarshal([]byte(msg.Payload), &lb); err != nil {
				continue
			}
			select {
			case out <- lb:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}

func (f *ScoreFeed) channel(quizID string) string {
	return "quiz:scores:" + quizID
}
