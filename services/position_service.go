package services

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"
)

// PositionBroadcaster periodically walks every booth queue and pushes
// each user's current position over their realtime channel. Purely
// advisory; it never mutates queue state.
type PositionBroadcaster struct {
	Redis    *redis.Client
	PubNub   *pubnub.PubNub
	Interval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewPositionBroadcaster(redisClient *redis.Client, pn *pubnub.PubNub, interval time.Duration) *PositionBroadcaster {
	return &PositionBroadcaster{
		Redis:    redisClient,
		PubNub:   pn,
		Interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (b *PositionBroadcaster) Start() {
	b.wg.Add(1)
	go b.run()
}

func (b *PositionBroadcaster) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	slog.Info("position broadcaster started", "interval", b.Interval)

	for {
		select {
		case <-ticker.C:
			b.broadcastAll(context.Background())
		case <-b.stopChan:
			slog.Info("position broadcaster stopping")
			return
		}
	}
}

func (b *PositionBroadcaster) broadcastAll(ctx context.Context) {
	if b.PubNub == nil {
		return
	}

	var cursor uint64
	for {
		keys, next, err := b.Redis.Scan(ctx, cursor, queueKeyPrefix+"*", 100).Result()
		if err != nil {
			slog.Error("queue scan failed", "error", err)
			return
		}

		for _, key := range keys {
			b.broadcastBooth(ctx, key)
		}

		cursor = next
		if cursor == 0 {
			return
		}
	}
}

func (b *PositionBroadcaster) broadcastBooth(ctx context.Context, key string) {
	boothID := strings.TrimPrefix(key, queueKeyPrefix)

	userIDs, err := b.Redis.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		slog.Error("queue range failed", "boothId", boothID, "error", err)
		return
	}

	for i, userID := range userIDs {
		position := i + 1
		if !shouldNotifyPosition(position) {
			continue
		}

		b.PubNub.Publish().
			Channel("user-" + userID).
			Message(map[string]any{
				"type":     "queue_position",
				"position": position,
				"booth_id": boothID,
			}).
			Execute()
	}
}

// shouldNotifyPosition throttles updates for the back of the queue;
// people near the front hear about every change.
func shouldNotifyPosition(position int) bool {
	switch {
	case position <= 5:
		return true
	case position <= 20:
		return position%2 == 0
	case position <= 100:
		return position%10 == 0
	default:
		return position%50 == 0
	}
}

func (b *PositionBroadcaster) Shutdown() {
	close(b.stopChan)
	b.wg.Wait()
}
