package services

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const statsKeySuffix = ":stats"

// WaitStats keeps a per-booth rolling average of observed service
// durations. The estimate formulas fall back to the configured default
// until a booth has produced enough completions of its own.
type WaitStats struct {
	Redis          *redis.Client
	DefaultMinutes int
	MinSamples     int
}

func NewWaitStats(redisClient *redis.Client, defaultMinutes, minSamples int) *WaitStats {
	return &WaitStats{
		Redis:          redisClient,
		DefaultMinutes: defaultMinutes,
		MinSamples:     minSamples,
	}
}

func statsKey(boothID string) string {
	return boothKeyPrefix + boothID + statsKeySuffix
}

// Record folds one completed service duration into the booth average.
// Stats are advisory; errors are logged, never propagated.
func (s *WaitStats) Record(ctx context.Context, boothID string, d time.Duration) {
	if d <= 0 {
		return
	}

	key := statsKey(boothID)
	data, err := s.Redis.HGetAll(ctx, key).Result()
	if err != nil {
		slog.Error("wait stats read failed", "boothId", boothID, "error", err)
		return
	}

	samples, _ := strconv.Atoi(data["samples"])
	mean, parseErr := decimal.NewFromString(data["mean_minutes"])
	if parseErr != nil {
		mean = decimal.Zero
		samples = 0
	}

	minutes := decimal.NewFromFloat(d.Minutes())
	count := decimal.NewFromInt(int64(samples))
	newMean := mean.Mul(count).Add(minutes).Div(count.Add(decimal.NewFromInt(1)))

	err = s.Redis.HSet(ctx, key, map[string]interface{}{
		"samples":      samples + 1,
		"mean_minutes": newMean.StringFixed(3),
	}).Err()
	if err != nil {
		slog.Error("wait stats write failed", "boothId", boothID, "error", err)
	}
}

// AverageMinutes returns the booth's observed average service time,
// or the configured default while samples are scarce.
func (s *WaitStats) AverageMinutes(ctx context.Context, boothID string) int {
	data, err := s.Redis.HGetAll(ctx, statsKey(boothID)).Result()
	if err != nil || len(data) == 0 {
		return s.DefaultMinutes
	}

	samples, _ := strconv.Atoi(data["samples"])
	if samples < s.MinSamples {
		return s.DefaultMinutes
	}

	mean, err := decimal.NewFromString(data["mean_minutes"])
	if err != nil {
		return s.DefaultMinutes
	}

	minutes := int(mean.Round(0).IntPart())
	if minutes < 1 {
		return 1
	}
	return minutes
}
