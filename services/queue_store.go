package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"waiting-system/internal/status"
	"waiting-system/models"
)

const (
	queueKeyPrefix        = "queue:booth:"
	activeBoothsKeyPrefix = "user:"
	activeBoothsKeySuffix = ":active_booths"
	softLockKeyPrefix     = "temp:calling:"
	softLockScanPattern   = "temp:calling:*"
	softLockScanBatch     = 100
)

// enqueueAtomicScript performs the whole admission check-and-set in one
// round trip. Status codes: 1 new registration, 2 already queued
// (idempotent hit), 0 active-booth cap reached. Always returns
// {status, position, totalWaiting}.
const enqueueAtomicScript = `
local rank = redis.call('ZRANK', KEYS[1], ARGV[1])
if rank ~= false then
  return {2, rank + 1, redis.call('ZCARD', KEYS[1])}
end
local active = redis.call('SCARD', KEYS[2])
if active >= tonumber(ARGV[4]) then
  return {0, 0, redis.call('ZCARD', KEYS[1])}
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
redis.call('SADD', KEYS[2], ARGV[2])
local newRank = redis.call('ZRANK', KEYS[1], ARGV[1])
return {1, newRank + 1, redis.call('ZCARD', KEYS[1])}
`

// QueueStore is the ephemeral half of the system: per-booth sorted
// queues, per-user active-booth sets and the soft-lock markers used for
// crash recovery. All multi-step mutations happen server-side so no two
// requests ever observe a half-applied state.
type QueueStore struct {
	Redis       *redis.Client
	SoftLockTTL time.Duration
}

func NewQueueStore(redisClient *redis.Client, softLockTTL time.Duration) *QueueStore {
	return &QueueStore{
		Redis:       redisClient,
		SoftLockTTL: softLockTTL,
	}
}

func queueKey(boothID string) string {
	return queueKeyPrefix + boothID
}

func activeBoothsKey(userID string) string {
	return activeBoothsKeyPrefix + userID + activeBoothsKeySuffix
}

func softLockKey(boothID, userID string) string {
	return softLockKeyPrefix + boothID + ":" + userID
}

// queueScore encodes a registration time as a zset score with
// millisecond precision, so two sequential enqueues never tie.
func queueScore(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000.0
}

func timeFromScore(score float64) time.Time {
	return time.UnixMilli(int64(score*1000.0 + 0.5))
}

// EnqueueAtomic runs the admission script: idempotency check, active
// booth cap, insert and rank computation as one indivisible operation.
func (s *QueueStore) EnqueueAtomic(ctx context.Context, boothID, userID string, registeredAt time.Time, maxActiveBooths int) (*models.EnqueueOutcome, error) {
	score := strconv.FormatFloat(queueScore(registeredAt), 'f', 3, 64)

	res, err := s.Redis.Eval(ctx, enqueueAtomicScript,
		[]string{queueKey(boothID), activeBoothsKey(userID)},
		userID, boothID, score, maxActiveBooths,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: enqueue script: %v", status.ErrQueueOperation, err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return nil, fmt.Errorf("%w: unexpected enqueue script result %v", status.ErrQueueOperation, res)
	}

	outcome := &models.EnqueueOutcome{
		Status:       models.EnqueueStatus(toInt(values[0])),
		Position:     toInt(values[1]),
		TotalWaiting: toInt(values[2]),
	}

	switch outcome.Status {
	case models.EnqueueSuccess, models.EnqueueAlreadyQueued, models.EnqueueMaxBoothsExceeded:
		return outcome, nil
	default:
		return nil, fmt.Errorf("%w: unknown enqueue status %d", status.ErrQueueOperation, outcome.Status)
	}
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

// Dequeue pops the longest-waiting user. ZPOPMIN is atomic, so
// concurrent calls can never pop the same entry.
func (s *QueueStore) Dequeue(ctx context.Context, boothID string) (*models.QueueItem, error) {
	popped, err := s.Redis.ZPopMin(ctx, queueKey(boothID), 1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: dequeue: %v", status.ErrQueueOperation, err)
	}
	if len(popped) == 0 {
		return nil, status.ErrQueueEmpty
	}

	userID, _ := popped[0].Member.(string)
	return &models.QueueItem{
		UserID:       userID,
		RegisteredAt: timeFromScore(popped[0].Score),
	}, nil
}

// Position returns the 1-based rank of a queued user.
func (s *QueueStore) Position(ctx context.Context, boothID, userID string) (int, error) {
	rank, err := s.Redis.ZRank(ctx, queueKey(boothID), userID).Result()
	if err == redis.Nil {
		return 0, status.ErrWaitingNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: position: %v", status.ErrQueueOperation, err)
	}
	return int(rank) + 1, nil
}

func (s *QueueStore) Size(ctx context.Context, boothID string) (int, error) {
	size, err := s.Redis.ZCard(ctx, queueKey(boothID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: size: %v", status.ErrQueueOperation, err)
	}
	return int(size), nil
}

// RegisteredAt reads back the original enqueue time of a queued user.
func (s *QueueStore) RegisteredAt(ctx context.Context, boothID, userID string) (time.Time, error) {
	score, err := s.Redis.ZScore(ctx, queueKey(boothID), userID).Result()
	if err == redis.Nil {
		return time.Time{}, status.ErrWaitingNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: registered at: %v", status.ErrQueueOperation, err)
	}
	return timeFromScore(score), nil
}

// Remove takes a user out of a booth queue and their active set.
// Returns false when the user was not queued.
func (s *QueueStore) Remove(ctx context.Context, boothID, userID string) (bool, error) {
	removed, err := s.Redis.ZRem(ctx, queueKey(boothID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: remove: %v", status.ErrQueueOperation, err)
	}
	if removed == 0 {
		return false, nil
	}
	if err := s.Redis.SRem(ctx, activeBoothsKey(userID), boothID).Err(); err != nil {
		return true, fmt.Errorf("%w: remove active booth: %v", status.ErrQueueOperation, err)
	}
	return true, nil
}

func (s *QueueStore) ActiveBooths(ctx context.Context, userID string) ([]string, error) {
	booths, err := s.Redis.SMembers(ctx, activeBoothsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: active booths: %v", status.ErrQueueOperation, err)
	}
	return booths, nil
}

func (s *QueueStore) AddActiveBooth(ctx context.Context, userID, boothID string) error {
	if err := s.Redis.SAdd(ctx, activeBoothsKey(userID), boothID).Err(); err != nil {
		return fmt.Errorf("%w: add active booth: %v", status.ErrQueueOperation, err)
	}
	return nil
}

func (s *QueueStore) RemoveActiveBooth(ctx context.Context, userID, boothID string) error {
	if err := s.Redis.SRem(ctx, activeBoothsKey(userID), boothID).Err(); err != nil {
		return fmt.Errorf("%w: remove active booth: %v", status.ErrQueueOperation, err)
	}
	return nil
}

// CreateSoftLock writes the recovery checkpoint for an in-flight
// call-next. The TTL is only a safety net for the case where the
// recovery scheduler itself is down; the scheduler never relies on it.
func (s *QueueStore) CreateSoftLock(ctx context.Context, boothID, userID string, registeredAt time.Time) error {
	key := softLockKey(boothID, userID)
	err := s.Redis.HSet(ctx, key, map[string]interface{}{
		"booth_id":      boothID,
		"user_id":       userID,
		"registered_at": registeredAt.UnixMilli(),
		"created_at":    time.Now().UnixMilli(),
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: create soft lock: %v", status.ErrQueueOperation, err)
	}
	if err := s.Redis.Expire(ctx, key, s.SoftLockTTL).Err(); err != nil {
		return fmt.Errorf("%w: soft lock ttl: %v", status.ErrQueueOperation, err)
	}
	return nil
}

func (s *QueueStore) DeleteSoftLock(ctx context.Context, boothID, userID string) error {
	if err := s.Redis.Del(ctx, softLockKey(boothID, userID)).Err(); err != nil {
		return fmt.Errorf("%w: delete soft lock: %v", status.ErrQueueOperation, err)
	}
	return nil
}

// SoftLocks scans all outstanding recovery markers. The scan cost is
// bounded by the number of in-flight or failed calls, not by call
// volume.
func (s *QueueStore) SoftLocks(ctx context.Context) ([]models.SoftLock, error) {
	var locks []models.SoftLock
	var cursor uint64

	for {
		keys, next, err := s.Redis.Scan(ctx, cursor, softLockScanPattern, softLockScanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: soft lock scan: %v", status.ErrQueueOperation, err)
		}

		for _, key := range keys {
			data, err := s.Redis.HGetAll(ctx, key).Result()
			if err != nil {
				return nil, fmt.Errorf("%w: soft lock read: %v", status.ErrQueueOperation, err)
			}
			if len(data) == 0 {
				// Expired between SCAN and HGETALL.
				continue
			}
			locks = append(locks, softLockFromHash(data))
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return locks, nil
}

// Restore undoes a failed call-next: the user goes back into the queue
// at their original registration time and the booth back into their
// active set.
func (s *QueueStore) Restore(ctx context.Context, lock models.SoftLock) error {
	err := s.Redis.ZAdd(ctx, queueKey(lock.BoothID), redis.Z{
		Score:  queueScore(lock.RegisteredAt),
		Member: lock.UserID,
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: restore queue entry: %v", status.ErrQueueOperation, err)
	}
	return s.AddActiveBooth(ctx, lock.UserID, lock.BoothID)
}

func softLockFromHash(data map[string]string) models.SoftLock {
	lock := models.SoftLock{
		BoothID: data["booth_id"],
		UserID:  data["user_id"],
	}
	if ms, err := strconv.ParseInt(data["registered_at"], 10, 64); err == nil {
		lock.RegisteredAt = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(data["created_at"], 10, 64); err == nil {
		lock.CreatedAt = time.UnixMilli(ms)
	}
	return lock
}
