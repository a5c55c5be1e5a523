package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"waiting-system/internal/status"
	"waiting-system/models"
)

const boothKeyPrefix = "booth:"

// BoothStore mirrors booth facts into Redis so the hot path never hits
// the database: name, open/closed status, capacity and the live
// occupancy counter. Booth lifecycle itself belongs to the booths
// collection; record hooks keep this cache in sync.
type BoothStore struct {
	Redis *redis.Client
}

func NewBoothStore(redisClient *redis.Client) *BoothStore {
	return &BoothStore{Redis: redisClient}
}

func boothKey(boothID string) string {
	return boothKeyPrefix + boothID
}

func (s *BoothStore) Get(ctx context.Context, boothID string) (*models.Booth, error) {
	data, err := s.Redis.HGetAll(ctx, boothKey(boothID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: booth read: %v", status.ErrQueueOperation, err)
	}
	if len(data) == 0 {
		return nil, status.ErrBoothNotFound
	}

	capacity, _ := strconv.Atoi(data["capacity"])
	current, _ := strconv.Atoi(data["current"])

	return &models.Booth{
		ID:       boothID,
		Name:     data["name"],
		Status:   models.BoothStatus(data["status"]),
		Capacity: capacity,
		Current:  current,
	}, nil
}

// Put writes the cached facts for a booth. Occupancy is preserved when
// the hash already exists, so metadata updates never reset the counter.
func (s *BoothStore) Put(ctx context.Context, booth *models.Booth) error {
	key := boothKey(booth.ID)

	fields := map[string]interface{}{
		"name":     booth.Name,
		"status":   string(booth.Status),
		"capacity": booth.Capacity,
	}

	exists, err := s.Redis.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: booth exists: %v", status.ErrQueueOperation, err)
	}
	if exists == 0 {
		fields["current"] = booth.Current
	}

	if err := s.Redis.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("%w: booth write: %v", status.ErrQueueOperation, err)
	}
	return nil
}

func (s *BoothStore) Delete(ctx context.Context, boothID string) error {
	if err := s.Redis.Del(ctx, boothKey(boothID)).Err(); err != nil {
		return fmt.Errorf("%w: booth delete: %v", status.ErrQueueOperation, err)
	}
	return nil
}

// IncrementCurrent bumps occupancy when a called visitor actually
// enters the booth.
func (s *BoothStore) IncrementCurrent(ctx context.Context, boothID string) error {
	if err := s.Redis.HIncrBy(ctx, boothKey(boothID), "current", 1).Err(); err != nil {
		return fmt.Errorf("%w: occupancy increment: %v", status.ErrQueueOperation, err)
	}
	return nil
}

// DecrementCurrent lowers occupancy on completion, clamped at zero.
func (s *BoothStore) DecrementCurrent(ctx context.Context, boothID string) error {
	current, err := s.Redis.HIncrBy(ctx, boothKey(boothID), "current", -1).Result()
	if err != nil {
		return fmt.Errorf("%w: occupancy decrement: %v", status.ErrQueueOperation, err)
	}
	if current < 0 {
		if err := s.Redis.HSet(ctx, boothKey(boothID), "current", 0).Err(); err != nil {
			return fmt.Errorf("%w: occupancy clamp: %v", status.ErrQueueOperation, err)
		}
	}
	return nil
}
