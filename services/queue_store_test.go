package services

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waiting-system/internal/status"
	"waiting-system/models"
)

func setupQueueStore() (*QueueStore, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return NewQueueStore(db, 10*time.Minute), mock
}

func matchAnyArgs(expected, actual []interface{}) error { return nil }

// matchHSetFields compares an HSET command by field name instead of
// argument position, since go-redis expands map arguments in random
// order. Fields listed in ignore only have to be present.
func matchHSetFields(ignore ...string) func(expected, actual []interface{}) error {
	return func(expected, actual []interface{}) error {
		if len(expected) != len(actual) {
			return fmt.Errorf("argument count mismatch: want %d, got %d", len(expected), len(actual))
		}
		want := hashFields(expected)
		got := hashFields(actual)
		for _, field := range ignore {
			if _, ok := got[field]; !ok {
				return fmt.Errorf("missing field %q in %v", field, actual)
			}
			delete(want, field)
			delete(got, field)
		}
		if !reflect.DeepEqual(want, got) {
			return fmt.Errorf("hash fields mismatch: want %v, got %v", want, got)
		}
		return nil
	}
}

func hashFields(args []interface{}) map[interface{}]interface{} {
	fields := map[interface{}]interface{}{}
	for i := 2; i+1 < len(args); i += 2 {
		fields[args[i]] = args[i+1]
	}
	return fields
}

func TestQueueStore_EnqueueAtomic_NewRegistration(t *testing.T) {
	store, mock := setupQueueStore()
	defer mock.ClearExpect()

	ctx := context.Background()
	registeredAt := time.UnixMilli(1756700000123)
	score := strconv.FormatFloat(queueScore(registeredAt), 'f', 3, 64)

	mock.ExpectEval(enqueueAtomicScript,
		[]string{"queue:booth:b1", "user:u1:active_booths"},
		"u1", "b1", score, 2,
	).SetVal([]interface{}{int64(1), int64(3), int64(3)})

	outcome, err := store.EnqueueAtomic(ctx, "b1", "u1", registeredAt, 2)

	require.NoError(t, err)
	assert.Equal(t, models.EnqueueSuccess, outcome.Status)
	assert.Equal(t, 3, outcome.Position)
	assert.Equal(t, 3, outcome.TotalWaiting)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStore_EnqueueAtomic_IdempotentReplay(t *testing.T) {
	store, mock := setupQueueStore()
	defer mock.ClearExpect()

	registeredAt := time.UnixMilli(1756700000123)
	score := strconv.FormatFloat(queueScore(registeredAt), 'f', 3, 64)

	mock.ExpectEval(enqueueAtomicScript,
		[]string{"queue:booth:b1", "user:u1:active_booths"},
		"u1", "b1", score, 2,
	).SetVal([]interface{}{int64(2), int64(5), int64(12)})

	outcome, err := store.EnqueueAtomic(context.Background(), "b1", "u1", registeredAt, 2)

	require.NoError(t, err)
	assert.Equal(t, models.EnqueueAlreadyQueued, outcome.Status)
	assert.Equal(t, 5, outcome.Position)
	assert.Equal(t, 12, outcome.TotalWaiting)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStore_EnqueueAtomic_ActiveBoothCapReached(t *testing.T) {
	store, mock := setupQueueStore()
	defer mock.ClearExpect()

	registeredAt := time.UnixMilli(1756700000123)
	score := strconv.FormatFloat(queueScore(registeredAt), 'f', 3, 64)

	mock.ExpectEval(enqueueAtomicScript,
		[]string{"queue:booth:b1", "user:u1:active_booths"},
		"u1", "b1", score, 2,
	).SetVal([]interface{}{int64(0), int64(0), int64(7)})

	outcome, err := store.EnqueueAtomic(context.Background(), "b1", "u1", registeredAt, 2)

	require.NoError(t, err)
	assert.Equal(t, models.EnqueueMaxBoothsExceeded, outcome.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStore_EnqueueAtomic_MalformedScriptResult(t *testing.T) {
	store, mock := setupQueueStore()
	defer mock.ClearExpect()

	registeredAt := time.UnixMilli(1756700000123)
	score := strconv.FormatFloat(queueScore(registeredAt), 'f', 3, 64)

	mock.ExpectEval(enqueueAtomicScript,
		[]string{"queue:booth:b1", "user:u1:active_booths"},
		"u1", "b1", score, 2,
	).SetVal([]interface{}{int64(1)})

	_, err := store.EnqueueAtomic(context.Background(), "b1", "u1", registeredAt, 2)

	assert.ErrorIs(t, err, status.ErrQueueOperation)
}

func TestQueueStore_Dequeue_PopsHeadWithOriginalRegistration(t *testing.T) {
	store, mock := setupQueueStore()
	defer mock.ClearExpect()

	registeredAt := time.UnixMilli(1756700000123)
	mock.ExpectZPopMin("queue:booth:b1", 1).SetVal([]redis.Z{
		{Score: queueScore(registeredAt), Member: "u1"},
	})

	item, err := store.Dequeue(context.Background(), "b1")

	require.NoError(t, err)
	assert.Equal(t, "u1", item.UserID)
	assert.Equal(t, registeredAt.UnixMilli(), item.RegisteredAt.UnixMilli())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStore_Dequeue_EmptyQueue(t *testing.T) {
	store, mock := setupQueueStore()
	defer mock.ClearExpect()

	mock.ExpectZPopMin("queue:booth:b1", 1).SetVal([]redis.Z{})

	_, err := store.Dequeue(context.Background(), "b1")

	assert.ErrorIs(t, err, status.ErrQueueEmpty)
}

func TestQueueStore_Position_NotQueued(t *testing.T) {
	store, mock := setupQueueStore()
	defer mock.ClearExpect()

	mock.ExpectZRank("queue:booth:b1", "u1").RedisNil()

	_, err := store.Position(context.Background(), "b1", "u1")

	assert.ErrorIs(t, err, status.ErrWaitingNotFound)
}

func TestQueueStore_Position_OneBased(t *testing.T) {
	store, mock := setupQueueStore()
	defer mock.ClearExpect()

	mock.ExpectZRank("queue:booth:b1", "u1").SetVal(0)

	position, err := store.Position(context.Background(), "b1", "u1")

	require.NoError(t, err)
	assert.Equal(t, 1, position)
}

func TestQueueStore_Remove_NotQueued(t *testing.T) {
	store, mock := setupQueueStore()
	defer mock.ClearExpect()

	mock.ExpectZRem("queue:booth:b1", "u1").SetVal(0)

	removed, err := store.Remove(context.Background(), "b1", "u1")

	require.NoError(t, err)
	assert.False(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStore_Remove_ClearsActiveSet(t *testing.T) {
	store, mock := setupQueueStore()
	defer mock.ClearExpect()

	mock.ExpectZRem("queue:booth:b1", "u1").SetVal(1)
	mock.ExpectSRem("user:u1:active_booths", "b1").SetVal(1)

	removed, err := store.Remove(context.Background(), "b1", "u1")

	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStore_SoftLockLifecycle(t *testing.T) {
	store, mock := setupQueueStore()
	defer mock.ClearExpect()

	ctx := context.Background()
	registeredAt := time.UnixMilli(1756700000123)

	// created_at is wall clock, only its presence is checked
	mock.CustomMatch(matchHSetFields("created_at")).ExpectHSet("temp:calling:b1:u1",
		"booth_id", "b1",
		"user_id", "u1",
		"registered_at", registeredAt.UnixMilli(),
		"created_at", int64(0),
	).SetVal(4)
	mock.ExpectExpire("temp:calling:b1:u1", 10*time.Minute).SetVal(true)
	mock.ExpectDel("temp:calling:b1:u1").SetVal(1)

	require.NoError(t, store.CreateSoftLock(ctx, "b1", "u1", registeredAt))
	require.NoError(t, store.DeleteSoftLock(ctx, "b1", "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStore_SoftLocks_SkipsExpiredBetweenScanAndRead(t *testing.T) {
	store, mock := setupQueueStore()
	defer mock.ClearExpect()

	mock.ExpectScan(0, softLockScanPattern, softLockScanBatch).SetVal(
		[]string{"temp:calling:b1:u1", "temp:calling:b2:u2"}, 0)
	mock.ExpectHGetAll("temp:calling:b1:u1").SetVal(map[string]string{
		"booth_id":      "b1",
		"user_id":       "u1",
		"registered_at": "1756700000123",
		"created_at":    "1756700060000",
	})
	mock.ExpectHGetAll("temp:calling:b2:u2").SetVal(map[string]string{})

	locks, err := store.SoftLocks(context.Background())

	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "b1", locks[0].BoothID)
	assert.Equal(t, "u1", locks[0].UserID)
	assert.Equal(t, int64(1756700000123), locks[0].RegisteredAt.UnixMilli())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStore_Restore_ReinstatesOriginalOrder(t *testing.T) {
	store, mock := setupQueueStore()
	defer mock.ClearExpect()

	registeredAt := time.UnixMilli(1756700000123)
	lock := models.SoftLock{BoothID: "b1", UserID: "u1", RegisteredAt: registeredAt}

	mock.ExpectZAdd("queue:booth:b1", redis.Z{
		Score:  queueScore(registeredAt),
		Member: "u1",
	}).SetVal(1)
	mock.ExpectSAdd("user:u1:active_booths", "b1").SetVal(1)

	require.NoError(t, store.Restore(context.Background(), lock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStore_AddActiveBooth(t *testing.T) {
	store, mock := setupQueueStore()
	defer mock.ClearExpect()

	mock.ExpectSAdd("user:u1:active_booths", "b1").SetVal(1)

	require.NoError(t, store.AddActiveBooth(context.Background(), "u1", "b1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueScore_RoundTripsMilliseconds(t *testing.T) {
	ts := time.UnixMilli(1756700000123)

	assert.Equal(t, ts.UnixMilli(), timeFromScore(queueScore(ts)).UnixMilli())
}
