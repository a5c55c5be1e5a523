package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func setupWaitStats() (*WaitStats, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return NewWaitStats(db, 10, 5), mock
}

func TestWaitStats_AverageMinutes_DefaultWhenNoData(t *testing.T) {
	stats, mock := setupWaitStats()
	defer mock.ClearExpect()

	mock.ExpectHGetAll("booth:b1:stats").SetVal(map[string]string{})

	assert.Equal(t, 10, stats.AverageMinutes(context.Background(), "b1"))
}

func TestWaitStats_AverageMinutes_DefaultUntilEnoughSamples(t *testing.T) {
	stats, mock := setupWaitStats()
	defer mock.ClearExpect()

	mock.ExpectHGetAll("booth:b1:stats").SetVal(map[string]string{
		"samples":      "4",
		"mean_minutes": "25.000",
	})

	assert.Equal(t, 10, stats.AverageMinutes(context.Background(), "b1"))
}

func TestWaitStats_AverageMinutes_UsesObservedMean(t *testing.T) {
	stats, mock := setupWaitStats()
	defer mock.ClearExpect()

	mock.ExpectHGetAll("booth:b1:stats").SetVal(map[string]string{
		"samples":      "12",
		"mean_minutes": "6.200",
	})

	assert.Equal(t, 6, stats.AverageMinutes(context.Background(), "b1"))
}

func TestWaitStats_AverageMinutes_NeverBelowOneMinute(t *testing.T) {
	stats, mock := setupWaitStats()
	defer mock.ClearExpect()

	mock.ExpectHGetAll("booth:b1:stats").SetVal(map[string]string{
		"samples":      "20",
		"mean_minutes": "0.200",
	})

	assert.Equal(t, 1, stats.AverageMinutes(context.Background(), "b1"))
}

func TestWaitStats_Record_FoldsSampleIntoMean(t *testing.T) {
	stats, mock := setupWaitStats()
	defer mock.ClearExpect()

	mock.ExpectHGetAll("booth:b1:stats").SetVal(map[string]string{
		"samples":      "1",
		"mean_minutes": "10.000",
	})
	// (10*1 + 6) / 2 = 8.000
	mock.CustomMatch(matchHSetFields()).ExpectHSet("booth:b1:stats",
		"samples", 2,
		"mean_minutes", "8.000",
	).SetVal(2)

	stats.Record(context.Background(), "b1", 6*time.Minute)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitStats_Record_IgnoresNonPositiveDurations(t *testing.T) {
	stats, mock := setupWaitStats()
	defer mock.ClearExpect()

	stats.Record(context.Background(), "b1", 0)

	assert.NoError(t, mock.ExpectationsWereMet())
}
