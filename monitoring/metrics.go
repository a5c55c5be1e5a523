package monitoring

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	queueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waiting_queue_length",
			Help: "Current queue length per booth",
		},
		[]string{"booth_id"},
	)

	softLocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waiting_soft_locks",
			Help: "Outstanding soft lock markers",
		},
	)

	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waiting_operations_total",
			Help: "Total queue operations",
		},
		[]string{"operation", "status"},
	)

	recoveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waiting_recoveries_total",
			Help: "Soft lock recovery outcomes",
		},
		[]string{"outcome"},
	)

	noShows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waiting_no_shows_total",
			Help: "Called visitors timed out as no-show",
		},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()
		m.collectQueueMetrics(ctx)
	}
}

func (m *Monitor) collectQueueMetrics(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := m.redis.Scan(ctx, cursor, "queue:booth:*", 100).Result()
		if err != nil {
			return
		}
		for _, key := range keys {
			boothID := strings.TrimPrefix(key, "queue:booth:")
			length, _ := m.redis.ZCard(ctx, key).Result()
			queueLength.WithLabelValues(boothID).Set(float64(length))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	lockCount := 0
	cursor = 0
	for {
		keys, next, err := m.redis.Scan(ctx, cursor, "temp:calling:*", 100).Result()
		if err != nil {
			return
		}
		lockCount += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	softLocks.Set(float64(lockCount))
}

// TrackOperation counts an engine operation and its outcome.
func TrackOperation(operation, status string) {
	queueOperations.WithLabelValues(operation, status).Inc()
}

func TrackRecovery(outcome string) {
	recoveries.WithLabelValues(outcome).Inc()
}

func TrackNoShow() {
	noShows.Inc()
}
