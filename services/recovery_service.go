package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"waiting-system/monitoring"
)

// RecoveryService reconciles orphaned soft locks against the ledger.
// A lock whose call landed durably just needs cleanup; a lock without a
// matching record means the call failed mid-flight and the queue entry
// is restored at its original registration time.
//
// The scan is idempotent, so an interrupted run is simply finished by
// the next tick.
type RecoveryService struct {
	Queue    *QueueStore
	Ledger   Ledger
	Interval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewRecoveryService(queue *QueueStore, ledger Ledger, interval time.Duration) *RecoveryService {
	return &RecoveryService{
		Queue:    queue,
		Ledger:   ledger,
		Interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (s *RecoveryService) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *RecoveryService) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	slog.Info("soft lock recovery started", "interval", s.Interval)

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(context.Background()); err != nil {
				slog.Error("soft lock recovery failed", "error", err)
			}
		case <-s.stopChan:
			slog.Info("soft lock recovery stopping")
			return
		}
	}
}

// RunOnce scans every outstanding soft lock and either confirms or
// rolls back. Returns the number of rolled-back entries.
func (s *RecoveryService) RunOnce(ctx context.Context) (int, error) {
	started := time.Now()

	locks, err := s.Queue.SoftLocks(ctx)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, lock := range locks {
		saved, err := s.Ledger.ExistsCalled(ctx, lock.UserID, lock.BoothID)
		if err != nil {
			// Leave the lock in place; the next tick retries.
			slog.Error("ledger check failed",
				"boothId", lock.BoothID, "userId", lock.UserID, "error", err)
			continue
		}

		if saved {
			if err := s.Queue.DeleteSoftLock(ctx, lock.BoothID, lock.UserID); err != nil {
				slog.Error("soft lock delete failed",
					"boothId", lock.BoothID, "userId", lock.UserID, "error", err)
			}
			continue
		}

		if err := s.Queue.Restore(ctx, lock); err != nil {
			slog.Error("queue rollback failed",
				"boothId", lock.BoothID, "userId", lock.UserID, "error", err)
			continue
		}
		if err := s.Queue.DeleteSoftLock(ctx, lock.BoothID, lock.UserID); err != nil {
			slog.Error("soft lock delete failed",
				"boothId", lock.BoothID, "userId", lock.UserID, "error", err)
			continue
		}

		slog.Warn("call rolled back",
			"boothId", lock.BoothID, "userId", lock.UserID, "registeredAt", lock.RegisteredAt)
		monitoring.TrackRecovery("rollback")
		recovered++
	}

	if len(locks) > 0 {
		slog.Info("soft lock recovery pass done",
			"scanned", len(locks), "recovered", recovered, "took", time.Since(started))
	}
	return recovered, nil
}

func (s *RecoveryService) Shutdown() {
	close(s.stopChan)
	s.wg.Wait()
}
