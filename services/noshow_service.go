package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"waiting-system/models"
	"waiting-system/monitoring"
)

// NoShowService times out called visitors who never confirmed
// entrance. One bad record never fails the batch: the transition is
// attempted per record and failures are logged and skipped.
type NoShowService struct {
	Ledger   Ledger
	Notifier Notifier
	Timeout  time.Duration
	Interval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewNoShowService(ledger Ledger, notifier Notifier, timeout, interval time.Duration) *NoShowService {
	return &NoShowService{
		Ledger:   ledger,
		Notifier: notifier,
		Timeout:  timeout,
		Interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (s *NoShowService) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *NoShowService) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	slog.Info("no-show scheduler started", "timeout", s.Timeout, "interval", s.Interval)

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(context.Background()); err != nil {
				slog.Error("no-show pass failed", "error", err)
			}
		case <-s.stopChan:
			slog.Info("no-show scheduler stopping")
			return
		}
	}
}

// RunOnce marks every timed-out CALLED record as a no-show. Returns
// how many records were transitioned.
func (s *NoShowService) RunOnce(ctx context.Context) (int, error) {
	threshold := time.Now().Add(-s.Timeout)

	timedOut, err := s.Ledger.FindTimedOutCalled(ctx, threshold)
	if err != nil {
		return 0, err
	}
	if len(timedOut) == 0 {
		return 0, nil
	}

	processed := 0
	for _, waiting := range timedOut {
		if err := waiting.MarkNoShow(); err != nil {
			slog.Error("no-show transition rejected",
				"waitingId", waiting.ID, "status", waiting.Status, "error", err)
			continue
		}
		if err := s.Ledger.Save(ctx, waiting); err != nil {
			slog.Error("no-show save failed", "waitingId", waiting.ID, "error", err)
			continue
		}

		s.Notifier.Notify(ctx, models.Notification{
			Kind:    models.NotificationNoShow,
			EventID: "noshow:" + waiting.ID,
			UserID:  waiting.UserID,
			BoothID: waiting.BoothID,
		})

		slog.Info("no-show processed",
			"waitingId", waiting.ID, "userId", waiting.UserID,
			"boothId", waiting.BoothID, "calledAt", waiting.CalledAt)
		monitoring.TrackNoShow()
		processed++
	}

	return processed, nil
}

func (s *NoShowService) Shutdown() {
	close(s.stopChan)
	s.wg.Wait()
}
