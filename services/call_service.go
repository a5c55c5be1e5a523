package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"waiting-system/internal/status"
	"waiting-system/models"
	"waiting-system/monitoring"
)

// headPosition is the called position recorded for a dequeued entry.
// The pop always takes the queue head.
const headPosition = 1

// CallService advances a booth queue: it pops the head, durably records
// the call and hands the visitor to the notifier. The pop and the
// durable write are not one transaction; the soft lock written between
// them is what makes a crash or write failure recoverable.
type CallService struct {
	Queue    *QueueStore
	Booths   *BoothStore
	Ledger   Ledger
	Notifier Notifier
	Stats    *WaitStats
}

func NewCallService(queue *QueueStore, booths *BoothStore, ledger Ledger, notifier Notifier, stats *WaitStats) *CallService {
	return &CallService{
		Queue:    queue,
		Booths:   booths,
		Ledger:   ledger,
		Notifier: notifier,
		Stats:    stats,
	}
}

// CallNext dequeues the longest-waiting user and records the call.
//
// Order matters here:
//  1. capacity gate
//  2. atomic pop
//  3. soft lock, before any durable write
//  4. active-set removal
//  5. ledger write
//  6. soft lock delete, only after the write is confirmed
//
// If step 5 fails the error goes back to the caller, but the soft lock
// stays behind for the recovery scheduler to roll the pop back.
func (s *CallService) CallNext(ctx context.Context, boothID string) (*models.CallResult, error) {
	booth, err := s.Booths.Get(ctx, boothID)
	if err != nil {
		return nil, err
	}
	if err := booth.ValidateForCalling(); err != nil {
		return nil, err
	}

	item, err := s.Queue.Dequeue(ctx, boothID)
	if err != nil {
		return nil, err
	}

	if err := s.Queue.CreateSoftLock(ctx, boothID, item.UserID, item.RegisteredAt); err != nil {
		// Without the lock a later failure would be unrecoverable, so
		// put the entry straight back and give up.
		if restoreErr := s.Queue.Restore(ctx, models.SoftLock{
			BoothID:      boothID,
			UserID:       item.UserID,
			RegisteredAt: item.RegisteredAt,
		}); restoreErr != nil {
			slog.Error("soft lock failed and restore failed",
				"boothId", boothID, "userId", item.UserID, "error", restoreErr)
		}
		return nil, err
	}

	if err := s.Queue.RemoveActiveBooth(ctx, item.UserID, boothID); err != nil {
		// Soft lock stays; recovery re-adds the queue entry and the
		// active set converges on the next scan.
		return nil, err
	}

	calledAt := time.Now()
	waiting := models.NewCalledWaiting(item.UserID, boothID, headPosition, item.RegisteredAt, calledAt)

	if err := s.Ledger.Create(ctx, waiting); err != nil {
		// Deliberately no rollback here: the soft lock is the
		// recovery anchor and the scheduler owns the repair.
		slog.Error("durable call write failed, soft lock left for recovery",
			"boothId", boothID, "userId", item.UserID, "error", err)
		return nil, fmt.Errorf("record call: %w", err)
	}

	if err := s.Queue.DeleteSoftLock(ctx, boothID, item.UserID); err != nil {
		// The write landed, so recovery will just confirm and clean
		// this up. Not a caller-visible failure.
		slog.Warn("soft lock cleanup failed",
			"boothId", boothID, "userId", item.UserID, "error", err)
	}

	s.Notifier.Notify(ctx, models.Notification{
		Kind:           models.NotificationCalled,
		EventID:        "call:" + waiting.ID,
		UserID:         item.UserID,
		BoothID:        boothID,
		BoothName:      booth.Name,
		CalledPosition: headPosition,
	})

	slog.Info("user called",
		"boothId", boothID, "userId", item.UserID, "waitingId", waiting.ID)
	monitoring.TrackOperation("call_next", "success")

	return &models.CallResult{
		WaitingID: waiting.ID,
		UserID:    item.UserID,
		Position:  headPosition,
		CalledAt:  calledAt,
	}, nil
}

// ConfirmEntrance moves a called waiting to ENTERED and bumps the booth
// occupancy counter.
func (s *CallService) ConfirmEntrance(ctx context.Context, boothID, waitingID string) (*models.Waiting, error) {
	waiting, err := s.findForBooth(ctx, boothID, waitingID)
	if err != nil {
		return nil, err
	}

	if err := waiting.Enter(); err != nil {
		return nil, err
	}
	if err := s.Ledger.Save(ctx, waiting); err != nil {
		return nil, err
	}
	if err := s.Booths.IncrementCurrent(ctx, boothID); err != nil {
		slog.Error("occupancy increment failed", "boothId", boothID, "error", err)
	}

	return waiting, nil
}

// Complete finishes an entered waiting, frees booth capacity and feeds
// the observed service time into the wait estimate.
func (s *CallService) Complete(ctx context.Context, boothID, waitingID string) (*models.Waiting, error) {
	waiting, err := s.findForBooth(ctx, boothID, waitingID)
	if err != nil {
		return nil, err
	}

	if err := waiting.Complete(); err != nil {
		return nil, err
	}
	if err := s.Ledger.Save(ctx, waiting); err != nil {
		return nil, err
	}
	if err := s.Booths.DecrementCurrent(ctx, boothID); err != nil {
		slog.Error("occupancy decrement failed", "boothId", boothID, "error", err)
	}

	s.Stats.Record(ctx, boothID, waiting.ServiceDuration())

	return waiting, nil
}

// CancelCalled is the user-initiated cancel of an already-called
// waiting.
func (s *CallService) CancelCalled(ctx context.Context, boothID, waitingID string) (*models.Waiting, error) {
	waiting, err := s.findForBooth(ctx, boothID, waitingID)
	if err != nil {
		return nil, err
	}

	if err := waiting.Cancel(); err != nil {
		return nil, err
	}
	if err := s.Ledger.Save(ctx, waiting); err != nil {
		return nil, err
	}

	return waiting, nil
}

// CalledList returns the booth's currently called, not yet entered
// visitors for the staff screen, plus the booth's call count since UTC
// midnight.
func (s *CallService) CalledList(ctx context.Context, boothID string) ([]*models.Waiting, int, error) {
	if _, err := s.Booths.Get(ctx, boothID); err != nil {
		return nil, 0, err
	}
	called, err := s.Ledger.FindCalledByBooth(ctx, boothID)
	if err != nil {
		return nil, 0, err
	}
	calledToday, err := s.Ledger.CountCalledToday(ctx, boothID)
	if err != nil {
		return nil, 0, err
	}
	return called, calledToday, nil
}

func (s *CallService) findForBooth(ctx context.Context, boothID, waitingID string) (*models.Waiting, error) {
	waiting, err := s.Ledger.FindByID(ctx, waitingID)
	if err != nil {
		return nil, err
	}
	if waiting.BoothID != boothID {
		return nil, status.ErrWaitingNotFound
	}
	return waiting, nil
}
