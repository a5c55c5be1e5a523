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

// AdmissionService enrolls users into booth queues. The whole
// check-and-set (idempotency, active-booth cap, insert, rank) runs as
// one scripted operation in the queue store, so two concurrent requests
// can never both slip past the cap.
type AdmissionService struct {
	Queue           *QueueStore
	Booths          *BoothStore
	Stats           *WaitStats
	Ledger          Ledger
	MaxActiveBooths int
}

func NewAdmissionService(queue *QueueStore, booths *BoothStore, stats *WaitStats, ledger Ledger, maxActiveBooths int) *AdmissionService {
	return &AdmissionService{
		Queue:           queue,
		Booths:          booths,
		Stats:           stats,
		Ledger:          ledger,
		MaxActiveBooths: maxActiveBooths,
	}
}

// Enqueue registers a user for a booth queue. Re-registering is not an
// error: the original position and registration time come back
// unchanged.
func (s *AdmissionService) Enqueue(ctx context.Context, boothID, userID string) (*models.EnqueueResult, error) {
	booth, err := s.Booths.Get(ctx, boothID)
	if err != nil {
		return nil, err
	}
	if err := booth.ValidateForEnqueue(); err != nil {
		return nil, err
	}

	// The zset score carries millisecond precision, so truncate up front
	// and the registration time survives a store round trip unchanged.
	now := time.Now().Truncate(time.Millisecond)
	outcome, err := s.Queue.EnqueueAtomic(ctx, boothID, userID, now, s.MaxActiveBooths)
	if err != nil {
		return nil, err
	}

	avgMinutes := s.Stats.AverageMinutes(ctx, boothID)

	switch outcome.Status {
	case models.EnqueueSuccess:
		slog.Info("user enqueued",
			"boothId", boothID, "userId", userID, "position", outcome.Position)
		monitoring.TrackOperation("enqueue", "success")
		return &models.EnqueueResult{
			BoothID:              boothID,
			BoothName:            booth.Name,
			Position:             outcome.Position,
			TotalWaiting:         outcome.TotalWaiting,
			EstimatedWaitMinutes: models.EstimatedWaitFromCount(outcome.TotalWaiting, booth.Capacity, avgMinutes),
			RegisteredAt:         now,
		}, nil

	case models.EnqueueAlreadyQueued:
		monitoring.TrackOperation("enqueue", "idempotent_replay")
		registeredAt, err := s.Queue.RegisteredAt(ctx, boothID, userID)
		if err != nil {
			// The entry was there a moment ago, but a replay must
			// return the original time or nothing; never a made-up one.
			return nil, err
		}
		return &models.EnqueueResult{
			BoothID:              boothID,
			BoothName:            booth.Name,
			Position:             outcome.Position,
			TotalWaiting:         outcome.TotalWaiting,
			EstimatedWaitMinutes: models.EstimatedWaitFromPosition(outcome.Position, avgMinutes),
			RegisteredAt:         registeredAt,
		}, nil

	case models.EnqueueMaxBoothsExceeded:
		monitoring.TrackOperation("enqueue", "max_booths_exceeded")
		return nil, status.ErrMaxWaitingExceeded

	default:
		return nil, fmt.Errorf("%w: unexpected enqueue status %d", status.ErrQueueOperation, outcome.Status)
	}
}

// Position is the pure read behind the position endpoint.
func (s *AdmissionService) Position(ctx context.Context, boothID, userID string) (*models.QueuedSummary, int, error) {
	position, err := s.Queue.Position(ctx, boothID, userID)
	if err != nil {
		return nil, 0, err
	}
	registeredAt, err := s.Queue.RegisteredAt(ctx, boothID, userID)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Queue.Size(ctx, boothID)
	if err != nil {
		return nil, 0, err
	}
	return &models.QueuedSummary{
		BoothID:      boothID,
		Position:     position,
		RegisteredAt: registeredAt,
	}, total, nil
}

// Cancel removes a not-yet-called user from a queue. Cancelling an
// already-called waiting goes through the ledger state machine instead.
func (s *AdmissionService) Cancel(ctx context.Context, boothID, userID string) error {
	removed, err := s.Queue.Remove(ctx, boothID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return status.ErrWaitingNotFound
	}
	slog.Info("waiting cancelled", "boothId", boothID, "userId", userID)
	return nil
}

// WaitingList gathers the user's queued positions and their active
// called records.
func (s *AdmissionService) WaitingList(ctx context.Context, userID string) (*models.WaitingList, error) {
	boothIDs, err := s.Queue.ActiveBooths(ctx, userID)
	if err != nil {
		return nil, err
	}

	queued := make([]models.QueuedSummary, 0, len(boothIDs))
	for _, boothID := range boothIDs {
		position, err := s.Queue.Position(ctx, boothID, userID)
		if err != nil {
			// Active set and queue can briefly disagree mid-call;
			// skip instead of failing the whole listing.
			continue
		}
		registeredAt, err := s.Queue.RegisteredAt(ctx, boothID, userID)
		if err != nil {
			continue
		}
		queued = append(queued, models.QueuedSummary{
			BoothID:      boothID,
			Position:     position,
			RegisteredAt: registeredAt,
		})
	}

	called, err := s.Ledger.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &models.WaitingList{Queued: queued, Called: called}, nil
}
