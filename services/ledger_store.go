package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"

	"waiting-system/internal/status"
	"waiting-system/models"
)

const waitingsCollection = "waitings"

// Ledger is the durable side of the two-store split. Records exist from
// the moment a user is called and are never deleted, only transitioned.
type Ledger interface {
	Create(ctx context.Context, w *models.Waiting) error
	FindByID(ctx context.Context, id string) (*models.Waiting, error)
	Save(ctx context.Context, w *models.Waiting) error
	ExistsCalled(ctx context.Context, userID, boothID string) (bool, error)
	FindTimedOutCalled(ctx context.Context, threshold time.Time) ([]*models.Waiting, error)
	FindActiveByUser(ctx context.Context, userID string) ([]*models.Waiting, error)
	FindCalledByBooth(ctx context.Context, boothID string) ([]*models.Waiting, error)
	CountCalledToday(ctx context.Context, boothID string) (int, error)
}

// LedgerStore keeps Waiting records in the waitings collection.
type LedgerStore struct {
	app core.App
}

func NewLedgerStore(app core.App) *LedgerStore {
	return &LedgerStore{app: app}
}

// Create persists a fresh CALLED record and backfills the generated id.
func (s *LedgerStore) Create(ctx context.Context, w *models.Waiting) error {
	collection, err := s.app.FindCollectionByNameOrId(waitingsCollection)
	if err != nil {
		return fmt.Errorf("find waitings collection: %w", err)
	}

	record := core.NewRecord(collection)
	applyWaiting(record, w)

	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("create waiting: %w", err)
	}

	w.ID = record.Id
	return nil
}

func (s *LedgerStore) FindByID(ctx context.Context, id string) (*models.Waiting, error) {
	record, err := s.app.FindRecordById(waitingsCollection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrWaitingNotFound
		}
		return nil, fmt.Errorf("find waiting %s: %w", id, err)
	}
	return waitingFromRecord(record), nil
}

func (s *LedgerStore) Save(ctx context.Context, w *models.Waiting) error {
	record, err := s.app.FindRecordById(waitingsCollection, w.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return status.ErrWaitingNotFound
		}
		return fmt.Errorf("find waiting %s: %w", w.ID, err)
	}

	applyWaiting(record, w)

	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("save waiting %s: %w", w.ID, err)
	}
	return nil
}

// ExistsCalled answers the recovery scheduler's question: did the
// durable write of this call actually land?
func (s *LedgerStore) ExistsCalled(ctx context.Context, userID, boothID string) (bool, error) {
	_, err := s.app.FindFirstRecordByFilter(
		waitingsCollection,
		"user_id = {:user} && booth_id = {:booth} && status = 'CALLED'",
		dbx.Params{"user": userID, "booth": boothID},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("exists called: %w", err)
	}
	return true, nil
}

// FindTimedOutCalled returns CALLED records older than the threshold,
// oldest first.
func (s *LedgerStore) FindTimedOutCalled(ctx context.Context, threshold time.Time) ([]*models.Waiting, error) {
	records, err := s.app.FindRecordsByFilter(
		waitingsCollection,
		"status = 'CALLED' && called_at < {:threshold}",
		"called_at",
		0,
		0,
		dbx.Params{"threshold": threshold.UTC().Format(types.DefaultDateLayout)},
	)
	if err != nil {
		return nil, fmt.Errorf("find timed out called: %w", err)
	}
	return waitingsFromRecords(records), nil
}

func (s *LedgerStore) FindActiveByUser(ctx context.Context, userID string) ([]*models.Waiting, error) {
	records, err := s.app.FindRecordsByFilter(
		waitingsCollection,
		"user_id = {:user} && status != 'COMPLETED'",
		"-called_at",
		0,
		0,
		dbx.Params{"user": userID},
	)
	if err != nil {
		return nil, fmt.Errorf("find active by user: %w", err)
	}
	return waitingsFromRecords(records), nil
}

func (s *LedgerStore) FindCalledByBooth(ctx context.Context, boothID string) ([]*models.Waiting, error) {
	records, err := s.app.FindRecordsByFilter(
		waitingsCollection,
		"booth_id = {:booth} && status = 'CALLED'",
		"called_at",
		0,
		0,
		dbx.Params{"booth": boothID},
	)
	if err != nil {
		return nil, fmt.Errorf("find called by booth: %w", err)
	}
	return waitingsFromRecords(records), nil
}

// CountCalledToday counts every call made for a booth since UTC
// midnight, regardless of how it ended.
func (s *LedgerStore) CountCalledToday(ctx context.Context, boothID string) (int, error) {
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)

	total, err := s.app.CountRecords(waitingsCollection,
		dbx.HashExp{"booth_id": boothID},
		dbx.NewExp("called_at >= {:start}", dbx.Params{
			"start": dayStart.Format(types.DefaultDateLayout),
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("count called today: %w", err)
	}
	return int(total), nil
}

func applyWaiting(record *core.Record, w *models.Waiting) {
	record.Set("user_id", w.UserID)
	record.Set("booth_id", w.BoothID)
	record.Set("called_position", w.CalledPosition)
	record.Set("registered_at", w.RegisteredAt)
	record.Set("called_at", w.CalledAt)
	record.Set("status", string(w.Status))
	record.Set("completion_type", string(w.CompletionType))
	if !w.EnteredAt.IsZero() {
		record.Set("entered_at", w.EnteredAt)
	}
	if !w.CompletedAt.IsZero() {
		record.Set("completed_at", w.CompletedAt)
	}
}

func waitingFromRecord(record *core.Record) *models.Waiting {
	return &models.Waiting{
		ID:             record.Id,
		UserID:         record.GetString("user_id"),
		BoothID:        record.GetString("booth_id"),
		CalledPosition: record.GetInt("called_position"),
		RegisteredAt:   record.GetDateTime("registered_at").Time(),
		CalledAt:       record.GetDateTime("called_at").Time(),
		Status:         models.WaitingStatus(record.GetString("status")),
		CompletionType: models.CompletionType(record.GetString("completion_type")),
		EnteredAt:      record.GetDateTime("entered_at").Time(),
		CompletedAt:    record.GetDateTime("completed_at").Time(),
	}
}

func waitingsFromRecords(records []*core.Record) []*models.Waiting {
	waitings := make([]*models.Waiting, 0, len(records))
	for _, record := range records {
		waitings = append(waitings, waitingFromRecord(record))
	}
	return waitings
}
