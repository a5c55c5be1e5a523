package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"waiting-system/internal/status"
	"waiting-system/models"
)

// fakeLedger is an in-memory Ledger for service tests.
type fakeLedger struct {
	mu      sync.Mutex
	records map[string]*models.Waiting
	nextID  int

	createErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]*models.Waiting)}
}

func (f *fakeLedger) Create(ctx context.Context, w *models.Waiting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	w.ID = fmt.Sprintf("w%d", f.nextID)
	copied := *w
	f.records[w.ID] = &copied
	return nil
}

func (f *fakeLedger) FindByID(ctx context.Context, id string) (*models.Waiting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.records[id]
	if !ok {
		return nil, status.ErrWaitingNotFound
	}
	copied := *w
	return &copied, nil
}

func (f *fakeLedger) Save(ctx context.Context, w *models.Waiting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[w.ID]; !ok {
		return status.ErrWaitingNotFound
	}
	copied := *w
	f.records[w.ID] = &copied
	return nil
}

func (f *fakeLedger) ExistsCalled(ctx context.Context, userID, boothID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.records {
		if w.UserID == userID && w.BoothID == boothID && w.Status == models.StatusCalled {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) FindTimedOutCalled(ctx context.Context, threshold time.Time) ([]*models.Waiting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Waiting
	for _, w := range f.records {
		if w.Status == models.StatusCalled && w.CalledAt.Before(threshold) {
			copied := *w
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeLedger) FindActiveByUser(ctx context.Context, userID string) ([]*models.Waiting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Waiting
	for _, w := range f.records {
		if w.UserID == userID && w.IsActive() {
			copied := *w
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeLedger) FindCalledByBooth(ctx context.Context, boothID string) ([]*models.Waiting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Waiting
	for _, w := range f.records {
		if w.BoothID == boothID && w.Status == models.StatusCalled {
			copied := *w
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeLedger) CountCalledToday(ctx context.Context, boothID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	count := 0
	for _, w := range f.records {
		if w.BoothID == boothID && !w.CalledAt.Before(dayStart) {
			count++
		}
	}
	return count, nil
}

// put seeds a record directly, bypassing Create.
func (f *fakeLedger) put(w *models.Waiting) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *w
	f.records[w.ID] = &copied
}

func (f *fakeLedger) get(id string) *models.Waiting {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.records[id]
	copied := *w
	return &copied
}
