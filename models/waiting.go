package models

import (
	"time"

	"waiting-system/internal/status"
)

type WaitingStatus string

const (
	StatusCalled    WaitingStatus = "CALLED"
	StatusEntered   WaitingStatus = "ENTERED"
	StatusCompleted WaitingStatus = "COMPLETED"
)

type CompletionType string

const (
	CompletionEntered   CompletionType = "ENTERED"
	CompletionNoShow    CompletionType = "NO_SHOW"
	CompletionCancelled CompletionType = "CANCELLED"
)

// Waiting is the durable record of a called visitor. It is created the
// moment staff calls the user and only ever moves forward:
// CALLED -> ENTERED -> COMPLETED, or CALLED -> COMPLETED for no-show/cancel.
type Waiting struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	BoothID        string         `json:"booth_id"`
	CalledPosition int            `json:"called_position"`
	RegisteredAt   time.Time      `json:"registered_at"`
	CalledAt       time.Time      `json:"called_at"`
	Status         WaitingStatus  `json:"status"`
	CompletionType CompletionType `json:"completion_type,omitempty"`
	EnteredAt      time.Time      `json:"entered_at,omitempty"`
	CompletedAt    time.Time      `json:"completed_at,omitempty"`
}

// NewCalledWaiting builds the record written when a user is dequeued.
// registeredAt keeps the original enqueue time so history reflects true
// arrival order, not the call time.
func NewCalledWaiting(userID, boothID string, calledPosition int, registeredAt, calledAt time.Time) *Waiting {
	return &Waiting{
		UserID:         userID,
		BoothID:        boothID,
		CalledPosition: calledPosition,
		RegisteredAt:   registeredAt,
		CalledAt:       calledAt,
		Status:         StatusCalled,
	}
}

// Enter confirms entrance. Valid only from CALLED.
func (w *Waiting) Enter() error {
	if w.Status != StatusCalled {
		return status.ErrInvalidStatus
	}
	w.Status = StatusEntered
	w.EnteredAt = time.Now()
	return nil
}

// Complete finishes the experience. Valid only from ENTERED.
func (w *Waiting) Complete() error {
	if w.Status != StatusEntered {
		return status.ErrInvalidStatus
	}
	w.Status = StatusCompleted
	w.CompletionType = CompletionEntered
	w.CompletedAt = time.Now()
	return nil
}

// MarkNoShow times out a called visitor. Valid only from CALLED.
func (w *Waiting) MarkNoShow() error {
	if w.Status != StatusCalled {
		return status.ErrInvalidStatus
	}
	w.Status = StatusCompleted
	w.CompletionType = CompletionNoShow
	w.CompletedAt = time.Now()
	return nil
}

// Cancel is the user-initiated abort of an already-called waiting.
// Cancelling before being called is a plain queue removal and never
// touches a Waiting record.
func (w *Waiting) Cancel() error {
	if w.Status != StatusCalled {
		return status.ErrInvalidStatus
	}
	w.Status = StatusCompleted
	w.CompletionType = CompletionCancelled
	w.CompletedAt = time.Now()
	return nil
}

func (w *Waiting) IsActive() bool {
	return w.Status != StatusCompleted
}

// ServiceDuration is the observed time between entrance and completion.
// Zero when either timestamp is missing.
func (w *Waiting) ServiceDuration() time.Duration {
	if w.EnteredAt.IsZero() || w.CompletedAt.IsZero() {
		return 0
	}
	return w.CompletedAt.Sub(w.EnteredAt)
}
