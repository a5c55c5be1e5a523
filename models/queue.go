package models

import (
	"time"
)

// QueueItem is what the queue store hands back on dequeue: the user at
// the head of a booth queue together with their original enqueue time.
type QueueItem struct {
	UserID       string    `json:"user_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// SoftLock marks an in-flight call-next transition between the queue
// store and the ledger. Its presence after a crash is the only evidence
// of what has to be rolled back or confirmed.
type SoftLock struct {
	BoothID      string    `json:"booth_id"`
	UserID       string    `json:"user_id"`
	RegisteredAt time.Time `json:"registered_at"`
	CreatedAt    time.Time `json:"created_at"`
}

type EnqueueStatus int

const (
	EnqueueMaxBoothsExceeded EnqueueStatus = 0
	EnqueueSuccess           EnqueueStatus = 1
	EnqueueAlreadyQueued     EnqueueStatus = 2
)

// EnqueueOutcome is the decoded result of the atomic enqueue script.
type EnqueueOutcome struct {
	Status       EnqueueStatus
	Position     int
	TotalWaiting int
}

// EnqueueResult is returned to the caller of AdmissionService.Enqueue.
type EnqueueResult struct {
	BoothID              string    `json:"booth_id"`
	BoothName            string    `json:"booth_name"`
	Position             int       `json:"position"`
	TotalWaiting         int       `json:"total_waiting"`
	EstimatedWaitMinutes int       `json:"estimated_wait_minutes"`
	RegisteredAt         time.Time `json:"registered_at"`
}

// CallResult is returned to staff from CallService.CallNext.
type CallResult struct {
	WaitingID string    `json:"waiting_id"`
	UserID    string    `json:"user_id"`
	Position  int       `json:"position"`
	CalledAt  time.Time `json:"called_at"`
}

// QueuedSummary is one pre-call queue membership of a user.
type QueuedSummary struct {
	BoothID      string    `json:"booth_id"`
	Position     int       `json:"position"`
	RegisteredAt time.Time `json:"registered_at"`
}

// WaitingList is everything a user currently has going: positions in
// queues they are still waiting in, plus ledger records already called.
type WaitingList struct {
	Queued []QueuedSummary `json:"queued"`
	Called []*Waiting      `json:"called"`
}
