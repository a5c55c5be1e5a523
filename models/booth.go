package models

import (
	"waiting-system/internal/status"
)

type BoothStatus string

const (
	BoothOpen   BoothStatus = "open"
	BoothClosed BoothStatus = "closed"
)

// Booth carries the realtime facts the engines check but do not own:
// open/closed state, capacity and the externally tracked occupancy.
type Booth struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Status   BoothStatus `json:"status"`
	Capacity int         `json:"capacity"`
	Current  int         `json:"current"`
}

func (b *Booth) ValidateForEnqueue() error {
	if b.Status != BoothOpen {
		return status.ErrBoothClosed
	}
	return nil
}

func (b *Booth) ValidateForCalling() error {
	if b.Status != BoothOpen {
		return status.ErrBoothClosed
	}
	if b.Current >= b.Capacity {
		return status.ErrBoothFull
	}
	return nil
}
