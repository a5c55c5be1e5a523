package status

import "errors"

var (
	ErrBoothNotFound      = errors.New("booth: booth not found")
	ErrBoothClosed        = errors.New("booth: booth is not open")
	ErrBoothFull          = errors.New("booth: booth is at capacity")
	ErrMaxWaitingExceeded = errors.New("waiting: max active booths exceeded")
	ErrQueueEmpty         = errors.New("waiting: queue is empty")
	ErrWaitingNotFound    = errors.New("waiting: waiting not found")
	ErrInvalidStatus      = errors.New("waiting: invalid status transition")
	ErrQueueOperation     = errors.New("waiting: queue operation failed")
)
