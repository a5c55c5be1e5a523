package models

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"waiting-system/internal/status"
)

func TestBooth_ValidateForEnqueue(t *testing.T) {
	open := &Booth{ID: "b1", Status: BoothOpen, Capacity: 2}
	assert.NoError(t, open.ValidateForEnqueue())

	closed := &Booth{ID: "b1", Status: BoothClosed, Capacity: 2}
	assert.ErrorIs(t, closed.ValidateForEnqueue(), status.ErrBoothClosed)

	// a full booth still accepts registrations, only calling blocks
	full := &Booth{ID: "b1", Status: BoothOpen, Capacity: 2, Current: 2}
	assert.NoError(t, full.ValidateForEnqueue())
}

func TestBooth_ValidateForCalling(t *testing.T) {
	open := &Booth{ID: "b1", Status: BoothOpen, Capacity: 2, Current: 1}
	assert.NoError(t, open.ValidateForCalling())

	closed := &Booth{ID: "b1", Status: BoothClosed, Capacity: 2}
	assert.ErrorIs(t, closed.ValidateForCalling(), status.ErrBoothClosed)

	full := &Booth{ID: "b1", Status: BoothOpen, Capacity: 2, Current: 2}
	assert.ErrorIs(t, full.ValidateForCalling(), status.ErrBoothFull)
}
