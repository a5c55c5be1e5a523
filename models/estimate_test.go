package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimatedWaitFromCount(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		capacity int
		avg      int
		want     int
	}{
		{"empty queue", 0, 4, 10, 0},
		{"zero capacity", 5, 0, 10, 0},
		{"partial round", 1, 4, 10, 10},
		{"exact round", 8, 4, 10, 20},
		{"rounds up", 5, 4, 10, 20},
		{"single capacity", 3, 1, 10, 30},
		{"learned average", 5, 4, 6, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimatedWaitFromCount(tt.count, tt.capacity, tt.avg))
		})
	}
}

func TestEstimatedWaitFromPosition(t *testing.T) {
	assert.Equal(t, 0, EstimatedWaitFromPosition(0, 10))
	assert.Equal(t, 10, EstimatedWaitFromPosition(1, 10))
	assert.Equal(t, 30, EstimatedWaitFromPosition(3, 10))
	assert.Equal(t, 18, EstimatedWaitFromPosition(3, 6))
}
