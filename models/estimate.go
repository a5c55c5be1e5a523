package models

// DefaultAverageServiceMinutes is used until a booth has collected
// enough completion samples of its own.
const DefaultAverageServiceMinutes = 10

// EstimatedWaitFromCount estimates minutes from queue size and booth
// capacity: full rounds needed, rounded up, times the average service
// time. Zero when the queue is empty or capacity is zero.
func EstimatedWaitFromCount(waitingCount, capacity, avgServiceMinutes int) int {
	if waitingCount == 0 || capacity == 0 {
		return 0
	}
	rounds := (waitingCount + capacity - 1) / capacity
	return rounds * avgServiceMinutes
}

// EstimatedWaitFromPosition estimates minutes directly from the 1-based
// queue position.
func EstimatedWaitFromPosition(position, avgServiceMinutes int) int {
	if position <= 0 {
		return 0
	}
	return position * avgServiceMinutes
}
