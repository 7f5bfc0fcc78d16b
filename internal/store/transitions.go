package store

import (
	"time"

	"posresto/attendance-service/internal/models"
)

var shiftTransitionMap = map[string][]string{
	models.ShiftStatusConfirmed:  {models.ShiftStatusScheduled},
	models.ShiftStatusInProgress: {models.ShiftStatusScheduled, models.ShiftStatusConfirmed},
	models.ShiftStatusCancelled:  {models.ShiftStatusScheduled, models.ShiftStatusConfirmed},
}

// ValidShiftTransition reports whether a shift may move from fromStatus to
// toStatus. An in-progress shift is terminal except for completion of the
// linked time entry, which does not change the shift status here.
func ValidShiftTransition(toStatus, fromStatus string) bool {
	allowed, ok := shiftTransitionMap[toStatus]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// Overlaps reports whether the half-open ranges [aStart,aEnd) and
// [bStart,bEnd) intersect. Boundary-adjacent ranges do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
