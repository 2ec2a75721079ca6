package classify

import (
	"strings"

	"github.com/nhle/autohub/internal/model"
)

// The backend is known to swap the type of completed and ready-for-pickup
// booking events. Until it is fixed the message text wins over the declared
// type for these two events only. Do not extend this to other types.
var (
	readyPhrases = []string{
		"ready for pickup",
		"ready to be picked up",
	}
	completedPhrases = []string{
		"has been completed",
		"booking has been completed",
		"service completed",
	}
)

// OverrideFromMessage returns the type implied by message and true, or the
// zero value and false when the message does not match either phrase set.
// The ready branch is checked first and only applies when the message does
// not also read as completed.
func OverrideFromMessage(message string) (model.RawType, bool) {
	lower := strings.ToLower(message)
	ready := containsAny(lower, readyPhrases)
	completed := containsAny(lower, completedPhrases)

	switch {
	case ready && !completed:
		return model.RawBookingReadyForPickup, true
	case completed:
		return model.RawBookingCompleted, true
	}
	return 0, false
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
