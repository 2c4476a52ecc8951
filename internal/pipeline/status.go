package pipeline

import "github.com/finbrief/finbrief/constants"

// DeriveRunStatus maps step counters to the final run status: COMPLETED when
// everything succeeded, FAILED when nothing did (or nothing ran), PARTIAL
// when the run made real but incomplete progress.
func DeriveRunStatus(attempted, succeeded, failed int) constants.RunStatus {
	switch {
	case attempted == 0:
		return constants.RunStatusFailed
	case failed == 0:
		return constants.RunStatusCompleted
	case succeeded == 0:
		return constants.RunStatusFailed
	default:
		return constants.RunStatusPartial
	}
}
