package assessment

import "fmt"

var allowedTransitions = map[Status][]Status{
	StatusPendingDigitalReview:  {StatusWaitingForSample, StatusForRevision, StatusRejected},
	StatusWaitingForSample:      {StatusPendingPhysicalReview, StatusForRevision, StatusRejected},
	StatusPendingPhysicalReview: {StatusVerified, StatusForRevision, StatusRejected},
	StatusForRevision:           {StatusPendingDigitalReview},
}

// CheckTransition reports ErrInvalidTransition unless to is a forward step
// from from. verified and rejected are final.
func CheckTransition(from, to Status) error {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
