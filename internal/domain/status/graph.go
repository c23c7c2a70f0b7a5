package status

import (
	"github.com/reqflow/requisition-service/internal/domain/apperror"
)

// allowedTransitions is the full transition table of the requisition
// lifecycle. The key is the current status, the value the set of statuses
// reachable from it. Terminal statuses have no entry.
var allowedTransitions = map[Status][]Status{
	StatusDraft:       {StatusSubmitted},
	StatusSubmitted:   {StatusUnderReview},
	StatusUnderReview: {StatusApproved, StatusRejected},
	StatusApproved:    {StatusPaid},
	StatusPaid:        {StatusClosed},
	StatusRejected:    {},
	StatusClosed:      {},
}

// CanTransition reports whether the edge from -> to exists in the graph.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedNext returns the statuses reachable from the given status. The
// returned slice is a copy; callers may mutate it freely.
func AllowedNext(from Status) []Status {
	next := allowedTransitions[from]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// ValidateTransition returns an InvalidTransition error when the edge does
// not exist.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return apperror.NewInvalidTransition(from.String(), to.String())
	}
	return nil
}
