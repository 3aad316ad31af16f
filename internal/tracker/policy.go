package tracker

import (
	"fmt"

	"github.com/joescharf/ait/internal/models"
)

// SelectionPolicy decides which eligible issue is handed out next.
type SelectionPolicy string

const (
	// PolicyFIFO hands out the oldest eligible issue first.
	PolicyFIFO SelectionPolicy = "fifo"
	// PolicyLIFO hands out the most recently created eligible issue first.
	PolicyLIFO SelectionPolicy = "lifo"
)

// ParseSelectionPolicy converts a configuration value into a SelectionPolicy.
// The empty string selects FIFO.
func ParseSelectionPolicy(raw string) (SelectionPolicy, error) {
	switch SelectionPolicy(raw) {
	case "", PolicyFIFO:
		return PolicyFIFO, nil
	case PolicyLIFO:
		return PolicyLIFO, nil
	}
	return "", fmt.Errorf("%w: selection policy %q (must be fifo or lifo)", ErrInvalidArgument, raw)
}

// pick returns the index of the issue the policy selects among those
// matching, or -1. Ordering is insertion order only.
func (p SelectionPolicy) pick(issues []*models.Issue, match func(*models.Issue) bool) int {
	if p == PolicyLIFO {
		for i := len(issues) - 1; i >= 0; i-- {
			if match(issues[i]) {
				return i
			}
		}
		return -1
	}
	for i, issue := range issues {
		if match(issue) {
			return i
		}
	}
	return -1
}
