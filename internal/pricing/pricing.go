package pricing

import (
	"fmt"

	"mediagen/internal/domain"
)

// Credit cost per generation, keyed by job kind. Video runs cost more
// because the provider bills render minutes.
var costs = map[domain.JobKind]int{
	domain.JobKindPhoto: 5,
	domain.JobKindVideo: 20,
}

// Cost returns the credit price of a single job of the given kind.
func Cost(kind domain.JobKind) (int, error) {
	c, ok := costs[kind]
	if !ok {
		return 0, fmt.Errorf("%w: unknown job kind %q", domain.ErrValidation, kind)
	}
	return c, nil
}

// BatchCost sums the price of a batch of kinds; it fails on the first
// unknown kind so nothing is charged for an invalid batch.
func BatchCost(kinds []domain.JobKind) (int, error) {
	total := 0
	for _, k := range kinds {
		c, err := Cost(k)
		if err != nil {
			return 0, err
		}
		total += c
	}
	return total, nil
}
