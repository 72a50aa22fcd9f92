package game

import (
	"fmt"
	"sort"
)

// Partition splits total into parts positive integers that sum to total.
// Cut points are parts-1 distinct values drawn uniformly from [1, total-1].
func Partition(rng Rand, total, parts int) ([]int, error) {
	if total <= 0 || parts <= 0 || parts > total {
		return nil, fmt.Errorf("%w: total=%d parts=%d", ErrInvalidPartition, total, parts)
	}
	cuts := sampleDistinct(rng, total-1, parts-1)
	for i := range cuts {
		cuts[i]++
	}
	sort.Ints(cuts)

	shares := make([]int, 0, parts)
	prev := 0
	for _, cut := range cuts {
		shares = append(shares, cut-prev)
		prev = cut
	}
	shares = append(shares, total-prev)
	return shares, nil
}
