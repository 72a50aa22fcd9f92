package game

import (
	"errors"
	mathrand "math/rand"
	"testing"
)

func TestPartitionSharesArePositiveAndSumToTotal(t *testing.T) {
	rng := mathrand.New(mathrand.NewSource(7))
	for total := 1; total <= 40; total++ {
		for parts := 1; parts <= total; parts++ {
			for trial := 0; trial < 5; trial++ {
				shares, err := Partition(rng, total, parts)
				if err != nil {
					t.Fatalf("total=%d parts=%d: unexpected error %v", total, parts, err)
				}
				if len(shares) != parts {
					t.Fatalf("total=%d parts=%d: expected %d shares, got %d", total, parts, parts, len(shares))
				}
				sum := 0
				for _, share := range shares {
					if share < 1 {
						t.Fatalf("total=%d parts=%d: expected positive shares, got %v", total, parts, shares)
					}
					sum += share
				}
				if sum != total {
					t.Fatalf("total=%d parts=%d: expected sum %d, got %d", total, parts, total, sum)
				}
			}
		}
	}
}

func TestPartitionRejectsInvalidArguments(t *testing.T) {
	rng := mathrand.New(mathrand.NewSource(1))
	cases := []struct {
		total int
		parts int
	}{
		{total: 3, parts: 4},
		{total: 0, parts: 1},
		{total: 5, parts: 0},
		{total: -1, parts: -1},
	}
	for _, tc := range cases {
		if _, err := Partition(rng, tc.total, tc.parts); !errors.Is(err, ErrInvalidPartition) {
			t.Fatalf("total=%d parts=%d: expected ErrInvalidPartition, got %v", tc.total, tc.parts, err)
		}
	}
}

func TestPartitionIsReproducibleUnderFixedSeed(t *testing.T) {
	first, err := Partition(mathrand.New(mathrand.NewSource(42)), 100, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Partition(mathrand.New(mathrand.NewSource(42)), 100, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("expected identical shares, got %v and %v", first, second)
		}
	}
}

func TestSampleDistinctCoversWholeRange(t *testing.T) {
	rng := mathrand.New(mathrand.NewSource(3))
	got := sampleDistinct(rng, 6, 6)
	seen := make(map[int]bool)
	for _, v := range got {
		if v < 0 || v >= 6 || seen[v] {
			t.Fatalf("expected a permutation of [0,6), got %v", got)
		}
		seen[v] = true
	}
}
