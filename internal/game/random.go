package game

import (
	mathrand "math/rand"
	"sync"
	"time"
)

// Rand is the random source used for seeding. *math/rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

type lockedRand struct {
	mu  sync.Mutex
	src *mathrand.Rand
}

// NewRand returns a goroutine-safe source. A zero seed seeds from the clock.
func NewRand(seed int64) Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{src: mathrand.New(mathrand.NewSource(seed))}
}

func (r *lockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Intn(n)
}

// sampleDistinct picks k distinct values from [0, n) using Floyd's algorithm.
func sampleDistinct(rng Rand, n, k int) []int {
	chosen := make(map[int]struct{}, k)
	out := make([]int, 0, k)
	for j := n - k; j < n; j++ {
		t := rng.Intn(j + 1)
		if _, taken := chosen[t]; taken {
			t = j
		}
		chosen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
