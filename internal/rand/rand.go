// Package rand provides the seedable random source used by route
// generation and the simulator. It is safe for concurrent use.
package rand

import (
	"sync"
	"time"

	"github.com/MichaelTJones/pcg"
)

const increment = 0xda3e39cb94b95bdb

// Rand is a mutex-guarded PCG32 generator.
type Rand struct {
	mu sync.Mutex
	r  *pcg.PCG32
}

// New returns a generator seeded from the wall clock.
func New() *Rand {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded returns a generator with a fixed seed, for reproducible runs.
func NewSeeded(seed int64) *Rand {
	r := &Rand{r: pcg.NewPCG32()}
	r.Seed(seed)
	return r
}

func (r *Rand) Seed(s int64) {
	r.mu.Lock()
	r.r.Seed(uint64(s), increment)
	r.mu.Unlock()
}

// Intn returns a value in [0, n). It panics if n <= 0.
func (r *Rand) Intn(n int) int {
	if n <= 0 {
		panic("rand: Intn called with n <= 0")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.r.Bounded(uint32(n)))
}

func (r *Rand) Uint32() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Random()
}

// Float64 returns a value in [0, 1).
func (r *Rand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	hi := uint64(r.r.Random()) >> 6
	lo := uint64(r.r.Random()) >> 5
	return float64(hi<<27|lo) / (1 << 53)
}

// Uniform returns a value in [lo, hi).
func (r *Rand) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}

// Sample returns a uniformly chosen element of s. ok is false if s is empty.
func Sample[Slice ~[]E, E any](r *Rand, s Slice) (v E, ok bool) {
	if len(s) == 0 {
		return v, false
	}
	return s[r.Intn(len(s))], true
}
