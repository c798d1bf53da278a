// Package cover tracks the AFL-style shared-memory trace bitmap: a fixed
// MapSize byte array that the instrumented compiler increments once per
// edge it executes. The engine reads it back after every trial, folds it
// into a PcCover of the edges touched, and compares that against every
// edge ever seen across the whole run to decide whether the trial found
// anything new.
package cover

import "sort"

// MapSize is the shared-memory region size advertised to the compiler
// under construction. AFL instrumentation (and anything emulating its
// ABI) is built against this exact constant; changing it requires
// rebuilding the instrumented toolchain.
const MapSize = 1 << 16

// PcCover is the set of bitmap offsets ("edges") a single trial touched.
type PcCover map[uint32]struct{}

// FromTraceBits folds a MapSize-length trace bitmap into the sparse set
// of offsets it marks nonzero.
func FromTraceBits(bits []byte) PcCover {
	cov := make(PcCover)
	for i, b := range bits {
		if b != 0 {
			cov[uint32(i)] = struct{}{}
		}
	}
	return cov
}

func (cov PcCover) Serialize() []uint32 {
	res := make([]uint32, 0, len(cov))
	for pc := range cov {
		res = append(res, pc)
	}
	return res
}

// Hash mixes a single offset so that PathHash doesn't degenerate when
// two nearby offsets are XORed together (adjacent edges are common, and
// pc1^pc2==0 for pc1==pc2 would silently cancel in a plain XOR fold).
func Hash(a uint32) uint32 {
	a = (a ^ 61) ^ (a >> 16)
	a = a + (a << 3)
	a = a ^ (a >> 4)
	a = a * 0x27d4eb2d
	a = a ^ (a >> 15)
	return a
}

// PathHash summarizes cov order-independently, for corpus deduplication
// keyed on "same set of edges touched" rather than exact byte equality.
func (cov PcCover) PathHash() uint32 {
	res := cov.Serialize()
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })

	var hash uint32
	for _, s := range res {
		hash ^= Hash(s)
	}
	return hash
}

// Counters accumulates, across every trial in a run, how many times each
// bitmap offset has ever been seen nonzero. NewBits reports how many
// offsets a trial's trace touched for the very first time in the run —
// exactly the "new_bits" quantity spec.md §4.4's score formula penalizes
// trials for lacking.
type Counters struct {
	seen [MapSize]uint32
}

// NewBits folds bits into the accumulated counters and returns how many
// previously-unseen offsets this trial's trace touched.
func (c *Counters) NewBits(bits []byte) uint32 {
	var newBits uint32
	for i := 0; i < len(bits) && i < MapSize; i++ {
		if bits[i] == 0 {
			continue
		}
		c.seen[i]++
		if c.seen[i] == 1 {
			newBits++
		}
	}
	return newBits
}

// Reset zeroes every counter, starting a fresh accumulation window. The
// grammar scheduler calls this on every scheduled restart (spec.md §4.5),
// matching the original's trace_bits_counters reset loop.
func (c *Counters) Reset() {
	for i := range c.seen {
		c.seen[i] = 0
	}
}
