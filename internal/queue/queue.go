// Package queue implements the grammar variant's bounded priority queue:
// an ordered set of test cases keyed by (score, identity), trimmed from
// the high-score end on every push so its size never exceeds a fixed
// capacity. Lower score is higher priority.
package queue

import (
	"math"
	"math/rand"
	"sort"

	"github.com/vegard/prog-fuzz/internal/grammar"
)

// Entry is one admitted test case. Mutations records which production
// indices have ever been applied along this lineage (membership only —
// spec.md scores the set, not any ordering of uses).
type Entry struct {
	Root             grammar.ID
	Generation       uint32
	Mutations        map[int]struct{}
	MutationCounter  uint32
	NewBits          uint32
	LeavesAvailable  int
	Score            float64
}

// ScoreParams holds the size-target knobs of the scoring function; the
// rest of the linear combination has no free parameters.
type ScoreParams struct {
	// MaxSize is the size, in rendered bytes, below which a test case's
	// size contributes nothing to its score; above it, contributes
	// (size-MaxSize)/5.
	MaxSize int
}

var DefaultScoreParams = ScoreParams{MaxSize: 2048}

// Score computes spec.md §4.4's grammar-variant linear combination.
// rnd supplies the N(0,100) jitter term.
func Score(e Entry, renderedSize int, params ScoreParams, rnd *rand.Rand) float64 {
	score := 0.0

	score -= float64(len(e.Mutations))

	size := renderedSize
	if size < params.MaxSize {
		size = params.MaxSize
	}
	score += float64(size-params.MaxSize) / 5

	score -= 10 * float64(e.Generation)

	if e.MutationCounter > 0 {
		score -= 100 * float64(e.MutationCounter+1) / float64(e.MutationCounter)
	}

	score -= 100 * float64(e.NewBits)
	score -= 100 * float64(e.LeavesAvailable)

	score += rnd.NormFloat64() * 100

	return score
}

// Queue is a fixed-capacity ordered set of Entries, keyed by
// (Score, Root) so that two entries with an identical score are still
// distinguishable and never silently collapse into one slot.
type Queue struct {
	capacity int
	entries  []Entry
}

func New(capacity int) *Queue {
	return &Queue{capacity: capacity}
}

func less(a, b Entry) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Root < b.Root
}

// Push inserts e in sorted position, then trims from the high-score end
// until the queue's size is back within capacity.
func (q *Queue) Push(e Entry) {
	i := sort.Search(len(q.entries), func(i int) bool { return !less(q.entries[i], e) })
	q.entries = append(q.entries, Entry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e

	if len(q.entries) > q.capacity {
		q.entries = q.entries[:q.capacity]
	}
}

func (q *Queue) Len() int { return len(q.entries) }

func (q *Queue) Empty() bool { return len(q.entries) == 0 }

// Top returns the lowest-score entry without removing it.
func (q *Queue) Top() (Entry, bool) {
	if q.Empty() {
		return Entry{}, false
	}
	return q.entries[0], true
}

// Pop returns and removes the lowest-score entry.
func (q *Queue) Pop() (Entry, bool) {
	e, ok := q.Top()
	if !ok {
		return Entry{}, false
	}
	q.entries = q.entries[1:]
	return e, true
}

// worstScore reports the highest (least-prioritized) score currently
// held, or +Inf if the queue is empty.
func (q *Queue) worstScore() float64 {
	if q.Empty() {
		return math.Inf(1)
	}
	return q.entries[len(q.entries)-1].Score
}
