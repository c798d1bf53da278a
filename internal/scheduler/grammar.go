package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/google/syzkaller/pkg/log"

	"github.com/vegard/prog-fuzz/internal/artifact"
	"github.com/vegard/prog-fuzz/internal/config"
	"github.com/vegard/prog-fuzz/internal/cover"
	"github.com/vegard/prog-fuzz/internal/grammar"
	"github.com/vegard/prog-fuzz/internal/queue"
	"github.com/vegard/prog-fuzz/internal/sandbox"
	"github.com/vegard/prog-fuzz/internal/shm"
)

// restartThreshold is the execs-without-new-bits count that triggers a
// full checkpoint+reset. spec.md §9 notes the original's two rule sets
// disagree (500 vs 2500 execs); 500 is the value spec.md §4.5's
// pseudocode states explicitly, so that is what governs here.
const restartThreshold = 500

// popThreshold is the stagnation count past which the current top test
// case is evicted in favour of whatever is now in second place.
const popThreshold = 25

// queueCapacity is the grammar-variant queue's fixed size.
const queueCapacity = 1200

// GrammarScheduler drives the grammar-expansion variant: seed, mutate,
// run, admit on new coverage, restart on prolonged stagnation.
type GrammarScheduler struct {
	arena *grammar.Arena
	table grammar.Table
	cfg   config.Config
	rnd   *rand.Rand

	q        *queue.Queue
	counters cover.Counters

	// seenPaths deduplicates admission on the order-independent set of
	// edges a trial touched: two candidates that land on the exact same
	// path (however their trace bitmap got there) only ever grow the
	// queue once.
	seenPaths map[uint32]struct{}

	globalMutUses       map[int]uint32
	execsWithoutNewBits uint32
	nrExecs             uint32
}

// NewGrammarScheduler builds a scheduler over an empty queue. table is
// the externally-supplied, compiled grammar production set; the
// scheduler treats it as an opaque dispatch table.
func NewGrammarScheduler(arena *grammar.Arena, table grammar.Table, cfg config.Config, rnd *rand.Rand) *GrammarScheduler {
	return &GrammarScheduler{
		arena:         arena,
		table:         table,
		cfg:           cfg,
		rnd:           rnd,
		q:             queue.New(queueCapacity),
		globalMutUses: make(map[int]uint32),
		seenPaths:     make(map[uint32]struct{}),
	}
}

// Run drives the loop until ctx is cancelled (returns nil, nil) or a
// crash/candidate-ICE is found (returns a non-nil Verdict).
func (s *GrammarScheduler) Run(ctx context.Context) (*Verdict, error) {
	for {
		if ctx.Err() != nil {
			return nil, nil
		}

		if s.execsWithoutNewBits == restartThreshold {
			s.checkpointAndReset()
		}

		if s.q.Empty() {
			s.q.Push(queue.Entry{
				Root:            s.arena.Root(),
				Generation:      0,
				Mutations:       map[int]struct{}{},
				MutationCounter: 1,
			})
		}

		current, _ := s.q.Top()

		leaves := s.arena.FindLeaves(current.Root)
		if len(leaves) == 0 {
			s.q.Pop()
			continue
		}

		leaf := leaves[s.rnd.Intn(len(leaves))]
		mutation := s.rnd.Intn(len(s.table))
		root := grammar.Mutate(s.arena, s.rnd, current.Root, leaf, s.table, mutation)
		source := s.arena.Render(root)

		verdict, err := s.runOne(ctx, current, root, mutation, source)
		if err != nil {
			return nil, err
		}
		if verdict != nil {
			return verdict, nil
		}
	}
}

func (s *GrammarScheduler) runOne(ctx context.Context, current queue.Entry, root grammar.ID, mutation int, source string) (*Verdict, error) {
	segment, err := shm.Acquire()
	if err != nil {
		return nil, fmt.Errorf("acquire shm segment: %w", err)
	}
	defer segment.Release()

	cfg := sandbox.Config{
		Path:    s.cfg.CompilerPath,
		Args:    s.cfg.CompilerArgs,
		Timeout: s.cfg.Timeout,
		Env:     []string{segment.Env()},
	}
	result, err := sandbox.Run(ctx, cfg, source)
	if err != nil {
		return nil, fmt.Errorf("run compiler: %w", err)
	}

	s.nrExecs++

	switch result.Outcome {
	case sandbox.Crash:
		v, err := persist(s.cfg.OutputDir, "cc", source, artifact.KindCrash, result, nil)
		return &v, err
	case sandbox.CandidateICE:
		v, err := persist(s.cfg.OutputDir, "cc", source, artifact.KindCandidateICE, result, nil)
		return &v, err
	case sandbox.Rejected, sandbox.Ignored, sandbox.TimedOut:
		s.execsWithoutNewBits++
	case sandbox.Success:
		s.admit(current, root, mutation, source, segment)
	}

	if s.execsWithoutNewBits > popThreshold {
		s.q.Pop()
	}
	return nil, nil
}

func (s *GrammarScheduler) admit(current queue.Entry, root grammar.ID, mutation int, source string, segment *shm.Segment) {
	newBits := s.counters.NewBits(segment.Bits)

	pathHash := cover.FromTraceBits(segment.Bits).PathHash()
	_, dup := s.seenPaths[pathHash]
	s.seenPaths[pathHash] = struct{}{}

	if !dup {
		mutations := make(map[int]struct{}, len(current.Mutations)+1)
		for m := range current.Mutations {
			mutations[m] = struct{}{}
		}
		mutations[mutation] = struct{}{}

		s.globalMutUses[mutation]++

		entry := queue.Entry{
			Root:            root,
			Generation:      current.Generation + 1,
			Mutations:       mutations,
			MutationCounter: current.MutationCounter + s.globalMutUses[mutation],
			NewBits:         current.NewBits + newBits,
			LeavesAvailable: len(s.arena.FindLeaves(root)),
		}
		entry.Score = queue.Score(entry, len(source), queue.DefaultScoreParams, s.rnd)
		s.q.Push(entry)
	}

	if newBits > 0 {
		s.execsWithoutNewBits = 0
	} else {
		s.execsWithoutNewBits++
	}
}

// checkpointAndReset snapshots the current top test case to disk (best
// effort; a failed checkpoint is logged, not fatal) and then resets the
// queue, the mutation usage tallies, and the coverage counters — the
// same restart spec.md §4.5 calls for on prolonged stagnation.
func (s *GrammarScheduler) checkpointAndReset() {
	if top, ok := s.q.Top(); ok {
		path := filepath.Join(s.cfg.OutputDir, fmt.Sprintf("checkpoint-%d.cc", s.nrExecs))
		if err := os.MkdirAll(s.cfg.OutputDir, 0755); err != nil {
			log.Logf(0, "scheduler: checkpoint mkdir failed: %v", err)
		} else if err := os.WriteFile(path, []byte(s.arena.Render(top.Root)), 0644); err != nil {
			log.Logf(0, "scheduler: checkpoint write failed: %v", err)
		}
	}

	s.q = queue.New(queueCapacity)
	s.globalMutUses = make(map[int]uint32)
	s.seenPaths = make(map[uint32]struct{})
	s.counters.Reset()
	s.execsWithoutNewBits = 0
	s.nrExecs = 0
}
