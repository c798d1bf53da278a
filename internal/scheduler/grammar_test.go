package scheduler

import (
	"context"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/vegard/prog-fuzz/internal/config"
	"github.com/vegard/prog-fuzz/internal/grammar"
	"github.com/vegard/prog-fuzz/internal/queue"
)

func newGrammarScheduler(t *testing.T, cfg config.Config) *GrammarScheduler {
	t.Helper()
	if cfg.OutputDir == "" {
		cfg.OutputDir = t.TempDir()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	arena := grammar.NewArena()
	rnd := rand.New(rand.NewSource(1))
	table := grammar.Table{{
		Applicable: func(a *grammar.Arena, leaf grammar.ID) bool { return true },
		Expand: func(a *grammar.Arena, rnd *rand.Rand, leaf grammar.ID) grammar.ID {
			return a.NewTerminal("x", true)
		},
	}}
	return NewGrammarScheduler(arena, table, cfg, rnd)
}

func TestGrammarRunStopsImmediatelyOnCancelledContext(t *testing.T) {
	s := newGrammarScheduler(t, config.Config{CompilerPath: "/bin/true"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	verdict, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if verdict != nil {
		t.Fatalf("Run returned a verdict on an already-cancelled context: %+v", verdict)
	}
}

func TestGrammarRunOneAdmitsSuccessAndPushesEntry(t *testing.T) {
	s := newGrammarScheduler(t, config.Config{
		CompilerPath: "/bin/sh",
		CompilerArgs: []string{"-c", "cat > /dev/null; exit 0"},
	})

	root := s.arena.Root()
	current := queue.Entry{Root: root, MutationCounter: 1}

	verdict, err := s.runOne(context.Background(), current, root, 0, "anything")
	if err != nil {
		t.Fatalf("runOne: %v", err)
	}
	if verdict != nil {
		t.Fatalf("unexpected verdict on a successful trial: %+v", verdict)
	}
	if s.q.Empty() {
		t.Fatalf("a successful trial must push an entry onto the queue")
	}
	if s.nrExecs != 1 {
		t.Fatalf("nrExecs = %d, want 1", s.nrExecs)
	}
}

func TestGrammarRunOnePersistsCrashAsVerdict(t *testing.T) {
	s := newGrammarScheduler(t, config.Config{
		CompilerPath: "/bin/sh",
		CompilerArgs: []string{"-c", "kill -SEGV $$"},
	})

	root := s.arena.Root()
	current := queue.Entry{Root: root, MutationCounter: 1}

	verdict, err := s.runOne(context.Background(), current, root, 0, "int main(){return 0;}")
	if err != nil {
		t.Fatalf("runOne: %v", err)
	}
	if verdict == nil {
		t.Fatalf("expected a crash verdict")
	}
	if _, err := os.Stat(verdict.Path); err != nil {
		t.Fatalf("reproducer not written: %v", err)
	}
}

func TestGrammarRunOnePersistsCandidateICEAsVerdict(t *testing.T) {
	s := newGrammarScheduler(t, config.Config{
		CompilerPath: "/bin/sh",
		CompilerArgs: []string{"-c", "echo 'internal compiler error: in some_unlisted_pass' 1>&2; exit 1"},
	})

	root := s.arena.Root()
	current := queue.Entry{Root: root, MutationCounter: 1}

	verdict, err := s.runOne(context.Background(), current, root, 0, "int main(){return 0;}")
	if err != nil {
		t.Fatalf("runOne: %v", err)
	}
	if verdict == nil {
		t.Fatalf("expected a candidate ICE verdict")
	}
}

func TestGrammarRunOneDoesNotAdmitOrPersistPlainRejection(t *testing.T) {
	s := newGrammarScheduler(t, config.Config{
		CompilerPath: "/bin/sh",
		CompilerArgs: []string{"-c", "echo \"error: expected ';'\" 1>&2; exit 1"},
	})

	root := s.arena.Root()
	current := queue.Entry{Root: root, MutationCounter: 1}

	verdict, err := s.runOne(context.Background(), current, root, 0, "int main(){return 0;}")
	if err != nil {
		t.Fatalf("runOne: %v", err)
	}
	if verdict != nil {
		t.Fatalf("a plain rejection without an ICE signature must never produce a verdict: %+v", verdict)
	}
	if !s.q.Empty() {
		t.Fatalf("a plain rejection must not be admitted to the queue")
	}
	if s.execsWithoutNewBits != 1 {
		t.Fatalf("execsWithoutNewBits = %d, want 1", s.execsWithoutNewBits)
	}
}

func TestGrammarRunOneDoesNotAdmitIgnoredOrTimedOut(t *testing.T) {
	s := newGrammarScheduler(t, config.Config{
		CompilerPath: "/bin/sh",
		CompilerArgs: []string{"-c", "echo 'internal compiler error: in synthesize_implicit_template_parm' 1>&2; exit 1"},
	})

	root := s.arena.Root()
	current := queue.Entry{Root: root, MutationCounter: 1}

	verdict, err := s.runOne(context.Background(), current, root, 0, "int main(){return 0;}")
	if err != nil {
		t.Fatalf("runOne: %v", err)
	}
	if verdict != nil {
		t.Fatalf("an ignored outcome must never produce a verdict: %+v", verdict)
	}
	if !s.q.Empty() {
		t.Fatalf("an ignored outcome must not be admitted to the queue")
	}
	if s.execsWithoutNewBits != 1 {
		t.Fatalf("execsWithoutNewBits = %d, want 1", s.execsWithoutNewBits)
	}
}

func TestGrammarAdmitAccumulatesGlobalMutationCounter(t *testing.T) {
	s := newGrammarScheduler(t, config.Config{CompilerPath: "/bin/true"})

	root := s.arena.Root()
	current := queue.Entry{Root: root, MutationCounter: 1}

	seg := mustAcquireSegment(t)
	defer seg.Release()
	s.admit(current, root, 3, "source", seg)

	top, ok := s.q.Top()
	if !ok {
		t.Fatalf("admit must push an entry")
	}
	// globalMutUses[3] was incremented to 1 before being folded in, so
	// the new entry's counter is the parent's plus that 1.
	if top.MutationCounter != 2 {
		t.Fatalf("MutationCounter = %d, want 2", top.MutationCounter)
	}
	if _, ok := top.Mutations[3]; !ok {
		t.Fatalf("admitted entry must record mutation index 3 as used")
	}
}

func TestGrammarAdmitSkipsDuplicatePath(t *testing.T) {
	s := newGrammarScheduler(t, config.Config{CompilerPath: "/bin/true"})

	root := s.arena.Root()
	current := queue.Entry{Root: root, MutationCounter: 1}

	seg1 := mustAcquireSegment(t)
	defer seg1.Release()
	s.admit(current, root, 1, "source", seg1)

	if s.q.Len() != 1 {
		t.Fatalf("after the first admit, queue length = %d, want 1", s.q.Len())
	}

	seg2 := mustAcquireSegment(t)
	defer seg2.Release()
	s.admit(current, root, 2, "source", seg2)

	// Both segments start out untouched (all-zero trace bits), so they
	// hash to the same empty path: the second admit must not grow the
	// queue a second time.
	if s.q.Len() != 1 {
		t.Fatalf("a duplicate path must not be admitted twice, queue length = %d, want 1", s.q.Len())
	}
}

func TestGrammarCheckpointAndResetClearsState(t *testing.T) {
	s := newGrammarScheduler(t, config.Config{CompilerPath: "/bin/true"})
	s.q.Push(queue.Entry{Root: s.arena.Root(), MutationCounter: 1})
	s.globalMutUses[0] = 5
	s.execsWithoutNewBits = restartThreshold
	s.nrExecs = 42

	s.checkpointAndReset()

	if !s.q.Empty() {
		t.Fatalf("checkpointAndReset must leave the queue empty")
	}
	if len(s.globalMutUses) != 0 {
		t.Fatalf("checkpointAndReset must clear the global mutation tally")
	}
	if s.execsWithoutNewBits != 0 {
		t.Fatalf("checkpointAndReset must clear execsWithoutNewBits")
	}

	entries, err := os.ReadDir(s.cfg.OutputDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("checkpointAndReset must write out a checkpoint file")
	}
}
