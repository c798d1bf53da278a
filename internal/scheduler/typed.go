package scheduler

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/vegard/prog-fuzz/internal/artifact"
	"github.com/vegard/prog-fuzz/internal/ast"
	"github.com/vegard/prog-fuzz/internal/ast/transform"
	"github.com/vegard/prog-fuzz/internal/config"
	"github.com/vegard/prog-fuzz/internal/cover"
	"github.com/vegard/prog-fuzz/internal/sandbox"
	"github.com/vegard/prog-fuzz/internal/shm"
)

// typedActiveCap is the maximum number of concurrently tracked test
// cases in the typed variant's pool.
const typedActiveCap = 250

// typedSeedTransforms is how many random transformations a freshly
// seeded program is put through before it is even tried.
const typedSeedTransforms = 50

// typedAlpha is the EWMA smoothing factor governing how many
// transformations a test case is mutated by next.
const typedAlpha = 0.85

// typedEvictAfter is the number of consecutive unproductive mutations
// that evicts a test case from the pool.
const typedEvictAfter = 50

type typedTestCase struct {
	Program           *ast.Program
	NrTransformations float64
	NrFailures        int
}

// TypedScheduler drives the semantics-preserving typed-AST variant: seed
// up to a fixed pool size, then repeatedly mutate a randomly chosen pool
// member, keeping the mutation only when it yields new coverage.
type TypedScheduler struct {
	cfg config.Config
	rnd *rand.Rand

	counters  cover.Counters
	active    []*typedTestCase
	seenPaths map[uint32]struct{}

	asmPath string
	exePath string
}

// NewTypedScheduler allocates the scratch files the sandbox's assemble
// step needs and returns a scheduler ready to Run.
func NewTypedScheduler(cfg config.Config, rnd *rand.Rand) (*TypedScheduler, error) {
	asmFile, err := os.CreateTemp("", "progfuzz-*.s")
	if err != nil {
		return nil, fmt.Errorf("create asm scratch file: %w", err)
	}
	asmFile.Close()

	exeFile, err := os.CreateTemp("", "progfuzz-*.out")
	if err != nil {
		return nil, fmt.Errorf("create executable scratch file: %w", err)
	}
	exeFile.Close()

	return &TypedScheduler{
		cfg:       cfg,
		rnd:       rnd,
		asmPath:   asmFile.Name(),
		exePath:   exeFile.Name(),
		seenPaths: make(map[uint32]struct{}),
	}, nil
}

// Run drives the loop until ctx is cancelled (returns nil, nil) or a
// crash, candidate ICE, or miscompilation is found.
func (s *TypedScheduler) Run(ctx context.Context) (*Verdict, error) {
	for {
		if ctx.Err() != nil {
			return nil, nil
		}

		if len(s.active) < typedActiveCap {
			if verdict, err := s.seedOne(ctx); verdict != nil || err != nil {
				return verdict, err
			}
			continue
		}

		if verdict, err := s.mutateOne(ctx); verdict != nil || err != nil {
			return verdict, err
		}
	}
}

func (s *TypedScheduler) seedOne(ctx context.Context) (*Verdict, error) {
	target := int32(s.rnd.Uint32())
	p := ast.NewProgram(target)
	for i := 0; i < typedSeedTransforms; i++ {
		p = s.applyRandomTransform(p)
	}

	verdict, admitted, err := s.tryRun(ctx, p)
	if err != nil || verdict != nil {
		return verdict, err
	}
	if admitted {
		s.active = append(s.active, &typedTestCase{Program: p, NrTransformations: 10})
	}
	return nil, nil
}

func (s *TypedScheduler) mutateOne(ctx context.Context) (*Verdict, error) {
	i := s.rnd.Intn(len(s.active))
	t := s.active[i]

	n := int(math.Ceil(t.NrTransformations))
	if n < 1 {
		n = 1
	}
	p := t.Program
	for j := 0; j < n; j++ {
		p = s.applyRandomTransform(p)
	}

	verdict, admitted, err := s.tryRun(ctx, p)
	if err != nil || verdict != nil {
		return verdict, err
	}

	if admitted {
		t.NrTransformations = typedAlpha*t.NrTransformations + (1-typedAlpha)*10*float64(t.NrFailures)
		t.NrFailures = 0
		t.Program = p
		return nil, nil
	}

	t.NrFailures++
	if t.NrFailures == typedEvictAfter {
		s.active = append(s.active[:i], s.active[i+1:]...)
	} else {
		t.NrTransformations = typedAlpha*t.NrTransformations + (1-typedAlpha)*10*float64(t.NrFailures)
	}
	return nil, nil
}

func (s *TypedScheduler) applyRandomTransform(p *ast.Program) *ast.Program {
	i := s.rnd.Intn(len(transform.All))
	if next, ok := transform.All[i](s.rnd, p); ok {
		return next
	}
	return p
}

// tryRun compiles, and on a clean compile assembles/links/runs, p, and
// reports whether the trial is worth keeping: admitted is true only when
// it compiled, ran, matched its target value, and touched at least one
// previously unseen coverage bit. A non-nil Verdict means the engine
// must stop: the trial was a crash, an unrecognised ICE, or a
// miscompilation, and has already been persisted.
func (s *TypedScheduler) tryRun(ctx context.Context, p *ast.Program) (*Verdict, bool, error) {
	source := ast.Print(p)

	segment, err := shm.Acquire()
	if err != nil {
		return nil, false, fmt.Errorf("acquire shm segment: %w", err)
	}
	defer segment.Release()

	cfg := sandbox.Config{
		Path:    s.cfg.CompilerPath,
		Args:    append(append([]string{}, s.cfg.CompilerArgs...), "-o", s.asmPath),
		Timeout: s.cfg.Timeout,
		Env:     []string{segment.Env()},
	}
	link := sandbox.LinkConfig{
		Assembler:  s.cfg.LinkerPath,
		Args:       append(append([]string{}, s.cfg.LinkerArgs...), "-o", s.exePath),
		OutputPath: s.exePath,
		RunTimeout: s.cfg.RunTimeout,
	}

	result, err := sandbox.RunTyped(ctx, cfg, link, s.asmPath, source, p.TargetValue)
	if err != nil {
		return nil, false, fmt.Errorf("run typed trial: %w", err)
	}

	switch result.Outcome {
	case sandbox.Crash:
		v, err := persist(s.cfg.OutputDir, "cc", source, artifact.KindCrash, result.Result, nil)
		return &v, false, err
	case sandbox.CandidateICE:
		v, err := persist(s.cfg.OutputDir, "cc", source, artifact.KindCandidateICE, result.Result, nil)
		return &v, false, err
	case sandbox.Rejected, sandbox.Ignored, sandbox.TimedOut:
		return nil, false, nil
	case sandbox.Success:
		if result.Ran && result.Miscompiled {
			compare := &compareValues{actual: int32(result.ActualValue), want: p.TargetValue}
			v, err := persist(s.cfg.OutputDir, "cc", source, artifact.KindMiscompilation, result.Result, compare)
			return &v, false, err
		}
		if !result.Ran {
			return nil, false, nil
		}
		newBits := s.counters.NewBits(segment.Bits)
		pathHash := cover.FromTraceBits(segment.Bits).PathHash()
		if _, dup := s.seenPaths[pathHash]; dup {
			return nil, false, nil
		}
		s.seenPaths[pathHash] = struct{}{}
		return nil, newBits > 0, nil
	}
	return nil, false, nil
}
