// Package scheduler implements the two outer loops: the grammar variant's
// restart/seed/mutate/run/admit cycle over a bounded priority queue, and
// the typed variant's fixed-size pool of EWMA-scored test cases. Both
// loops are single-threaded and cooperative: the only suspension points
// are the three waits inside internal/sandbox (stdin write, stderr read,
// waitpid), matching the concurrency model the sandboxed compiler
// invocation itself already encodes.
package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/syzkaller/pkg/log"

	"github.com/vegard/prog-fuzz/internal/artifact"
	"github.com/vegard/prog-fuzz/internal/sandbox"
)

// Verdict is returned when a scheduler loop stops because it found
// something worth keeping: a candidate ICE, a crash, or (typed variant
// only) a miscompilation. Path is the absolute path of the persisted
// reproducer.
type Verdict struct {
	Kind artifact.Kind
	Path string
}

// persist writes the reproducer and prints its absolute path to stdout,
// matching the "prints the absolute path to stdout" contract.
func persist(outputDir, ext, source string, kind artifact.Kind, result sandbox.Result, compare *compareValues) (Verdict, error) {
	o := artifact.Outcome{
		Kind:        kind,
		UnixSeconds: time.Now().Unix(),
		Pid:         os.Getpid(),
		Stderr:      result.Stderr,
	}
	if compare != nil {
		o.HasCompareValues = true
		o.ActualValue = compare.actual
		o.WantValue = compare.want
	}

	path, err := artifact.Persist(outputDir, ext, source, o)
	if err != nil {
		return Verdict{}, fmt.Errorf("persist reproducer: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	fmt.Println(abs)
	log.Logf(0, "scheduler: %s reproducer at %s", kind, abs)

	return Verdict{Kind: kind, Path: abs}, nil
}

type compareValues struct {
	actual int32
	want   int32
}
