// Package sandbox forks, execs, and supervises the compiler-under-test
// subprocess: it feeds a rendered program on stdin, captures a bounded
// amount of stderr, enforces a wall-clock timeout, and classifies the
// outcome into the buckets the scheduler needs (success, plain rejection,
// ignored ICE, candidate ICE, crash).
package sandbox

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/syzkaller/pkg/log"
)

// Outcome classifies how a trial ended.
type Outcome int

const (
	// Success is a clean exit code 0.
	Success Outcome = iota
	// Rejected is a nonzero exit whose stderr carries no internal
	// compiler error signature at all: an ordinary rejection of an
	// invalid candidate. Discarded, not persisted.
	Rejected
	// Ignored is a nonzero exit whose stderr matches a known benign
	// internal-compiler-error fingerprint; never surfaced or admitted.
	Ignored
	// CandidateICE is a nonzero exit whose stderr carries an internal
	// compiler error signature not recognised as benign.
	CandidateICE
	// Crash is termination by a fatal signal other than the sandbox's
	// own timeout kill.
	Crash
	// TimedOut is termination by the sandbox's own timeout kill. Treated
	// like a plain compiler rejection: discarded, not persisted.
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Rejected:
		return "rejected"
	case Ignored:
		return "ignored"
	case CandidateICE:
		return "candidate-ice"
	case Crash:
		return "crash"
	case TimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// stderrCap bounds how much stderr the sandbox ever buffers, matching
// the teacher's fixed-size read in spirit without the fixed buffer's
// silent truncation-at-an-arbitrary-NUL behavior.
const stderrCap = 10 * 4096

// benignICEFingerprints is the grammar variant's deny-list, carried over
// verbatim: internal-compiler-error reports that are already known and
// not interesting to keep rediscovering.
var benignICEFingerprints = []string{
	"types may not be defined in parameter types",
	"internal compiler error: in synthesize_implicit_template_parm",
	"internal compiler error: in search_anon_aggr",
	"non_type_check",
	"internal compiler error: in xref_basetypes, at",
	"internal compiler error: in build_capture_proxy",
	"internal compiler error: tree check: expected record_type or union_type or qual_union_type, have array_type in reduced_constant_expression_p",
}

// Config describes how to invoke the compiler under test.
type Config struct {
	Path    string
	Args    []string
	Timeout time.Duration
	// Env is appended to the subprocess's environment (typically the
	// shared-memory segment's SHM_ENV_VAR assignment).
	Env []string
}

// Result is one trial's outcome.
type Result struct {
	Outcome  Outcome
	ExitCode int
	Stderr   string
}

// Run feeds source to the compiler over stdin and classifies the result
// using the grammar variant's benign-ICE fingerprint list. stdout is
// always discarded; this variant never needs it.
func Run(ctx context.Context, cfg Config, source string) (Result, error) {
	result, err := runWithClassifier(ctx, cfg, source, isBenignICE)
	if err != nil {
		return result, err
	}
	log.Logf(2, "sandbox: outcome=%s exit=%d stderr_len=%d", result.Outcome, result.ExitCode, len(result.Stderr))
	return result, nil
}

func isBenignICE(stderr string) bool {
	if !hasICESignature(stderr) {
		return false
	}
	for _, fp := range benignICEFingerprints {
		if strings.Contains(stderr, fp) {
			return true
		}
	}
	return false
}

// hasICESignature reports whether stderr carries the one substring every
// internal-compiler-error report shares. A nonzero exit without it is a
// plain compiler rejection, not a candidate ICE.
func hasICESignature(stderr string) bool {
	return strings.Contains(stderr, "internal compiler error")
}

// boundedBuffer is an io.Writer that discards bytes past a fixed cap,
// rather than growing without limit the way bytes.Buffer alone would —
// a misbehaving compiler invocation must never be able to exhaust the
// engine's own memory via its stderr stream.
type boundedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		p = p[:remaining]
	}
	n, err := b.buf.Write(p)
	return n, err
}

func (b *boundedBuffer) String() string { return b.buf.String() }

var _ io.Writer = (*boundedBuffer)(nil)
