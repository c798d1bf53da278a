// Package artifact persists reproducers: the source text of a failing
// trial (required by spec.md §6) plus a protobuf-encoded outcome sidecar
// recording why it was kept, so that triage doesn't need to re-run the
// compiler to learn the exit classification or the stderr that earned
// the file a spot on disk.
//
// The sidecar is encoded by hand against the low-level protowire API
// rather than through generated .pb.go bindings, since no protoc step
// runs as part of building this module; the wire format itself is still
// a real, directly protobuf-decodable message (see Schema below).
package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protowire"
)

// Kind names why a reproducer was persisted.
type Kind string

const (
	KindCandidateICE   Kind = "candidate-ice"
	KindCrash          Kind = "crash"
	KindMiscompilation Kind = "miscompilation"
)

// Outcome is everything worth recording about why a trial was kept.
type Outcome struct {
	Kind         Kind
	UnixSeconds  int64
	Pid          int
	Stderr       string
	ActualValue  int32
	WantValue    int32
	HasCompareValues bool
}

// Schema documents the outcome sidecar's wire layout, field numbers
// fixed for forward compatibility with a future generated-code client:
//
//	message Outcome {
//		string kind = 1;
//		int64 unix_seconds = 2;
//		int64 pid = 3;
//		string stderr = 4;
//		int32 actual_value = 5;
//		int32 want_value = 6;
//	}
const (
	fieldKind        = protowire.Number(1)
	fieldUnixSeconds = protowire.Number(2)
	fieldPid         = protowire.Number(3)
	fieldStderr      = protowire.Number(4)
	fieldActualValue = protowire.Number(5)
	fieldWantValue   = protowire.Number(6)
)

func encode(o Outcome) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldKind, protowire.BytesType)
	b = protowire.AppendString(b, string(o.Kind))
	b = protowire.AppendTag(b, fieldUnixSeconds, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(o.UnixSeconds))
	b = protowire.AppendTag(b, fieldPid, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(o.Pid))
	b = protowire.AppendTag(b, fieldStderr, protowire.BytesType)
	b = protowire.AppendString(b, o.Stderr)
	if o.HasCompareValues {
		b = protowire.AppendTag(b, fieldActualValue, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(o.ActualValue)))
		b = protowire.AppendTag(b, fieldWantValue, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(o.WantValue)))
	}
	return b
}

// Name is the base file name (without extension) spec.md §6 specifies:
// derived from wall-clock seconds and process id.
func Name(o Outcome) string {
	return fmt.Sprintf("%d-%d", o.UnixSeconds, o.Pid)
}

// Persist writes dir/<name>.<ext> containing source and
// dir/<name>.outcome.pb containing the encoded Outcome sidecar, and
// returns the source file's path.
func Persist(dir, ext, source string, o Outcome) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	name := Name(o)
	sourcePath := filepath.Join(dir, name+"."+ext)
	if err := os.WriteFile(sourcePath, []byte(source), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", sourcePath, err)
	}

	sidecarPath := filepath.Join(dir, name+".outcome.pb")
	if err := os.WriteFile(sidecarPath, encode(o), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", sidecarPath, err)
	}

	return sourcePath, nil
}
