package shm

import (
	"strings"
	"testing"

	"github.com/vegard/prog-fuzz/internal/cover"
)

func TestAcquireAttachesMapSizeBytes(t *testing.T) {
	seg, err := Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer seg.Release()

	if len(seg.Bits) != cover.MapSize {
		t.Fatalf("attached segment length = %d, want %d", len(seg.Bits), cover.MapSize)
	}
}

func TestEnvNamesTheAdvertisedVariable(t *testing.T) {
	seg, err := Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer seg.Release()

	if !strings.HasPrefix(seg.Env(), EnvVar+"=") {
		t.Fatalf("Env() = %q, want prefix %q", seg.Env(), EnvVar+"=")
	}
}

func TestClearZeroesBitmap(t *testing.T) {
	seg, err := Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer seg.Release()

	seg.Bits[0] = 42
	seg.Clear()
	if seg.Bits[0] != 0 {
		t.Fatalf("Clear left a nonzero byte")
	}
}
