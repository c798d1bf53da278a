// Package shm manages the AFL-compatible SysV shared-memory segment the
// instrumented compiler writes its trace bitmap into. The engine attaches
// one segment, advertises it to the compiler subprocess via SHM_ENV_VAR,
// and detaches/removes it when done; a fresh segment is acquired for
// every scheduling run (see internal/scheduler) so that one run's leaked
// instrumentation state can never bleed into the next.
package shm

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/vegard/prog-fuzz/internal/cover"
)

// EnvVar is the environment variable AFL-style instrumentation consults
// to find its shared-memory segment ID.
const EnvVar = "__AFL_SHM_ID"

// Segment is one attached shared-memory trace bitmap.
type Segment struct {
	id   int
	Bits []byte
}

// Acquire allocates a new MapSize segment, attaches it into this
// process's address space, and returns it. Callers must Release it
// exactly once.
func Acquire() (*Segment, error) {
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, cover.MapSize, unix.IPC_CREAT|unix.IPC_EXCL|0600)
	if err != nil {
		return nil, fmt.Errorf("shmget: %w", err)
	}

	addr, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return nil, fmt.Errorf("shmat: %w", err)
	}

	return &Segment{id: id, Bits: addr}, nil
}

// Env returns the SHM_ENV_VAR=id assignment to splice into a subprocess's
// environment so it can find this segment.
func (s *Segment) Env() string {
	return fmt.Sprintf("%s=%d", EnvVar, s.id)
}

// Clear zeroes the bitmap in place, to be called between trials that
// reuse the same segment.
func (s *Segment) Clear() {
	for i := range s.Bits {
		s.Bits[i] = 0
	}
}

// Release detaches and removes the segment. It is safe to call at most
// once per Segment.
func (s *Segment) Release() error {
	if err := unix.SysvShmDetach(s.Bits); err != nil {
		return fmt.Errorf("shmdt: %w", err)
	}
	if _, err := unix.SysvShmCtl(s.id, unix.IPC_RMID, nil); err != nil {
		return fmt.Errorf("shmctl(IPC_RMID): %w", err)
	}
	return nil
}
