// Command progfuzz-valid runs the semantics-preserving variant: it
// repeatedly mutates a typed expression/statement tree whose observable
// output must remain constant while the compiler is probed. It takes no
// options and runs until it finds a defect or is interrupted.
package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/google/syzkaller/pkg/log"

	"github.com/vegard/prog-fuzz/internal/config"
	"github.com/vegard/prog-fuzz/internal/scheduler"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	sched, err := scheduler.NewTypedScheduler(cfg, rnd)
	if err != nil {
		log.Fatalf("progfuzz-valid: %v", err)
	}

	verdict, err := sched.Run(ctx)
	if err != nil {
		log.Fatalf("progfuzz-valid: %v", err)
	}
	if verdict != nil {
		log.Logf(0, "progfuzz-valid: stopped on %s, reproducer at %s", verdict.Kind, verdict.Path)
	}
}
