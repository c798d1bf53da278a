// Command progfuzz-grammar runs the grammar-driven variant: it grows a
// textual program tree from a weighted grammar and rewards coverage via
// a shared instrumentation map. It takes no options and runs until it
// finds a defect or is interrupted.
package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/google/syzkaller/pkg/log"

	"github.com/vegard/prog-fuzz/internal/config"
	"github.com/vegard/prog-fuzz/internal/grammar"
	"github.com/vegard/prog-fuzz/internal/scheduler"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	arena := grammar.NewArena()
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	sched := scheduler.NewGrammarScheduler(arena, defaultTable, cfg, rnd)

	verdict, err := sched.Run(ctx)
	if err != nil {
		log.Fatalf("progfuzz-grammar: %v", err)
	}
	if verdict != nil {
		log.Logf(0, "progfuzz-grammar: stopped on %s, reproducer at %s", verdict.Kind, verdict.Path)
	}
}
