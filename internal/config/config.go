// Package config resolves the engine's ambient configuration. The
// command line itself takes no positional arguments (the program's
// identity is hardcoded per invocation: grammar vs. typed), matching the
// teacher's var-block flag.* idiom for the one flag that does exist.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds every knob the scheduler and sandbox need that isn't
// hardcoded in the mutation catalogue itself.
type Config struct {
	// CompilerPath is the compiler (or single compiler phase, e.g.
	// cc1plus) to invoke.
	CompilerPath string
	// CompilerArgs is its fixed command line, minus the input/output
	// redirection the sandbox itself manages.
	CompilerArgs []string
	// Timeout is the sandbox's wall-clock budget per trial.
	Timeout time.Duration
	// OutputDir is where reproducers are persisted.
	OutputDir string
	// Verbose is set by the -v flag; higher values request more
	// detailed pkg/log output.
	Verbose int

	// LinkerPath and LinkerArgs assemble+link the typed variant's
	// compiler output into a runnable executable.
	LinkerPath string
	LinkerArgs []string
	// RunTimeout bounds how long the typed variant's linked executable
	// is allowed to run before being treated as a timeout.
	RunTimeout time.Duration
}

const (
	envCompilerPath = "PROGFUZZ_COMPILER"
	envCompilerArgs = "PROGFUZZ_COMPILER_ARGS"
	envTimeout      = "PROGFUZZ_TIMEOUT_MS"
	envOutputDir    = "PROGFUZZ_OUTPUT_DIR"
	envLinkerPath   = "PROGFUZZ_LINKER"
	envLinkerArgs   = "PROGFUZZ_LINKER_ARGS"
	envRunTimeout   = "PROGFUZZ_RUN_TIMEOUT_MS"

	defaultTimeout    = 500 * time.Millisecond
	defaultOutputDir  = "output"
	defaultLinkerPath = "g++"
	defaultRunTimeout = 2 * time.Second
)

var verboseFlag = flag.Int("v", 0, "verbosity level for pkg/log")

// Load parses flags (if not already parsed) and resolves the rest of
// the configuration from the environment, falling back to the defaults
// the original engine hardcoded.
func Load() Config {
	if !flag.Parsed() {
		flag.Parse()
	}

	cfg := Config{
		CompilerPath: os.Getenv(envCompilerPath),
		Timeout:      defaultTimeout,
		OutputDir:    defaultOutputDir,
		Verbose:      *verboseFlag,
		LinkerPath:   defaultLinkerPath,
		RunTimeout:   defaultRunTimeout,
	}

	if cfg.CompilerPath == "" {
		cfg.CompilerPath = "/usr/bin/cc1plus"
	}
	if args := os.Getenv(envCompilerArgs); args != "" {
		cfg.CompilerArgs = splitArgs(args)
	}
	if ms := os.Getenv(envTimeout); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 {
			cfg.Timeout = time.Duration(v) * time.Millisecond
		}
	}
	if dir := os.Getenv(envOutputDir); dir != "" {
		cfg.OutputDir = dir
	}
	if linker := os.Getenv(envLinkerPath); linker != "" {
		cfg.LinkerPath = linker
	}
	if args := os.Getenv(envLinkerArgs); args != "" {
		cfg.LinkerArgs = splitArgs(args)
	}
	if ms := os.Getenv(envRunTimeout); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 {
			cfg.RunTimeout = time.Duration(v) * time.Millisecond
		}
	}

	return cfg
}

func splitArgs(s string) []string {
	var args []string
	var cur []rune
	for _, r := range s {
		if r == ' ' {
			if len(cur) > 0 {
				args = append(args, string(cur))
				cur = nil
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		args = append(args, string(cur))
	}
	return args
}
