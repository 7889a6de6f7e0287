package testutil

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

// Environment read by the fake engine. Install sets these; the spawned test
// binary reads them in RunFakeEngineIfRequested.
const (
	fakeEngineEnv = "BYPASSD_FAKE_ENGINE"
	fakeScriptEnv = "BYPASSD_FAKE_ENGINE_SCRIPT"
	fakeModeEnv   = "BYPASSD_FAKE_ENGINE_MODE"
	fakeArgsEnv   = "BYPASSD_FAKE_ENGINE_ARGS"
)

// stderrPrefix marks script lines the fake engine writes to stderr.
const stderrPrefix = "2>"

// FakeExitCode is the status ExitFailure exits with.
const FakeExitCode = 3

// ExitMode selects what the fake engine does after writing its script.
type ExitMode string

const (
	// ExitAfterScript exits 0 as soon as the script is written.
	ExitAfterScript ExitMode = "exit"
	// ExitOnTerm blocks until SIGTERM, then exits 0.
	ExitOnTerm ExitMode = "term"
	// IgnoreTerm ignores SIGTERM and blocks until killed.
	IgnoreTerm ExitMode = "stubborn"
	// ExitFailure exits with FakeExitCode after the script.
	ExitFailure ExitMode = "fail"
)

// FakeEngine describes one run of the fake engine.
//
// The fake engine is the test binary itself: a package's TestMain calls
// RunFakeEngineIfRequested first, so when the supervisor spawns
// os.Executable() with the fake-engine environment set, the child prints the
// scripted lines instead of running tests.
type FakeEngine struct {
	// Lines are written to stdout in order.
	Lines []string
	// Stderr lines are written to stderr after Lines.
	Stderr []string
	// Mode defaults to ExitAfterScript.
	Mode ExitMode
}

// Install writes the script and sets the environment for the fake engine.
// It returns the binary to configure as the engine and the file the engine
// will write its command-line arguments to, one per line.
//
// Install uses t.Setenv, so it cannot be used in parallel tests.
func (f FakeEngine) Install(t testing.TB) (binary, argsFile string) {
	t.Helper()

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("locate test binary: %v", err)
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "engine-script.txt")
	var b strings.Builder
	for _, l := range f.Lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	for _, l := range f.Stderr {
		b.WriteString(stderrPrefix)
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(script, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write engine script: %v", err)
	}

	mode := f.Mode
	if mode == "" {
		mode = ExitAfterScript
	}
	argsFile = filepath.Join(dir, "engine-args.txt")

	t.Setenv(fakeEngineEnv, "1")
	t.Setenv(fakeScriptEnv, script)
	t.Setenv(fakeModeEnv, string(mode))
	t.Setenv(fakeArgsEnv, argsFile)
	return exe, argsFile
}

// RunFakeEngineIfRequested turns the current process into the fake engine
// when the fake-engine environment is set, and never returns in that case.
// Call it first thing in TestMain.
func RunFakeEngineIfRequested() {
	if os.Getenv(fakeEngineEnv) != "1" {
		return
	}
	os.Exit(runFakeEngine(os.Args[1:]))
}

func runFakeEngine(args []string) int {
	mode := ExitMode(os.Getenv(fakeModeEnv))
	term := make(chan os.Signal, 1)
	switch mode {
	case IgnoreTerm:
		signal.Ignore(syscall.SIGTERM)
	case ExitOnTerm:
		signal.Notify(term, syscall.SIGTERM)
	}

	if path := os.Getenv(fakeArgsEnv); path != "" {
		if err := os.WriteFile(path, []byte(strings.Join(args, "\n")+"\n"), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "fake engine: write args: %v\n", err)
			return 2
		}
	}

	script, err := os.ReadFile(os.Getenv(fakeScriptEnv))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fake engine: read script: %v\n", err)
		return 2
	}
	for _, line := range strings.SplitAfter(string(script), "\n") {
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, stderrPrefix); ok {
			fmt.Fprint(os.Stderr, rest)
			continue
		}
		fmt.Fprint(os.Stdout, line)
	}

	switch mode {
	case ExitOnTerm:
		select {
		case <-term:
			return 0
		case <-time.After(time.Hour):
			return 4
		}
	case IgnoreTerm:
		for {
			time.Sleep(time.Hour)
		}
	case ExitFailure:
		return FakeExitCode
	default:
		return 0
	}
}
