package testutil

import (
	"bufio"
	"errors"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	RunFakeEngineIfRequested()
	os.Exit(m.Run())
}

func TestFakeEngine_WritesScriptAndArgs(t *testing.T) {
	binary, argsFile := FakeEngine{
		Lines:  []string{"LOCKED a.com to strategy=3", "noise"},
		Stderr: []string{"warning: something"},
	}.Install(t)

	out, err := exec.Command(binary, "@engine.conf", "--verbose=1").CombinedOutput()
	require.NoError(t, err)

	text := string(out)
	assert.Contains(t, text, "LOCKED a.com to strategy=3\n")
	assert.Contains(t, text, "noise\n")
	assert.Contains(t, text, "warning: something\n")
	assert.NotContains(t, text, stderrPrefix)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"@engine.conf", "--verbose=1"}, strings.Fields(string(args)))
}

func TestFakeEngine_ExitFailure(t *testing.T) {
	binary, _ := FakeEngine{Mode: ExitFailure}.Install(t)

	err := exec.Command(binary).Run()

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, FakeExitCode, exitErr.ExitCode())
}

func TestFakeEngine_ExitOnTerm(t *testing.T) {
	binary, _ := FakeEngine{Lines: []string{"ready"}, Mode: ExitOnTerm}.Install(t)

	cmd := exec.Command(binary)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	// The handler is installed before the script is written, so once the
	// line arrives SIGTERM is caught.
	line, err := bufio.NewReader(stdout).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ready\n", line)

	require.NoError(t, cmd.Process.Signal(syscall.SIGTERM))
	assert.NoError(t, cmd.Wait())
}

func TestRunFakeEngineIfRequested_NoopWithoutEnv(t *testing.T) {
	t.Setenv(fakeEngineEnv, "")
	assert.NotPanics(t, RunFakeEngineIfRequested)
}
