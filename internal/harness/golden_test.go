package harness

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_LearnAndLock(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/learn_and_lock.yaml")
	require.NoError(t, err)

	// Regenerate with:
	//   go test ./internal/harness -run TestRunWithGolden_LearnAndLock -update
	require.NoError(t, RunWithGolden(t, scenario))
}

func TestAssertGolden_ReusesResult(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/learn_and_lock.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.NoError(t, AssertGolden(t, "learn_and_lock", result))
}
