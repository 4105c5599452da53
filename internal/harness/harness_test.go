package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_Scenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name must match its file")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertion errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/overlapping_toggles.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_GuestID(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "guest",
		Description: "custom guest id",
		Visitor:     VisitorSpec{GuestID: "Abc123"},
		Steps:       []Step{{Refresh: &RefreshStep{Target: "event:1"}}},
		Assertions:  []Assertion{{Type: AssertNotices}},
	})
	require.NoError(t, err)
	assert.Equal(t, "g:abc123", string(result.Visitor))
}

func TestRun_FailingAssertionsReported(t *testing.T) {
	likes := int64(99)
	result, err := Run(&Scenario{
		Name:        "wrong",
		Description: "assertions that do not hold",
		Steps:       []Step{{Toggle: &ToggleStep{Target: "event:1", Direction: "like"}}},
		Assertions: []Assertion{
			{Type: AssertLedger, Target: "event:1", Expect: "dislike"},
			{Type: AssertCounts, Target: "event:1", Likes: &likes},
			{Type: AssertRequests, Ops: []string{"set"}},
		},
	})
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "Expected: dislike")
	assert.Contains(t, result.Errors[1], "likes=99")
	assert.Contains(t, result.Errors[2], "[set totals]")
}

func TestRun_ResolveUnknownSeq(t *testing.T) {
	_, err := Run(&Scenario{
		Name:        "bad resolve",
		Description: "resolving a dispatch that was never held",
		Steps: []Step{
			{Toggle: &ToggleStep{Target: "event:1", Direction: "like"}},
			{Resolve: &ResolveStep{Seq: 1}},
		},
		Assertions: []Assertion{{Type: AssertNotices}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no held dispatch with seq 1")
}

func TestRun_ResolveTwice(t *testing.T) {
	_, err := Run(&Scenario{
		Name:        "double resolve",
		Description: "a held dispatch resolves once",
		Steps: []Step{
			{Toggle: &ToggleStep{Target: "event:1", Direction: "like", Hold: true}},
			{Resolve: &ResolveStep{Seq: 1}},
			{Resolve: &ResolveStep{Seq: 1}},
		},
		Assertions: []Assertion{{Type: AssertNotices}},
	})
	require.Error(t, err)
}

func TestRun_DismissNotice(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "dismiss",
		Description: "dismissing a notice removes it",
		Steps: []Step{
			{Toggle: &ToggleStep{Target: "event:1", Direction: "like", Fail: true}},
			{Toggle: &ToggleStep{Target: "event:1", Direction: "dislike", Fail: true}},
			{Dismiss: &DismissStep{Seq: 1}},
		},
		Assertions: []Assertion{
			{Type: AssertNotices, Seqs: []int64{2}},
			{Type: AssertLedger, Target: "event:1", Expect: "none"},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertion errors: %v", result.Errors)
}

func TestRun_DismissUnknown(t *testing.T) {
	_, err := Run(&Scenario{
		Name:        "dismiss unknown",
		Description: "dismissing a notice that does not exist",
		Steps:       []Step{{Dismiss: &DismissStep{Seq: 4}}},
		Assertions:  []Assertion{{Type: AssertNotices}},
	})
	require.Error(t, err)
}

func TestRun_ClearWithoutReactionIsNoop(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "clear noop",
		Description: "clearing nothing sends nothing",
		Steps:       []Step{{Clear: &ClearStep{Target: "event:1"}}},
		Assertions:  []Assertion{{Type: AssertRequests}},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertion errors: %v", result.Errors)
	assert.Empty(t, result.Trace)
}
