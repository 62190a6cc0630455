package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelRef(t *testing.T) {
	provider, model, err := ParseModelRef("openai:gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "openai", provider)
	assert.Equal(t, "gpt-4o-mini", model)

	// Provider names are normalized, model names are not.
	provider, model, err = ParseModelRef("Anthropic:claude-sonnet-4-5")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", provider)
	assert.Equal(t, "claude-sonnet-4-5", model)

	// Model parts may contain colons of their own.
	_, model, err = ParseModelRef("gemini:models:gemini-pro")
	require.NoError(t, err)
	assert.Equal(t, "models:gemini-pro", model)

	for _, bad := range []string{"", "gpt-4o", ":gpt-4o", "openai:"} {
		_, _, err := ParseModelRef(bad)
		assert.Error(t, err, "ref %q should be rejected", bad)
	}
}

func TestStagesFixedOrder(t *testing.T) {
	stages := Stages()
	require.Len(t, stages, 3)

	assert.Equal(t, Stage{PassIndex: 1, Slot: SlotA, Role: RoleDraft}, stages[0])
	assert.Equal(t, Stage{PassIndex: 2, Slot: SlotB, Role: RoleRefine}, stages[1])
	assert.Equal(t, Stage{PassIndex: 3, Slot: SlotC, Role: RoleSynthesis}, stages[2])
}

func TestNormalizeOutputLength(t *testing.T) {
	assert.Equal(t, LengthBrief, NormalizeOutputLength(" Brief "))
	assert.Equal(t, LengthComprehensive, NormalizeOutputLength("comprehensive"))
	assert.Equal(t, LengthStandard, NormalizeOutputLength("standard"))
	assert.Equal(t, LengthStandard, NormalizeOutputLength(""))
	assert.Equal(t, LengthStandard, NormalizeOutputLength("gigantic"))
}

func TestRunStatusTerminal(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestArtifactErrored(t *testing.T) {
	a := &Artifact{OutputText: "hello"}
	assert.False(t, a.Errored())
	assert.True(t, a.Usable())

	msg := "timeout after 30s"
	a = &Artifact{Error: &msg}
	assert.True(t, a.Errored())
	assert.False(t, a.Usable())

	empty := ""
	a = &Artifact{Error: &empty, OutputText: "x"}
	assert.False(t, a.Errored())
}

func TestUsageAccumulation(t *testing.T) {
	var total Usage
	total.Add(Usage{InputTokens: 10, OutputTokens: 20})
	total.Add(Usage{InputTokens: 1, OutputTokens: 2})
	assert.Equal(t, Usage{InputTokens: 11, OutputTokens: 22}, total)
	assert.Equal(t, 33, total.Total())
}
