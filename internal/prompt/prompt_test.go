package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriseon/relay/internal/models"
)

func TestBuildDraftIsQueryVerbatim(t *testing.T) {
	built := Build(Input{
		Role:   models.RoleDraft,
		Query:  "Explain quantum computing",
		Length: models.LengthStandard,
	})

	assert.Equal(t, "Explain quantum computing", built.User)
	assert.Contains(t, built.System, DefaultInstructions)
	assert.Contains(t, built.System, "Standard length")
}

func TestBuildRefineEmbedsPriorOutput(t *testing.T) {
	built := Build(Input{
		Role:     models.RoleRefine,
		Query:    "Explain quantum computing",
		Previous: "Qubits are two-state quantum systems.",
		Length:   models.LengthStandard,
	})

	// The exact draft text must appear as a substring so the next model
	// sees precisely what it is improving.
	assert.Contains(t, built.User, "Original request: Explain quantum computing")
	assert.Contains(t, built.User, "Initial draft to improve:\nQubits are two-state quantum systems.")
	assert.Contains(t, built.User, "improved, refined version")
}

func TestBuildSynthesisEmbedsPriorOutput(t *testing.T) {
	built := Build(Input{
		Role:     models.RoleSynthesis,
		Query:    "Explain quantum computing",
		Previous: "refined text here",
		Length:   models.LengthBrief,
	})

	assert.Contains(t, built.User, "Refined response to validate:\nrefined text here")
	assert.Contains(t, built.User, "final, polished version")
	assert.Contains(t, built.System, "Keep it brief")
}

func TestBuildDegradedModeFallsBackToQuery(t *testing.T) {
	// When the prior stage failed there is no Previous text; later
	// stages get the original query rather than an error string.
	for _, role := range []models.Role{models.RoleRefine, models.RoleSynthesis} {
		built := Build(Input{
			Role:   role,
			Query:  "Explain quantum computing",
			Length: models.LengthStandard,
		})
		assert.Equal(t, "Explain quantum computing", built.User, "role %s", role)
	}
}

func TestBuildExtrasAreAppendOnly(t *testing.T) {
	built := Build(Input{
		Role:     models.RoleRefine,
		Query:    "q",
		Previous: "draft",
		Extra:    "cite your sources",
		Length:   models.LengthStandard,
	})

	// The built-in template survives and the extra follows it.
	templateIdx := strings.Index(built.User, "Initial draft to improve")
	extraIdx := strings.Index(built.User, "cite your sources")
	require.Greater(t, templateIdx, -1)
	require.Greater(t, extraIdx, -1)
	assert.Greater(t, extraIdx, templateIdx)
	assert.Contains(t, built.User, "--- Additional instructions (append-only) ---")
	assert.Contains(t, built.User, "--- End additional instructions ---")
}

func TestBuildExtrasCapped(t *testing.T) {
	long := strings.Repeat("x", 10000)
	built := Build(Input{Role: models.RoleDraft, Query: "q", Extra: long, Length: models.LengthStandard})
	assert.Less(t, len(built.User), 4200)
}

func TestBuildCustomInstructions(t *testing.T) {
	built := Build(Input{
		Role:         models.RoleDraft,
		Query:        "q",
		Instructions: "You are a terse expert.",
		Length:       models.LengthComprehensive,
	})
	assert.Contains(t, built.System, "You are a terse expert.")
	assert.NotContains(t, built.System, DefaultInstructions)
	assert.Contains(t, built.System, "800-1200 words")
}

func TestLengthClassTables(t *testing.T) {
	assert.Equal(t, 350, MaxOutputTokens(models.LengthBrief))
	assert.Equal(t, 900, MaxOutputTokens(models.LengthStandard))
	assert.Equal(t, 1600, MaxOutputTokens(models.LengthComprehensive))

	assert.Less(t, TargetWords(models.LengthBrief), TargetWords(models.LengthStandard))
	assert.Less(t, TargetWords(models.LengthStandard), TargetWords(models.LengthComprehensive))
}
