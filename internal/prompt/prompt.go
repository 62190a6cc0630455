// Package prompt builds the exact prompt text for each pipeline stage.
// It is pure: no I/O, no clocks, deterministic for identical inputs.
package prompt

import (
	"fmt"
	"strings"

	"github.com/chriseon/relay/internal/models"
)

// DefaultInstructions is the system header used when a run supplies none.
const DefaultInstructions = "You are a precise, professional assistant."

// maxExtraLen caps user-supplied per-stage instructions to avoid
// runaway prompts.
const maxExtraLen = 4000

// Input is everything the builder needs for one stage.
type Input struct {
	Role  models.Role
	Query string

	// Previous is the prior stage's output text. Empty for the draft
	// stage, or when the prior stage failed and the pipeline is running
	// in degraded mode.
	Previous string

	// Extra is user-supplied append-only text for this stage.
	Extra string

	Length       models.OutputLength
	Instructions string
}

// Built is the assembled prompt pair for one provider invocation.
type Built struct {
	System string
	User   string
}

// Build assembles the stage prompt. The chaining templates are fixed;
// user extras are appended after them and can never replace them.
func Build(in Input) Built {
	instructions := in.Instructions
	if strings.TrimSpace(instructions) == "" {
		instructions = DefaultInstructions
	}

	system := instructions + "\n\n" + LengthHint(in.Length)

	var user string
	switch {
	case in.Role == models.RoleRefine && in.Previous != "":
		user = fmt.Sprintf(
			"Original request: %s\n\n"+
				"Initial draft to improve:\n%s\n\n"+
				"Analyze the draft and provide an improved, refined version. "+
				"Address gaps, improve clarity, ensure completeness.",
			in.Query, in.Previous)
	case in.Role == models.RoleSynthesis && in.Previous != "":
		user = fmt.Sprintf(
			"Original request: %s\n\n"+
				"Refined response to validate:\n%s\n\n"+
				"Review against the original request. "+
				"Verify accuracy, completeness, structure. Provide the final, polished version.",
			in.Query, in.Previous)
	default:
		// Draft, or degraded mode: the query stands alone.
		user = in.Query
	}

	if extra := strings.TrimSpace(in.Extra); extra != "" {
		if len(extra) > maxExtraLen {
			extra = extra[:maxExtraLen]
		}
		user = fmt.Sprintf(
			"%s\n\n--- Additional instructions (append-only) ---\n%s\n--- End additional instructions ---",
			user, extra)
	}

	return Built{System: system, User: user}
}

// LengthHint returns the advisory sizing sentence for a length class.
func LengthHint(class models.OutputLength) string {
	switch class {
	case models.LengthBrief:
		return "Keep it brief: ~5-8 sentences. Prioritize the highest-signal points."
	case models.LengthComprehensive:
		return "Comprehensive (bounded): aim for ~800-1200 words with clear headings and actionable detail."
	default:
		return "Standard length: clear, complete, and structured without being exhaustive."
	}
}

// MaxOutputTokens returns the best-effort output token cap for a length
// class. Providers treat this as a hint; some ignore it.
func MaxOutputTokens(class models.OutputLength) int {
	switch class {
	case models.LengthBrief:
		return 350
	case models.LengthComprehensive:
		return 1600
	default:
		return 900
	}
}

// TargetWords returns the rough word count a length class aims for,
// used by the scorer's completeness dimension.
func TargetWords(class models.OutputLength) int {
	switch class {
	case models.LengthBrief:
		return 120
	case models.LengthComprehensive:
		return 1000
	default:
		return 400
	}
}
