package scoring

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriseon/relay/internal/models"
)

func TestScoreEmptyOutput(t *testing.T) {
	e := New(nil)
	res := e.Score(context.Background(), "   ", Context{Query: "anything"})

	assert.Equal(t, 0.0, res.Total)
	assert.Contains(t, res.Notes, "empty output")
}

func TestScoreTotalInRange(t *testing.T) {
	e := New(nil)
	texts := []string{
		"short",
		"Quantum computing uses qubits to explore many states at once.",
		strings.Repeat("quantum computing explained in depth with many words ", 200),
	}
	for _, text := range texts {
		res := e.Score(context.Background(), text, Context{
			Query:  "Explain quantum computing",
			Length: models.LengthStandard,
		})
		assert.GreaterOrEqual(t, res.Total, 0.0)
		assert.LessOrEqual(t, res.Total, 1.0)
	}
}

func TestScoreDeterministic(t *testing.T) {
	e := New(nil)
	sc := Context{Query: "Explain quantum computing", Length: models.LengthBrief}
	text := "Quantum computing manipulates qubits using superposition and entanglement."

	first := e.Score(context.Background(), text, sc)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.Score(context.Background(), text, sc))
	}
}

func TestScoreNullDimensionsExcluded(t *testing.T) {
	e := New(nil)
	res := e.Score(context.Background(),
		"Quantum computing uses qubits, superposition, and entanglement to compute.",
		Context{Query: "Explain quantum computing", Length: models.LengthBrief})

	// No peer, no judge: both starred dimensions stay nil.
	assert.Nil(t, res.Dimensions.Consensus)
	assert.Nil(t, res.Dimensions.FactualAccuracy)

	// The total must equal the renormalized average of the two
	// remaining dimensions, not a quarter-weighted sum.
	want := (res.Dimensions.Alignment*0.35 + res.Dimensions.Completeness*0.25) / 0.60
	assert.InDelta(t, want, res.Total, 1e-9)
}

func TestScoreConsensusWithPeer(t *testing.T) {
	e := New(nil)
	res := e.Score(context.Background(),
		"Qubits enable quantum superposition.",
		Context{
			Query:  "Explain quantum computing",
			Length: models.LengthBrief,
			Peer:   "Qubits enable quantum superposition.",
		})

	require.NotNil(t, res.Dimensions.Consensus)
	assert.InDelta(t, 1.0, *res.Dimensions.Consensus, 1e-9)

	res = e.Score(context.Background(),
		"Qubits enable quantum superposition.",
		Context{Query: "q", Length: models.LengthBrief, Peer: "completely unrelated words entirely"})
	require.NotNil(t, res.Dimensions.Consensus)
	assert.InDelta(t, 0.0, *res.Dimensions.Consensus, 1e-9)
}

func TestAlignmentKeywordOverlap(t *testing.T) {
	full := alignment("Explain quantum computing", "A primer on quantum computing, explained simply.")
	none := alignment("Explain quantum computing", "Bread baking requires patience.")
	assert.Greater(t, full, none)
	assert.Equal(t, 0.0, none)
}

type stubJudge struct {
	score float64
	err   error
}

func (s stubJudge) FactualAccuracy(context.Context, string, string) (float64, error) {
	return s.score, s.err
}

func TestScoreWithJudge(t *testing.T) {
	e := New(stubJudge{score: 0.9})
	res := e.Score(context.Background(), "quantum text about qubits", Context{
		Query:  "quantum",
		Length: models.LengthBrief,
	})
	require.NotNil(t, res.Dimensions.FactualAccuracy)
	assert.InDelta(t, 0.9, *res.Dimensions.FactualAccuracy, 1e-9)

	// A failing judge degrades to nil rather than zeroing the total.
	e = New(stubJudge{err: errors.New("judge offline")})
	res = e.Score(context.Background(), "quantum text about qubits", Context{
		Query:  "quantum",
		Length: models.LengthBrief,
	})
	assert.Nil(t, res.Dimensions.FactualAccuracy)
	assert.Contains(t, res.Notes, "factual accuracy: judge unavailable")
}

func TestJudgeScoreClamped(t *testing.T) {
	e := New(stubJudge{score: 3.5})
	res := e.Score(context.Background(), "text", Context{Query: "text", Length: models.LengthBrief})
	require.NotNil(t, res.Dimensions.FactualAccuracy)
	assert.Equal(t, 1.0, *res.Dimensions.FactualAccuracy)
}
