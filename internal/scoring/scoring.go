// Package scoring computes a heuristic quality score for one artifact.
// Scoring is deterministic and makes no network calls: identical inputs
// always produce identical scores.
package scoring

import (
	"context"
	"strings"
	"unicode"

	"github.com/chriseon/relay/internal/models"
	"github.com/chriseon/relay/internal/prompt"
)

// Dimension weights. Nil dimensions are excluded and the remaining
// weights renormalize, so the total stays in [0,1].
const (
	weightAlignment    = 0.35
	weightCompleteness = 0.25
	weightConsensus    = 0.20
	weightFactual      = 0.20
)

// Context carries the artifact's surroundings needed for scoring.
type Context struct {
	Query  string
	Length models.OutputLength

	// Peer is a sibling output used for the consensus dimension,
	// normally the preceding stage's text. Empty means consensus is
	// not computable and stays nil.
	Peer string
}

// Judge is the pluggable factual-accuracy checker. The baseline engine
// has none, so factual accuracy is nil; a deployment may wire an
// LLM-backed judge here.
type Judge interface {
	FactualAccuracy(ctx context.Context, query, text string) (float64, error)
}

// Engine scores artifact text against its context.
type Engine struct {
	judge Judge
}

// New creates a scoring engine. judge may be nil.
func New(judge Judge) *Engine {
	return &Engine{judge: judge}
}

// Result is the scoring output before persistence.
type Result struct {
	Total      float64
	Dimensions models.Dimensions
	Notes      []string
	Meta       models.ScoreMeta
}

// Score evaluates text. Empty output scores zero across the board.
func (e *Engine) Score(ctx context.Context, text string, sc Context) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{
			Notes: []string{"empty output"},
		}
	}

	words := countWords(trimmed)
	res := Result{
		Meta: models.ScoreMeta{Words: words},
	}

	res.Dimensions.Alignment = alignment(sc.Query, trimmed)
	res.Dimensions.Completeness = completeness(sc.Query, trimmed, words, sc.Length)

	if sc.Peer != "" {
		c := consensus(trimmed, sc.Peer)
		res.Dimensions.Consensus = &c
	} else {
		res.Notes = append(res.Notes, "consensus: no peer artifact")
	}

	if e.judge != nil {
		if fa, err := e.judge.FactualAccuracy(ctx, sc.Query, trimmed); err == nil {
			clamped := clamp01(fa)
			res.Dimensions.FactualAccuracy = &clamped
		} else {
			res.Notes = append(res.Notes, "factual accuracy: judge unavailable")
		}
	} else {
		res.Notes = append(res.Notes, "factual accuracy: no judge configured")
	}

	res.Total = weightedTotal(res.Dimensions)
	return res
}

// weightedTotal averages the non-nil dimensions, renormalizing weights
// so they always sum to 1. Alignment and completeness are always
// present, so the denominator is never zero.
func weightedTotal(d models.Dimensions) float64 {
	sum := d.Alignment*weightAlignment + d.Completeness*weightCompleteness
	wsum := weightAlignment + weightCompleteness

	if d.Consensus != nil {
		sum += *d.Consensus * weightConsensus
		wsum += weightConsensus
	}
	if d.FactualAccuracy != nil {
		sum += *d.FactualAccuracy * weightFactual
		wsum += weightFactual
	}

	return clamp01(sum / wsum)
}

// alignment measures lexical overlap between the query's content words
// and the output.
func alignment(query, text string) float64 {
	keywords := contentWords(query)
	if len(keywords) == 0 {
		return 0.5
	}

	textWords := wordSet(text)
	hits := 0
	for w := range keywords {
		if textWords[w] {
			hits++
		}
	}
	return clamp01(float64(hits) / float64(len(keywords)))
}

// completeness blends length relative to the requested class with
// query keyword coverage.
func completeness(query, text string, words int, class models.OutputLength) float64 {
	target := prompt.TargetWords(class)
	lengthScore := clamp01(float64(words) / float64(target))
	coverage := alignment(query, text)
	return clamp01(0.7*lengthScore + 0.3*coverage)
}

// consensus is Jaccard similarity over word sets of two same-pass
// outputs.
func consensus(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	inter := 0
	for w := range setA {
		if setB[w] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return clamp01(float64(inter) / float64(union))
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "how": true,
	"in": true, "is": true, "it": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "to": true, "what": true, "which": true,
	"why": true, "with": true,
}

func contentWords(s string) map[string]bool {
	out := map[string]bool{}
	for w := range wordSet(s) {
		if !stopwords[w] && len(w) > 1 {
			out[w] = true
		}
	}
	return out
}

func wordSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range splitWords(s) {
		set[strings.ToLower(w)] = true
	}
	return set
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
