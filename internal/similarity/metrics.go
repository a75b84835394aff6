// Package similarity scores how much a filing's sections drifted from the
// same sections of the prior year's filing.
package similarity

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/dgallion1/filingdrift/internal/doctree"
)

// ComputationFailure reports a metric that could not be computed. The
// metric is left unset; other metrics and sections proceed.
type ComputationFailure struct {
	Metric string
	Reason string
}

func (e *ComputationFailure) Error() string {
	return fmt.Sprintf("%s similarity: %s", e.Metric, e.Reason)
}

// Tokens splits stored normalized text on whitespace. Case is kept as
// produced upstream.
func Tokens(text string) []string {
	return strings.Fields(text)
}

// Cosine is the cosine between the term-frequency vectors of a and b over
// their combined vocabulary.
func Cosine(a, b []string) (float64, error) {
	vocab := make(map[string]int)
	for _, toks := range [][]string{a, b} {
		for _, t := range toks {
			if _, ok := vocab[t]; !ok {
				vocab[t] = len(vocab)
			}
		}
	}

	va := termFrequencies(a, vocab)
	vb := termFrequencies(b, vocab)
	na, nb := floats.Norm(va, 2), floats.Norm(vb, 2)
	if na == 0 || nb == 0 {
		return 0, &ComputationFailure{Metric: "cosine", Reason: "empty term vector"}
	}
	return min(floats.Dot(va, vb)/(na*nb), 1), nil
}

func termFrequencies(tokens []string, vocab map[string]int) []float64 {
	v := make([]float64, len(vocab))
	for _, t := range tokens {
		v[vocab[t]]++
	}
	return v
}

// Jaccard is |A∩B| / |A∪B| over the token sets. Two empty sets are
// identical and score 1.
func Jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}

	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// EditDistance is the minimum number of token insertions, deletions and
// replacements turning from into to.
func EditDistance(from, to []string) int {
	if len(from) == 0 {
		return len(to)
	}
	if len(to) == 0 {
		return len(from)
	}

	prev := make([]int, len(to)+1)
	curr := make([]int, len(to)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(from); i++ {
		curr[0] = i
		for j := 1; j <= len(to); j++ {
			cost := 1
			if from[i-1] == to[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // delete
				curr[j-1]+1,    // insert
				prev[j-1]+cost, // replace or keep
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(to)]
}

// Score computes all three metrics of current against previous. A metric
// that fails is left nil and its error returned alongside.
func Score(current, previous []string) (doctree.Metrics, []error) {
	var (
		m    doctree.Metrics
		errs []error
	)
	if c, err := Cosine(current, previous); err != nil {
		errs = append(errs, err)
	} else {
		m.Cosine = &c
	}
	j := Jaccard(current, previous)
	m.Jaccard = &j
	d := EditDistance(previous, current)
	m.EditDistance = &d
	return m, errs
}
