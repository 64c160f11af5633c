package query

import (
	"fmt"
	"path/filepath"
	"strings"
)

// explainerWeights are the relative contribution each reason type carries
// toward a result's overall match narrative. They do not affect
// ranking, which is driven entirely by vector relevance; they only describe
// why a given result surfaced.
var explainerWeights = map[ReasonType]float64{
	ReasonExactTerm:     0.35,
	ReasonFilenameMatch: 0.2,
	ReasonSymbolMatch:   0.3,
	ReasonSemantic:      0.15,
}

// Explain attributes a ranked result to one or more concrete match reasons
// and produces a short human-readable summary. It is a pure
// function: same query and result always produce the same reasons.
func Explain(query string, result Result) ([]MatchReason, string) {
	terms := queryTerms(query)
	var reasons []MatchReason

	if ev, ok := exactTermEvidence(terms, result.Preview); ok {
		reasons = append(reasons, MatchReason{
			Type:     ReasonExactTerm,
			Weight:   explainerWeights[ReasonExactTerm],
			Evidence: ev,
		})
	}

	if ev, ok := filenameEvidence(terms, result.FilePath); ok {
		reasons = append(reasons, MatchReason{
			Type:     ReasonFilenameMatch,
			Weight:   explainerWeights[ReasonFilenameMatch],
			Evidence: ev,
		})
	}

	if ev, ok := symbolEvidence(terms, result.ChunkName); ok {
		reasons = append(reasons, MatchReason{
			Type:     ReasonSymbolMatch,
			Weight:   explainerWeights[ReasonSymbolMatch],
			Evidence: ev,
		})
	}

	// Semantic is always attributed: every result reached the Explainer by
	// surviving ANN search, so the vector itself is always evidence, even
	// when no lexical signal corroborates it.
	reasons = append(reasons, MatchReason{
		Type:     ReasonSemantic,
		Weight:   explainerWeights[ReasonSemantic],
		Evidence: fmt.Sprintf("semantic similarity %.2f", result.Relevance),
	})

	return reasons, summarize(result, reasons)
}

// queryTerms lowercases and splits the query into whitespace-delimited
// terms, dropping anything shorter than three characters so single
// conjunctions ("a", "of", "to") don't generate noisy evidence.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:()[]{}\"'")
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

func exactTermEvidence(terms []string, preview string) (string, bool) {
	lowered := strings.ToLower(preview)
	for _, t := range terms {
		if strings.Contains(lowered, t) {
			return fmt.Sprintf("%q appears in the matched content", t), true
		}
	}
	return "", false
}

func filenameEvidence(terms []string, path string) (string, bool) {
	base := strings.ToLower(filepath.Base(path))
	for _, t := range terms {
		if strings.Contains(base, t) {
			return fmt.Sprintf("%q appears in the file name %s", t, filepath.Base(path)), true
		}
	}
	return "", false
}

func symbolEvidence(terms []string, chunkName string) (string, bool) {
	if chunkName == "" {
		return "", false
	}
	lowered := strings.ToLower(chunkName)
	for _, t := range terms {
		if strings.Contains(lowered, t) {
			return fmt.Sprintf("%q matches symbol %s", t, chunkName), true
		}
	}
	return "", false
}

// summarize renders a one-line human-readable explanation, leading with the
// strongest non-semantic reason when one exists.
func summarize(result Result, reasons []MatchReason) string {
	var lead *MatchReason
	for i := range reasons {
		switch reasons[i].Type {
		case ReasonExactTerm, ReasonSymbolMatch, ReasonFilenameMatch:
			if lead == nil || reasons[i].Weight > lead.Weight {
				lead = &reasons[i]
			}
		}
	}
	if lead != nil {
		return fmt.Sprintf("%s in %s (%s)", strings.ReplaceAll(string(lead.Type), "_", " "), result.FilePath, lead.Evidence)
	}
	return fmt.Sprintf("semantically related to %s (similarity %.2f)", result.FilePath, result.Relevance)
}
