package collaborators

import (
	"context"
	"strings"
)

// HeuristicCrossEncoder scores (query, text) pairs by lexical token overlap.
// No Go client for a hosted cross-encoder model exists anywhere in the
// dependency stack this service draws from; this scorer follows the same
// simulated-scoring shape the stack's own CrossEncoderReranker uses as a
// stand-in, so document retrieval always has a rerank step to exercise even
// without a real cross-encoder endpoint configured.
type HeuristicCrossEncoder struct{}

func NewHeuristicCrossEncoder() *HeuristicCrossEncoder { return &HeuristicCrossEncoder{} }

func (h *HeuristicCrossEncoder) Score(ctx context.Context, pairs []CrossEncoderPair) ([]float32, error) {
	scores := make([]float32, len(pairs))
	for i, p := range pairs {
		scores[i] = tokenOverlapScore(p.Query, p.Text)
	}
	return scores, nil
}

func tokenOverlapScore(query, text string) float32 {
	qTokens := tokenSet(query)
	if len(qTokens) == 0 {
		return 0
	}
	tTokens := tokenSet(text)

	matches := 0
	for t := range qTokens {
		if tTokens[t] {
			matches++
		}
	}
	return float32(matches) / float32(len(qTokens))
}

func tokenSet(s string) map[string]bool {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[strings.Trim(f, ".,!?;:\"'()")] = true
	}
	return set
}
