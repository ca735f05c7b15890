package collaborators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicCrossEncoder_Score_RanksOverlapHigherThanUnrelated(t *testing.T) {
	h := NewHeuristicCrossEncoder()

	scores, err := h.Score(context.Background(), []CrossEncoderPair{
		{Query: "what is your return policy", Text: "Our return policy allows returns within 30 days."},
		{Query: "what is your return policy", Text: "We ship globally using trusted carriers."},
	})

	assert.NoError(t, err)
	assert.Greater(t, scores[0], scores[1])
}

func TestHeuristicCrossEncoder_Score_EmptyQueryScoresZero(t *testing.T) {
	h := NewHeuristicCrossEncoder()

	scores, err := h.Score(context.Background(), []CrossEncoderPair{{Query: "", Text: "anything"}})

	assert.NoError(t, err)
	assert.Equal(t, float32(0), scores[0])
}

func TestHeuristicCrossEncoder_Score_IsCaseAndPunctuationInsensitive(t *testing.T) {
	h := NewHeuristicCrossEncoder()

	scores, err := h.Score(context.Background(), []CrossEncoderPair{{Query: "Refund!", Text: "refund requests take 3 days."}})

	assert.NoError(t, err)
	assert.Equal(t, float32(1), scores[0])
}
