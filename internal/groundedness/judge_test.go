package groundedness

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/chatcore/chatcore/internal/collaborators"
	"github.com/chatcore/chatcore/internal/domain"
)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Chat(ctx context.Context, req collaborators.ChatRequest) (string, error) {
	return f.response, f.err
}

func noopLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestJudge_Evaluate_SkipsWhenNoDocs(t *testing.T) {
	j := New(&fakeLLM{response: "GROUNDED"}, "gpt-4o-mini", 0, noopLogger())
	state := &domain.TurnState{Answer: "some answer"}

	retry := j.Evaluate(context.Background(), state)

	assert.False(t, retry)
	assert.Nil(t, state.Grounded)
}

func TestJudge_Evaluate_SkipsWhenAnswerEmpty(t *testing.T) {
	j := New(&fakeLLM{response: "GROUNDED"}, "gpt-4o-mini", 0, noopLogger())
	state := &domain.TurnState{Docs: []domain.DocChunk{{Text: "policy text"}}}

	retry := j.Evaluate(context.Background(), state)

	assert.False(t, retry)
	assert.Nil(t, state.Grounded)
}

func TestJudge_Evaluate_GroundedNoRetry(t *testing.T) {
	j := New(&fakeLLM{response: "GROUNDED looks consistent"}, "gpt-4o-mini", 0, noopLogger())
	state := &domain.TurnState{Answer: "ans", Docs: []domain.DocChunk{{Text: "policy"}}}

	retry := j.Evaluate(context.Background(), state)

	assert.False(t, retry)
	assert.NotNil(t, state.Grounded)
	assert.True(t, *state.Grounded)
}

func TestJudge_Evaluate_NotGroundedRetriesOnce(t *testing.T) {
	j := New(&fakeLLM{response: "NOT_GROUNDED missing source"}, "gpt-4o-mini", 0, noopLogger())
	state := &domain.TurnState{Answer: "ans", Docs: []domain.DocChunk{{Text: "policy"}}}

	retry := j.Evaluate(context.Background(), state)
	assert.True(t, retry)
	assert.Equal(t, 1, state.GroundedRetryCount)
	assert.False(t, *state.Grounded)

	retry = j.Evaluate(context.Background(), state)
	assert.False(t, retry, "retry count already at cap, must not retry twice")
	assert.Equal(t, 1, state.GroundedRetryCount)
}

func TestJudge_Evaluate_LLMFailureYieldsUnknownNoRetry(t *testing.T) {
	j := New(&fakeLLM{err: errors.New("timeout")}, "gpt-4o-mini", 0, noopLogger())
	state := &domain.TurnState{Answer: "ans", Docs: []domain.DocChunk{{Text: "policy"}}}

	retry := j.Evaluate(context.Background(), state)

	assert.False(t, retry)
	assert.Nil(t, state.Grounded)
}
