package generation

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/chatcore/chatcore/internal/collaborators"
	"github.com/chatcore/chatcore/internal/domain"
)

type fakeLLM struct {
	response string
	err      error
	lastReq  collaborators.ChatRequest
}

func (f *fakeLLM) Chat(ctx context.Context, req collaborators.ChatRequest) (string, error) {
	f.lastReq = req
	return f.response, f.err
}

func noopLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestGenerator_Generate_OrderRowShortcutsLLM(t *testing.T) {
	llm := &fakeLLM{response: "should not be used"}
	g := New(llm, "gpt-4o-mini", 0, noopLogger())

	state := &domain.TurnState{
		SQLRows: []domain.SQLRow{
			{OrderID: "42", Quantity: 2, ProductName: "Widget", OrderedAt: "2026-01-01", DeliveryAt: "2026-01-05"},
		},
	}

	g.Generate(context.Background(), state)

	assert.Equal(t, "Order #42: 2 x Widget, ordered on 2026-01-01, delivery 2026-01-05.", state.Answer)
	assert.Empty(t, llm.lastReq.Model, "llm must never be called when an order row is present")
}

func TestGenerator_Generate_CallsLLMWhenNoOrderRow(t *testing.T) {
	llm := &fakeLLM{response: "Here is your answer."}
	g := New(llm, "gpt-4o-mini", 0, noopLogger())

	state := &domain.TurnState{Query: "what is your return policy", QueryType: domain.QueryPolicyOnly}

	g.Generate(context.Background(), state)

	assert.Equal(t, "Here is your answer.", state.Answer)
	assert.Equal(t, "gpt-4o-mini", llm.lastReq.Model)
	assert.Contains(t, llm.lastReq.Messages[1].Content, "what is your return policy")
}

func TestGenerator_Generate_LLMFailureSetsErrorSentinel(t *testing.T) {
	llm := &fakeLLM{err: errors.New("rate limited")}
	g := New(llm, "gpt-4o-mini", 0, noopLogger())

	state := &domain.TurnState{Query: "hi"}
	g.Generate(context.Background(), state)

	assert.True(t, strings.HasPrefix(state.Answer, "Failed to generate answer:"))
}

func TestBuildPrompt_IncludesGroundednessFeedbackWhenPresent(t *testing.T) {
	state := &domain.TurnState{
		Query:               "where is my refund",
		GroundedExplanation: "the answer cites a page not in context",
	}

	prompt := buildPrompt(state)

	assert.Contains(t, prompt, "Groundedness feedback: the answer cites a page not in context")
}
