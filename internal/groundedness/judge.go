// Package groundedness implements the binary groundedness verdict and
// single-retry gate (spec §4.10), grounded on the original system's
// GROUNDED/NOT_GROUNDED prefix-parsed judge prompt.
package groundedness

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chatcore/chatcore/internal/collaborators"
	"github.com/chatcore/chatcore/internal/domain"
	"github.com/chatcore/chatcore/internal/metrics"
)

const (
	judgeMaxTokens = 60
	maxRetries     = 1
)

const judgePrompt = `You are a strict fact-checker. Given the policy context and an answer, reply with ` +
	`exactly one word, GROUNDED or NOT_GROUNDED, followed by a short reason.`

type Judge struct {
	llm        collaborators.LLMChat
	model      string
	llmTimeout time.Duration
	log        *logrus.Logger
}

// New builds a Judge. model is the chat model passed on every verdict
// request (configured via OpenAIChatModel). llmTimeout bounds the chat
// call (spec §5 reference default 30s); zero disables the bound.
func New(llm collaborators.LLMChat, model string, llmTimeout time.Duration, log *logrus.Logger) *Judge {
	return &Judge{llm: llm, model: model, llmTimeout: llmTimeout, log: log}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// Evaluate runs only if docs were retrieved and an answer exists (spec
// §4.10). It mutates state.Grounded/GroundedExplanation and reports whether
// the coordinator should route back to generation.
func (j *Judge) Evaluate(ctx context.Context, state *domain.TurnState) (shouldRetry bool) {
	if len(state.Docs) == 0 || state.Answer == "" {
		return false
	}

	docsText := renderDocs(state.Docs)
	chatCtx, cancel := withTimeout(ctx, j.llmTimeout)
	defer cancel()
	resp, err := j.llm.Chat(chatCtx, collaborators.ChatRequest{
		Model: j.model,
		Messages: []collaborators.ChatMessage{
			{Role: "system", Content: judgePrompt},
			{Role: "user", Content: "Context:\n" + docsText + "\n\nAnswer:\n" + state.Answer},
		},
		Temperature: 0,
		MaxTokens:   judgeMaxTokens,
	})
	if err != nil {
		j.log.WithError(err).Warn("groundedness judge failed, verdict unknown")
		state.Grounded = nil
		return false
	}

	grounded, explanation := parseVerdict(resp)
	state.Grounded = &grounded
	state.GroundedExplanation = explanation

	if !grounded && state.GroundedRetryCount < maxRetries {
		state.GroundedRetryCount++
		metrics.GroundednessRetries.WithLabelValues("retried").Inc()
		return true
	}
	if !grounded {
		metrics.GroundednessRetries.WithLabelValues("exhausted").Inc()
	}
	return false
}

func parseVerdict(resp string) (grounded bool, explanation string) {
	trimmed := strings.TrimSpace(resp)
	switch {
	case strings.HasPrefix(strings.ToUpper(trimmed), "NOT_GROUNDED"):
		return false, strings.TrimSpace(trimmed[len("NOT_GROUNDED"):])
	case strings.HasPrefix(strings.ToUpper(trimmed), "GROUNDED"):
		return true, strings.TrimSpace(trimmed[len("GROUNDED"):])
	default:
		return false, trimmed
	}
}

func renderDocs(docs []domain.DocChunk) string {
	var b strings.Builder
	for i, d := range docs {
		b.WriteString(d.Text)
		if i < len(docs)-1 {
			b.WriteString("\n---\n")
		}
	}
	return b.String()
}
