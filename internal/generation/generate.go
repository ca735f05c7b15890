// Package generation composes the answer prompt and calls the LLM (spec
// §4.9), including the deterministic order-lookup shortcut that bypasses
// the model entirely.
package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chatcore/chatcore/internal/collaborators"
	"github.com/chatcore/chatcore/internal/domain"
)

const (
	temperature = 0.1
	maxTokens   = 400
)

const systemPrompt = `You are a customer support assistant. Database facts are authoritative; ` +
	`policy context is advisory. If identifiers are missing, ask one concise clarifying question. ` +
	`Never disclose personal data (emails, addresses, names, phone numbers) the user has not ` +
	`explicitly provided; when referencing such data, use the masked form. If the question is ` +
	`unsupported by the available context, say so and state what is missing.`

type Generator struct {
	llm        collaborators.LLMChat
	model      string
	llmTimeout time.Duration
	log        *logrus.Logger
}

// New builds a Generator. model is the chat model passed on every request
// (configured via OpenAIChatModel). llmTimeout bounds the chat call (spec
// §5 reference default 30s); zero disables the bound.
func New(llm collaborators.LLMChat, model string, llmTimeout time.Duration, log *logrus.Logger) *Generator {
	return &Generator{llm: llm, model: model, llmTimeout: llmTimeout, log: log}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// Generate fills state.Answer: the deterministic order summary when an order
// row is present, otherwise the LLM's reply or the error sentinel. Cache
// write-back eligibility is decided by the graph coordinator, not here.
func (g *Generator) Generate(ctx context.Context, state *domain.TurnState) {
	if order := orderRow(state.SQLRows); order != nil {
		state.Answer = fmt.Sprintf(
			"Order #%s: %d x %s, ordered on %s, delivery %s.",
			order.OrderID, order.Quantity, order.ProductName, order.OrderedAt, order.DeliveryAt,
		)
		return
	}

	if g.llm == nil {
		state.Answer = "Failed to generate answer: no language model configured"
		return
	}

	prompt := buildPrompt(state)
	chatCtx, cancel := withTimeout(ctx, g.llmTimeout)
	defer cancel()
	answer, err := g.llm.Chat(chatCtx, collaborators.ChatRequest{
		Model: g.model,
		Messages: []collaborators.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		g.log.WithError(err).Warn("generation failed, surfacing error sentinel")
		state.Answer = fmt.Sprintf("Failed to generate answer: %s", err.Error())
		return
	}
	state.Answer = answer
}

func orderRow(rows []domain.SQLRow) *domain.SQLRow {
	for i := range rows {
		if rows[i].OrderID != "" {
			return &rows[i]
		}
	}
	return nil
}

func buildPrompt(state *domain.TurnState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "User intent: %s\n\n", state.QueryType)
	fmt.Fprintf(&b, "User question: %s\n\n", state.Query)

	if state.Summary != "" {
		fmt.Fprintf(&b, "Session summary: %s\n\n", state.Summary)
	} else {
		b.WriteString("Session summary: (none yet)\n\n")
	}

	b.WriteString("Recent conversation:\n")
	for _, m := range state.RecentMessages {
		if m.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	b.WriteString("\n")

	b.WriteString("Database facts:\n")
	if len(state.SQLRows) == 0 {
		b.WriteString("(none)\n")
	} else {
		for _, row := range state.SQLRows {
			fmt.Fprintf(&b, "- order %s: %d x %s, ordered %s, delivery %s, customer email %s\n",
				row.OrderID, row.Quantity, row.ProductName, row.OrderedAt, row.DeliveryAt, row.Email)
		}
	}
	b.WriteString("\n")

	b.WriteString("Policy context:\n")
	if len(state.Docs) == 0 {
		b.WriteString("(none)\n")
	} else {
		for i, d := range state.Docs {
			fmt.Fprintf(&b, "%d. %s (source: %s, page: %d)\n%s\n", i+1, d.Title, d.Source, d.Page, d.Text)
		}
	}

	if state.GroundedExplanation != "" {
		fmt.Fprintf(&b, "\nGroundedness feedback: %s\nRevise the answer to be fully supported by the policy context above.\n", state.GroundedExplanation)
	}

	return b.String()
}
