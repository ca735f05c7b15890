// Package router classifies one user turn into a query type and sets the
// retrieval/escalation flags downstream nodes act on (spec §4.3).
package router

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chatcore/chatcore/internal/collaborators"
	"github.com/chatcore/chatcore/internal/domain"
)

var orderIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)order\s*(?:number|#)?\s*(\d+)`),
	regexp.MustCompile(`#(\d+)`),
}

var wholeMessageOrderID = regexp.MustCompile(`^#?(\d{1,6})$`)

var validLabels = map[string]domain.QueryType{
	"chitchat":         domain.QueryChitchat,
	"policy_only":      domain.QueryPolicyOnly,
	"needs_identifier": domain.QueryNeedsIdentifier,
	"order_lookup":     domain.QueryOrderLookup,
	"billing_issue":    domain.QueryBillingIssue,
	"escalation":       domain.QueryEscalation,
}

var classifyPrompt = `Classify the user's message into exactly one label: ` +
	`chitchat, policy_only, needs_identifier, order_lookup, billing_issue, escalation. ` +
	`Respond with only the label.`

type Router struct {
	llm        collaborators.LLMChat
	dbEnabled  bool
	model      string
	llmTimeout time.Duration
	log        *logrus.Logger
}

// New builds a Router. model is the chat model passed on every
// classification request (configured via OpenAIChatModel). llmTimeout
// bounds the chat call (spec §5 reference default 30s); zero disables
// the bound.
func New(llm collaborators.LLMChat, dbEnabled bool, model string, llmTimeout time.Duration, log *logrus.Logger) *Router {
	return &Router{llm: llm, dbEnabled: dbEnabled, model: model, llmTimeout: llmTimeout, log: log}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// Classify implements the six-step algorithm in spec §4.3.
func (r *Router) Classify(ctx context.Context, query string) (domain.QueryType, bool, bool, bool, string) {
	orderID := extractOrderID(query)

	queryType := r.classifyLabel(ctx, query)

	if orderID != "" {
		queryType = domain.QueryOrderLookup
	}
	if queryType == domain.QueryOrderLookup && orderID == "" {
		queryType = domain.QueryNeedsIdentifier
	}

	if !r.dbEnabled {
		switch queryType {
		case domain.QueryBillingIssue:
			queryType = domain.QueryPolicyOnly
		case domain.QueryOrderLookup:
			queryType = domain.QueryNeedsIdentifier
		}
	}

	shouldSQL, shouldDocs, shouldEscalate := flagsFor(queryType, query, orderID, r.dbEnabled)
	return queryType, shouldSQL, shouldDocs, shouldEscalate, orderID
}

func (r *Router) classifyLabel(ctx context.Context, query string) domain.QueryType {
	if r.llm != nil {
		chatCtx, cancel := withTimeout(ctx, r.llmTimeout)
		resp, err := r.llm.Chat(chatCtx, collaborators.ChatRequest{
			Model: r.model,
			Messages: []collaborators.ChatMessage{
				{Role: "system", Content: classifyPrompt},
				{Role: "user", Content: query},
			},
			Temperature: 0,
			MaxTokens:   10,
		})
		cancel()
		if err == nil {
			label := strings.ToLower(strings.TrimSpace(resp))
			if qt, ok := validLabels[label]; ok {
				return qt
			}
		} else {
			r.log.WithError(err).Warn("router: llm classification failed, falling back to keywords")
		}
	}
	return keywordClassify(query)
}

func keywordClassify(query string) domain.QueryType {
	q := strings.ToLower(query)

	if containsAny(q, "hi", "hello", "hey", "good morning", "good afternoon") {
		return domain.QueryChitchat
	}
	if containsAny(q, "agent", "escalate", "supervisor", "complaint") {
		return domain.QueryEscalation
	}
	if containsAny(q, "refund", "charge", "billing", "invoice", "payment") {
		return domain.QueryBillingIssue
	}
	if containsAny(q, "order", "tracking", "shipment") {
		return domain.QueryOrderLookup
	}
	if containsAny(q, "return", "exchange", "shipping", "policy") {
		return domain.QueryPolicyOnly
	}
	return domain.QueryPolicyOnly
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func extractOrderID(query string) string {
	trimmed := strings.TrimSpace(query)
	if m := wholeMessageOrderID.FindStringSubmatch(trimmed); m != nil {
		if valid(m[1]) {
			return m[1]
		}
	}
	for _, re := range orderIDPatterns {
		if m := re.FindStringSubmatch(query); m != nil {
			if valid(m[1]) {
				return m[1]
			}
		}
	}
	return ""
}

func valid(digits string) bool {
	n, err := strconv.Atoi(digits)
	return err == nil && n >= 1 && n <= 999999
}

var docTriggerWords = regexp.MustCompile(`(?i)refund|policy|return|late|delay|delivery`)

func flagsFor(qt domain.QueryType, query, orderID string, dbEnabled bool) (sql, docs, escalate bool) {
	switch qt {
	case domain.QueryChitchat:
		return false, false, false
	case domain.QueryEscalation:
		return false, false, true
	case domain.QueryPolicyOnly:
		return false, true, false
	case domain.QueryNeedsIdentifier:
		return false, false, false
	case domain.QueryOrderLookup:
		return true, docTriggerWords.MatchString(query), false
	case domain.QueryBillingIssue:
		return dbEnabled && orderID != "", true, false
	default:
		return false, true, false
	}
}
