// Package collaborators defines the capability contracts the query
// orchestration core depends on (spec §6), plus concrete adapters over the
// domain stack. The core never imports a concrete driver directly — only
// these interfaces — so graph and driver tests can run against in-memory
// fakes.
package collaborators

import "context"

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorMatch is one result of a vector index query.
type VectorMatch struct {
	ID       string
	Score    float32
	Metadata map[string]string
}

// VectorIndex is the contract for both the semantic cache's vector
// namespace and the policy-document namespace.
type VectorIndex interface {
	Upsert(ctx context.Context, namespace, id string, vector []float32, metadata map[string]string) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]VectorMatch, error)
	Delete(ctx context.Context, namespace string, ids []string) error
}

// CrossEncoderPair is one (query, candidate text) pair to score.
type CrossEncoderPair struct {
	Query string
	Text  string
}

// CrossEncoder reranks retrieved chunks against the query.
type CrossEncoder interface {
	Score(ctx context.Context, pairs []CrossEncoderPair) ([]float32, error)
}

// RelationalRow is a generic column-name -> value projection returned by
// the relational engine for one matched row.
type RelationalRow map[string]any

// RelationalEngine executes parameterized SQL and returns row mappings.
type RelationalEngine interface {
	QueryOrderByIDAndUser(ctx context.Context, orderID, userID string) (RelationalRow, bool, error)
}

// ChatMessage is one turn in an LLM chat request.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest mirrors the {model, messages, temperature, max_tokens}
// contract of §6.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float32
	MaxTokens   int
}

// LLMChat is the chat-completion capability used by the router, the
// generator, and the groundedness judge.
type LLMChat interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// EscalationAlert is the structured, best-effort payload posted to the
// notification sink on an escalation transition.
type EscalationAlert struct {
	SessionID string
	UserID    string
	Reason    string
	Answer    string
}

// NotificationSink delivers a one-shot, best-effort escalation alert.
type NotificationSink interface {
	Notify(ctx context.Context, alert EscalationAlert) error
}
