package graph

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/chatcore/chatcore/internal/collaborators"
	"github.com/chatcore/chatcore/internal/domain"
	"github.com/chatcore/chatcore/internal/generation"
	"github.com/chatcore/chatcore/internal/groundedness"
	"github.com/chatcore/chatcore/internal/retrieval"
	"github.com/chatcore/chatcore/internal/router"
	"github.com/chatcore/chatcore/internal/semanticcache"
)

type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return []float32{0.1, 0.2}, nil
}

type fakeIndex struct {
	queryMatches []collaborators.VectorMatch
	upsertCalls  int
}

func (f *fakeIndex) Upsert(ctx context.Context, namespace, id string, vector []float32, metadata map[string]string) error {
	f.upsertCalls++
	return nil
}
func (f *fakeIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]collaborators.VectorMatch, error) {
	return f.queryMatches, nil
}
func (f *fakeIndex) Delete(ctx context.Context, namespace string, ids []string) error { return nil }

type fakeLLM struct {
	chatCalls int
	response  string
}

func (f *fakeLLM) Chat(ctx context.Context, req collaborators.ChatRequest) (string, error) {
	f.chatCalls++
	return f.response, nil
}

func noopLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func buildCoordinator(llm *fakeLLM, index *fakeIndex, embedder *fakeEmbedder) *Coordinator {
	log := noopLogger()
	rtr := router.New(nil, true, "gpt-4o-mini", 0, log) // nil LLM -> keyword fallback, deterministic
	cache := semanticcache.New(index, embedder, "semantic_cache", 0.9, 0, 0, log)
	sqlRetriever := retrieval.NewSQLRetriever(nil, 0, log)
	docRetriever := retrieval.NewDocRetriever(embedder, index, nil, "policy_docs", 0, 0, log)
	merger := retrieval.NewMerger(sqlRetriever, docRetriever)
	gen := generation.New(llm, "gpt-4o-mini", 0, log)
	judge := groundedness.New(llm, "gpt-4o-mini", 0, log)
	return New(rtr, cache, merger, gen, judge, log)
}

func TestCoordinator_Run_CacheHitBypassesGenerationAndJudge(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := &fakeIndex{
		queryMatches: []collaborators.VectorMatch{
			{ID: "k1", Score: 0.99, Metadata: map[string]string{"payload": `{"query":"policy?","answer":"cached answer","trace_id":"t1"}`}},
		},
	}
	llm := &fakeLLM{response: "should not be called"}
	coordinator := buildCoordinator(llm, index, embedder)

	state := &domain.TurnState{Query: "what is your return policy?", UserID: "user-1", HasCacheHandle: true}
	coordinator.Run(context.Background(), state)

	assert.Equal(t, "cached answer", state.Answer)
	assert.True(t, state.CacheHit)
	assert.Equal(t, 0, llm.chatCalls, "generator and judge must never run on a cache hit")
}

func TestCoordinator_Run_DocOnlyCacheMissGeneratesAndCaches(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := &fakeIndex{queryMatches: nil} // no vector matches -> cache miss, and doc retrieval finds nothing
	llm := &fakeLLM{response: "GROUNDED fresh answer"}
	coordinator := buildCoordinator(llm, index, embedder)

	state := &domain.TurnState{Query: "what is your return policy?", UserID: "user-1", HasCacheHandle: true}
	coordinator.Run(context.Background(), state)

	assert.False(t, state.CacheHit)
	assert.NotEmpty(t, state.Answer)
	assert.Equal(t, 1, index.upsertCalls, "a clean doc-only answer must be written back to cache")
}

func TestCoordinator_Run_ChitchatSkipsRetrievalAndCache(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := &fakeIndex{}
	llm := &fakeLLM{response: "hello!"}
	coordinator := buildCoordinator(llm, index, embedder)

	state := &domain.TurnState{Query: "hello there", UserID: "user-1", HasCacheHandle: true}
	coordinator.Run(context.Background(), state)

	assert.Equal(t, domain.QueryChitchat, state.QueryType)
	assert.Equal(t, 0, embedder.calls, "chitchat has no doc or sql retrieval, so no embed call")
	assert.Equal(t, 0, index.upsertCalls, "chitchat is not doc-only so it never sets ShouldCache")
}
