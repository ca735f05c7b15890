package retrieval

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chatcore/chatcore/internal/collaborators"
	"github.com/chatcore/chatcore/internal/domain"
)

const (
	defaultTopK0 = 10
	defaultTopN  = 3
)

type DocRetriever struct {
	embedder      collaborators.Embedder
	index         collaborators.VectorIndex
	reranker      collaborators.CrossEncoder
	namespace     string
	topK0         int
	topN          int
	embedTimeout  time.Duration
	vectorTimeout time.Duration
	log           *logrus.Logger
}

// NewDocRetriever builds a DocRetriever. embedTimeout and vectorTimeout
// bound the embedder and vector-index/rerank calls respectively (spec §5
// reference defaults: embed 10s, vector query 10s — the cross-encoder call
// shares the vector-query bound since the spec names no timeout of its
// own for it); zero disables the corresponding bound.
func NewDocRetriever(embedder collaborators.Embedder, index collaborators.VectorIndex, reranker collaborators.CrossEncoder, namespace string, embedTimeout, vectorTimeout time.Duration, log *logrus.Logger) *DocRetriever {
	return &DocRetriever{
		embedder:      embedder,
		index:         index,
		reranker:      reranker,
		namespace:     namespace,
		topK0:         defaultTopK0,
		topN:          defaultTopN,
		embedTimeout:  embedTimeout,
		vectorTimeout: vectorTimeout,
		log:           log,
	}
}

// Retrieve embeds the query, pulls the top-K0 vector matches, reranks with
// the cross-encoder when available, and truncates to top-N citations
// (spec §4.6). Any failure degrades gracefully rather than aborting.
func (d *DocRetriever) Retrieve(ctx context.Context, state *domain.TurnState) {
	if d.embedder == nil || d.index == nil || !state.ShouldRetrieveDocs {
		return
	}

	embedCtx, cancel := withTimeout(ctx, d.embedTimeout)
	vector, err := d.embedder.Embed(embedCtx, state.Query)
	cancel()
	if err != nil {
		d.log.WithError(err).Warn("doc retrieval: embed failed, returning no docs")
		return
	}

	queryCtx, cancel2 := withTimeout(ctx, d.vectorTimeout)
	matches, err := d.index.Query(queryCtx, d.namespace, vector, d.topK0)
	cancel2()
	if err != nil {
		d.log.WithError(err).Warn("doc retrieval: vector query failed, returning no docs")
		return
	}
	if len(matches) == 0 {
		return
	}

	chunks := make([]domain.DocChunk, len(matches))
	for i, m := range matches {
		chunks[i] = domain.DocChunk{
			Source: m.Metadata["source"],
			Title:  m.Metadata["title"],
			Page:   atoiOr(m.Metadata["page"], 0),
			Text:   m.Metadata["text"],
			Score:  m.Score,
		}
	}

	chunks = d.rerank(ctx, state.Query, chunks)

	if len(chunks) > d.topN {
		chunks = chunks[:d.topN]
	}

	state.Docs = append(state.Docs, chunks...)
	for _, c := range chunks {
		score := c.Score
		state.Citations = append(state.Citations, domain.Citation{
			Source: c.Source,
			Title:  c.Title,
			Page:   c.Page,
			Score:  &score,
		})
	}
}

func (d *DocRetriever) rerank(ctx context.Context, query string, chunks []domain.DocChunk) []domain.DocChunk {
	if d.reranker == nil {
		return chunks
	}

	pairs := make([]collaborators.CrossEncoderPair, len(chunks))
	for i, c := range chunks {
		pairs[i] = collaborators.CrossEncoderPair{Query: query, Text: c.Text}
	}

	rerankCtx, cancel := withTimeout(ctx, d.vectorTimeout)
	scores, err := d.reranker.Score(rerankCtx, pairs)
	cancel()
	if err != nil || len(scores) != len(chunks) {
		if err != nil {
			d.log.WithError(err).Warn("doc retrieval: rerank failed, keeping vector order")
		}
		return chunks
	}

	for i := range chunks {
		chunks[i].Score = scores[i]
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })
	return chunks
}

func atoiOr(s string, def int) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return def
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 && s != "0" {
		return def
	}
	return n
}
