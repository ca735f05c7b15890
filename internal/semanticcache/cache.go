// Package semanticcache implements the semantic cache (spec §4.2): a
// stable-hash cache key, a vector-similarity lookup with threshold gating,
// and a swallow-to-miss failure policy so the cache can never fail the
// request path.
package semanticcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chatcore/chatcore/internal/collaborators"
	"github.com/chatcore/chatcore/internal/domain"
	"github.com/chatcore/chatcore/internal/metrics"
)

const defaultTopK = 3

// Payload is the metadata stored alongside the vector, per spec §3.
type Payload struct {
	Query     string            `json:"query"`
	Answer    string            `json:"answer"`
	Citations []domain.Citation `json:"citations"`
	QueryType domain.QueryType  `json:"query_type"`
	TraceID   string            `json:"trace_id"`
}

type Cache struct {
	index          collaborators.VectorIndex
	embedder       collaborators.Embedder
	namespace      string
	topK           int
	threshold      float32
	embedTimeout   time.Duration
	vectorTimeout  time.Duration
	log            *logrus.Logger
}

// New builds a Cache. embedTimeout and vectorTimeout bound the embedder and
// vector-index calls respectively (spec §5 reference defaults: embed 10s,
// vector query 10s); zero disables the corresponding bound.
func New(index collaborators.VectorIndex, embedder collaborators.Embedder, namespace string, threshold float64, embedTimeout, vectorTimeout time.Duration, log *logrus.Logger) *Cache {
	return &Cache{
		index:         index,
		embedder:      embedder,
		namespace:     namespace,
		topK:          defaultTopK,
		threshold:     float32(threshold),
		embedTimeout:  embedTimeout,
		vectorTimeout: vectorTimeout,
		log:           log,
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// Key returns the stable SHA-256 hash of the normalized (lowercase+trim)
// query text, per Testable Property 5: equal normalized text implies equal
// key.
func Key(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Similar embeds the raw query and returns the top-scoring match at or
// above the configured threshold, or (nil, false) on a miss or any
// collaborator error — the cache never fails the request path.
func (c *Cache) Similar(ctx context.Context, query string) (*Payload, bool) {
	if c.embedder == nil || c.index == nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	embedCtx, cancel := withTimeout(ctx, c.embedTimeout)
	vector, err := c.embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		c.log.WithError(err).Warn("semantic cache: embed failed, treating as miss")
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	queryCtx, cancel2 := withTimeout(ctx, c.vectorTimeout)
	matches, err := c.index.Query(queryCtx, c.namespace, vector, c.topK)
	cancel2()
	if err != nil {
		c.log.WithError(err).Warn("semantic cache: vector query failed, treating as miss")
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	var best *collaborators.VectorMatch
	for i := range matches {
		if best == nil || matches[i].Score > best.Score {
			best = &matches[i]
		}
	}
	if best == nil || best.Score < c.threshold {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	raw, ok := best.Metadata["payload"]
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	var payload Payload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		c.log.WithError(err).Warn("semantic cache: corrupt payload, treating as miss")
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &payload, true
}

// Upsert embeds query and writes the entry under key with citations
// serialized as a JSON string (vector metadata is scalar-only).
func (c *Cache) Upsert(ctx context.Context, key, query string, payload Payload) {
	if c.embedder == nil || c.index == nil {
		return
	}
	embedCtx, cancel := withTimeout(ctx, c.embedTimeout)
	vector, err := c.embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		c.log.WithError(err).Warn("semantic cache: embed failed on upsert, skipping")
		return
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		c.log.WithError(err).Warn("semantic cache: encode payload failed, skipping")
		return
	}

	upsertCtx, cancel2 := withTimeout(ctx, c.vectorTimeout)
	defer cancel2()
	if err := c.index.Upsert(upsertCtx, c.namespace, key, vector, map[string]string{"payload": string(encoded)}); err != nil {
		c.log.WithError(err).Warn("semantic cache: upsert failed")
	}
}

func (c *Cache) Delete(ctx context.Context, key string) {
	ctx, cancel := withTimeout(ctx, c.vectorTimeout)
	defer cancel()
	if err := c.index.Delete(ctx, c.namespace, []string{key}); err != nil {
		c.log.WithError(err).Warn("semantic cache: delete failed")
	}
}
