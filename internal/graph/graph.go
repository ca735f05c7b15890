// Package graph is the conditional-edge coordinator (spec §4.11's graph
// step): cache probe, fan-out retrieval, generation, and the single
// groundedness retry, wired as a plain driver loop rather than a generic
// graph library per the spec's design notes (§9).
package graph

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/chatcore/chatcore/internal/domain"
	"github.com/chatcore/chatcore/internal/generation"
	"github.com/chatcore/chatcore/internal/groundedness"
	"github.com/chatcore/chatcore/internal/retrieval"
	"github.com/chatcore/chatcore/internal/router"
	"github.com/chatcore/chatcore/internal/semanticcache"
)

const errorSentinelPrefix = "Failed to generate answer:"

type Coordinator struct {
	router    *router.Router
	cache     *semanticcache.Cache
	merger    *retrieval.Merger
	generator *generation.Generator
	judge     *groundedness.Judge
	log       *logrus.Logger
}

func New(r *router.Router, cache *semanticcache.Cache, merger *retrieval.Merger, gen *generation.Generator, judge *groundedness.Judge, log *logrus.Logger) *Coordinator {
	return &Coordinator{router: r, cache: cache, merger: merger, generator: gen, judge: judge, log: log}
}

// Run executes one full turn through the graph, mutating state in place.
func (c *Coordinator) Run(ctx context.Context, state *domain.TurnState) {
	queryType, shouldSQL, shouldDocs, shouldEscalate, orderID := c.router.Classify(ctx, state.Query)
	state.QueryType = queryType
	state.ShouldRetrieveSQL = shouldSQL
	state.ShouldRetrieveDocs = shouldDocs
	state.ShouldEscalate = shouldEscalate
	state.OrderID = orderID
	if shouldEscalate {
		state.EscalationReason = "user requested escalation"
	}

	docOnly := shouldDocs && !shouldSQL
	if docOnly {
		state.CacheKey = semanticcache.Key(state.Query)
		if payload, hit := c.cache.Similar(ctx, state.Query); hit {
			state.Answer = payload.Answer
			state.Citations = payload.Citations
			state.TraceID = payload.TraceID
			state.CacheHit = true
			return // bypasses retrieval, generation, grounding (spec §4.8)
		}
		state.ShouldCache = true
	}

	c.merger.Run(ctx, state)
	c.generator.Generate(ctx, state)

	if c.judge.Evaluate(ctx, state) {
		c.generator.Generate(ctx, state)
		c.judge.Evaluate(ctx, state)
	}

	c.writeBackCache(ctx, state)
}

// writeBackCache implements Testable Property 6: a cache entry is written
// iff the turn was doc-only, the answer is not the error sentinel, and the
// turn was not itself a cache hit.
func (c *Coordinator) writeBackCache(ctx context.Context, state *domain.TurnState) {
	if !state.ShouldCache || state.CacheHit || state.CacheKey == "" || state.UserID == "" {
		return
	}
	if strings.HasPrefix(state.Answer, errorSentinelPrefix) {
		return
	}

	c.cache.Upsert(ctx, state.CacheKey, state.Query, semanticcache.Payload{
		Query:     state.Query,
		Answer:    state.Answer,
		Citations: state.Citations,
		QueryType: state.QueryType,
		TraceID:   state.TraceID,
	})
}
