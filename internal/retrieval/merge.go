package retrieval

import (
	"context"
	"sync"

	"github.com/chatcore/chatcore/internal/domain"
)

// Merger runs the enabled retrievals concurrently, each over a deep copy of
// the turn state with the cache handle stripped to avoid aliasing, then
// merges results back: SQL entities fold into turn state first, citations
// are concatenated docs-first-then-DB, and the original cache handle is
// restored (spec §4.7).
type Merger struct {
	sql  *SQLRetriever
	docs *DocRetriever
}

func NewMerger(sql *SQLRetriever, docs *DocRetriever) *Merger {
	return &Merger{sql: sql, docs: docs}
}

func (m *Merger) Run(ctx context.Context, state *domain.TurnState) {
	if !state.ShouldRetrieveSQL && !state.ShouldRetrieveDocs {
		return
	}

	hadCacheHandle := state.HasCacheHandle

	var wg sync.WaitGroup
	var sqlResult, docsResult *domain.TurnState

	if state.ShouldRetrieveSQL {
		wg.Add(1)
		sqlCopy := state.Clone()
		sqlCopy.HasCacheHandle = false
		go func() {
			defer wg.Done()
			m.sql.Retrieve(ctx, sqlCopy)
			sqlResult = sqlCopy
		}()
	}

	if state.ShouldRetrieveDocs {
		wg.Add(1)
		docsCopy := state.Clone()
		docsCopy.HasCacheHandle = false
		go func() {
			defer wg.Done()
			m.docs.Retrieve(ctx, docsCopy)
			docsResult = docsCopy
		}()
	}

	wg.Wait()

	var citations []domain.Citation
	if docsResult != nil {
		state.Docs = docsResult.Docs
		citations = append(citations, docsResult.Citations...)
	}
	if sqlResult != nil {
		state.SQLRows = sqlResult.SQLRows
		state.FirstName = firstNonEmpty(state.FirstName, sqlResult.FirstName)
		state.LastName = firstNonEmpty(state.LastName, sqlResult.LastName)
		citations = append(citations, sqlResult.Citations...)
	}
	state.Citations = citations

	state.HasCacheHandle = hadCacheHandle
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
