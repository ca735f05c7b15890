package retrieval

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/chatcore/chatcore/internal/collaborators"
	"github.com/chatcore/chatcore/internal/domain"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1}, nil
}

type fakeDocIndex struct{}

func (fakeDocIndex) Upsert(ctx context.Context, namespace, id string, vector []float32, metadata map[string]string) error {
	return nil
}
func (fakeDocIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]collaborators.VectorMatch, error) {
	return []collaborators.VectorMatch{
		{ID: "d1", Score: 0.8, Metadata: map[string]string{"source": "policy.pdf", "title": "Returns", "page": "3", "text": "returns text"}},
	}, nil
}
func (fakeDocIndex) Delete(ctx context.Context, namespace string, ids []string) error { return nil }

type fakeRelationalEngine struct{}

func (fakeRelationalEngine) QueryOrderByIDAndUser(ctx context.Context, orderID, userID string) (collaborators.RelationalRow, bool, error) {
	return collaborators.RelationalRow{
		"product_name":   "Widget",
		"customer_email": "jane@example.com",
		"first_name":     "Jane",
		"last_name":      "Doe",
		"quantity":       2,
	}, true, nil
}

func noopLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestMerger_Run_CitationsAreDocsFirstThenSQL(t *testing.T) {
	log := noopLogger()
	sqlRetriever := NewSQLRetriever(fakeRelationalEngine{}, 0, log)
	docRetriever := NewDocRetriever(fakeEmbedder{}, fakeDocIndex{}, nil, "policy_docs", 0, 0, log)
	merger := NewMerger(sqlRetriever, docRetriever)

	state := &domain.TurnState{
		Query:              "where is my order #7, delivery is late",
		UserID:             "user-1",
		OrderID:            "7",
		ShouldRetrieveSQL:  true,
		ShouldRetrieveDocs: true,
		HasCacheHandle:     true,
	}

	merger.Run(context.Background(), state)

	if assert.Len(t, state.Citations, 2) {
		assert.Equal(t, "policy.pdf", state.Citations[0].Source, "doc citations must come first")
		assert.Equal(t, "db:orders#7", state.Citations[1].Source, "sql citation comes last")
	}
	assert.Equal(t, "Jane", state.FirstName)
	assert.Equal(t, "Doe", state.LastName)
	assert.True(t, state.HasCacheHandle, "cache handle must be restored after the fan-out")
}

func TestMerger_Run_NoopWhenNeitherFlagSet(t *testing.T) {
	log := noopLogger()
	sqlRetriever := NewSQLRetriever(fakeRelationalEngine{}, 0, log)
	docRetriever := NewDocRetriever(fakeEmbedder{}, fakeDocIndex{}, nil, "policy_docs", 0, 0, log)
	merger := NewMerger(sqlRetriever, docRetriever)

	state := &domain.TurnState{Query: "hello", HasCacheHandle: true}
	merger.Run(context.Background(), state)

	assert.Empty(t, state.Citations)
	assert.Empty(t, state.Docs)
}

func TestMerger_Run_NameHydrationPrefersExistingState(t *testing.T) {
	log := noopLogger()
	sqlRetriever := NewSQLRetriever(fakeRelationalEngine{}, 0, log)
	docRetriever := NewDocRetriever(fakeEmbedder{}, fakeDocIndex{}, nil, "policy_docs", 0, 0, log)
	merger := NewMerger(sqlRetriever, docRetriever)

	state := &domain.TurnState{
		Query:             "order #7",
		UserID:            "user-1",
		OrderID:           "7",
		FirstName:         "Existing",
		ShouldRetrieveSQL: true,
		HasCacheHandle:    true,
	}

	merger.Run(context.Background(), state)

	assert.Equal(t, "Existing", state.FirstName, "already-known name must not be overwritten by retrieval")
	assert.Equal(t, "Doe", state.LastName)
}
