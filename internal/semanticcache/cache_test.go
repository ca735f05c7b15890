package semanticcache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/chatcore/chatcore/internal/collaborators"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

type fakeIndex struct {
	matches    []collaborators.VectorMatch
	queryErr   error
	upserted   map[string]map[string]string
	upsertErr  error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{upserted: map[string]map[string]string{}}
}

func (f *fakeIndex) Upsert(ctx context.Context, namespace, id string, vector []float32, metadata map[string]string) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted[id] = metadata
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]collaborators.VectorMatch, error) {
	return f.matches, f.queryErr
}

func (f *fakeIndex) Delete(ctx context.Context, namespace string, ids []string) error { return nil }

func noopLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestKey_StableAcrossCaseAndWhitespace(t *testing.T) {
	assert.Equal(t, Key("What is your return policy?"), Key("  what is your return policy?  "))
	assert.NotEqual(t, Key("question one"), Key("question two"))
}

func TestCache_Similar_HitAboveThreshold(t *testing.T) {
	payload := Payload{Query: "q", Answer: "a"}
	encoded, _ := json.Marshal(payload)
	index := newFakeIndex()
	index.matches = []collaborators.VectorMatch{
		{ID: "k1", Score: 0.95, Metadata: map[string]string{"payload": string(encoded)}},
	}
	cache := New(index, &fakeEmbedder{vector: []float32{0.1}}, "semantic_cache", 0.9, 0, 0, noopLogger())

	got, hit := cache.Similar(context.Background(), "q")

	assert.True(t, hit)
	assert.Equal(t, "a", got.Answer)
}

func TestCache_Similar_MissBelowThreshold(t *testing.T) {
	payload := Payload{Query: "q", Answer: "a"}
	encoded, _ := json.Marshal(payload)
	index := newFakeIndex()
	index.matches = []collaborators.VectorMatch{
		{ID: "k1", Score: 0.5, Metadata: map[string]string{"payload": string(encoded)}},
	}
	cache := New(index, &fakeEmbedder{vector: []float32{0.1}}, "semantic_cache", 0.9, 0, 0, noopLogger())

	_, hit := cache.Similar(context.Background(), "q")

	assert.False(t, hit)
}

func TestCache_Similar_EmbedFailureIsMissNotPanic(t *testing.T) {
	index := newFakeIndex()
	cache := New(index, &fakeEmbedder{err: errors.New("embed down")}, "semantic_cache", 0.9, 0, 0, noopLogger())

	_, hit := cache.Similar(context.Background(), "q")

	assert.False(t, hit)
}

func TestCache_Similar_VectorQueryFailureIsMiss(t *testing.T) {
	index := newFakeIndex()
	index.queryErr = errors.New("milvus down")
	cache := New(index, &fakeEmbedder{vector: []float32{0.1}}, "semantic_cache", 0.9, 0, 0, noopLogger())

	_, hit := cache.Similar(context.Background(), "q")

	assert.False(t, hit)
}

func TestCache_Upsert_WritesPayloadUnderKey(t *testing.T) {
	index := newFakeIndex()
	cache := New(index, &fakeEmbedder{vector: []float32{0.1}}, "semantic_cache", 0.9, 0, 0, noopLogger())

	cache.Upsert(context.Background(), "mykey", "q", Payload{Query: "q", Answer: "a"})

	stored, ok := index.upserted["mykey"]
	assert.True(t, ok)
	var payload Payload
	assert.NoError(t, json.Unmarshal([]byte(stored["payload"]), &payload))
	assert.Equal(t, "a", payload.Answer)
}

func TestCache_Upsert_EmbedFailureSkipsWrite(t *testing.T) {
	index := newFakeIndex()
	cache := New(index, &fakeEmbedder{err: errors.New("down")}, "semantic_cache", 0.9, 0, 0, noopLogger())

	cache.Upsert(context.Background(), "mykey", "q", Payload{Answer: "a"})

	assert.Empty(t, index.upserted)
}
