package collaborators

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

// MilvusIndex adapts a Milvus collection-per-namespace layout onto
// VectorIndex. Unlike an auto-incrementing int64 primary key, both the
// semantic cache and the document index need a caller-supplied string id
// (a stable query hash, or a chunk id) — so collections here use a VarChar
// primary key with AutoID disabled.
type MilvusIndex struct {
	client    *milvusclient.Client
	dimension int
}

const metadataField = "metadata_json"

func NewMilvusIndex(ctx context.Context, addr string, dimension int) (*MilvusIndex, error) {
	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("connect to milvus: %w", err)
	}
	return &MilvusIndex{client: c, dimension: dimension}, nil
}

func (m *MilvusIndex) ensureCollection(ctx context.Context, namespace string) error {
	exists, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(namespace))
	if err != nil {
		return fmt.Errorf("check collection %s: %w", namespace, err)
	}
	if exists {
		return nil
	}

	schema := entity.NewSchema().WithName(namespace).WithAutoID(false)
	schema.WithField(entity.NewField().WithName("id").WithDataType(entity.FieldTypeVarChar).
		WithIsPrimaryKey(true).WithMaxLength(256))
	schema.WithField(entity.NewField().WithName("embedding").WithDataType(entity.FieldTypeFloatVector).
		WithDim(int64(m.dimension)))
	schema.WithField(entity.NewField().WithName(metadataField).WithDataType(entity.FieldTypeVarChar).
		WithMaxLength(65535))

	if err := m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(namespace, schema)); err != nil {
		return fmt.Errorf("create collection %s: %w", namespace, err)
	}

	idx := index.NewIvfFlatIndex(entity.COSINE, 128)
	task, err := m.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(namespace, "embedding", idx))
	if err != nil {
		return fmt.Errorf("create index on %s: %w", namespace, err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("await index on %s: %w", namespace, err)
	}

	loadTask, err := m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(namespace))
	if err != nil {
		return fmt.Errorf("load collection %s: %w", namespace, err)
	}
	return loadTask.Await(ctx)
}

func (m *MilvusIndex) Upsert(ctx context.Context, namespace, id string, vector []float32, metadata map[string]string) error {
	if err := m.ensureCollection(ctx, namespace); err != nil {
		return err
	}

	metaJSON := encodeMetadata(metadata)
	cols := []column.Column{
		column.NewColumnVarChar("id", []string{id}),
		column.NewColumnFloatVector("embedding", m.dimension, [][]float32{vector}),
		column.NewColumnVarChar(metadataField, []string{metaJSON}),
	}

	if _, err := m.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(namespace, cols...)); err != nil {
		return fmt.Errorf("upsert into %s: %w", namespace, err)
	}

	flush, err := m.client.Flush(ctx, milvusclient.NewFlushOption(namespace))
	if err != nil {
		return fmt.Errorf("flush %s: %w", namespace, err)
	}
	return flush.Await(ctx)
}

func (m *MilvusIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]VectorMatch, error) {
	if err := m.ensureCollection(ctx, namespace); err != nil {
		return nil, err
	}

	results, err := m.client.Search(ctx, milvusclient.NewSearchOption(
		namespace, topK, []entity.Vector{entity.FloatVector(vector)},
	).WithANNSField("embedding").
		WithSearchParam("nprobe", "16").
		WithOutputFields("id", metadataField))
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", namespace, err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	matches := make([]VectorMatch, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		match := VectorMatch{Score: results[0].Scores[i], Metadata: map[string]string{}}
		for _, field := range results[0].Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				if col.Name() == "id" {
					match.ID = col.Data()[i]
				} else {
					match.Metadata = decodeMetadata(col.Data()[i])
				}
			}
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func (m *MilvusIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	idCol := column.NewColumnVarChar("id", ids)
	if _, err := m.client.Delete(ctx, milvusclient.NewDeleteOption(namespace).WithVarcharIDs("id", idCol.Data())); err != nil {
		return fmt.Errorf("delete from %s: %w", namespace, err)
	}
	return nil
}
