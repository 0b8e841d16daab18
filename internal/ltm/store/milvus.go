package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"mnemo/internal/database/milvus"
)

// hnswSearchEf is the ef search parameter used for every query.
const hnswSearchEf = 64

// MilvusStore is a VectorStore backed by a Milvus collection. The flat
// metadata map is stored as a JSON blob in a VarChar field; the collection
// uses the COSINE metric, so reported scores are similarities and distance
// is 1 - score.
type MilvusStore struct {
	db       *milvus.MilvusClient
	collName string
	dim      int
}

// NewMilvusStore creates a MilvusStore over an initialized client whose
// collection has been ensured.
func NewMilvusStore(db *milvus.MilvusClient) *MilvusStore {
	return &MilvusStore{
		db:       db,
		collName: db.Config.CollectionName,
		dim:      db.Config.VectorDim,
	}
}

// Add stores one record.
func (s *MilvusStore) Add(ctx context.Context, rec Record) error {
	if len(rec.Vector) != s.dim {
		return fmt.Errorf("milvus: add %s: vector dim %d, collection expects %d", rec.ID, len(rec.Vector), s.dim)
	}
	cols, err := buildColumns([]Record{rec}, s.dim)
	if err != nil {
		return fmt.Errorf("milvus: add %s: %w", rec.ID, err)
	}
	if _, err := s.db.Client.Insert(ctx, s.collName, "", cols...); err != nil {
		return fmt.Errorf("milvus: add %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the records with the given ids, or scans the collection when
// ids is nil.
func (s *MilvusStore) Get(ctx context.Context, ids []string, limit, offset int) ([]Record, error) {
	expr := `id != ""`
	if ids != nil {
		if len(ids) == 0 {
			return nil, nil
		}
		expr = idInExpr(ids)
	}

	opts := []client.SearchQueryOptionFunc{}
	if limit > 0 {
		opts = append(opts, client.WithLimit(int64(limit)))
	}
	if offset > 0 {
		opts = append(opts, client.WithOffset(int64(offset)))
	}

	rs, err := s.db.Client.Query(ctx, s.collName, nil, expr,
		[]string{milvus.FieldID, milvus.FieldText, milvus.FieldMetadata, milvus.FieldVector}, opts...)
	if err != nil {
		return nil, fmt.Errorf("milvus: query records: %w", err)
	}
	recs, err := recordsFromResultSet(rs)
	if err != nil {
		return nil, err
	}
	if ids != nil && len(recs) < len(ids) {
		return nil, fmt.Errorf("%w: requested %d ids, found %d", ErrNotFound, len(ids), len(recs))
	}
	return recs, nil
}

// Query returns up to topK nearest neighbors by cosine distance.
func (s *MilvusStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	sp, err := entity.NewIndexHNSWSearchParam(hnswSearchEf)
	if err != nil {
		return nil, fmt.Errorf("milvus: search params: %w", err)
	}

	results, err := s.db.Client.Search(ctx, s.collName, nil, "",
		[]string{milvus.FieldID, milvus.FieldText, milvus.FieldMetadata, milvus.FieldVector},
		[]entity.Vector{entity.FloatVector(vector)},
		milvus.FieldVector, entity.COSINE, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("milvus: search: %w", err)
	}

	var matches []Match
	for _, result := range results {
		recs, err := recordsFromResultSet(client.ResultSet(result.Fields))
		if err != nil {
			return nil, err
		}
		for i, rec := range recs {
			matches = append(matches, Match{
				Record:   rec,
				Distance: 1 - result.Scores[i],
			})
		}
	}
	return matches, nil
}

// Update overwrites existing records in one batched upsert.
func (s *MilvusStore) Update(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	cols, err := buildColumns(recs, s.dim)
	if err != nil {
		return fmt.Errorf("milvus: update: %w", err)
	}
	if _, err := s.db.Client.Upsert(ctx, s.collName, "", cols...); err != nil {
		return fmt.Errorf("milvus: update: %w", err)
	}
	return nil
}

// Delete removes the records with the given ids.
func (s *MilvusStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.db.Client.Delete(ctx, s.collName, "", idInExpr(ids)); err != nil {
		return fmt.Errorf("milvus: delete: %w", err)
	}
	// Deletes only reach collection statistics after a flush, and Count
	// feeds the retrieval over-fetch bound.
	if err := s.db.Flush(ctx); err != nil {
		return fmt.Errorf("milvus: flush after delete: %w", err)
	}
	return nil
}

// Count returns the number of stored records. The value is read from
// collection statistics and may lag unflushed writes slightly; retrieval
// uses it only to bound over-fetching.
func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	stats, err := s.db.Client.GetCollectionStatistics(ctx, s.collName)
	if err != nil {
		return 0, fmt.Errorf("milvus: collection statistics: %w", err)
	}
	raw, ok := stats["row_count"]
	if !ok {
		return 0, fmt.Errorf("milvus: row_count missing from collection statistics")
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("milvus: parse row_count: %w", err)
	}
	return count, nil
}

func buildColumns(recs []Record, dim int) ([]entity.Column, error) {
	ids := make([]string, len(recs))
	texts := make([]string, len(recs))
	metas := make([]string, len(recs))
	vectors := make([][]float32, len(recs))
	for i, rec := range recs {
		blob, err := json.Marshal(rec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata for %s: %w", rec.ID, err)
		}
		ids[i] = rec.ID
		texts[i] = rec.Text
		metas[i] = string(blob)
		vectors[i] = rec.Vector
	}
	return []entity.Column{
		entity.NewColumnVarChar(milvus.FieldID, ids),
		entity.NewColumnVarChar(milvus.FieldText, texts),
		entity.NewColumnVarChar(milvus.FieldMetadata, metas),
		entity.NewColumnFloatVector(milvus.FieldVector, dim, vectors),
	}, nil
}

func recordsFromResultSet(rs client.ResultSet) ([]Record, error) {
	idCol := rs.GetColumn(milvus.FieldID)
	if idCol == nil {
		return nil, nil
	}
	textCol := rs.GetColumn(milvus.FieldText)
	metaCol := rs.GetColumn(milvus.FieldMetadata)
	vecCol, _ := rs.GetColumn(milvus.FieldVector).(*entity.ColumnFloatVector)

	recs := make([]Record, 0, idCol.Len())
	for i := 0; i < idCol.Len(); i++ {
		id, err := idCol.GetAsString(i)
		if err != nil {
			return nil, fmt.Errorf("milvus: read id at %d: %w", i, err)
		}
		rec := Record{ID: id}
		if textCol != nil {
			rec.Text, _ = textCol.GetAsString(i)
		}
		if metaCol != nil {
			raw, _ := metaCol.GetAsString(i)
			if raw != "" {
				if err := json.Unmarshal([]byte(raw), &rec.Metadata); err != nil {
					return nil, fmt.Errorf("milvus: decode metadata for %s: %w", id, err)
				}
			}
		}
		if vecCol != nil && i < len(vecCol.Data()) {
			rec.Vector = vecCol.Data()[i]
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func idInExpr(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	return fmt.Sprintf("id in [%s]", strings.Join(quoted, ", "))
}
