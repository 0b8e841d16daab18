package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemStore is a VectorStore backed by chromem-go, a pure Go embedded
// vector database. It keeps data in process memory, which makes it the
// natural backend for single-node deployments and tests.
//
// chromem has no scan-by-id API, so the adapter mirrors every record in its
// own map and uses the chromem collection only for nearest-neighbor queries.
// Vectors are normalized on the way in; similarity is then a plain dot
// product on both the chromem path and the adapter's own math.
type ChromemStore struct {
	mu      sync.RWMutex
	col     *chromem.Collection
	records map[string]Record
	order   []string // insertion order for deterministic scans
}

// NewChromemStore creates an empty in-process store with one collection.
func NewChromemStore(collectionName string) (*ChromemStore, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: create collection: %w", err)
	}
	return &ChromemStore{
		col:     col,
		records: make(map[string]Record),
	}, nil
}

// Add stores one record.
func (s *ChromemStore) Add(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("chromem: record id is required")
	}
	vec, err := normalize(rec.Vector)
	if err != nil {
		return fmt.Errorf("chromem: add %s: %w", rec.ID, err)
	}
	rec.Vector = vec

	err = s.col.AddDocument(ctx, chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: rec.Vector,
		Metadata:  copyMeta(rec.Metadata),
	})
	if err != nil {
		return fmt.Errorf("chromem: add document %s: %w", rec.ID, err)
	}

	s.mu.Lock()
	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec
	s.mu.Unlock()
	return nil
}

// Get returns the records with the given ids, or scans the collection in
// insertion order when ids is nil.
func (s *ChromemStore) Get(_ context.Context, ids []string, limit, offset int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scan := ids
	if scan == nil {
		scan = s.order
	}

	var out []Record
	skipped := 0
	for _, id := range scan {
		rec, ok := s.records[id]
		if !ok {
			if ids != nil {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Query returns up to topK nearest neighbors by cosine distance.
func (s *ChromemStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	s.mu.RLock()
	count := len(s.records)
	s.mu.RUnlock()
	if count == 0 || topK <= 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	qvec, err := normalize(vector)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	results, err := s.col.QueryEmbedding(ctx, qvec, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	matches := make([]Match, 0, len(results))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, res := range results {
		rec, ok := s.records[res.ID]
		if !ok {
			// Deleted concurrently between query and lookup; skip.
			continue
		}
		matches = append(matches, Match{
			Record:   rec,
			Distance: 1 - res.Similarity,
		})
	}
	return matches, nil
}

// Update overwrites existing records in one batch. chromem has no in-place
// update, so each record is deleted and re-added. The whole batch is
// validated and normalized before the collection is touched, so a bad record
// cannot leave the collection and the mirror map out of sync.
func (s *ChromemStore) Update(ctx context.Context, recs []Record) error {
	normalized := make([]Record, len(recs))
	for i, rec := range recs {
		if rec.ID == "" {
			return fmt.Errorf("chromem: update: record id is required")
		}
		vec, err := normalize(rec.Vector)
		if err != nil {
			return fmt.Errorf("chromem: update %s: %w", rec.ID, err)
		}
		rec.Vector = vec
		normalized[i] = rec
	}

	s.mu.RLock()
	for _, rec := range normalized {
		if _, ok := s.records[rec.ID]; !ok {
			s.mu.RUnlock()
			return fmt.Errorf("%w: %s", ErrNotFound, rec.ID)
		}
	}
	s.mu.RUnlock()

	for _, rec := range normalized {
		s.mu.RLock()
		prev := s.records[rec.ID]
		s.mu.RUnlock()

		if err := s.col.Delete(ctx, nil, nil, rec.ID); err != nil {
			return fmt.Errorf("chromem: update %s: %w", rec.ID, err)
		}
		err := s.col.AddDocument(ctx, chromem.Document{
			ID:        rec.ID,
			Content:   rec.Text,
			Embedding: rec.Vector,
			Metadata:  copyMeta(rec.Metadata),
		})
		if err != nil {
			// Put the previous document back so the collection still
			// matches the mirror map.
			restoreErr := s.col.AddDocument(ctx, chromem.Document{
				ID:        prev.ID,
				Content:   prev.Text,
				Embedding: prev.Vector,
				Metadata:  copyMeta(prev.Metadata),
			})
			if restoreErr != nil {
				return fmt.Errorf("chromem: update %s: %v (restore failed: %w)", rec.ID, err, restoreErr)
			}
			return fmt.Errorf("chromem: update %s: %w", rec.ID, err)
		}
		s.mu.Lock()
		s.records[rec.ID] = rec
		s.mu.Unlock()
	}
	return nil
}

// Delete removes the records with the given ids. Unknown ids are ignored.
func (s *ChromemStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("chromem: delete: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
		delete(s.records, id)
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if _, gone := drop[id]; !gone {
			kept = append(kept, id)
		}
	}
	s.order = kept
	return nil
}

// Count returns the number of stored records.
func (s *ChromemStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

func copyMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// normalize returns a unit-length copy of the vector.
func normalize(vec []float32) ([]float32, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty vector")
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return nil, fmt.Errorf("zero-magnitude vector")
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out, nil
}
