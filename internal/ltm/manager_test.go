package ltm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"testing"

	"mnemo/internal/config"
	"mnemo/internal/embedding"
	"mnemo/internal/ltm/store"
	"mnemo/internal/models"
	"mnemo/pkg/logger"
)

// fakeStore is an in-memory VectorStore used across the package tests.
type fakeStore struct {
	records map[string]store.Record
	order   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]store.Record)}
}

func (s *fakeStore) Add(_ context.Context, rec store.Record) error {
	if _, ok := s.records[rec.ID]; !ok {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *fakeStore) Get(_ context.Context, ids []string, limit, offset int) ([]store.Record, error) {
	if ids == nil {
		ids = s.order
	}
	var out []store.Record
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok {
			return nil, store.ErrNotFound
		}
		out = append(out, rec)
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) Query(_ context.Context, vector []float32, topK int) ([]store.Match, error) {
	var matches []store.Match
	for _, id := range s.order {
		rec := s.records[id]
		sim, err := testCosine(vector, rec.Vector)
		if err != nil {
			return nil, err
		}
		matches = append(matches, store.Match{Record: rec, Distance: float32(1 - sim)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *fakeStore) Update(_ context.Context, recs []store.Record) error {
	for _, rec := range recs {
		if _, ok := s.records[rec.ID]; !ok {
			return store.ErrNotFound
		}
		s.records[rec.ID] = rec
	}
	return nil
}

func (s *fakeStore) Delete(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(s.records, id)
	}
	var remaining []string
	for _, id := range s.order {
		if _, ok := s.records[id]; ok {
			remaining = append(remaining, id)
		}
	}
	s.order = remaining
	return nil
}

func (s *fakeStore) Count(_ context.Context) (int64, error) {
	return int64(len(s.records)), nil
}

func testCosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch")
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// fakeEmbedder returns canned vectors by text, or fallback when unknown.
type fakeEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
}

func (e *fakeEmbedder) Embed(_ context.Context, text string, _ embedding.Mode) ([]float32, error) {
	if vec, ok := e.vectors[text]; ok {
		return vec, nil
	}
	if e.fallback != nil {
		return e.fallback, nil
	}
	return nil, fmt.Errorf("no vector for %q", text)
}

func testMemoryConfig() config.MemoryConfig {
	return config.MemoryConfig{
		Retrieval: config.RetrievalConfig{TopN: 3, MaxDistance: 1.0},
		Maintenance: config.MaintenanceConfig{
			SimilarityThreshold:       0.95,
			MaxDaysUnaccessed:         90,
			MinAccessForRetention:     1,
			ImportanceDecayFactor:     0.02,
			MinImportanceForRetention: 0.5,
			DaysForDecayCheck:         14,
		},
	}
}

func newTestManager(fs *fakeStore, emb *fakeEmbedder) *Manager {
	return NewManager(fs, emb, logger.New("test", "", ""), testMemoryConfig())
}

func TestAddFactRejectsShortText(t *testing.T) {
	fs := newFakeStore()
	m := newTestManager(fs, &fakeEmbedder{fallback: []float32{1, 0, 0}})

	_, err := m.AddFact(context.Background(), "hello", nil, 0)
	if !errors.Is(err, ErrFactRejected) {
		t.Fatalf("AddFact() error = %v, want ErrFactRejected", err)
	}

	count, _ := fs.Count(context.Background())
	if count != 0 {
		t.Errorf("Expected no stored facts after rejection, got %d", count)
	}
}

func TestAddFactCleansTextAndStores(t *testing.T) {
	fs := newFakeStore()
	m := newTestManager(fs, &fakeEmbedder{fallback: []float32{1, 0, 0}})

	fact, err := m.AddFact(context.Background(), "*   Alice   prefers green tea  ", []string{"alice"}, 0)
	if err != nil {
		t.Fatalf("AddFact() error = %v", err)
	}
	if fact.Text != "Alice prefers green tea" {
		t.Errorf("Unexpected cleaned text: %q", fact.Text)
	}
	if fact.Importance != 1.0 {
		t.Errorf("Expected baseline importance 1.0, got %f", fact.Importance)
	}

	rec, ok := fs.records[fact.ID]
	if !ok {
		t.Fatal("Fact was not persisted to the store")
	}
	if rec.Metadata["access_count"] != "0" {
		t.Errorf("Expected fresh fact with access_count 0, got %q", rec.Metadata["access_count"])
	}
}

func TestAddFactCapsImportance(t *testing.T) {
	fs := newFakeStore()
	m := newTestManager(fs, &fakeEmbedder{fallback: []float32{1, 0, 0}})

	fact, err := m.AddFact(context.Background(), "the sky is blue", nil, 5.0)
	if err != nil {
		t.Fatalf("AddFact() error = %v", err)
	}
	if fact.Importance != 2.0 {
		t.Errorf("Expected importance capped at 2.0, got %f", fact.Importance)
	}
}

func TestGetRelevantTouchesAllPassingCandidates(t *testing.T) {
	fs := newFakeStore()
	emb := &fakeEmbedder{
		vectors:  map[string][]float32{"what does alice like": {1, 0, 0}},
		fallback: []float32{1, 0, 0},
	}
	m := newTestManager(fs, emb)

	ctx := context.Background()
	subjects := [][]string{{"alice"}, {"alice"}, {"bob"}, {"bob"}, {"bob"}}
	for i, subj := range subjects {
		if _, err := m.AddFact(ctx, fmt.Sprintf("fact number %d here", i), subj, 0); err != nil {
			t.Fatalf("AddFact(%d) error = %v", i, err)
		}
	}

	facts, err := m.GetRelevant(ctx, "what does alice like", []string{"alice"}, 5, 0.5)
	if err != nil {
		t.Fatalf("GetRelevant() error = %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("Expected 2 subject-scoped facts, got %d: %v", len(facts), facts)
	}

	// Every fact passed the distance cutoff, so every fact was touched even
	// though the subject filter kept three of them out of the result.
	for id, rec := range fs.records {
		if rec.Metadata["access_count"] != "1" {
			t.Errorf("Fact %s access_count = %q, want \"1\"", id, rec.Metadata["access_count"])
		}
	}
}

func TestGetRelevantDistanceCutoffExcludesAndSkipsTouch(t *testing.T) {
	fs := newFakeStore()
	emb := &fakeEmbedder{
		vectors: map[string][]float32{
			"near fact stored": {1, 0, 0},
			"far fact stored":  {0, 1, 0},
			"the query":        {1, 0, 0},
		},
	}
	m := newTestManager(fs, emb)

	ctx := context.Background()
	near, err := m.AddFact(ctx, "near fact stored", nil, 0)
	if err != nil {
		t.Fatalf("AddFact(near) error = %v", err)
	}
	far, err := m.AddFact(ctx, "far fact stored", nil, 0)
	if err != nil {
		t.Fatalf("AddFact(far) error = %v", err)
	}

	facts, err := m.GetRelevant(ctx, "the query", nil, 3, 0.5)
	if err != nil {
		t.Fatalf("GetRelevant() error = %v", err)
	}
	if len(facts) != 1 || facts[0] != "near fact stored" {
		t.Fatalf("Expected only the near fact, got %v", facts)
	}

	if got := fs.records[near.ID].Metadata["access_count"]; got != "1" {
		t.Errorf("Near fact access_count = %q, want \"1\"", got)
	}
	if got := fs.records[far.ID].Metadata["access_count"]; got != "0" {
		t.Errorf("Far fact beyond the cutoff must not be touched, access_count = %q", got)
	}
}

func TestGetRelevantEmptyStoreAndEmptyQuery(t *testing.T) {
	fs := newFakeStore()
	m := newTestManager(fs, &fakeEmbedder{fallback: []float32{1, 0, 0}})

	facts, err := m.GetRelevant(context.Background(), "anything at all", nil, 3, 0.5)
	if err != nil {
		t.Fatalf("GetRelevant() on empty store error = %v", err)
	}
	if facts != nil {
		t.Errorf("Expected nil result on empty store, got %v", facts)
	}

	facts, err = m.GetRelevant(context.Background(), "   ", nil, 3, 0.5)
	if err != nil {
		t.Fatalf("GetRelevant() on blank query error = %v", err)
	}
	if facts != nil {
		t.Errorf("Expected nil result for blank query, got %v", facts)
	}
}

func TestDisabledManagerNoOps(t *testing.T) {
	m := NewManager(nil, nil, logger.New("test", "", ""), testMemoryConfig())

	if m.Enabled() {
		t.Fatal("Manager without store and embedder must be disabled")
	}

	fact, err := m.AddFact(context.Background(), "this should be ignored", nil, 0)
	if err != nil || fact != nil {
		t.Errorf("Disabled AddFact() = (%v, %v), want (nil, nil)", fact, err)
	}

	facts, err := m.GetRelevant(context.Background(), "anything", nil, 3, 0.5)
	if err != nil || facts != nil {
		t.Errorf("Disabled GetRelevant() = (%v, %v), want (nil, nil)", facts, err)
	}

	count, err := m.Count(context.Background())
	if err != nil || count != 0 {
		t.Errorf("Disabled Count() = (%d, %v), want (0, nil)", count, err)
	}
}

func TestIngestCandidateScoresFromContext(t *testing.T) {
	fs := newFakeStore()
	m := newTestManager(fs, &fakeEmbedder{fallback: []float32{1, 0, 0}})

	fact, err := m.IngestCandidate(context.Background(), models.CandidateFact{
		FactText:      "Alice runs marathons",
		SubjectIDs:    []string{"alice"},
		SourceContext: "Please remember that Alice runs marathons",
	})
	if err != nil {
		t.Fatalf("IngestCandidate() error = %v", err)
	}
	// "remember" bonus 0.5 plus subject bonus 0.1 on the 1.0 baseline.
	if fact.Importance != 1.6 {
		t.Errorf("Expected importance 1.6, got %f", fact.Importance)
	}
}
