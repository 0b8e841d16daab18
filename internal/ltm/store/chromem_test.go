package store

import (
	"context"
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore("test_facts")
	if err != nil {
		t.Fatalf("NewChromemStore() error = %v", err)
	}
	return s
}

func addRecord(t *testing.T, s *ChromemStore, id string, vector []float32) {
	t.Helper()
	err := s.Add(context.Background(), Record{
		ID:       id,
		Text:     "text for " + id,
		Vector:   vector,
		Metadata: map[string]string{"importance": "1"},
	})
	if err != nil {
		t.Fatalf("Add(%s) error = %v", id, err)
	}
}

func TestChromemAddAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addRecord(t, s, "a", []float32{1, 0, 0})
	addRecord(t, s, "b", []float32{0, 1, 0})

	recs, err := s.Get(ctx, []string{"a"}, 0, 0)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "a" {
		t.Fatalf("Get(a) = %v, want one record with id a", recs)
	}
	if recs[0].Text != "text for a" {
		t.Errorf("Get(a).Text = %q", recs[0].Text)
	}
	if recs[0].Metadata["importance"] != "1" {
		t.Errorf("Get(a).Metadata = %v", recs[0].Metadata)
	}

	if _, err := s.Get(ctx, []string{"missing"}, 0, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestChromemScanOrderAndPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addRecord(t, s, "first", []float32{1, 0, 0})
	addRecord(t, s, "second", []float32{0, 1, 0})
	addRecord(t, s, "third", []float32{0, 0, 1})

	recs, err := s.Get(ctx, nil, 0, 0)
	if err != nil {
		t.Fatalf("Get(nil) error = %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("Full scan returned %d records, want 3", len(recs))
	}
	for i, want := range []string{"first", "second", "third"} {
		if recs[i].ID != want {
			t.Errorf("Scan order[%d] = %s, want %s", i, recs[i].ID, want)
		}
	}

	recs, err = s.Get(ctx, nil, 1, 1)
	if err != nil {
		t.Fatalf("Get(nil, limit 1, offset 1) error = %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "second" {
		t.Errorf("Paged scan = %v, want just record second", recs)
	}
}

func TestChromemQueryOrdersByDistance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addRecord(t, s, "exact", []float32{1, 0, 0})
	addRecord(t, s, "close", []float32{1, 0.2, 0})
	addRecord(t, s, "orthogonal", []float32{0, 1, 0})

	matches, err := s.Query(ctx, []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("Query returned %d matches, want 3", len(matches))
	}
	if matches[0].ID != "exact" {
		t.Errorf("Nearest match = %s, want exact", matches[0].ID)
	}
	if matches[0].Distance > 0.001 {
		t.Errorf("Exact match distance = %f, want ~0", matches[0].Distance)
	}
	if matches[2].ID != "orthogonal" {
		t.Errorf("Farthest match = %s, want orthogonal", matches[2].ID)
	}
	if matches[2].Distance < 0.9 {
		t.Errorf("Orthogonal distance = %f, want ~1", matches[2].Distance)
	}
}

func TestChromemQueryCapsTopK(t *testing.T) {
	s := newTestStore(t)
	addRecord(t, s, "only", []float32{1, 0, 0})

	matches, err := s.Query(context.Background(), []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("Query with topK above count returned %d matches, want 1", len(matches))
	}
}

func TestChromemUpdateOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addRecord(t, s, "a", []float32{1, 0, 0})

	err := s.Update(ctx, []Record{{
		ID:       "a",
		Text:     "updated text",
		Vector:   []float32{1, 0, 0},
		Metadata: map[string]string{"importance": "2"},
	}})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	recs, err := s.Get(ctx, []string{"a"}, 0, 0)
	if err != nil {
		t.Fatalf("Get() after update error = %v", err)
	}
	if recs[0].Text != "updated text" || recs[0].Metadata["importance"] != "2" {
		t.Errorf("Update did not overwrite: %+v", recs[0])
	}

	count, _ := s.Count(ctx)
	if count != 1 {
		t.Errorf("Count after update = %d, want 1", count)
	}

	err = s.Update(ctx, []Record{{ID: "ghost", Vector: []float32{1, 0, 0}}})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update of unknown record error = %v, want ErrNotFound", err)
	}
}

func TestChromemUpdateWithBadVectorLeavesRecordIntact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addRecord(t, s, "a", []float32{1, 0, 0})

	err := s.Update(ctx, []Record{{
		ID:       "a",
		Text:     "should not land",
		Vector:   []float32{0, 0, 0},
		Metadata: map[string]string{"importance": "2"},
	}})
	if err == nil {
		t.Fatal("Expected error for zero-magnitude update vector")
	}

	// The failed update must not touch the record: count, content and
	// query visibility all stay as they were.
	count, _ := s.Count(ctx)
	if count != 1 {
		t.Errorf("Count after failed update = %d, want 1", count)
	}

	recs, err := s.Get(ctx, []string{"a"}, 0, 0)
	if err != nil {
		t.Fatalf("Get() after failed update error = %v", err)
	}
	if recs[0].Text != "text for a" || recs[0].Metadata["importance"] != "1" {
		t.Errorf("Record changed by failed update: %+v", recs[0])
	}

	matches, err := s.Query(ctx, []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Query() after failed update error = %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "a" {
		t.Errorf("Query after failed update = %v, want record a", matches)
	}
}

func TestChromemUpdateValidatesBatchBeforeMutating(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addRecord(t, s, "good", []float32{1, 0, 0})
	addRecord(t, s, "bad", []float32{0, 1, 0})

	// The second record is invalid, so the first must not be applied.
	err := s.Update(ctx, []Record{
		{ID: "good", Text: "changed", Vector: []float32{1, 0, 0}},
		{ID: "bad", Text: "changed", Vector: nil},
	})
	if err == nil {
		t.Fatal("Expected error for invalid record in batch")
	}

	recs, err := s.Get(ctx, []string{"good"}, 0, 0)
	if err != nil {
		t.Fatalf("Get() after rejected batch error = %v", err)
	}
	if recs[0].Text != "text for good" {
		t.Errorf("Record good changed by rejected batch: %q", recs[0].Text)
	}
}

func TestChromemDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addRecord(t, s, "a", []float32{1, 0, 0})
	addRecord(t, s, "b", []float32{0, 1, 0})

	if err := s.Delete(ctx, []string{"a"}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	count, _ := s.Count(ctx)
	if count != 1 {
		t.Errorf("Count after delete = %d, want 1", count)
	}

	recs, err := s.Get(ctx, nil, 0, 0)
	if err != nil {
		t.Fatalf("Get() after delete error = %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "b" {
		t.Errorf("Remaining records = %v, want just b", recs)
	}

	matches, err := s.Query(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Query() after delete error = %v", err)
	}
	for _, m := range matches {
		if m.ID == "a" {
			t.Error("Deleted record still returned by Query")
		}
	}
}

func TestChromemRejectsBadVectors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, Record{ID: "zero", Vector: []float32{0, 0, 0}}); err == nil {
		t.Error("Expected error for zero-magnitude vector")
	}
	if err := s.Add(ctx, Record{ID: "empty", Vector: nil}); err == nil {
		t.Error("Expected error for empty vector")
	}
	if err := s.Add(ctx, Record{Vector: []float32{1, 0, 0}}); err == nil {
		t.Error("Expected error for missing id")
	}
}
