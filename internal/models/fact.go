package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Metadata keys used when a Fact crosses the vector store boundary. The store
// only sees a flat string-keyed map; typed fields live on the struct.
const (
	MetaText         = "text"
	MetaSubjectIDs   = "subject_ids"
	MetaAddedAt      = "added_at"
	MetaLastAccessed = "last_accessed"
	MetaAccessCount  = "access_count"
	MetaImportance   = "importance"
)

// Fact is a single long-term memory statement with its retrieval telemetry.
type Fact struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	Embedding      []float32 `json:"-"`
	SubjectIDs     []string  `json:"subject_ids"`
	AddedAt        time.Time `json:"added_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	AccessCount    int64     `json:"access_count"`
	Importance     float64   `json:"importance"`
}

// Touch records one retrieval access at the given time.
func (f *Fact) Touch(now time.Time) {
	f.AccessCount++
	f.LastAccessedAt = now
}

// Metadata serializes the fact's non-vector fields into the flat map stored
// alongside the embedding. Subject IDs are kept as an opaque JSON blob because
// not every backend supports array-contains predicates; membership filtering
// happens in application code.
func (f *Fact) Metadata() map[string]string {
	subjects := f.SubjectIDs
	if subjects == nil {
		subjects = []string{}
	}
	blob, _ := json.Marshal(subjects)
	return map[string]string{
		MetaText:         f.Text,
		MetaSubjectIDs:   string(blob),
		MetaAddedAt:      f.AddedAt.UTC().Format(time.RFC3339Nano),
		MetaLastAccessed: f.LastAccessedAt.UTC().Format(time.RFC3339Nano),
		MetaAccessCount:  strconv.FormatInt(f.AccessCount, 10),
		MetaImportance:   strconv.FormatFloat(f.Importance, 'f', -1, 64),
	}
}

// FactFromMetadata rebuilds a Fact from a store record.
func FactFromMetadata(id string, embedding []float32, meta map[string]string) (*Fact, error) {
	if meta == nil {
		return nil, fmt.Errorf("fact %s: missing metadata", id)
	}
	f := &Fact{
		ID:        id,
		Text:      meta[MetaText],
		Embedding: embedding,
	}

	if blob := meta[MetaSubjectIDs]; blob != "" {
		if err := json.Unmarshal([]byte(blob), &f.SubjectIDs); err != nil {
			return nil, fmt.Errorf("fact %s: decode subject ids: %w", id, err)
		}
	}

	var err error
	if f.AddedAt, err = parseTimestamp(meta[MetaAddedAt]); err != nil {
		return nil, fmt.Errorf("fact %s: added_at: %w", id, err)
	}
	if f.LastAccessedAt, err = parseTimestamp(meta[MetaLastAccessed]); err != nil {
		// Old records may predate access telemetry; fall back to creation time.
		f.LastAccessedAt = f.AddedAt
	}
	if raw := meta[MetaAccessCount]; raw != "" {
		if f.AccessCount, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("fact %s: access_count: %w", id, err)
		}
	}
	if raw := meta[MetaImportance]; raw != "" {
		if f.Importance, err = strconv.ParseFloat(raw, 64); err != nil {
			return nil, fmt.Errorf("fact %s: importance: %w", id, err)
		}
	}
	return f, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	return time.Parse(time.RFC3339Nano, raw)
}

// HasSubject reports whether the fact is associated with any of the given
// subject IDs. A fact with no subject association is unscoped and matches
// every query.
func (f *Fact) HasSubject(subjectIDs []string) bool {
	if len(f.SubjectIDs) == 0 {
		return true
	}
	for _, want := range subjectIDs {
		for _, have := range f.SubjectIDs {
			if want == have {
				return true
			}
		}
	}
	return false
}
