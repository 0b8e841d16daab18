// Package ltm implements the long-term memory core: fact ingestion,
// relevance retrieval with access telemetry, and periodic self-maintenance
// (deduplication, importance decay, eviction) over a pluggable vector store.
package ltm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mnemo/internal/config"
	"mnemo/internal/embedding"
	"mnemo/internal/ltm/store"
	"mnemo/internal/models"
	"mnemo/pkg/logger"
)

// ErrFactRejected is returned when a candidate fact fails validation before
// any store write happens.
var ErrFactRejected = errors.New("ltm: fact rejected")

// minRetrievalFetch is the floor on how many neighbors retrieval over-fetches
// to leave headroom for distance and subject filtering.
const minRetrievalFetch = 20

// Manager is the facade over the long-term memory core. It owns no fact
// state; facts live in the vector store and are mutated via read-modify-write
// without locking. Concurrent touches to the same fact may race and the last
// writer wins, which is acceptable because access telemetry is advisory.
//
// A Manager built without a store or embedder (degraded startup) turns every
// operation into a logged no-op so the rest of the application keeps working.
type Manager struct {
	store    store.VectorStore
	embedder embedding.Embedder
	log      *logger.Logger
	cfg      config.MemoryConfig
}

// NewManager creates a memory manager over the given store and embedder.
// Either may be nil, producing a disabled manager.
func NewManager(vs store.VectorStore, emb embedding.Embedder, log *logger.Logger, cfg config.MemoryConfig) *Manager {
	m := &Manager{store: vs, embedder: emb, log: log, cfg: cfg}
	if !m.Enabled() {
		log.Warn("long-term memory is disabled: store or embedder unavailable")
	}
	return m
}

// Enabled reports whether the memory core has a working store and embedder.
func (m *Manager) Enabled() bool {
	return m.store != nil && m.embedder != nil
}

// AddFact validates, embeds and stores one fact statement. The importance
// argument is a pre-computed score; values <= 0 fall back to the baseline.
// Texts shorter than two words are rejected with ErrFactRejected before any
// store write. Embedding failures abort the ingestion; the core never
// retries, re-invoking is the caller's call.
func (m *Manager) AddFact(ctx context.Context, text string, subjectIDs []string, importance float64) (*models.Fact, error) {
	if !m.Enabled() {
		m.log.Warn("AddFact skipped: memory core disabled")
		return nil, nil
	}

	cleaned := cleanFactText(text)
	if len(strings.Fields(cleaned)) < 2 {
		m.log.WithPayload(map[string]interface{}{"text": cleaned}).Info("fact rejected: fewer than two words")
		return nil, fmt.Errorf("%w: fewer than two words", ErrFactRejected)
	}

	if importance <= 0 {
		importance = baselineImportance
	}
	if importance > maxImportance {
		importance = maxImportance
	}

	vector, err := m.embedder.Embed(ctx, cleaned, embedding.ModeDocument)
	if err != nil {
		m.log.WithError(models.ErrorInfo{Message: err.Error()}).Error("fact ingestion aborted: embedding failed")
		return nil, fmt.Errorf("embed fact: %w", err)
	}

	now := time.Now().UTC()
	fact := &models.Fact{
		ID:             uuid.New().String(),
		Text:           cleaned,
		Embedding:      vector,
		SubjectIDs:     subjectIDs,
		AddedAt:        now,
		LastAccessedAt: now,
		AccessCount:    0,
		Importance:     importance,
	}

	rec := store.Record{
		ID:       fact.ID,
		Text:     fact.Text,
		Vector:   fact.Embedding,
		Metadata: fact.Metadata(),
	}
	if err := m.store.Add(ctx, rec); err != nil {
		m.log.WithError(models.ErrorInfo{Message: err.Error()}).Error("failed to persist fact")
		return nil, fmt.Errorf("store fact: %w", err)
	}

	m.log.WithPayload(map[string]interface{}{
		"fact_id":    fact.ID,
		"importance": fact.Importance,
	}).Info("fact added to long-term memory")
	return fact, nil
}

// IngestCandidate scores and stores a fact proposed by the upstream
// extraction pipeline. The importance heuristic scans the candidate's source
// context for cue keywords and adds a small bonus for subject-scoped facts.
func (m *Manager) IngestCandidate(ctx context.Context, cand models.CandidateFact) (*models.Fact, error) {
	importance := scoreImportance(cand.SourceContext, len(cand.SubjectIDs) > 0)
	return m.AddFact(ctx, cand.FactText, cand.SubjectIDs, importance)
}

// GetRelevant embeds the query and returns up to n fact texts within
// maxDistance, ordered by similarity rank. Every candidate that passes the
// distance cutoff is "touched" (access count incremented, last-accessed
// refreshed) whether or not it makes the final list; the telemetry write is
// batched into a single store update after the scan.
func (m *Manager) GetRelevant(ctx context.Context, query string, subjectIDs []string, n int, maxDistance float64) ([]string, error) {
	if !m.Enabled() {
		m.log.Warn("GetRelevant skipped: memory core disabled")
		return nil, nil
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if n <= 0 {
		n = m.cfg.Retrieval.TopN
	}
	if maxDistance <= 0 {
		maxDistance = m.cfg.Retrieval.MaxDistance
	}

	count, err := m.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count facts: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	queryVec, err := m.embedder.Embed(ctx, query, embedding.ModeQuery)
	if err != nil {
		m.log.WithError(models.ErrorInfo{Message: err.Error()}).Error("retrieval aborted: query embedding failed")
		return nil, fmt.Errorf("embed query: %w", err)
	}

	fetch := n * 5
	if fetch < minRetrievalFetch {
		fetch = minRetrievalFetch
	}
	if int64(fetch) > count {
		fetch = int(count)
	}

	matches, err := m.store.Query(ctx, queryVec, fetch)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}

	now := time.Now().UTC()
	var results []string
	var touched []store.Record

	for _, match := range matches {
		if float64(match.Distance) > maxDistance {
			continue
		}

		fact, err := models.FactFromMetadata(match.ID, match.Vector, match.Metadata)
		if err != nil {
			m.log.WithError(models.ErrorInfo{Message: err.Error()}).Warn("skipping fact with malformed metadata")
			continue
		}

		fact.Touch(now)
		touched = append(touched, store.Record{
			ID:       fact.ID,
			Text:     fact.Text,
			Vector:   match.Vector,
			Metadata: fact.Metadata(),
		})

		if len(results) < n && (len(subjectIDs) == 0 || fact.HasSubject(subjectIDs)) {
			results = append(results, fact.Text)
		}
	}

	if len(touched) > 0 {
		if err := m.store.Update(ctx, touched); err != nil {
			// Telemetry is advisory; a lost touch batch does not fail retrieval.
			m.log.WithError(models.ErrorInfo{Message: err.Error()}).Warn("failed to update access telemetry")
		}
	}

	return results, nil
}

// Count returns the number of stored facts, zero when disabled.
func (m *Manager) Count(ctx context.Context) (int64, error) {
	if !m.Enabled() {
		return 0, nil
	}
	return m.store.Count(ctx)
}

// cleanFactText normalizes whitespace and strips the leading bullet the
// extraction pipeline sometimes leaves on list-formatted output.
func cleanFactText(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "* ")
	return strings.Join(strings.Fields(cleaned), " ")
}
