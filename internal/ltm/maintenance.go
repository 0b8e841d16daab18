package ltm

import (
	"context"
	"fmt"
	"time"

	"mnemo/internal/config"
	"mnemo/internal/ltm/store"
	"mnemo/internal/models"
)

// MaintenanceReport summarizes one maintenance run.
type MaintenanceReport struct {
	DeletedDuplicates int `json:"deleted_duplicates"`
	DeletedObsolete   int `json:"deleted_obsolete"`
	TotalDeleted      int `json:"total_deleted"`
	UpdatedImportance int `json:"updated_importance"`
}

// PerformMaintenance runs the three memory hygiene phases in order:
//
//  1. Deduplication: pairwise cosine similarity over all facts; of each
//     near-duplicate pair the lower-importance fact is deleted (ties keep
//     the newer one).
//  2. Decay: facts idle longer than DaysForDecayCheck lose
//     ImportanceDecayFactor of importance, floored at zero.
//  3. Eviction: facts idle longer than MaxDaysUnaccessed whose post-decay
//     importance fell below MinImportanceForRetention are deleted.
//
// All surviving changes are flushed as one batched update followed by one
// batched delete. There is no rollback: a failure partway leaves earlier
// writes in place, and the next run converges on the same end state.
func (m *Manager) PerformMaintenance(ctx context.Context, cfg config.MaintenanceConfig) (MaintenanceReport, error) {
	var report MaintenanceReport
	if !m.Enabled() {
		m.log.Warn("maintenance skipped: memory core disabled")
		return report, nil
	}

	records, err := m.store.Get(ctx, nil, 0, 0)
	if err != nil {
		return report, fmt.Errorf("load facts for maintenance: %w", err)
	}
	if len(records) == 0 {
		return report, nil
	}

	facts := make([]*models.Fact, 0, len(records))
	vectors := make(map[string][]float32, len(records))
	for _, rec := range records {
		fact, err := models.FactFromMetadata(rec.ID, rec.Vector, rec.Metadata)
		if err != nil {
			m.log.WithError(models.ErrorInfo{Message: err.Error()}).Warn("maintenance skipping fact with malformed metadata")
			continue
		}
		facts = append(facts, fact)
		vectors[fact.ID] = rec.Vector
	}

	now := time.Now().UTC()
	duplicates := make(map[string]bool)
	obsolete := make(map[string]bool)
	changed := make(map[string]bool)

	// Phase 1: greedy pairwise dedup. Deliberately non-transitive, each
	// comparison only consults prior deletion decisions.
	for i := 0; i < len(facts); i++ {
		if duplicates[facts[i].ID] {
			continue
		}
		for j := i + 1; j < len(facts); j++ {
			if duplicates[facts[j].ID] {
				continue
			}
			sim, err := cosineSimilarity(vectors[facts[i].ID], vectors[facts[j].ID])
			if err != nil {
				continue
			}
			// Strictly above the threshold; similarity exactly at the
			// threshold is not a duplicate.
			if sim <= cfg.SimilarityThreshold {
				continue
			}
			loser := pickDuplicateLoser(facts[i], facts[j])
			duplicates[loser.ID] = true
			if loser.ID == facts[i].ID {
				break
			}
		}
	}

	// Phase 2: decay. Only counted when the stored value actually moves,
	// so a rerun over already-floored facts writes nothing.
	decayCutoff := now.AddDate(0, 0, -cfg.DaysForDecayCheck)
	for _, fact := range facts {
		if duplicates[fact.ID] {
			continue
		}
		if fact.LastAccessedAt.After(decayCutoff) {
			continue
		}
		next := fact.Importance - cfg.ImportanceDecayFactor
		if next < 0 {
			next = 0
		}
		if next != fact.Importance {
			fact.Importance = next
			changed[fact.ID] = true
		}
	}

	// Phase 3: eviction, judged on post-decay importance. Access counts are
	// not consulted here; MinAccessForRetention is reserved for a stricter
	// retention policy.
	evictCutoff := now.AddDate(0, 0, -cfg.MaxDaysUnaccessed)
	for _, fact := range facts {
		if duplicates[fact.ID] {
			continue
		}
		if fact.LastAccessedAt.After(evictCutoff) {
			continue
		}
		if fact.Importance < cfg.MinImportanceForRetention {
			obsolete[fact.ID] = true
		}
	}

	var updates []store.Record
	for _, fact := range facts {
		if !changed[fact.ID] || duplicates[fact.ID] || obsolete[fact.ID] {
			continue
		}
		updates = append(updates, store.Record{
			ID:       fact.ID,
			Text:     fact.Text,
			Vector:   vectors[fact.ID],
			Metadata: fact.Metadata(),
		})
		report.UpdatedImportance++
	}

	var deletions []string
	for id := range duplicates {
		deletions = append(deletions, id)
		report.DeletedDuplicates++
	}
	for id := range obsolete {
		deletions = append(deletions, id)
		report.DeletedObsolete++
	}
	report.TotalDeleted = len(deletions)

	if len(updates) > 0 {
		if err := m.store.Update(ctx, updates); err != nil {
			return report, fmt.Errorf("apply decay updates: %w", err)
		}
	}
	if len(deletions) > 0 {
		if err := m.store.Delete(ctx, deletions); err != nil {
			return report, fmt.Errorf("delete facts: %w", err)
		}
	}

	m.log.WithPayload(map[string]interface{}{
		"deleted_duplicates": report.DeletedDuplicates,
		"deleted_obsolete":   report.DeletedObsolete,
		"updated_importance": report.UpdatedImportance,
	}).Info("memory maintenance completed")
	return report, nil
}

// pickDuplicateLoser decides which of two near-duplicate facts to delete.
// The lower-importance fact loses; on equal importance the older one does.
func pickDuplicateLoser(a, b *models.Fact) *models.Fact {
	if a.Importance != b.Importance {
		if a.Importance < b.Importance {
			return a
		}
		return b
	}
	if a.AddedAt.Before(b.AddedAt) {
		return a
	}
	return b
}
