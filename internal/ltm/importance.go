package ltm

import "strings"

// Importance score bounds. Scores start at the baseline and only ever go
// down after creation (maintenance decay), so the cap only matters at
// ingestion time.
const (
	baselineImportance = 1.0
	maxImportance      = 2.0
	subjectBonus       = 0.1
)

// importanceKeywords maps dialogue cue words to importance bonuses. When a
// fact's source context contains one of these, the fact was likely stated
// deliberately and should survive longer.
var importanceKeywords = []struct {
	word  string
	bonus float64
}{
	{"remember", 0.5},
	{"important", 0.5},
	{"plan", 0.4},
	{"decided", 0.4},
	{"agreed", 0.4},
	{"meeting", 0.3},
	{"trip", 0.3},
	{"idea", 0.2},
	{"birthday", 0.2},
	{"deadline", 0.2},
}

// scoreImportance computes the initial importance of a candidate fact from
// the dialogue context it was extracted from. Only the first matching
// keyword contributes; multiple cue words in one context do not stack.
func scoreImportance(sourceContext string, hasSubjects bool) float64 {
	score := baselineImportance

	lowered := strings.ToLower(sourceContext)
	for _, kw := range importanceKeywords {
		if strings.Contains(lowered, kw.word) {
			score += kw.bonus
			break
		}
	}

	if hasSubjects {
		score += subjectBonus
	}

	if score > maxImportance {
		score = maxImportance
	}
	return score
}
