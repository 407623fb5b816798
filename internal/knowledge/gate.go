package knowledge

import "github.com/yocore/yocore/internal/aiqueue"

// Quality gate constants, spec.md §4.6.1.
const (
	MinMessageCountForExtraction = 25
	MinConfidence                = 0.70
	MaxMemoryResultsPerPass      = 15
	MaxSkillResultsPerPass       = 10
)

// EligibleForExtraction reports whether a session has enough messages to
// warrant invoking an extractor at all (spec.md §4.6.1: "Skip if session
// message count < 25").
func EligibleForExtraction(messageCount int) bool {
	return messageCount >= MinMessageCountForExtraction
}

// gateMemories discards candidates below MinConfidence and caps the
// survivors at MaxMemoryResultsPerPass (spec.md §4.6.1: "Require returned
// confidence ≥ 0.70; discard lower" and "Cap results per extraction pass
// at 10-15").
func gateMemories(candidates []aiqueue.MemoryCandidate) []aiqueue.MemoryCandidate {
	kept := make([]aiqueue.MemoryCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence >= MinConfidence {
			kept = append(kept, c)
		}
	}
	if len(kept) > MaxMemoryResultsPerPass {
		kept = kept[:MaxMemoryResultsPerPass]
	}
	return kept
}

// gateSkills mirrors gateMemories for skill candidates.
func gateSkills(candidates []aiqueue.SkillCandidate) []aiqueue.SkillCandidate {
	kept := make([]aiqueue.SkillCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence >= MinConfidence {
			kept = append(kept, c)
		}
	}
	if len(kept) > MaxSkillResultsPerPass {
		kept = kept[:MaxSkillResultsPerPass]
	}
	return kept
}
