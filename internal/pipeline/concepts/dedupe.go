package concepts

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/lumenreach/transcriptgraph/internal/domain"
)

// nameMergeSimilarityFloor is the minimum Jaro-Winkler similarity between two
// candidate names for DedupeByName to fold them into one concept. It is
// stricter than the 0.80 floor relationships.nameVariants uses for alias
// folding, since here it merges separate candidates rather than one concept's
// own aliases.
const nameMergeSimilarityFloor = 0.90

// DedupeByName merges candidate concepts whose normalized names are
// near-identical by Jaro-Winkler similarity. It exists for the path where
// Pass 2 consolidation (an LLM call) is unavailable or fails and the Pass-1
// union is used as-is: a plain union still contains the same concept
// surfaced once per group under slightly different ASR spellings, and this
// collapses those before they reach the graph store. The surviving concept
// keeps the highest-confidence name/definition, unions aliases and source
// ids, and sums mention counts.
func DedupeByName(candidates []domain.Concept) []domain.Concept {
	merged := make([]domain.Concept, 0, len(candidates))

	for _, c := range candidates {
		name := domain.NormalizeConceptName(c.Name)
		matchIdx := -1
		for i, m := range merged {
			if matchr.JaroWinkler(name, domain.NormalizeConceptName(m.Name), true) >= nameMergeSimilarityFloor {
				matchIdx = i
				break
			}
		}
		if matchIdx < 0 {
			c.SourceCandidateIDs = []string{c.ID}
			c.SourceGroupIDs = []int{c.GroupID}
			merged = append(merged, c)
			continue
		}

		existing := merged[matchIdx]
		if c.Confidence > existing.Confidence {
			existing.Name = c.Name
			existing.Definition = c.Definition
			existing.Confidence = c.Confidence
			existing.Type = c.Type
		}
		if c.Importance > existing.Importance {
			existing.Importance = c.Importance
		}
		existing.MentionCount += c.MentionCount
		existing.Aliases = unionStrings(existing.Aliases, c.Aliases)
		existing.SourceCandidateIDs = unionStrings(existing.SourceCandidateIDs, []string{c.ID})
		existing.SourceGroupIDs = unionInts(existing.SourceGroupIDs, []int{c.GroupID})
		if c.FirstMentionTime < existing.FirstMentionTime {
			existing.FirstMentionTime = c.FirstMentionTime
		}
		if c.LastMentionTime > existing.LastMentionTime {
			existing.LastMentionTime = c.LastMentionTime
		}
		merged[matchIdx] = existing
	}

	return merged
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func unionInts(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, v := range append(append([]int{}, a...), b...) {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
