package relationships

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/lumenreach/transcriptgraph/internal/domain"
)

// aliasSimilarityFloor is the minimum Jaro-Winkler similarity an alias must
// have to a concept's canonical name to be folded into its name-matching
// regex alternation. This catches minor ASR transcription variants (e.g.
// "Kubernetes" vs "Kubernete's") without pulling in aliases that are
// genuinely distinct alternate names, which would widen the regex into
// false positives.
const aliasSimilarityFloor = 0.80

// conceptNamePattern builds the alternation-of-variants regex fragment used
// to locate mentions of a concept (by name or close alias) in text.
func conceptNamePattern(c domain.Concept) string {
	variants := nameVariants(c)
	parts := make([]string, 0, len(variants))
	for _, v := range variants {
		parts = append(parts, conceptNameRegex(v))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(?:" + strings.Join(parts, "|") + ")"
}

// nameVariants returns the concept's name plus any alias whose Jaro-Winkler
// similarity to the name is at least aliasSimilarityFloor, deduplicated.
func nameVariants(c domain.Concept) []string {
	name := strings.ToLower(strings.TrimSpace(c.Name))
	seen := map[string]bool{name: true}
	variants := []string{name}
	for _, alias := range c.Aliases {
		a := strings.ToLower(strings.TrimSpace(alias))
		if a == "" || seen[a] {
			continue
		}
		if matchr.JaroWinkler(name, a, true) >= aliasSimilarityFloor {
			seen[a] = true
			variants = append(variants, a)
		}
	}
	return variants
}
