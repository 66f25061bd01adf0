package relationships

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"

	"github.com/lumenreach/transcriptgraph/internal/domain"
	"github.com/lumenreach/transcriptgraph/internal/pkg/perr"
	"github.com/lumenreach/transcriptgraph/internal/pkg/pointers"
	"github.com/lumenreach/transcriptgraph/internal/platform/logger"
)

// GroupExtraction is the narrow per-group shape the inter-group detector
// needs: its text and its Pass-1 candidate concepts. Defined here (rather
// than imported from the concepts package) to avoid a dependency cycle; the
// orchestrator maps concepts.GroupCandidates onto this type.
type GroupExtraction struct {
	GroupID  int
	Text     string
	Concepts []domain.Concept
}

// InterDetector implements C8: for every pair of groups (i<j), every concept
// pair (source in the later group, target in the earlier group) is checked
// for a cue-phrase relationship in the later group's text, falling back to
// embedding similarity plus temporal proximity when no cue matched.
type InterDetector struct {
	cfg         Config
	embedder    Embedder
	log         *logger.Logger
	cache       map[string][]float32
	cuePatterns map[domain.RelationshipType][]*regexp.Regexp
}

func NewInterDetector(log *logger.Logger, cfg Config, embedder Embedder) (*InterDetector, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	compiled := make(map[domain.RelationshipType][]*regexp.Regexp, len(interGroupCuePhrases))
	for relType, phrases := range interGroupCuePhrases {
		for _, p := range phrases {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				return nil, fmt.Errorf("compile cue phrase %q: %w", p, err)
			}
			compiled[relType] = append(compiled[relType], re)
		}
	}
	return &InterDetector{
		cfg:         cfg.withDefaults(),
		embedder:    embedder,
		log:         log.With("service", "InterGroupRelationshipDetector"),
		cache:       make(map[string][]float32),
		cuePatterns: compiled,
	}, nil
}

// Detect returns every inter-group relationship found across a video's
// groups. extractions may come in any order; Detect works on a copy sorted
// by GroupID ascending.
func (d *InterDetector) Detect(ctx context.Context, extractions []GroupExtraction) []domain.Relationship {
	sorted := append([]GroupExtraction(nil), extractions...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].GroupID < sorted[b].GroupID })

	var out []domain.Relationship
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			earlier, later := sorted[i], sorted[j]
			for _, target := range earlier.Concepts {
				for _, source := range later.Concepts {
					rel, ok := d.detectPair(ctx, source, target, later.Text)
					if !ok {
						continue
					}
					if rel.Confidence < d.cfg.MinConfidence {
						continue
					}
					out = append(out, rel)
				}
			}
		}
	}
	return out
}

func (d *InterDetector) detectPair(ctx context.Context, source, target domain.Concept, laterText string) (domain.Relationship, bool) {
	if rel, ok := d.matchCuePhrase(source, target, laterText); ok {
		return rel, true
	}
	if d.embedder != nil {
		if rel, ok := d.matchEmbeddingProximity(ctx, source, target); ok {
			return rel, true
		}
	}
	return domain.Relationship{}, false
}

// matchCuePhrase searches the later group's text for each type's cue
// phrases, in try-order; a match counts only if the earlier group's target
// concept name appears within [-100,+200] characters of the cue.
func (d *InterDetector) matchCuePhrase(source, target domain.Concept, laterText string) (domain.Relationship, bool) {
	targetRe, err := compileNameOnly(conceptNamePattern(target))
	if err != nil {
		return domain.Relationship{}, false
	}

	for _, relType := range domain.InterGroupTypes {
		for _, cueRe := range d.cuePatterns[relType] {
			cueLoc := cueRe.FindStringIndex(laterText)
			if cueLoc == nil {
				continue
			}
			windowLo := cueLoc[0] - 100
			if windowLo < 0 {
				windowLo = 0
			}
			windowHi := cueLoc[1] + 200
			if windowHi > len(laterText) {
				windowHi = len(laterText)
			}
			if !targetRe.MatchString(laterText[windowLo:windowHi]) {
				continue
			}

			evLo := cueLoc[0] - 50
			if evLo < 0 {
				evLo = 0
			}
			evHi := cueLoc[0] + 150
			if evHi > len(laterText) {
				evHi = len(laterText)
			}
			evidence := clampEvidence(laterText[evLo:evHi])
			confidence := domain.Clamp01(0.75 + source.Importance*0.15)

			return domain.Relationship{
				ID:              domain.RelationshipID(source.ID, target.ID, relType),
				Type:            relType,
				Confidence:      confidence,
				Evidence:        evidence,
				DetectionMethod: domain.DetectionCuePhrase,
				SourceID:        source.ID,
				TargetID:        target.ID,
				SourceVideoID:   source.VideoID,
				SourceGroupID:   source.GroupID,
				TargetVideoID:   target.VideoID,
				TargetGroupID:   target.GroupID,
			}, true
		}
	}
	return domain.Relationship{}, false
}

// matchEmbeddingProximity emits a builds_on relationship when concept
// embeddings clear SimilarityThreshold and the two concepts' first-mention
// times are within TemporalWindowSeconds of each other.
func (d *InterDetector) matchEmbeddingProximity(ctx context.Context, source, target domain.Concept) (domain.Relationship, bool) {
	sourceVec, err := d.embeddingFor(ctx, source)
	if err != nil {
		d.log.Warn("inter-group embedding fallback skipped", "concept_id", source.ID, "error", err.Error())
		return domain.Relationship{}, false
	}
	targetVec, err := d.embeddingFor(ctx, target)
	if err != nil {
		d.log.Warn("inter-group embedding fallback skipped", "concept_id", target.ID, "error", err.Error())
		return domain.Relationship{}, false
	}

	similarity := domain.CosineSimilarity(sourceVec, targetVec)
	if similarity < d.cfg.SimilarityThreshold {
		return domain.Relationship{}, false
	}

	delta := math.Abs(source.FirstMentionTime - target.FirstMentionTime)
	if delta > d.cfg.TemporalWindowSeconds {
		return domain.Relationship{}, false
	}

	confidence := similarity*0.7 + (1-delta/d.cfg.TemporalWindowSeconds)*0.2
	evidence := fmt.Sprintf("embedding similarity %.2f between %q and %q within %.0fs", similarity, source.Name, target.Name, delta)

	return domain.Relationship{
		ID:               domain.RelationshipID(source.ID, target.ID, domain.RelBuildsOn),
		Type:             domain.RelBuildsOn,
		Confidence:       domain.Clamp01(confidence),
		Evidence:         clampEvidence(evidence),
		DetectionMethod:  domain.DetectionVectorSimilarity,
		SourceID:         source.ID,
		TargetID:         target.ID,
		SourceVideoID:    source.VideoID,
		SourceGroupID:    source.GroupID,
		TargetVideoID:    target.VideoID,
		TargetGroupID:    target.GroupID,
		TemporalDistance: pointers.Float64(delta),
	}, true
}

func (d *InterDetector) embeddingFor(ctx context.Context, c domain.Concept) ([]float32, error) {
	if vec, ok := d.cache[c.ID]; ok {
		return vec, nil
	}
	vecs, err := d.embedder.Embed(ctx, []string{c.Name + ". " + c.Definition})
	if err != nil {
		return nil, perr.Wrap("inter_embedding_fallback", perr.Transport, "embedding call failed", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, perr.New("inter_embedding_fallback", perr.Malformed, "embedding endpoint returned empty vector")
	}
	d.cache[c.ID] = vecs[0]
	return vecs[0], nil
}
