package relationships

import (
	"context"
	"fmt"
	"strings"

	"github.com/lumenreach/transcriptgraph/internal/domain"
	"github.com/lumenreach/transcriptgraph/internal/pkg/perr"
	"github.com/lumenreach/transcriptgraph/internal/platform/logger"
)

// Embedder produces a dense vector for one piece of text, used by the
// optional embedding-similarity fallback in both detectors. A nil Embedder
// disables that fallback without disabling pattern/cue-phrase detection.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// IntraDetector implements C7: for every ordered pair of concepts within one
// group, tries regex pattern matching, then a proximity fallback, then an
// optional embedding-similarity fallback.
type IntraDetector struct {
	cfg      Config
	embedder Embedder
	log      *logger.Logger
	cache    map[string][]float32
}

func NewIntraDetector(log *logger.Logger, cfg Config, embedder Embedder) (*IntraDetector, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &IntraDetector{
		cfg:      cfg.withDefaults(),
		embedder: embedder,
		log:      log.With("service", "IntraGroupRelationshipDetector"),
		cache:    make(map[string][]float32),
	}, nil
}

// Detect returns every relationship found among the candidates of one
// group. group.Concepts and group.GroupText come from a single Pass-1
// GroupCandidates-shaped input; callers pass those fields directly to avoid
// an import cycle with the concepts package.
func (d *IntraDetector) Detect(ctx context.Context, concepts []domain.Concept, groupText string) []domain.Relationship {
	text := strings.TrimSpace(groupText)
	var out []domain.Relationship

	for i := range concepts {
		for j := range concepts {
			if i == j {
				continue
			}
			source, target := concepts[i], concepts[j]
			rel, ok := d.detectPair(ctx, source, target, text)
			if !ok {
				continue
			}
			if rel.Confidence < d.cfg.MinConfidence {
				continue
			}
			out = append(out, rel)
		}
	}
	return out
}

func (d *IntraDetector) detectPair(ctx context.Context, source, target domain.Concept, text string) (domain.Relationship, bool) {
	if rel, ok := d.matchPattern(source, target, text); ok {
		return rel, true
	}
	if rel, ok := d.matchProximity(source, target, text); ok {
		return rel, true
	}
	if d.embedder != nil {
		if rel, ok := d.matchEmbedding(ctx, source, target); ok {
			return rel, true
		}
	}
	return domain.Relationship{}, false
}

// matchPattern tries every intra-group relationship type's regex templates
// in the fixed try-order; the first matching type for the pair wins.
func (d *IntraDetector) matchPattern(source, target domain.Concept, text string) (domain.Relationship, bool) {
	sourcePattern := conceptNamePattern(source)
	targetPattern := conceptNamePattern(target)

	for _, relType := range domain.IntraGroupTypes {
		for _, tmpl := range intraGroupPatterns[relType] {
			re, err := compileIntraPattern(tmpl, sourcePattern, targetPattern)
			if err != nil {
				d.log.Warn("skipping unparseable intra-group pattern", "type", relType, "error", err.Error())
				continue
			}
			loc := re.FindStringIndex(text)
			if loc == nil {
				continue
			}
			evidence := evidenceWindow(text, loc[0], loc[1], 50)
			confidence := domain.Clamp01(min95(0.7 + (source.Importance+target.Importance)/4))
			return domain.Relationship{
				ID:              domain.RelationshipID(source.ID, target.ID, relType),
				Type:            relType,
				Confidence:      confidence,
				Evidence:        clampEvidence(evidence),
				DetectionMethod: domain.DetectionPatternMatching,
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

// matchProximity emits a `uses` relationship when the nearest mentions of
// both concept names are within ProximityMaxChars characters of each other.
func (d *IntraDetector) matchProximity(source, target domain.Concept, text string) (domain.Relationship, bool) {
	sourceRe, err := compileNameOnly(conceptNamePattern(source))
	if err != nil {
		return domain.Relationship{}, false
	}
	targetRe, err := compileNameOnly(conceptNamePattern(target))
	if err != nil {
		return domain.Relationship{}, false
	}
	sourceLocs := sourceRe.FindAllStringIndex(text, -1)
	targetLocs := targetRe.FindAllStringIndex(text, -1)
	if len(sourceLocs) == 0 || len(targetLocs) == 0 {
		return domain.Relationship{}, false
	}

	sourceLoc, targetLoc := sourceLocs[0], targetLocs[0]
	distance := charDistance(sourceLoc, targetLoc)
	for _, sl := range sourceLocs {
		for _, tl := range targetLocs {
			if dd := charDistance(sl, tl); dd < distance {
				sourceLoc, targetLoc, distance = sl, tl, dd
			}
		}
	}
	if distance >= d.cfg.ProximityMaxChars {
		return domain.Relationship{}, false
	}

	lo, hi := sourceLoc[0], targetLoc[1]
	if targetLoc[0] < sourceLoc[0] {
		lo, hi = targetLoc[0], sourceLoc[1]
	}
	evidence := evidenceWindow(text, lo, hi, 30)
	confidence := domain.Clamp01(0.5 + (1-float64(distance)/float64(d.cfg.ProximityMaxChars))*0.2)

	return domain.Relationship{
		ID:              domain.RelationshipID(source.ID, target.ID, domain.RelUses),
		Type:            domain.RelUses,
		Confidence:      confidence,
		Evidence:        clampEvidence(evidence),
		DetectionMethod: domain.DetectionPatternMatching,
		SourceID:        source.ID,
		TargetID:        target.ID,
		SourceVideoID:   source.VideoID,
		SourceGroupID:   source.GroupID,
		TargetVideoID:   target.VideoID,
		TargetGroupID:   target.GroupID,
	}, true
}

// matchEmbedding embeds each concept's "name. definition" string (cached by
// concept id for the lifetime of this detector) and emits a `uses`
// relationship if cosine similarity clears VectorSimilarityThreshold.
func (d *IntraDetector) matchEmbedding(ctx context.Context, source, target domain.Concept) (domain.Relationship, bool) {
	sourceVec, err := d.embeddingFor(ctx, source)
	if err != nil {
		d.log.Warn("intra-group embedding fallback skipped", "concept_id", source.ID, "error", err.Error())
		return domain.Relationship{}, false
	}
	targetVec, err := d.embeddingFor(ctx, target)
	if err != nil {
		d.log.Warn("intra-group embedding fallback skipped", "concept_id", target.ID, "error", err.Error())
		return domain.Relationship{}, false
	}

	similarity := domain.CosineSimilarity(sourceVec, targetVec)
	if similarity < d.cfg.VectorSimilarityThreshold {
		return domain.Relationship{}, false
	}

	confidence := similarity*0.6 + (source.Confidence+target.Confidence)/4
	if confidence < d.cfg.MinConfidence {
		confidence = d.cfg.MinConfidence
	}
	evidence := fmt.Sprintf("embedding similarity %.2f between %q and %q", similarity, source.Name, target.Name)

	return domain.Relationship{
		ID:              domain.RelationshipID(source.ID, target.ID, domain.RelUses),
		Type:            domain.RelUses,
		Confidence:      domain.Clamp01(confidence),
		Evidence:        clampEvidence(evidence),
		DetectionMethod: domain.DetectionVectorSimilarity,
		SourceID:        source.ID,
		TargetID:        target.ID,
		SourceVideoID:   source.VideoID,
		SourceGroupID:   source.GroupID,
		TargetVideoID:   target.VideoID,
		TargetGroupID:   target.GroupID,
	}, true
}

func (d *IntraDetector) embeddingFor(ctx context.Context, c domain.Concept) ([]float32, error) {
	if vec, ok := d.cache[c.ID]; ok {
		return vec, nil
	}
	vecs, err := d.embedder.Embed(ctx, []string{c.Name + ". " + c.Definition})
	if err != nil {
		return nil, perr.Wrap("intra_embedding_fallback", perr.Transport, "embedding call failed", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, perr.New("intra_embedding_fallback", perr.Malformed, "embedding endpoint returned empty vector")
	}
	d.cache[c.ID] = vecs[0]
	return vecs[0], nil
}

func min95(v float64) float64 {
	if v > 0.95 {
		return 0.95
	}
	return v
}

func charDistance(a, b []int) int {
	if a[1] <= b[0] {
		return b[0] - a[1]
	}
	if b[1] <= a[0] {
		return a[0] - b[1]
	}
	return 0
}

func evidenceWindow(text string, start, end, pad int) string {
	lo := start - pad
	if lo < 0 {
		lo = 0
	}
	hi := end + pad
	if hi > len(text) {
		hi = len(text)
	}
	return strings.TrimSpace(text[lo:hi])
}

// clampEvidence pads short matches and truncates long ones to stay within
// the [10,1000] evidence length invariant.
func clampEvidence(evidence string) string {
	evidence = strings.TrimSpace(evidence)
	if len(evidence) > 1000 {
		evidence = strings.TrimSpace(evidence[:1000])
	}
	if len(evidence) < 10 {
		evidence = evidence + strings.Repeat(".", 10-len(evidence))
	}
	return evidence
}
