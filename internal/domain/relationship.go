package domain

import (
	"time"

	"github.com/google/uuid"
)

var relationshipNamespace = uuid.MustParse("8b2e4f10-6c7d-4e2a-9f1b-5d3c8a9e0b77")

// RelationshipType is the closed relationship-type enumeration. Cross-video
// types are enumerated for schema completeness but are never produced by
// this repo's detectors (cross-video detection is out of scope).
type RelationshipType string

const (
	RelDefines      RelationshipType = "defines"
	RelCauses       RelationshipType = "causes"
	RelRequires     RelationshipType = "requires"
	RelContradicts  RelationshipType = "contradicts"
	RelExemplifies  RelationshipType = "exemplifies"
	RelImplements   RelationshipType = "implements"
	RelUses         RelationshipType = "uses"

	RelBuildsOn   RelationshipType = "builds_on"
	RelElaborates RelationshipType = "elaborates"
	RelReferences RelationshipType = "references"
	RelRefines    RelationshipType = "refines"

	RelComplements      RelationshipType = "complements"
	RelContradictsAcross RelationshipType = "contradicts_across"
	RelExtends          RelationshipType = "extends"
	RelSimilarTo        RelationshipType = "similar_to"
)

// IntraGroupTypes lists the intra-group relationship types in the fixed
// try-order used by the pattern-matching detector: first match wins.
var IntraGroupTypes = []RelationshipType{
	RelDefines, RelCauses, RelRequires, RelContradicts, RelExemplifies, RelImplements, RelUses,
}

// InterGroupTypes lists the inter-group relationship types in cue-phrase
// try-order.
var InterGroupTypes = []RelationshipType{
	RelBuildsOn, RelElaborates, RelReferences, RelRefines,
}

// DetectionMethod records the provenance of a relationship.
type DetectionMethod string

const (
	DetectionPatternMatching   DetectionMethod = "pattern_matching"
	DetectionCuePhrase         DetectionMethod = "cue_phrase"
	DetectionVectorSimilarity  DetectionMethod = "vector_similarity"
	DetectionTemporalProximity DetectionMethod = "temporal_proximity"
	DetectionLLMExtraction     DetectionMethod = "llm_extraction"
	DetectionCrossReference    DetectionMethod = "cross_reference"
)

// Relationship is a directed typed edge between two concept ids.
type Relationship struct {
	ID               string
	Type             RelationshipType
	Confidence       float64
	Evidence         string
	DetectionMethod  DetectionMethod
	SourceID         string
	TargetID         string
	SourceVideoID    string
	SourceGroupID    int
	TargetVideoID    string
	TargetGroupID    int
	TemporalDistance *float64
	ExtractedAt      time.Time
}

// RelationshipID computes the deterministic id for (source, target, type).
func RelationshipID(sourceID, targetID string, t RelationshipType) string {
	key := sourceID + "|" + targetID + "|" + string(t)
	return uuid.NewSHA1(relationshipNamespace, []byte(key)).String()
}
