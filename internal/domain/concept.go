package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// conceptNamespace seeds deterministic candidate concept ids.
var conceptNamespace = uuid.MustParse("3a9f6c2e-1d4b-4a7f-9c0e-2f5b7a1d8e44")

// ConceptType is the closed concept-type enumeration. Unknown values coerce
// to ConceptTypeGeneric.
type ConceptType string

const (
	ConceptTypePerson       ConceptType = "Person"
	ConceptTypeOrganization ConceptType = "Organization"
	ConceptTypeTechnology   ConceptType = "Technology"
	ConceptTypeMethod       ConceptType = "Method"
	ConceptTypeProblem      ConceptType = "Problem"
	ConceptTypeSolution     ConceptType = "Solution"
	ConceptTypeGeneric      ConceptType = "Concept"
	ConceptTypeMetric       ConceptType = "Metric"
	ConceptTypeDataset      ConceptType = "Dataset"
	ConceptTypeEvent        ConceptType = "Event"
	ConceptTypePlace        ConceptType = "Place"
)

var knownConceptTypes = map[ConceptType]struct{}{
	ConceptTypePerson: {}, ConceptTypeOrganization: {}, ConceptTypeTechnology: {},
	ConceptTypeMethod: {}, ConceptTypeProblem: {}, ConceptTypeSolution: {},
	ConceptTypeGeneric: {}, ConceptTypeMetric: {}, ConceptTypeDataset: {},
	ConceptTypeEvent: {}, ConceptTypePlace: {},
}

// CoerceConceptType maps an arbitrary string onto the closed enumeration,
// falling back to ConceptTypeGeneric for anything unrecognized.
func CoerceConceptType(raw string) ConceptType {
	t := ConceptType(strings.TrimSpace(raw))
	if _, ok := knownConceptTypes[t]; ok {
		return t
	}
	return ConceptTypeGeneric
}

// Concept is a named idea extracted from a group (Pass 1 candidate) or
// produced by consolidation (Pass 2 final).
type Concept struct {
	ID               string
	Name             string
	Definition       string
	Type             ConceptType
	Importance       float64
	Confidence       float64
	VideoID          string
	GroupID          int
	FirstMentionTime float64
	LastMentionTime  float64
	MentionCount     int
	Aliases          []string
	ExtractedAt      time.Time

	// SourceCandidateIDs and SourceGroupIDs are populated on consolidated
	// (Pass 2) concepts for traceability back to the candidates merged into
	// them; empty on Pass-1 candidates.
	SourceCandidateIDs []string
	SourceGroupIDs     []int
}

// CandidateConceptID computes the deterministic UUIDv5-equivalent id for a
// Pass-1 candidate concept from (video_id, group_id, normalized_name).
func CandidateConceptID(videoID string, groupID int, name string) string {
	norm := NormalizeConceptName(name)
	key := videoID + "|" + strconv.Itoa(groupID) + "|" + norm
	return uuid.NewSHA1(conceptNamespace, []byte(key)).String()
}

// NewConsolidatedConceptID mints a fresh random id for a Pass-2 concept.
func NewConsolidatedConceptID() string {
	return uuid.New().String()
}

// NormalizeConceptName lowercases and collapses whitespace, matching the
// normalization used both for id derivation and for regex pattern building.
func NormalizeConceptName(name string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	return strings.Join(fields, " ")
}

// Clamp01 clamps a score into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
