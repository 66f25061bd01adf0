// Package concepts implements the two-pass concept extraction pipeline:
// Pass 1 (C5) extracts candidate concepts independently per group; Pass 2
// (C6) consolidates all candidates for a video into a deduplicated final
// set.
package concepts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lumenreach/transcriptgraph/internal/domain"
	"github.com/lumenreach/transcriptgraph/internal/pkg/jsonutil"
	"github.com/lumenreach/transcriptgraph/internal/pkg/perr"
	"github.com/lumenreach/transcriptgraph/internal/platform/llm"
	"github.com/lumenreach/transcriptgraph/internal/platform/logger"
)

const candidateExtractionSystemPrompt = "Output ONLY valid JSON. No thinking, no explanation."

const candidateExtractionPromptTemplate = `Extract 1-5 most important concepts from this transcript segment.

**Transcript (%.0fs-%.0fs):**
%s

Output JSON:
{
  "concepts": [
    {
      "name": "Concept Name",
      "definition": "Brief explanation",
      "type": "Concept",
      "importance": 0.8,
      "confidence": 0.9,
      "aliases": []
    }
  ]
}

Types: Concept, Technology, Person, Organization, Method, Problem, Solution, Metric, Event, Place
Importance: 0.9-1.0=core, 0.7-0.8=major, 0.5-0.6=supporting
Confidence: 0.9-1.0=explicit, 0.7-0.8=clear, 0.5-0.6=inferred
`

// GroupCandidates holds every candidate concept extracted from one group,
// along with the group's text for later Pass-2 consolidation.
type GroupCandidates struct {
	VideoID   string
	GroupID   int
	GroupText string
	Concepts  []domain.Concept
	ModelUsed string
}

// Extractor runs Pass-1 per-group candidate extraction.
type Extractor struct {
	client llm.Client
	log    *logger.Logger
	model  string
}

func NewExtractor(client llm.Client, log *logger.Logger, model string) (*Extractor, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Extractor{client: client, log: log.With("service", "ConceptExtractor"), model: model}, nil
}

// ExtractFromGroup extracts candidate concepts from a single group's text.
// It does not filter or deduplicate; that is Pass 2's job.
func (e *Extractor) ExtractFromGroup(ctx context.Context, group domain.SegmentGroup) (GroupCandidates, error) {
	const op = "extract_from_group"

	groupText := group.Text()
	prompt := fmt.Sprintf(candidateExtractionPromptTemplate, group.StartTime, group.EndTime, groupText)

	raw, err := e.client.Complete(ctx, candidateExtractionSystemPrompt, prompt)
	if err != nil {
		return GroupCandidates{}, perr.Wrap(op, perr.Transport, fmt.Sprintf("llm call failed for group %d", group.GroupID), err)
	}

	parsed, err := parseConceptsResponse(raw)
	if err != nil {
		return GroupCandidates{}, perr.Wrap(op, perr.Malformed, fmt.Sprintf("parse response failed for group %d", group.GroupID), err)
	}

	extractedAt := time.Now().UTC()
	candidates := make([]domain.Concept, 0, len(parsed.Concepts))
	for i, c := range parsed.Concepts {
		name := strings.TrimSpace(c.Name)
		definition := strings.TrimSpace(c.Definition)
		if name == "" || definition == "" {
			e.log.Warn("skipping candidate concept with missing name/definition", "group_id", group.GroupID, "index", i)
			continue
		}
		importance := c.Importance
		if importance == 0 {
			importance = 0.5
		}
		confidence := c.Confidence
		if confidence == 0 {
			confidence = 0.7
		}
		candidates = append(candidates, domain.Concept{
			ID:               domain.CandidateConceptID(group.VideoID, group.GroupID, name),
			Name:             name,
			Definition:       definition,
			Type:             domain.CoerceConceptType(c.Type),
			Importance:       domain.Clamp01(importance),
			Confidence:       domain.Clamp01(confidence),
			VideoID:          group.VideoID,
			GroupID:          group.GroupID,
			FirstMentionTime: group.StartTime,
			LastMentionTime:  group.EndTime,
			MentionCount:     1,
			Aliases:          c.Aliases,
			ExtractedAt:      extractedAt,
		})
	}

	return GroupCandidates{
		VideoID:   group.VideoID,
		GroupID:   group.GroupID,
		GroupText: groupText,
		Concepts:  candidates,
		ModelUsed: e.model,
	}, nil
}

type conceptsResponse struct {
	Concepts []conceptPayload `json:"concepts"`
}

type conceptPayload struct {
	Name       string   `json:"name"`
	Definition string   `json:"definition"`
	Type       string   `json:"type"`
	Importance float64  `json:"importance"`
	Confidence float64  `json:"confidence"`
	Aliases    []string `json:"aliases"`
}

func parseConceptsResponse(raw string) (conceptsResponse, error) {
	if strings.TrimSpace(raw) == "" {
		return conceptsResponse{}, fmt.Errorf("llm returned empty response")
	}
	candidate := jsonutil.ExtractOutermostObject(raw)
	if candidate == "" {
		candidate = raw
	}
	var resp conceptsResponse
	if err := json.Unmarshal([]byte(candidate), &resp); err != nil {
		return conceptsResponse{}, fmt.Errorf("invalid JSON response: %w", err)
	}
	return resp, nil
}
