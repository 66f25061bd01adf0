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

const consolidationSystemPrompt = "Output ONLY valid JSON. No thinking, no explanation."

const consolidationPromptTemplate = `Merge duplicate concepts from video segments. Return 1-20 final concepts.

**Candidates (%d from %d groups):**
%s

Output JSON:
{
  "consolidatedConcepts": [
    {
      "name": "Concept Name",
      "definition": "Definition",
      "type": "Concept",
      "importance": 0.8,
      "confidence": 0.9,
      "aliases": [],
      "firstMentionTime": 0.0,
      "lastMentionTime": 300.0,
      "mentionCount": 2,
      "groupIds": [0, 1],
      "sourceConceptIds": ["id1", "id2"]
    }
  ],
  "consolidationMetadata": {
    "totalCandidates": %d,
    "finalConceptCount": 15,
    "mergedGroups": %d,
    "conversionRatio": 0.6
  }
}

Rules: Merge same concepts with different names. Importance: 0.9-1.0=core, 0.7-0.8=major, 0.5-0.6=supporting.
- Only keep concepts that are genuinely significant to understanding the video
- Aim for 15-30 final concepts (fewer for short videos, more for long ones)
`

// Consolidator runs Pass-2 whole-video consolidation over every group's
// Pass-1 candidates.
type Consolidator struct {
	client llm.Client
	log    *logger.Logger
}

func NewConsolidator(client llm.Client, log *logger.Logger) (*Consolidator, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consolidator{client: client, log: log.With("service", "ConceptConsolidator")}, nil
}

// Consolidate merges every group's candidates into a final, deduplicated
// set for one video. Returns an empty slice (not an error) if there are no
// candidates to consolidate.
func (c *Consolidator) Consolidate(ctx context.Context, videoID string, groups []GroupCandidates) ([]domain.Concept, error) {
	const op = "consolidate"

	var allCandidates []domain.Concept
	for _, g := range groups {
		allCandidates = append(allCandidates, g.Concepts...)
	}
	if len(allCandidates) == 0 {
		c.log.Warn("no candidate concepts to consolidate", "video_id", videoID)
		return nil, nil
	}

	candidatesJSON, err := marshalCandidates(allCandidates)
	if err != nil {
		return nil, perr.Wrap(op, perr.Transport, "marshal candidates for consolidation prompt failed", err)
	}
	prompt := fmt.Sprintf(consolidationPromptTemplate, len(allCandidates), len(groups), string(candidatesJSON), len(allCandidates), len(groups))

	raw, err := c.client.Complete(ctx, consolidationSystemPrompt, prompt)
	if err != nil {
		return nil, perr.Wrap(op, perr.Transport, "llm call failed", err)
	}

	parsed, err := parseConsolidationResponse(raw)
	if err != nil {
		return nil, perr.Wrap(op, perr.Malformed, "parse consolidation response failed", err)
	}

	extractedAt := time.Now().UTC()
	final := make([]domain.Concept, 0, len(parsed.ConsolidatedConcepts))
	for _, c2 := range parsed.ConsolidatedConcepts {
		name := strings.TrimSpace(c2.Name)
		definition := strings.TrimSpace(c2.Definition)
		if name == "" || definition == "" {
			c.log.Warn("skipping consolidated concept with missing name/definition", "video_id", videoID)
			continue
		}
		importance := c2.Importance
		if importance == 0 {
			importance = 0.5
		}
		confidence := c2.Confidence
		if confidence == 0 {
			confidence = 0.7
		}
		mentionCount := c2.MentionCount
		if mentionCount == 0 {
			mentionCount = 1
		}
		groupID := 0
		if len(c2.GroupIDs) > 0 {
			groupID = c2.GroupIDs[0]
		}

		final = append(final, domain.Concept{
			ID:                 domain.NewConsolidatedConceptID(),
			Name:               name,
			Definition:         definition,
			Type:               domain.CoerceConceptType(c2.Type),
			Importance:         domain.Clamp01(importance),
			Confidence:         domain.Clamp01(confidence),
			VideoID:            videoID,
			GroupID:            groupID,
			FirstMentionTime:   c2.FirstMentionTime,
			LastMentionTime:    c2.LastMentionTime,
			MentionCount:       mentionCount,
			Aliases:            c2.Aliases,
			ExtractedAt:        extractedAt,
			SourceCandidateIDs: c2.SourceConceptIDs,
			SourceGroupIDs:     c2.GroupIDs,
		})
	}

	c.log.Info("consolidation complete", "video_id", videoID, "candidates", len(allCandidates), "final_concepts", len(final))
	return final, nil
}

type candidatePromptRow struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Definition       string   `json:"definition"`
	Type             string   `json:"type"`
	Importance       float64  `json:"importance"`
	Confidence       float64  `json:"confidence"`
	GroupID          int      `json:"groupId"`
	FirstMentionTime float64  `json:"firstMentionTime"`
	LastMentionTime  float64  `json:"lastMentionTime"`
	MentionCount     int      `json:"mentionCount"`
	Aliases          []string `json:"aliases"`
}

func marshalCandidates(candidates []domain.Concept) ([]byte, error) {
	rows := make([]candidatePromptRow, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, candidatePromptRow{
			ID:               c.ID,
			Name:             c.Name,
			Definition:       c.Definition,
			Type:             string(c.Type),
			Importance:       c.Importance,
			Confidence:       c.Confidence,
			GroupID:          c.GroupID,
			FirstMentionTime: c.FirstMentionTime,
			LastMentionTime:  c.LastMentionTime,
			MentionCount:     c.MentionCount,
			Aliases:          c.Aliases,
		})
	}
	return json.MarshalIndent(rows, "", "  ")
}

type consolidationResponse struct {
	ConsolidatedConcepts []consolidatedConceptPayload `json:"consolidatedConcepts"`
}

type consolidatedConceptPayload struct {
	Name             string   `json:"name"`
	Definition       string   `json:"definition"`
	Type             string   `json:"type"`
	Importance       float64  `json:"importance"`
	Confidence       float64  `json:"confidence"`
	Aliases          []string `json:"aliases"`
	FirstMentionTime float64  `json:"firstMentionTime"`
	LastMentionTime  float64  `json:"lastMentionTime"`
	MentionCount     int      `json:"mentionCount"`
	GroupIDs         []int    `json:"groupIds"`
	SourceConceptIDs []string `json:"sourceConceptIds"`
}

func parseConsolidationResponse(raw string) (consolidationResponse, error) {
	if strings.TrimSpace(raw) == "" {
		return consolidationResponse{}, fmt.Errorf("llm returned empty response")
	}
	candidate := jsonutil.ExtractOutermostObject(raw)
	if candidate == "" {
		candidate = raw
	}
	var resp consolidationResponse
	if err := json.Unmarshal([]byte(candidate), &resp); err != nil {
		return consolidationResponse{}, fmt.Errorf("invalid JSON response: %w", err)
	}
	return resp, nil
}
