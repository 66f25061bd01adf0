package concepts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenreach/transcriptgraph/internal/domain"
)

func TestConsolidate_MergesAndBuildsFinalConcepts(t *testing.T) {
	fake := &fakeLLM{response: `{
  "consolidatedConcepts": [
    {
      "name": "Gradient Descent",
      "definition": "An iterative optimization method",
      "type": "Method",
      "importance": 0.9,
      "confidence": 0.85,
      "aliases": ["GD"],
      "firstMentionTime": 0.0,
      "lastMentionTime": 120.0,
      "mentionCount": 3,
      "groupIds": [0, 1],
      "sourceConceptIds": ["cand-1", "cand-2"]
    }
  ],
  "consolidationMetadata": {"totalCandidates": 2, "finalConceptCount": 1, "mergedGroups": 2, "conversionRatio": 0.5}
}`}
	c, err := NewConsolidator(fake, newTestLogger(t))
	require.NoError(t, err)

	groups := []GroupCandidates{
		{VideoID: "vid-1", GroupID: 0, Concepts: []domain.Concept{{ID: "cand-1", Name: "Gradient Descent", Definition: "def"}}},
		{VideoID: "vid-1", GroupID: 1, Concepts: []domain.Concept{{ID: "cand-2", Name: "GD", Definition: "def2"}}},
	}
	final, err := c.Consolidate(context.Background(), "vid-1", groups)
	require.NoError(t, err)
	require.Len(t, final, 1)
	require.Equal(t, "Gradient Descent", final[0].Name)
	require.Equal(t, 3, final[0].MentionCount)
	require.Equal(t, []int{0, 1}, final[0].SourceGroupIDs)
	require.Equal(t, []string{"cand-1", "cand-2"}, final[0].SourceCandidateIDs)
	require.Equal(t, 0, final[0].GroupID)
	require.NotEmpty(t, final[0].ID)
}

func TestConsolidate_NoCandidatesReturnsEmptyNotError(t *testing.T) {
	fake := &fakeLLM{}
	c, err := NewConsolidator(fake, newTestLogger(t))
	require.NoError(t, err)

	final, err := c.Consolidate(context.Background(), "vid-1", nil)
	require.NoError(t, err)
	require.Empty(t, final)
	require.Equal(t, 0, fake.calls)
}

func TestConsolidate_LLMErrorSurfaces(t *testing.T) {
	fake := &fakeLLM{err: errors.New("endpoint unavailable")}
	c, err := NewConsolidator(fake, newTestLogger(t))
	require.NoError(t, err)

	groups := []GroupCandidates{{VideoID: "vid-1", GroupID: 0, Concepts: []domain.Concept{{ID: "cand-1", Name: "X", Definition: "y"}}}}
	_, err = c.Consolidate(context.Background(), "vid-1", groups)
	require.Error(t, err)
}
