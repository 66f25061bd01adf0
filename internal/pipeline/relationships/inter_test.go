package relationships

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenreach/transcriptgraph/internal/domain"
)

func TestInterDetector_CuePhrase_BuildsOn(t *testing.T) {
	log := testLogger(t)
	det, err := NewInterDetector(log, DefaultConfig(), nil)
	require.NoError(t, err)

	earlier := GroupExtraction{
		GroupID: 0,
		Text:    "Today we'll introduce neural networks as a modeling technique.",
		Concepts: []domain.Concept{
			{ID: "c-nn", Name: "neural networks", Definition: "a machine learning model", Importance: 0.7, Confidence: 0.8, VideoID: "v1", GroupID: 0, FirstMentionTime: 0},
		},
	}
	later := GroupExtraction{
		GroupID: 1,
		Text:    "Building on neural networks, we now look at transformers in detail.",
		Concepts: []domain.Concept{
			{ID: "c-tf", Name: "transformers", Definition: "an attention-based architecture", Importance: 0.8, Confidence: 0.9, VideoID: "v1", GroupID: 1, FirstMentionTime: 120},
		},
	}

	rels := det.Detect(context.Background(), []GroupExtraction{earlier, later})
	require.NotEmpty(t, rels)
	r := rels[0]
	assert.Equal(t, "c-tf", r.SourceID)
	assert.Equal(t, "c-nn", r.TargetID)
	assert.Equal(t, domain.RelBuildsOn, r.Type)
	assert.Equal(t, domain.DetectionCuePhrase, r.DetectionMethod)
}

func TestInterDetector_EmbeddingProximityFallback(t *testing.T) {
	log := testLogger(t)
	earlier := GroupExtraction{
		GroupID: 0,
		Text:    "Today we'll introduce a completely unrelated unmentioned idea.",
		Concepts: []domain.Concept{
			{ID: "c-a", Name: "idea A", Definition: "first idea", Importance: 0.6, Confidence: 0.8, VideoID: "v1", GroupID: 0, FirstMentionTime: 10},
		},
	}
	later := GroupExtraction{
		GroupID: 1,
		Text:    "Now we look at a second, separate idea without any cue phrase present here.",
		Concepts: []domain.Concept{
			{ID: "c-b", Name: "idea B", Definition: "second idea", Importance: 0.6, Confidence: 0.8, VideoID: "v1", GroupID: 1, FirstMentionTime: 60},
		},
	}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"idea A. first idea":  {1, 0},
		"idea B. second idea": {0.98, 0.02},
	}}
	det, err := NewInterDetector(log, DefaultConfig(), embedder)
	require.NoError(t, err)

	rels := det.Detect(context.Background(), []GroupExtraction{earlier, later})
	require.NotEmpty(t, rels)
	r := rels[0]
	assert.Equal(t, domain.DetectionVectorSimilarity, r.DetectionMethod)
	assert.Equal(t, domain.RelBuildsOn, r.Type)
	require.NotNil(t, r.TemporalDistance)
	assert.InDelta(t, 50.0, *r.TemporalDistance, 0.001)
}

func TestInterDetector_NoRelationship(t *testing.T) {
	log := testLogger(t)
	det, err := NewInterDetector(log, DefaultConfig(), nil)
	require.NoError(t, err)

	earlier := GroupExtraction{
		GroupID:  0,
		Text:     "Nothing special happens in this group.",
		Concepts: []domain.Concept{{ID: "c-a", Name: "topic one", Definition: "first topic", VideoID: "v1", GroupID: 0}},
	}
	later := GroupExtraction{
		GroupID:  1,
		Text:     "A completely disconnected new subject starts here with no references at all.",
		Concepts: []domain.Concept{{ID: "c-b", Name: "topic two", Definition: "second topic", VideoID: "v1", GroupID: 1}},
	}
	rels := det.Detect(context.Background(), []GroupExtraction{earlier, later})
	assert.Empty(t, rels)
}
