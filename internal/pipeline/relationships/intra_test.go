package relationships

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenreach/transcriptgraph/internal/domain"
	"github.com/lumenreach/transcriptgraph/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return log
}

func TestIntraDetector_PatternMatch_Requires(t *testing.T) {
	log := testLogger(t)
	det, err := NewIntraDetector(log, DefaultConfig(), nil)
	require.NoError(t, err)

	kubernetes := domain.Concept{ID: "c1", Name: "Kubernetes", Definition: "a container orchestrator", Importance: 0.8, Confidence: 0.9, VideoID: "v1", GroupID: 0}
	docker := domain.Concept{ID: "c2", Name: "Docker", Definition: "a container runtime", Importance: 0.7, Confidence: 0.8, VideoID: "v1", GroupID: 0}
	text := "Kubernetes requires Docker to run containers in production clusters."

	rels := det.Detect(context.Background(), []domain.Concept{kubernetes, docker}, text)
	require.NotEmpty(t, rels)

	var found bool
	for _, r := range rels {
		if r.SourceID == "c1" && r.TargetID == "c2" && r.Type == domain.RelRequires {
			found = true
			assert.Equal(t, domain.DetectionPatternMatching, r.DetectionMethod)
			assert.GreaterOrEqual(t, len(r.Evidence), 10)
		}
	}
	assert.True(t, found, "expected a requires relationship from Kubernetes to Docker")
}

func TestIntraDetector_PatternMatch_PassiveVoiceKeepsSourceTargetOrder(t *testing.T) {
	log := testLogger(t)
	det, err := NewIntraDetector(log, DefaultConfig(), nil)
	require.NoError(t, err)

	bugs := domain.Concept{ID: "c1", Name: "bugs", Definition: "software defects", Importance: 0.6, Confidence: 0.7, VideoID: "v1", GroupID: 0}
	leaks := domain.Concept{ID: "c2", Name: "memory leaks", Definition: "unreleased memory", Importance: 0.6, Confidence: 0.7, VideoID: "v1", GroupID: 0}
	text := "In this code, memory leaks are caused by bugs in the cleanup routine."

	rels := det.Detect(context.Background(), []domain.Concept{bugs, leaks}, text)
	require.NotEmpty(t, rels)

	var found bool
	for _, r := range rels {
		if r.Type != domain.RelCauses {
			continue
		}
		found = true
		assert.Equal(t, bugs.ID, r.SourceID, "the cause (bugs) must be the source")
		assert.Equal(t, leaks.ID, r.TargetID, "the effect (memory leaks) must be the target")
	}
	assert.True(t, found, "expected a causes relationship from bugs to memory leaks")
}

func TestIntraDetector_ProximityFallback(t *testing.T) {
	log := testLogger(t)
	det, err := NewIntraDetector(log, DefaultConfig(), nil)
	require.NoError(t, err)

	a := domain.Concept{ID: "c1", Name: "gradient descent", Definition: "an optimization method", Importance: 0.6, Confidence: 0.7, VideoID: "v1", GroupID: 0}
	b := domain.Concept{ID: "c2", Name: "learning rate", Definition: "a hyperparameter", Importance: 0.5, Confidence: 0.6, VideoID: "v1", GroupID: 0}
	text := "When tuning gradient descent you pick the learning rate carefully."

	rels := det.Detect(context.Background(), []domain.Concept{a, b}, text)
	require.NotEmpty(t, rels)
	for _, r := range rels {
		assert.Equal(t, domain.DetectionPatternMatching, r.DetectionMethod)
	}
}

func TestIntraDetector_NoMatch_NoEmbedder(t *testing.T) {
	log := testLogger(t)
	det, err := NewIntraDetector(log, DefaultConfig(), nil)
	require.NoError(t, err)

	a := domain.Concept{ID: "c1", Name: "octopus", Definition: "a cephalopod", Importance: 0.5, Confidence: 0.5, VideoID: "v1", GroupID: 0}
	b := domain.Concept{ID: "c2", Name: "quasar", Definition: "an astronomical object", Importance: 0.5, Confidence: 0.5, VideoID: "v1", GroupID: 0}
	filler := "This transcript wanders through several unrelated topics for quite a while so that nothing stays close together at all. "
	text := "This is a transcript about octopus. " + filler + filler + "Eventually we discuss a distant quasar."

	rels := det.Detect(context.Background(), []domain.Concept{a, b}, text)
	assert.Empty(t, rels)
}

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i] = f.vectors[in]
	}
	return out, nil
}

func TestIntraDetector_EmbeddingFallback(t *testing.T) {
	log := testLogger(t)
	a := domain.Concept{ID: "c1", Name: "octopus", Definition: "a cephalopod", Importance: 0.5, Confidence: 0.8, VideoID: "v1", GroupID: 0}
	b := domain.Concept{ID: "c2", Name: "cuttlefish", Definition: "also a cephalopod", Importance: 0.5, Confidence: 0.8, VideoID: "v1", GroupID: 0}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		a.Name + ". " + a.Definition: {1, 0, 0},
		b.Name + ". " + b.Definition: {0.99, 0.01, 0},
	}}
	det, err := NewIntraDetector(log, DefaultConfig(), embedder)
	require.NoError(t, err)

	filler := "This transcript wanders through several unrelated topics for quite a while so that nothing stays close together at all. "
	text := "This is a transcript about octopus. " + filler + filler + "Eventually cuttlefish come up in a different context."
	rels := det.Detect(context.Background(), []domain.Concept{a, b}, text)
	require.NotEmpty(t, rels)
	assert.Equal(t, domain.DetectionVectorSimilarity, rels[0].DetectionMethod)
	assert.Equal(t, domain.RelUses, rels[0].Type)
}
