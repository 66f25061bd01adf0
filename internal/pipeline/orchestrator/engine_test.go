package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenreach/transcriptgraph/internal/domain"
	"github.com/lumenreach/transcriptgraph/internal/pipeline/concepts"
	"github.com/lumenreach/transcriptgraph/internal/pipeline/grouping"
	"github.com/lumenreach/transcriptgraph/internal/pipeline/relationships"
	"github.com/lumenreach/transcriptgraph/internal/pipeline/segment"
	"github.com/lumenreach/transcriptgraph/internal/platform/graphstore"
	"github.com/lumenreach/transcriptgraph/internal/platform/logger"
)

// fakeStore is an in-memory double of vectorstore.Store / grouping.SegmentSource.
type fakeStore struct {
	segments []domain.Segment
}

func (f *fakeStore) UpsertSegments(ctx context.Context, segments []domain.Segment) (int, error) {
	f.segments = append(f.segments, segments...)
	return len(segments), nil
}

func (f *fakeStore) FetchByVideo(ctx context.Context, videoID string, includeVectors bool) ([]domain.Segment, error) {
	out := make([]domain.Segment, len(f.segments))
	for i, s := range f.segments {
		s.Embedding = []float32{1, 0}
		out[i] = s
	}
	return out, nil
}

func (f *fakeStore) KNN(ctx context.Context, embedding []float32, videoID string, k int) ([]domain.Neighbor, error) {
	out := make([]domain.Neighbor, 0, len(f.segments))
	for _, s := range f.segments {
		out = append(out, domain.Neighbor{SegmentID: s.ID, Similarity: 1.0, StartS: s.StartS, EndS: s.EndS})
	}
	return out, nil
}

func (f *fakeStore) DeleteByVideo(ctx context.Context, videoID string) error {
	f.segments = nil
	return nil
}

type fakeGraphStore struct {
	concepts      []domain.Concept
	relationships []domain.Relationship
}

func (g *fakeGraphStore) Bootstrap(ctx context.Context) error { return nil }

func (g *fakeGraphStore) UpsertConcepts(ctx context.Context, concepts []domain.Concept) error {
	g.concepts = append(g.concepts, concepts...)
	return nil
}

func (g *fakeGraphStore) UpsertRelationships(ctx context.Context, relationships []domain.Relationship, batchSize int) (graphstore.UpsertRelationshipsResult, error) {
	known := make(map[string]struct{}, len(g.concepts))
	for _, c := range g.concepts {
		known[c.ID] = struct{}{}
	}
	result := graphstore.UpsertRelationshipsResult{}
	for _, r := range relationships {
		_, sourceOK := known[r.SourceID]
		_, targetOK := known[r.TargetID]
		if !sourceOK || !targetOK {
			result.Skipped++
			continue
		}
		g.relationships = append(g.relationships, r)
		result.Upserted++
	}
	return result, nil
}

func (g *fakeGraphStore) DeleteConceptsForVideo(ctx context.Context, videoID string) error {
	g.concepts = nil
	return nil
}

func (g *fakeGraphStore) DeleteRelationshipsForVideo(ctx context.Context, videoID string) error {
	g.relationships = nil
	return nil
}

func (g *fakeGraphStore) FetchConceptsForVideo(ctx context.Context, videoID string) ([]domain.Concept, error) {
	return g.concepts, nil
}

func (g *fakeGraphStore) FetchExtractedConcepts(ctx context.Context, videoID string) (map[int][]domain.Concept, error) {
	return nil, nil
}

type fakeLLM struct {
	completeResponses []string
	call               int
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string) (string, error) {
	resp := f.completeResponses[f.call]
	f.call++
	return resp, nil
}

func (f *fakeLLM) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return log
}

const extractionResponse = `{"concepts":[
  {"name":"Kubernetes","definition":"a container orchestrator","type":"Technology","importance":0.8,"confidence":0.9,"aliases":[]},
  {"name":"Docker","definition":"a container runtime","type":"Technology","importance":0.7,"confidence":0.8,"aliases":[]}
]}`

func consolidationResponseFor(a, b domain.Concept) string {
	return `{"consolidatedConcepts":[
  {"name":"Kubernetes","definition":"a container orchestrator","type":"Technology","importance":0.8,"confidence":0.9,"aliases":[],"firstMentionTime":0,"lastMentionTime":10,"mentionCount":1,"groupIds":[0],"sourceConceptIds":["` + a.ID + `"]},
  {"name":"Docker","definition":"a container runtime","type":"Technology","importance":0.7,"confidence":0.8,"aliases":[],"firstMentionTime":0,"lastMentionTime":10,"mentionCount":1,"groupIds":[0],"sourceConceptIds":["` + b.ID + `"]}
]}`
}

func TestPipeline_Run_EndToEnd(t *testing.T) {
	log := testLogger(t)

	vStore := &fakeStore{}
	gStore := &fakeGraphStore{}

	assembler := segment.New(segment.DefaultConfig())
	grouper, err := grouping.New(vStore, log, grouping.DefaultConfig())
	require.NoError(t, err)

	aID := domain.CandidateConceptID("v1", 0, "kubernetes")
	bID := domain.CandidateConceptID("v1", 0, "docker")

	llmClient := &fakeLLM{completeResponses: []string{
		extractionResponse,
		consolidationResponseFor(domain.Concept{ID: aID}, domain.Concept{ID: bID}),
	}}

	extractor, err := concepts.NewExtractor(llmClient, log, "test-model")
	require.NoError(t, err)
	consolidator, err := concepts.NewConsolidator(llmClient, log)
	require.NoError(t, err)

	intra, err := relationships.NewIntraDetector(log, relationships.DefaultConfig(), nil)
	require.NoError(t, err)
	inter, err := relationships.NewInterDetector(log, relationships.DefaultConfig(), nil)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ArtifactsDir = t.TempDir()
	cfg.ConceptDelay = 0

	pipeline, err := New(log, cfg, assembler, vStore, gStore, grouper, extractor, consolidator, intra, inter)
	require.NoError(t, err)

	timeline := []segment.WordTiming{
		{Start: 0, End: 1}, {Start: 1, End: 2}, {Start: 2, End: 3}, {Start: 3, End: 4},
		{Start: 4, End: 5}, {Start: 5, End: 6}, {Start: 6, End: 7}, {Start: 7, End: 8},
	}
	punctuated := []string{
		"Kubernetes", "requires", "Docker", "to", "run", "containers", "well.", "Done.",
	}

	result := pipeline.Run(context.Background(), "v1", timeline, punctuated)
	require.True(t, result.Success, "error=%s", result.Error)
	require.False(t, result.Cancelled)
	require.Greater(t, result.SegmentCount, 0)
	require.Equal(t, 1, result.GroupCount)
	require.Equal(t, 2, result.ConceptCount)
	require.Equal(t, 2, result.RelationshipsUpserted)
	require.Equal(t, 0, result.RelationshipsSkipped)
	require.Len(t, gStore.relationships, 2)
	rel := gStore.relationships[0]
	require.Equal(t, domain.RelRequires, rel.Type)
}

func TestPipeline_Run_GroupingDisabled_ShortCircuits(t *testing.T) {
	log := testLogger(t)
	vStore := &fakeStore{}
	gStore := &fakeGraphStore{}
	assembler := segment.New(segment.DefaultConfig())
	grouper, err := grouping.New(vStore, log, grouping.DefaultConfig())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.EnableGrouping = false
	cfg.ArtifactsDir = t.TempDir()

	pipeline, err := New(log, cfg, assembler, vStore, gStore, grouper, nil, nil, nil, nil)
	require.NoError(t, err)

	timeline := []segment.WordTiming{{Start: 0, End: 1}, {Start: 1, End: 2}}
	punctuated := []string{"Hello.", "World."}

	result := pipeline.Run(context.Background(), "v2", timeline, punctuated)
	require.True(t, result.Success)
	require.Equal(t, 0, result.GroupCount)
	require.Equal(t, 0, result.ConceptCount)
	require.Empty(t, gStore.concepts)
}
