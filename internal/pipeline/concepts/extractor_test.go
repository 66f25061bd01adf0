package concepts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenreach/transcriptgraph/internal/domain"
	"github.com/lumenreach/transcriptgraph/internal/pkg/perr"
	"github.com/lumenreach/transcriptgraph/internal/platform/logger"
)

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Complete(_ context.Context, _, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return log
}

func TestExtractFromGroup_ParsesWellFormedJSON(t *testing.T) {
	fake := &fakeLLM{response: `{
  "concepts": [
    {"name": "Gradient Descent", "definition": "Iterative optimization method", "type": "Method", "importance": 0.9, "confidence": 0.8, "aliases": ["GD"]}
  ]
}`}
	e, err := NewExtractor(fake, newTestLogger(t), "gpt-4o")
	require.NoError(t, err)

	group := domain.SegmentGroup{VideoID: "vid-1", GroupID: 2, StartTime: 10, EndTime: 40}
	group.Segments = []domain.Segment{{Text: "some text about gradient descent"}}

	result, err := e.ExtractFromGroup(context.Background(), group)
	require.NoError(t, err)
	require.Len(t, result.Concepts, 1)
	require.Equal(t, "Gradient Descent", result.Concepts[0].Name)
	require.Equal(t, domain.ConceptTypeMethod, result.Concepts[0].Type)
	require.Equal(t, []string{"GD"}, result.Concepts[0].Aliases)
	require.Equal(t, "vid-1", result.Concepts[0].VideoID)
	require.Equal(t, 2, result.Concepts[0].GroupID)
}

func TestExtractFromGroup_ToleratesProseWrappedJSON(t *testing.T) {
	fake := &fakeLLM{response: "Sure, here is the JSON you asked for:\n" + `{"concepts": [{"name": "Topic", "definition": "A thing discussed", "type": "Concept", "importance": 0.6, "confidence": 0.6, "aliases": []}]}` + "\nHope that helps!"}
	e, err := NewExtractor(fake, newTestLogger(t), "gpt-4o")
	require.NoError(t, err)

	group := domain.SegmentGroup{VideoID: "vid-1", GroupID: 0, StartTime: 0, EndTime: 10}
	result, err := e.ExtractFromGroup(context.Background(), group)
	require.NoError(t, err)
	require.Len(t, result.Concepts, 1)
	require.Equal(t, "Topic", result.Concepts[0].Name)
}

func TestExtractFromGroup_SkipsConceptsMissingNameOrDefinition(t *testing.T) {
	fake := &fakeLLM{response: `{"concepts": [{"name": "", "definition": "valid def"}, {"name": "Valid", "definition": ""}, {"name": "Valid", "definition": "ok", "type": "Concept"}]}`}
	e, err := NewExtractor(fake, newTestLogger(t), "gpt-4o")
	require.NoError(t, err)

	group := domain.SegmentGroup{VideoID: "vid-1", GroupID: 0}
	result, err := e.ExtractFromGroup(context.Background(), group)
	require.NoError(t, err)
	require.Len(t, result.Concepts, 1)
}

func TestExtractFromGroup_EmptyResponseFails(t *testing.T) {
	fake := &fakeLLM{response: ""}
	e, err := NewExtractor(fake, newTestLogger(t), "gpt-4o")
	require.NoError(t, err)

	_, err = e.ExtractFromGroup(context.Background(), domain.SegmentGroup{VideoID: "vid-1"})
	require.Error(t, err)
	require.True(t, perr.Is(err, perr.Malformed))
}

func TestExtractFromGroup_DefaultsMissingImportanceAndConfidence(t *testing.T) {
	fake := &fakeLLM{response: `{"concepts": [{"name": "Thing", "definition": "some thing"}]}`}
	e, err := NewExtractor(fake, newTestLogger(t), "gpt-4o")
	require.NoError(t, err)

	result, err := e.ExtractFromGroup(context.Background(), domain.SegmentGroup{VideoID: "vid-1"})
	require.NoError(t, err)
	require.InDelta(t, 0.5, result.Concepts[0].Importance, 1e-9)
	require.InDelta(t, 0.7, result.Concepts[0].Confidence, 1e-9)
}
