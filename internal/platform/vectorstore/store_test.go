package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToFloat32Slice(t *testing.T) {
	vals := []any{1.5, 2.0, float64(-3)}
	out := toFloat32Slice(vals)
	require.Equal(t, []float32{1.5, 2.0, -3}, out)
}

func TestToFloat32SliceSkipsNonNumeric(t *testing.T) {
	vals := []any{1.0, "not a number", 2.0}
	out := toFloat32Slice(vals)
	require.Equal(t, []float32{1.0, 2.0}, out)
}

func TestMatchFilterShape(t *testing.T) {
	f := matchFilter(payloadVideoIDKey, "vid-1")
	must, ok := f["must"].([]any)
	require.True(t, ok)
	require.Len(t, must, 1)
	cond, ok := must[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, payloadVideoIDKey, cond["key"])
	match, ok := cond["match"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "vid-1", match["value"])
}

func TestNormalizeScorePassesCosineThrough(t *testing.T) {
	s := &store{distance: "Cosine"}
	require.InDelta(t, 0.91, s.normalizeScore(0.91), 1e-9)
}

func TestNormalizeScoreConvertsEuclidDistance(t *testing.T) {
	s := &store{distance: "Euclid"}
	got := s.normalizeScore(1.0)
	require.InDelta(t, 0.5, got, 1e-9)
}

func TestNormalizeScoreConvertsManhattanDistanceAbsolute(t *testing.T) {
	s := &store{distance: "manhattan"}
	got := s.normalizeScore(-3.0)
	require.InDelta(t, 0.25, got, 1e-9)
}

func TestParseEnvelopeStatusOK(t *testing.T) {
	require.Equal(t, "", parseEnvelopeStatus([]byte(`"ok"`)))
	require.Equal(t, "", parseEnvelopeStatus(nil))
	require.Equal(t, "", parseEnvelopeStatus([]byte(`null`)))
}

func TestParseEnvelopeStatusError(t *testing.T) {
	msg := parseEnvelopeStatus([]byte(`{"error":"collection not found"}`))
	require.Equal(t, "collection not found", msg)
}

func TestScrollPointToSegment(t *testing.T) {
	p := scrollPoint{
		Payload: map[string]any{
			payloadVideoIDKey:   "vid-1",
			payloadSegmentIDKey: "seg-1",
			payloadTextKey:      "hello world",
			payloadStartKey:     1.5,
			payloadEndKey:       3.5,
			payloadTokensKey:    float64(12),
		},
	}
	seg := p.toSegment(false)
	require.Equal(t, "vid-1", seg.VideoID)
	require.Equal(t, "seg-1", seg.ID)
	require.Equal(t, "hello world", seg.Text)
	require.InDelta(t, 1.5, seg.StartS, 1e-9)
	require.InDelta(t, 3.5, seg.EndS, 1e-9)
	require.Equal(t, 12, seg.TokenCount)
	require.Nil(t, seg.Embedding)
}

func TestValidateConfigRejectsMissingURL(t *testing.T) {
	err := ValidateConfig(Config{Collection: "segments", VectorDim: 4}, true)
	require.Error(t, err)
}

func TestValidateConfigRejectsZeroDim(t *testing.T) {
	err := ValidateConfig(Config{URL: "http://localhost:6333", Collection: "segments"}, false)
	require.Error(t, err)
}

func TestValidateConfigAccepts(t *testing.T) {
	err := ValidateConfig(Config{URL: "http://localhost:6333", Collection: "segments", VectorDim: 1536}, true)
	require.NoError(t, err)
}
