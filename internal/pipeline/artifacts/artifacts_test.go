package artifacts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenreach/transcriptgraph/internal/domain"
	pkgerrors "github.com/lumenreach/transcriptgraph/internal/pkg/errors"
)

func TestGroupsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	groups := []domain.SegmentGroup{
		{
			VideoID: "v1",
			GroupID: 0,
			Segments: []domain.Segment{
				{ID: "s1", VideoID: "v1", Text: "hello world.", StartS: 0, EndS: 2, TokenCount: 2},
				{ID: "s2", VideoID: "v1", Text: "more text.", StartS: 2, EndS: 4, TokenCount: 2},
			},
		},
	}
	groups[0].Recompute()

	doc := BuildGroupsDocument("v1", groups)
	require.NoError(t, WriteGroups(dir, doc))

	loaded, err := ReadGroups(dir, "v1")
	require.NoError(t, err)
	assert.Equal(t, doc.VideoID, loaded.VideoID)
	assert.Equal(t, doc.NumGroups, loaded.NumGroups)
	require.Len(t, loaded.Groups, 1)
	assert.Equal(t, doc.Groups[0].Text, loaded.Groups[0].Text)
	assert.Equal(t, doc.Groups[0].NumSegments, loaded.Groups[0].NumSegments)

	reconstructed := loaded.ToGroups()
	require.Len(t, reconstructed, 1)
	assert.Equal(t, groups[0].TotalWords, reconstructed[0].TotalWords)
	assert.Len(t, reconstructed[0].Segments, 2)
}

func TestReadGroups_MissingArtifact(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadGroups(dir, "missing-video")
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestRelationshipsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rels := []domain.Relationship{
		{ID: "r1", Type: domain.RelRequires, Confidence: 0.8, Evidence: "evidence text here", DetectionMethod: domain.DetectionPatternMatching, SourceID: "c1", TargetID: "c2", SourceVideoID: "v1", TargetVideoID: "v1", ExtractedAt: time.Unix(1700000000, 0)},
	}
	doc := BuildRelationshipsDocument("v1", rels, time.Unix(1700000100, 0))
	require.NoError(t, WriteRelationships(dir, doc))

	loaded, err := ReadRelationships(dir, "v1")
	require.NoError(t, err)
	require.Len(t, loaded.Relationships, 1)
	assert.Equal(t, "r1", loaded.Relationships[0].ID)
	assert.Equal(t, 1, loaded.Metadata.Total)
	assert.Equal(t, 1, loaded.Metadata.TypeDistribution["requires"])
	assert.InDelta(t, 0.8, loaded.Metadata.AverageConfidence, 0.0001)
}
