package graphstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumenreach/transcriptgraph/internal/domain"
)

func TestConceptFromProps(t *testing.T) {
	props := map[string]any{
		"id":                 "concept-1",
		"name":               "gradient descent",
		"definition":         "an iterative optimization algorithm",
		"type":               "Method",
		"importance":         0.8,
		"confidence":         0.9,
		"video_id":           "vid-1",
		"group_id":           int64(3),
		"first_mention_time": 12.5,
		"last_mention_time":  88.0,
		"mention_count":      int64(4),
		"aliases":            []any{"GD", "steepest descent"},
		"extracted_at":       "2026-01-01T00:00:00Z",
	}
	c := conceptFromProps(props)
	require.Equal(t, "concept-1", c.ID)
	require.Equal(t, "gradient descent", c.Name)
	require.Equal(t, domain.ConceptTypeMethod, c.Type)
	require.InDelta(t, 0.8, c.Importance, 1e-9)
	require.Equal(t, 3, c.GroupID)
	require.Equal(t, 4, c.MentionCount)
	require.Equal(t, []string{"GD", "steepest descent"}, c.Aliases)
	require.Equal(t, 2026, c.ExtractedAt.Year())
}

func TestConceptFromPropsUnknownTypeCoerces(t *testing.T) {
	c := conceptFromProps(map[string]any{"type": "NotARealType"})
	require.Equal(t, domain.ConceptTypeGeneric, c.Type)
}

func TestFormatTimeZeroUsesNow(t *testing.T) {
	formatted := formatTime(time.Time{})
	parsed, err := time.Parse(time.RFC3339Nano, formatted)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().UTC(), parsed, 5*time.Second)
}

func TestFormatTimePreservesValue(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	formatted := formatTime(fixed)
	require.Equal(t, fixed.Format(time.RFC3339Nano), formatted)
}

func TestNullableFloat(t *testing.T) {
	require.Nil(t, nullableFloat(nil))
	v := 4.5
	require.Equal(t, 4.5, nullableFloat(&v))
}
