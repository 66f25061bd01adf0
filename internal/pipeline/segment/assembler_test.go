package segment

import (
	"strings"
	"testing"

	"github.com/lumenreach/transcriptgraph/internal/pkg/perr"
	"github.com/stretchr/testify/require"
)

func words(s string, step float64) ([]WordTiming, []string) {
	parts := strings.Fields(s)
	timeline := make([]WordTiming, 0, len(parts))
	t := 0.0
	for range parts {
		timeline = append(timeline, WordTiming{Start: t, End: t + step*0.8})
		t += step
	}
	return timeline, parts
}

func TestAssemble_ConcatenationRoundTrips(t *testing.T) {
	text := strings.Repeat("word ", 50) + "end."
	timeline, punct := words(text, 0.4)

	a := New(DefaultConfig())
	segs, err := a.Assemble("vid-1", timeline, punct)
	require.NoError(t, err)
	require.NotEmpty(t, segs)

	var joined []string
	for _, s := range segs {
		joined = append(joined, s.Text)
	}
	require.Equal(t, strings.Join(punct, " "), strings.Join(joined, " "))
}

func TestAssemble_FlushesOnMaxTokens(t *testing.T) {
	// Many short "sentences" of 10 words each so the buffer crosses
	// min_tokens then is forced to flush before max_tokens overflow.
	var sb strings.Builder
	for i := 0; i < 60; i++ {
		sb.WriteString("alpha beta gamma delta epsilon zeta eta theta iota kappa. ")
	}
	timeline, punct := words(sb.String(), 0.3)

	a := New(Config{MinTokens: 20, MaxTokens: 35})
	segs, err := a.Assemble("vid-2", timeline, punct)
	require.NoError(t, err)
	require.Greater(t, len(segs), 1)
	for _, s := range segs[:len(segs)-1] {
		require.LessOrEqual(t, s.TokenCount, 35+10) // at most one sentence overflow
		require.GreaterOrEqual(t, s.TokenCount, 10)
	}
}

func TestAssemble_MismatchedLengthsTruncate(t *testing.T) {
	timeline := []WordTiming{{Start: 0, End: 1}, {Start: 1, End: 2}, {Start: 2, End: 3}}
	punct := []string{"hello", "world."}

	a := New(DefaultConfig())
	segs, err := a.Assemble("vid-3", timeline, punct)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.Equal(t, "hello world.", segs[0].Text)
	require.Equal(t, 0.0, segs[0].StartS)
	require.Equal(t, 2.0, segs[0].EndS)
}

func TestAssemble_EmptyTranscriptFails(t *testing.T) {
	a := New(DefaultConfig())
	_, err := a.Assemble("vid-4", nil, nil)
	require.Error(t, err)
	require.True(t, perr.Is(err, perr.EmptyInput))
}

func TestAssemble_SegmentOrderingAndIDs(t *testing.T) {
	text := strings.Repeat("token token token token token token token token token done. ", 40)
	timeline, punct := words(text, 0.25)

	a := New(DefaultConfig())
	segs, err := a.Assemble("vid-5", timeline, punct)
	require.NoError(t, err)
	require.Greater(t, len(segs), 1)

	for i := 1; i < len(segs); i++ {
		require.GreaterOrEqual(t, segs[i].StartS, segs[i-1].StartS)
		require.GreaterOrEqual(t, segs[i].EndS, segs[i].StartS)
		require.NotEqual(t, segs[i-1].ID, segs[i].ID)
	}
}
