// Package segment turns a raw word-level transcript timeline into
// sentence-chunked, timestamped Segments (component C1).
package segment

import (
	"strings"

	"github.com/lumenreach/transcriptgraph/internal/domain"
	"github.com/lumenreach/transcriptgraph/internal/pkg/perr"
)

const (
	// DefaultMinTokens and DefaultMaxTokens are the soft accumulation
	// bounds: a segment is flushed once it has at least MinTokens and the
	// next sentence would push it past MaxTokens.
	DefaultMinTokens = 120
	DefaultMaxTokens = 320
)

// WordTiming is one (word_start_s, word_end_s) pair from the upstream
// transcript provider's word-level timeline.
type WordTiming struct {
	Start float64
	End   float64
}

// TimedWord is a word merged element-wise from the timeline and the
// punctuated word list.
type TimedWord struct {
	Start float64
	End   float64
	Word  string
}

// Config holds the segment-assembler's soft accumulation bounds.
type Config struct {
	MinTokens int
	MaxTokens int
}

// DefaultConfig returns the default accumulation bounds.
func DefaultConfig() Config {
	return Config{MinTokens: DefaultMinTokens, MaxTokens: DefaultMaxTokens}
}

// Assembler turns (word timeline, punctuated words) into Segments for one
// video.
type Assembler struct {
	cfg Config
}

func New(cfg Config) *Assembler {
	if cfg.MinTokens <= 0 {
		cfg.MinTokens = DefaultMinTokens
	}
	if cfg.MaxTokens <= 0 || cfg.MaxTokens < cfg.MinTokens {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Assembler{cfg: cfg}
}

// Assemble builds segments for one video from a word-level timeline and a
// punctuated word list. Mismatched lengths are truncated to the shorter of
// the two, per spec.
func (a *Assembler) Assemble(videoID string, timeline []WordTiming, punctuated []string) ([]domain.Segment, error) {
	n := len(timeline)
	if len(punctuated) < n {
		n = len(punctuated)
	}
	words := make([]TimedWord, 0, n)
	for i := 0; i < n; i++ {
		words = append(words, TimedWord{Start: timeline[i].Start, End: timeline[i].End, Word: punctuated[i]})
	}

	sentences := splitSentences(words)

	var segments []domain.Segment
	var buf []sentence
	bufTokens := 0

	flush := func() {
		if len(buf) == 0 {
			return
		}
		segments = append(segments, buildSegment(videoID, buf))
		buf = nil
		bufTokens = 0
	}

	for _, s := range sentences {
		if bufTokens >= a.cfg.MinTokens && bufTokens+s.tokens > a.cfg.MaxTokens {
			flush()
		}
		buf = append(buf, s)
		bufTokens += s.tokens
	}
	flush()

	if len(segments) == 0 {
		return nil, perr.New("segment.Assemble", perr.EmptyInput, "transcript produced no segments")
	}
	return segments, nil
}

// sentence is a contiguous run of words ending in terminal punctuation.
type sentence struct {
	words  []TimedWord
	tokens int
}

func splitSentences(words []TimedWord) []sentence {
	var sentences []sentence
	var cur []TimedWord
	for _, w := range words {
		cur = append(cur, w)
		if endsSentence(w.Word) {
			sentences = append(sentences, sentence{words: cur, tokens: len(cur)})
			cur = nil
		}
	}
	if len(cur) > 0 {
		sentences = append(sentences, sentence{words: cur, tokens: len(cur)})
	}
	return sentences
}

// endsSentence reports whether a word ends a sentence: after stripping
// right-side closing quotes/brackets, its last rune is one of . ! ?
func endsSentence(word string) bool {
	trimmed := strings.TrimRight(word, `"')]}”’`)
	if trimmed == "" {
		return false
	}
	last := trimmed[len(trimmed)-1]
	return last == '.' || last == '!' || last == '?'
}

func buildSegment(videoID string, sentences []sentence) domain.Segment {
	var textParts []string
	tokens := 0
	start := sentences[0].words[0].Start
	end := sentences[0].words[0].End
	for _, s := range sentences {
		for _, w := range s.words {
			textParts = append(textParts, w.Word)
			tokens++
			if w.Start < start {
				start = w.Start
			}
			if w.End > end {
				end = w.End
			}
		}
	}
	return domain.Segment{
		ID:         domain.SegmentID(videoID, start),
		VideoID:    videoID,
		Text:       strings.Join(textParts, " "),
		StartS:     start,
		EndS:       end,
		TokenCount: tokens,
	}
}
