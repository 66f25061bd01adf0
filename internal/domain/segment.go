// Package domain holds the core data model shared by every pipeline
// component: segments, neighbors, groups, concepts and relationships.
package domain

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// segmentNamespace seeds the deterministic UUIDv5-equivalent ids minted for
// segments. A fixed namespace keeps id(v, start_s) stable across runs and
// across processes.
var segmentNamespace = uuid.MustParse("6f6d9f4e-9e0b-4f1a-8e3e-6b6a4e9a2d10")

// Segment is a sentence-chunked, timestamped fragment of one video's
// transcript.
type Segment struct {
	ID         string
	VideoID    string
	Text       string
	StartS     float64
	EndS       float64
	TokenCount int
	// Embedding is owned and produced by the vector store on insert; it is
	// empty until fetched back with include_vectors=true.
	Embedding []float32
	// Index is the dense position assigned by fetch_by_video, in start_s
	// order; it is not part of the persisted identity.
	Index int
}

// SegmentID computes the deterministic id for (videoID, startS). Bit-equal
// float64 rendering of startS guarantees id(v, s) = id(v, s') iff s and s'
// are the same float64 value.
func SegmentID(videoID string, startS float64) string {
	name := fmt.Sprintf("%s|%x", videoID, startS)
	return uuid.NewSHA1(segmentNamespace, []byte(name)).String()
}

// Neighbor is a derived, ephemeral k-NN result scoped to one grouping run.
type Neighbor struct {
	SegmentID string
	Similarity float64
	StartS     float64
	EndS       float64
	Embedding  []float32
}

// EffectiveSimilarity applies the temporal-decay weighting described for the
// grouping engine: raw similarity multiplied by an exponential decay in the
// distance between the neighbor's start time and a reference time.
func (n Neighbor) EffectiveSimilarity(refTime, tau float64) float64 {
	if tau <= 0 {
		return n.Similarity
	}
	delta := math.Abs(n.StartS - refTime)
	return n.Similarity * math.Exp(-delta/tau)
}
