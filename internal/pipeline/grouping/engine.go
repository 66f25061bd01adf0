// Package grouping implements the grouping engine (C4): it partitions a
// video's segments into temporally contiguous, semantically cohesive groups
// using k-NN neighborhoods, temporal-decay weighted cohesion, boundary
// detection, and a post-pass centroid merge.
package grouping

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/lumenreach/transcriptgraph/internal/domain"
	"github.com/lumenreach/transcriptgraph/internal/pkg/ctxutil"
	"github.com/lumenreach/transcriptgraph/internal/pkg/perr"
	"github.com/lumenreach/transcriptgraph/internal/platform/logger"
)

// SegmentSource is the narrow slice of the vector store this engine depends
// on: fetching an ordered segment list and computing per-segment k-NN.
type SegmentSource interface {
	FetchByVideo(ctx context.Context, videoID string, includeVectors bool) ([]domain.Segment, error)
	KNN(ctx context.Context, embedding []float32, videoID string, k int) ([]domain.Neighbor, error)
}

// Stats summarizes a grouping run for logging/export.
type Stats struct {
	TotalGroups       int
	TotalSegments     int
	AvgSegmentsPerGrp float64
	MinWords          int
	MaxWords          int
	MeanWords         float64
	MedianWords       float64
	MinCohesion       float64
	MaxCohesion       float64
	MeanCohesion      float64
}

type Engine struct {
	cfg   Config
	store SegmentSource
	log   *logger.Logger
}

func New(store SegmentSource, log *logger.Logger, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("segment source required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Engine{cfg: cfg.withDefaults(), store: store, log: log.With("service", "GroupingEngine")}, nil
}

// node mirrors a fetched segment plus its k-NN neighborhood, scoped to one
// grouping run.
type node struct {
	segment   domain.Segment
	neighbors []domain.Neighbor
}

// GroupVideo runs the complete grouping pipeline for one video.
func (e *Engine) GroupVideo(ctx context.Context, videoID string) ([]domain.SegmentGroup, Stats, error) {
	const op = "group_video"

	segments, err := e.store.FetchByVideo(ctx, videoID, true)
	if err != nil {
		return nil, Stats{}, perr.Wrap(op, perr.Transport, "fetch segments for video failed", err)
	}
	if len(segments) == 0 {
		return nil, Stats{}, perr.New(op, perr.EmptyInput, "no segments found for video "+videoID)
	}

	nodes := make([]node, len(segments))
	noEmbeddings := true
	for i, s := range segments {
		nodes[i].segment = s
		if len(s.Embedding) > 0 {
			noEmbeddings = false
		}
	}
	if noEmbeddings {
		g := domain.SegmentGroup{VideoID: videoID, GroupID: 0, Segments: segments}
		g.Recompute()
		stats := computeStats([]domain.SegmentGroup{g})
		e.log.Warn("no segment has an embedding, returning a single group", "video_id", videoID)
		return []domain.SegmentGroup{g}, stats, nil
	}
	if err := e.buildNeighborhoods(ctx, videoID, nodes); err != nil {
		return nil, Stats{}, err
	}

	boundaries := e.detectBoundaries(nodes)
	groups := e.formGroups(videoID, nodes, boundaries)
	groups = e.postMergeGroups(groups)

	for i := range groups {
		groups[i].GroupID = i
		groups[i].Recompute()
	}

	stats := computeStats(groups)
	e.log.Info("grouping complete",
		"video_id", videoID,
		"total_groups", stats.TotalGroups,
		"total_segments", stats.TotalSegments,
		"mean_words", stats.MeanWords,
		"mean_cohesion", stats.MeanCohesion,
	)
	return groups, stats, nil
}

// buildNeighborhoods populates each node's neighbors by issuing bounded
// concurrent k-NN calls, one per embedded segment.
func (e *Engine) buildNeighborhoods(ctx context.Context, videoID string, nodes []node) error {
	const op = "build_neighborhoods"

	g, gctx := errgroup.WithContext(ctxutil.Default(ctx))
	g.SetLimit(e.cfg.Concurrency)

	for i := range nodes {
		i := i
		seg := nodes[i].segment
		if len(seg.Embedding) == 0 {
			continue
		}
		g.Go(func() error {
			results, err := e.store.KNN(gctx, seg.Embedding, videoID, e.cfg.KNeighbors+1)
			if err != nil {
				return perr.Wrap(op, perr.Transport, "knn query failed", err)
			}
			filtered := make([]domain.Neighbor, 0, len(results))
			for _, r := range results {
				if r.SegmentID == seg.ID {
					continue
				}
				if r.Similarity < e.cfg.NeighborThreshold {
					continue
				}
				filtered = append(filtered, r)
			}
			nodes[i].neighbors = filtered
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var total int
	for _, n := range nodes {
		total += len(n.neighbors)
	}
	if len(nodes) > 0 {
		e.log.Debug("neighborhoods built", "avg_neighbors", float64(total)/float64(len(nodes)))
	}
	return nil
}

// detectBoundaries walks the segment sequence and marks a new-group
// boundary wherever cohesion with the next segment drops below the adjacent
// threshold, or the running word count crosses max_group_words.
func (e *Engine) detectBoundaries(nodes []node) []int {
	boundaries := []int{0}
	wordCount := 0

	for i := 0; i < len(nodes)-1; i++ {
		wordCount += nodes[i].segment.TokenCount

		cohesion := 0.0
		nextID := nodes[i+1].segment.ID
		for _, nb := range nodes[i].neighbors {
			if nb.SegmentID == nextID {
				cohesion = nb.EffectiveSimilarity(nodes[i].segment.StartS, e.cfg.TemporalTau)
				break
			}
		}

		shouldSplit := cohesion < e.cfg.AdjacentThreshold || wordCount >= e.cfg.MaxGroupWords
		if shouldSplit {
			boundaries = append(boundaries, i+1)
			wordCount = 0
		}
	}
	return boundaries
}

// formGroups slices the segment sequence at the detected boundaries,
// merging any undersized non-final group into the previous one when doing
// so stays within 1.2x max_group_words.
func (e *Engine) formGroups(videoID string, nodes []node, boundaries []int) []domain.SegmentGroup {
	var groups []domain.SegmentGroup

	for gi := range boundaries {
		start := boundaries[gi]
		end := len(nodes)
		if gi+1 < len(boundaries) {
			end = boundaries[gi+1]
		}
		chunk := nodes[start:end]
		isFinal := gi == len(boundaries)-1

		if len(chunk) < e.cfg.MinGroupSegments && !isFinal && len(groups) > 0 {
			chunkWords := 0
			for _, n := range chunk {
				chunkWords += n.segment.TokenCount
			}
			if groups[len(groups)-1].TotalWords+chunkWords <= int(float64(e.cfg.MaxGroupWords)*1.2) {
				for _, n := range chunk {
					groups[len(groups)-1].Segments = append(groups[len(groups)-1].Segments, n.segment)
				}
				groups[len(groups)-1].Recompute()
				continue
			}
		}

		segs := make([]domain.Segment, len(chunk))
		for i, n := range chunk {
			segs[i] = n.segment
		}
		g := domain.SegmentGroup{VideoID: videoID, GroupID: len(groups), Segments: segs}
		g.Recompute()
		groups = append(groups, g)
	}
	return groups
}

// postMergeGroups runs a single forward sweep, merging each group into its
// successor when the combined word count stays within 1.25x
// max_group_words and their centroids are similar enough. Non-transitive by
// design: a merged group is not re-considered for a further merge in the
// same pass.
func (e *Engine) postMergeGroups(groups []domain.SegmentGroup) []domain.SegmentGroup {
	var merged []domain.SegmentGroup
	i := 0
	for i < len(groups) {
		current := groups[i]
		if i+1 < len(groups) {
			next := groups[i+1]
			combinedWords := current.TotalWords + next.TotalWords
			if combinedWords <= int(float64(e.cfg.MaxGroupWords)*1.25) {
				centroidSim := domain.CosineSimilarity(current.Centroid, next.Centroid)
				if centroidSim >= e.cfg.MergeCentroidThreshold {
					current.Segments = append(current.Segments, next.Segments...)
					current.Recompute()
					i++
				}
			}
		}
		merged = append(merged, current)
		i++
	}
	return merged
}

func computeStats(groups []domain.SegmentGroup) Stats {
	if len(groups) == 0 {
		return Stats{}
	}
	stats := Stats{TotalGroups: len(groups)}
	words := make([]int, len(groups))
	cohesions := make([]float64, len(groups))

	for i, g := range groups {
		stats.TotalSegments += len(g.Segments)
		words[i] = g.TotalWords
		cohesions[i] = g.AvgCohesion()
	}
	stats.AvgSegmentsPerGrp = float64(stats.TotalSegments) / float64(len(groups))

	sort.Ints(words)
	stats.MinWords = words[0]
	stats.MaxWords = words[len(words)-1]
	var sumWords int
	for _, w := range words {
		sumWords += w
	}
	stats.MeanWords = float64(sumWords) / float64(len(words))
	mid := len(words) / 2
	if len(words)%2 == 0 {
		stats.MedianWords = float64(words[mid-1]+words[mid]) / 2
	} else {
		stats.MedianWords = float64(words[mid])
	}

	sortedCohesion := append([]float64(nil), cohesions...)
	sort.Float64s(sortedCohesion)
	stats.MinCohesion = sortedCohesion[0]
	stats.MaxCohesion = sortedCohesion[len(sortedCohesion)-1]
	var sumCohesion float64
	for _, c := range cohesions {
		sumCohesion += c
	}
	stats.MeanCohesion = sumCohesion / float64(len(cohesions))

	return stats
}

// String renders Stats for console/log output, mirroring the original
// grouping tool's summary report.
func (s Stats) String() string {
	return fmt.Sprintf(
		"groups=%d segments=%d avg_segments_per_group=%.1f words[min=%d max=%d mean=%.0f median=%.0f] cohesion[min=%.3f max=%.3f mean=%.3f]",
		s.TotalGroups, s.TotalSegments, s.AvgSegmentsPerGrp, s.MinWords, s.MaxWords, s.MeanWords, s.MedianWords, s.MinCohesion, s.MaxCohesion, s.MeanCohesion,
	)
}
