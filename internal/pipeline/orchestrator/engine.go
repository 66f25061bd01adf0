// Package orchestrator implements the per-video pipeline driver (C9): it
// sequences segment assembly, vector-store upsert, grouping, two-pass
// concept extraction, and relationship detection, gating each stage behind
// a config flag and materializing the groups/relationships JSON artifacts
// for inspection and restart.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lumenreach/transcriptgraph/internal/domain"
	"github.com/lumenreach/transcriptgraph/internal/pipeline/artifacts"
	"github.com/lumenreach/transcriptgraph/internal/pipeline/concepts"
	"github.com/lumenreach/transcriptgraph/internal/pipeline/grouping"
	"github.com/lumenreach/transcriptgraph/internal/pipeline/relationships"
	"github.com/lumenreach/transcriptgraph/internal/pipeline/segment"
	"github.com/lumenreach/transcriptgraph/internal/platform/graphstore"
	"github.com/lumenreach/transcriptgraph/internal/platform/logger"
	"github.com/lumenreach/transcriptgraph/internal/platform/tracing"
	"github.com/lumenreach/transcriptgraph/internal/platform/vectorstore"
)

// Result summarizes one run: counts produced at each stage plus whether it
// completed, was cancelled, or failed.
type Result struct {
	VideoID                string
	Success                bool
	Cancelled              bool
	Error                  string
	SegmentCount           int
	GroupCount             int
	ConceptCount           int
	RelationshipsUpserted  int
	RelationshipsSkipped   int
}

// Pipeline wires every component C9 drives. Fields left nil for a disabled
// stage are never dereferenced: Run checks the corresponding Config flag
// before touching them.
type Pipeline struct {
	cfg          Config
	log          *logger.Logger
	assembler    *segment.Assembler
	vectorStore  vectorstore.Store
	graphStore   graphstore.Store
	grouper      *grouping.Engine
	extractor    *concepts.Extractor
	consolidator *concepts.Consolidator
	intra        *relationships.IntraDetector
	inter        *relationships.InterDetector
}

func New(
	log *logger.Logger,
	cfg Config,
	assembler *segment.Assembler,
	vectorStore vectorstore.Store,
	graphStore graphstore.Store,
	grouper *grouping.Engine,
	extractor *concepts.Extractor,
	consolidator *concepts.Consolidator,
	intra *relationships.IntraDetector,
	inter *relationships.InterDetector,
) (*Pipeline, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if assembler == nil {
		return nil, fmt.Errorf("segment assembler required")
	}
	if vectorStore == nil {
		return nil, fmt.Errorf("vector store required")
	}
	if graphStore == nil {
		return nil, fmt.Errorf("graph store required")
	}
	return &Pipeline{
		cfg:          cfg.withDefaults(),
		log:          log.With("service", "Orchestrator"),
		assembler:    assembler,
		vectorStore:  vectorStore,
		graphStore:   graphStore,
		grouper:      grouper,
		extractor:    extractor,
		consolidator: consolidator,
		intra:        intra,
		inter:        inter,
	}, nil
}

// Run sequences one video end-to-end: assemble segments, upsert them to the
// vector store, group (if enabled), extract and consolidate concepts,
// detect relationships, and persist both to the graph store and to the
// groups/relationships JSON artifacts. A failure in any stage after segment
// assembly logs the error and returns a non-success Result; side effects
// already persisted by earlier stages are not rolled back.
func (p *Pipeline) Run(ctx context.Context, videoID string, timeline []segment.WordTiming, punctuated []string) Result {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.run")
	defer span.End()

	res := Result{VideoID: videoID}

	segments, err := p.assembler.Assemble(videoID, timeline, punctuated)
	if err != nil {
		return p.fail(res, "segment_assembly", err)
	}
	res.SegmentCount = len(segments)
	if len(segments) == 0 {
		res.Success = true
		return res
	}

	if _, err := p.withSpan(ctx, "vectorstore.upsert_segments", func(ctx context.Context) (int, error) {
		return p.vectorStore.UpsertSegments(ctx, segments)
	}); err != nil {
		return p.fail(res, "upsert_segments", err)
	}

	if cancelled(ctx) {
		return p.cancel(res)
	}

	if !p.cfg.EnableGrouping {
		res.Success = true
		return res
	}

	groups, stats, err := p.grouper.GroupVideo(ctx, videoID)
	if err != nil {
		return p.fail(res, "grouping", err)
	}
	res.GroupCount = len(groups)
	p.log.Info("grouping complete", "video_id", videoID, "stats", stats.String())

	if err := artifacts.WriteGroups(p.cfg.ArtifactsDir, artifacts.BuildGroupsDocument(videoID, groups)); err != nil {
		p.log.Warn("writing groups artifact failed", "video_id", videoID, "error", err.Error())
	}

	if cancelled(ctx) {
		return p.cancel(res)
	}

	if !p.cfg.EnableConcepts {
		res.Success = true
		return res
	}

	groupCandidates, skipPass2, err := p.collectGroupCandidates(ctx, videoID, groups)
	if err != nil {
		return p.fail(res, "concept_extraction", err)
	}

	var finalConcepts []domain.Concept
	if skipPass2 {
		finalConcepts, err = p.graphStore.FetchConceptsForVideo(ctx, videoID)
		if err != nil {
			return p.fail(res, "fetch_existing_concepts", err)
		}
		p.log.Warn("groups artifact unavailable for skip_existing replay; Pass 2 skipped, using persisted concepts as-is", "video_id", videoID)
	} else {
		finalConcepts = p.consolidate(ctx, videoID, groupCandidates)
	}
	res.ConceptCount = len(finalConcepts)

	if err := p.graphStore.UpsertConcepts(ctx, finalConcepts); err != nil {
		return p.fail(res, "upsert_concepts", err)
	}

	if cancelled(ctx) {
		return p.cancel(res)
	}

	if !p.cfg.EnableRelationships {
		res.Success = true
		return res
	}

	if p.cfg.OverwriteRelationships {
		if err := p.graphStore.DeleteRelationshipsForVideo(ctx, videoID); err != nil {
			return p.fail(res, "delete_relationships", err)
		}
	}

	var rels []domain.Relationship
	if len(groupCandidates) > 0 {
		rels = p.detectRelationships(ctx, videoID, groupCandidates, finalConcepts)
		rels = filterByConfidence(rels, p.cfg.MinRelationshipConfidence)
	} else {
		p.log.Warn("no group text available; relationship detection skipped", "video_id", videoID)
	}

	upsertResult, err := p.graphStore.UpsertRelationships(ctx, rels, p.cfg.RelationshipBatchSize)
	if err != nil {
		return p.fail(res, "upsert_relationships", err)
	}
	res.RelationshipsUpserted = upsertResult.Upserted
	res.RelationshipsSkipped = upsertResult.Skipped

	now := time.Now().UTC()
	if err := artifacts.WriteRelationships(p.cfg.ArtifactsDir, artifacts.BuildRelationshipsDocument(videoID, rels, now)); err != nil {
		p.log.Warn("writing relationships artifact failed", "video_id", videoID, "error", err.Error())
	}

	res.Success = true
	return res
}

// collectGroupCandidates runs Pass 1 over every group, unless SkipExisting
// is set and the graph store already has extracted concepts for this
// video, in which case it reconstructs group candidates from those
// persisted concepts plus the groups_<video_id>.json artifact instead of
// re-extracting. Returns skipPass2=true only when SkipExisting applies but
// the groups artifact is missing, since candidates can't be reconstructed
// without the group text and Pass 2 has nothing fresh to consolidate.
func (p *Pipeline) collectGroupCandidates(ctx context.Context, videoID string, groups []domain.SegmentGroup) ([]concepts.GroupCandidates, bool, error) {
	if p.cfg.SkipExisting {
		existing, err := p.graphStore.FetchExtractedConcepts(ctx, videoID)
		if err != nil {
			p.log.Warn("fetch existing concepts failed, falling back to fresh extraction", "video_id", videoID, "error", err.Error())
		} else if len(existing) > 0 {
			groupsDoc, gErr := artifacts.ReadGroups(p.cfg.ArtifactsDir, videoID)
			if gErr != nil {
				return nil, true, nil
			}
			textByGroup := make(map[int]string, len(groupsDoc.Groups))
			for _, ge := range groupsDoc.Groups {
				textByGroup[ge.GroupID] = ge.Text
			}
			gids := make([]int, 0, len(existing))
			for gid := range existing {
				gids = append(gids, gid)
			}
			sort.Ints(gids)
			out := make([]concepts.GroupCandidates, 0, len(gids))
			for _, gid := range gids {
				out = append(out, concepts.GroupCandidates{
					VideoID:   videoID,
					GroupID:   gid,
					GroupText: textByGroup[gid],
					Concepts:  existing[gid],
				})
			}
			return out, false, nil
		}
	}

	var out []concepts.GroupCandidates
	for i, g := range groups {
		if cancelled(ctx) {
			break
		}
		gc, err := p.extractor.ExtractFromGroup(ctx, g)
		if err != nil {
			p.log.Warn("pass-1 extraction failed for group, contributing zero candidates", "video_id", videoID, "group_id", g.GroupID, "error", err.Error())
			continue
		}
		out = append(out, gc)
		if i < len(groups)-1 {
			time.Sleep(p.cfg.ConceptDelay)
		}
	}
	return out, false, nil
}

// consolidate runs Pass 2 over the video's Pass-1 candidates; on failure,
// or when no consolidator is configured, it falls back to the
// unconsolidated union of those candidates, preserving liveness over
// quality.
func (p *Pipeline) consolidate(ctx context.Context, videoID string, groupCandidates []concepts.GroupCandidates) []domain.Concept {
	if p.consolidator == nil {
		return unionCandidates(groupCandidates)
	}
	final, err := p.consolidator.Consolidate(ctx, videoID, groupCandidates)
	if err != nil {
		p.log.Warn("pass-2 consolidation failed, falling back to pass-1 union", "video_id", videoID, "error", err.Error())
		return unionCandidates(groupCandidates)
	}
	return final
}

func unionCandidates(groupCandidates []concepts.GroupCandidates) []domain.Concept {
	var out []domain.Concept
	for _, g := range groupCandidates {
		out = append(out, g.Concepts...)
	}
	return concepts.DedupeByName(out)
}

// detectRelationships remaps every Pass-1 candidate id to the persisted
// (Pass-2, or fallback-union) concept id it survived as, then runs the
// intra- and inter-group detectors over the remapped, group-scoped
// concepts. Candidates that were merged away during consolidation (and so
// have no surviving id) are dropped before detection rather than left to
// be silently skipped at the graph-store MATCH step, since they can never
// match there.
func (p *Pipeline) detectRelationships(ctx context.Context, videoID string, groupCandidates []concepts.GroupCandidates, finalConcepts []domain.Concept) []domain.Relationship {
	candidateToFinal := make(map[string]domain.Concept)
	for _, fc := range finalConcepts {
		if len(fc.SourceCandidateIDs) == 0 {
			candidateToFinal[fc.ID] = fc
			continue
		}
		for _, cid := range fc.SourceCandidateIDs {
			candidateToFinal[cid] = fc
		}
	}

	extractions := make([]relationships.GroupExtraction, 0, len(groupCandidates))
	var out []domain.Relationship
	seen := make(map[string]struct{})

	for _, g := range groupCandidates {
		if cancelled(ctx) {
			break
		}
		remapped := make([]domain.Concept, 0, len(g.Concepts))
		for _, c := range g.Concepts {
			final, ok := candidateToFinal[c.ID]
			if !ok {
				continue
			}
			mapped := c
			mapped.ID = final.ID
			remapped = append(remapped, mapped)
		}
		if p.intra != nil {
			for _, rel := range p.intra.Detect(ctx, remapped, g.GroupText) {
				addUnique(&out, seen, rel)
			}
		}
		extractions = append(extractions, relationships.GroupExtraction{GroupID: g.GroupID, Text: g.GroupText, Concepts: remapped})
	}

	if p.inter != nil {
		for _, rel := range p.inter.Detect(ctx, extractions) {
			addUnique(&out, seen, rel)
		}
	}
	return out
}

// filterByConfidence is a backstop over the detectors' own confidence
// floors: it re-applies the orchestrator's configured minimum in case a
// caller wires relationships.Config.MinConfidence to a different (looser)
// value than orchestrator.Config.MinRelationshipConfidence.
func filterByConfidence(rels []domain.Relationship, min float64) []domain.Relationship {
	if min <= 0 {
		return rels
	}
	out := make([]domain.Relationship, 0, len(rels))
	for _, r := range rels {
		if r.Confidence < min {
			continue
		}
		out = append(out, r)
	}
	return out
}

func addUnique(out *[]domain.Relationship, seen map[string]struct{}, rel domain.Relationship) {
	if _, ok := seen[rel.ID]; ok {
		return
	}
	seen[rel.ID] = struct{}{}
	*out = append(*out, rel)
}

func (p *Pipeline) withSpan(ctx context.Context, name string, fn func(context.Context) (int, error)) (int, error) {
	ctx, span := tracing.StartSpan(ctx, name)
	defer span.End()
	return fn(ctx)
}

func (p *Pipeline) fail(res Result, stage string, err error) Result {
	res.Success = false
	res.Error = fmt.Sprintf("%s: %s", stage, err.Error())
	p.log.Error("pipeline stage failed", "video_id", res.VideoID, "stage", stage, "error", err.Error())
	return res
}

func (p *Pipeline) cancel(res Result) Result {
	res.Success = false
	res.Cancelled = true
	res.Error = "cancelled"
	return res
}

func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
