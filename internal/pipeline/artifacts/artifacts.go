// Package artifacts writes and reads the two JSON side-files the
// orchestrator (C9) materializes for inspection and restart:
// groups_<video_id>.json and relationships_<video_id>.json.
package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/lumenreach/transcriptgraph/internal/domain"
	pkgerrors "github.com/lumenreach/transcriptgraph/internal/pkg/errors"
	"github.com/lumenreach/transcriptgraph/internal/pkg/perr"
)

// SegmentExport is one group's member segment, rendered for JSON export.
// Embeddings are intentionally omitted: they are not persisted in this
// artifact, only in the vector store.
type SegmentExport struct {
	ID         string  `json:"id"`
	StartS     float64 `json:"start_s"`
	EndS       float64 `json:"end_s"`
	TokenCount int     `json:"token_count"`
	Text       string  `json:"text"`
}

// GroupExport is one group's exported shape.
type GroupExport struct {
	GroupID      int             `json:"group_id"`
	StartTime    float64         `json:"start_time"`
	EndTime      float64         `json:"end_time"`
	Duration     float64         `json:"duration"`
	NumSegments  int             `json:"num_segments"`
	TotalWords   int             `json:"total_words"`
	Text         string          `json:"text"`
	AvgCohesion  float64         `json:"avg_cohesion"`
	Segments     []SegmentExport `json:"segments"`
}

// GroupsDocument is the groups_<video_id>.json root shape.
type GroupsDocument struct {
	VideoID   string        `json:"video_id"`
	NumGroups int           `json:"num_groups"`
	Groups    []GroupExport `json:"groups"`
}

// BuildGroupsDocument converts grouping engine output into the exportable
// shape.
func BuildGroupsDocument(videoID string, groups []domain.SegmentGroup) GroupsDocument {
	doc := GroupsDocument{VideoID: videoID, NumGroups: len(groups)}
	for _, g := range groups {
		segs := make([]SegmentExport, 0, len(g.Segments))
		for _, s := range g.Segments {
			segs = append(segs, SegmentExport{ID: s.ID, StartS: s.StartS, EndS: s.EndS, TokenCount: s.TokenCount, Text: s.Text})
		}
		doc.Groups = append(doc.Groups, GroupExport{
			GroupID:     g.GroupID,
			StartTime:   g.StartTime,
			EndTime:     g.EndTime,
			Duration:    g.EndTime - g.StartTime,
			NumSegments: len(g.Segments),
			TotalWords:  g.TotalWords,
			Text:        g.Text(),
			AvgCohesion: g.AvgCohesion(),
			Segments:    segs,
		})
	}
	return doc
}

// ToGroups reconstructs domain.SegmentGroup values from a loaded
// GroupsDocument. Centroids are not reconstructable (embeddings are not
// persisted) and are left nil.
func (doc GroupsDocument) ToGroups() []domain.SegmentGroup {
	groups := make([]domain.SegmentGroup, 0, len(doc.Groups))
	for _, ge := range doc.Groups {
		segs := make([]domain.Segment, 0, len(ge.Segments))
		for _, se := range ge.Segments {
			segs = append(segs, domain.Segment{ID: se.ID, VideoID: doc.VideoID, Text: se.Text, StartS: se.StartS, EndS: se.EndS, TokenCount: se.TokenCount})
		}
		g := domain.SegmentGroup{VideoID: doc.VideoID, GroupID: ge.GroupID, Segments: segs}
		g.Recompute()
		groups = append(groups, g)
	}
	return groups
}

// RelationshipExport is one relationship rendered for JSON export.
type RelationshipExport struct {
	ID               string   `json:"id"`
	Type             string   `json:"type"`
	Confidence       float64  `json:"confidence"`
	Evidence         string   `json:"evidence"`
	DetectionMethod  string   `json:"detection_method"`
	SourceID         string   `json:"source_id"`
	TargetID         string   `json:"target_id"`
	SourceVideoID    string   `json:"source_video_id"`
	SourceGroupID    int      `json:"source_group_id"`
	TargetVideoID    string   `json:"target_video_id"`
	TargetGroupID    int      `json:"target_group_id"`
	TemporalDistance *float64 `json:"temporal_distance,omitempty"`
	ExtractedAt      string   `json:"extracted_at"`
}

// RelationshipsMetadata summarizes a relationship set for export.
type RelationshipsMetadata struct {
	Total                      int                `json:"total"`
	TypeDistribution           map[string]int     `json:"type_distribution"`
	DetectionMethodDistribution map[string]int    `json:"detection_method_distribution"`
	AverageConfidence          float64            `json:"average_confidence"`
	ExtractedAt                string             `json:"extracted_at"`
}

// RelationshipsDocument is the relationships_<video_id>.json root shape.
type RelationshipsDocument struct {
	VideoID       string                `json:"video_id"`
	Relationships []RelationshipExport  `json:"relationships"`
	Metadata      RelationshipsMetadata `json:"metadata"`
}

// BuildRelationshipsDocument converts a relationship slice into the
// exportable shape, computing the summary metadata.
func BuildRelationshipsDocument(videoID string, relationships []domain.Relationship, now time.Time) RelationshipsDocument {
	doc := RelationshipsDocument{VideoID: videoID}
	doc.Metadata.TypeDistribution = make(map[string]int)
	doc.Metadata.DetectionMethodDistribution = make(map[string]int)

	var confidenceSum float64
	for _, r := range relationships {
		doc.Relationships = append(doc.Relationships, RelationshipExport{
			ID:               r.ID,
			Type:             string(r.Type),
			Confidence:       r.Confidence,
			Evidence:         r.Evidence,
			DetectionMethod:  string(r.DetectionMethod),
			SourceID:         r.SourceID,
			TargetID:         r.TargetID,
			SourceVideoID:    r.SourceVideoID,
			SourceGroupID:    r.SourceGroupID,
			TargetVideoID:    r.TargetVideoID,
			TargetGroupID:    r.TargetGroupID,
			TemporalDistance: r.TemporalDistance,
			ExtractedAt:      r.ExtractedAt.UTC().Format(time.RFC3339Nano),
		})
		doc.Metadata.TypeDistribution[string(r.Type)]++
		doc.Metadata.DetectionMethodDistribution[string(r.DetectionMethod)]++
		confidenceSum += r.Confidence
	}
	doc.Metadata.Total = len(relationships)
	if len(relationships) > 0 {
		doc.Metadata.AverageConfidence = confidenceSum / float64(len(relationships))
	}
	doc.Metadata.ExtractedAt = now.UTC().Format(time.RFC3339Nano)
	return doc
}

// WriteGroups writes groups_<video_id>.json under dir.
func WriteGroups(dir string, doc GroupsDocument) error {
	return writeJSON(filepath.Join(dir, "groups_"+doc.VideoID+".json"), doc)
}

// ReadGroups reads groups_<video_id>.json from dir. Returns a wrapped
// pkgerrors.ErrNotFound if the artifact is absent, so callers (the
// skip_existing / Pass-2-without-group-text fallback) can distinguish
// "artifact missing" from other I/O failures.
func ReadGroups(dir, videoID string) (GroupsDocument, error) {
	var doc GroupsDocument
	err := readJSON(filepath.Join(dir, "groups_"+videoID+".json"), &doc)
	return doc, err
}

// WriteRelationships writes relationships_<video_id>.json under dir.
func WriteRelationships(dir string, doc RelationshipsDocument) error {
	return writeJSON(filepath.Join(dir, "relationships_"+doc.VideoID+".json"), doc)
}

// ReadRelationships reads relationships_<video_id>.json from dir.
func ReadRelationships(dir, videoID string) (RelationshipsDocument, error) {
	var doc RelationshipsDocument
	err := readJSON(filepath.Join(dir, "relationships_"+videoID+".json"), &doc)
	return doc, err
}

func writeJSON(path string, v any) error {
	const op = "write_artifact"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return perr.Wrap(op, perr.Transport, "create artifact directory failed", err)
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return perr.Wrap(op, perr.Malformed, "marshal artifact failed", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return perr.Wrap(op, perr.Transport, "write artifact failed", err)
	}
	return nil
}

func readJSON(path string, out any) error {
	const op = "read_artifact"
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return perr.Wrap(op, perr.EmptyInput, "artifact not found: "+path, pkgerrors.ErrNotFound)
		}
		return perr.Wrap(op, perr.Transport, "read artifact failed", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return perr.Wrap(op, perr.Malformed, "decode artifact failed", err)
	}
	return nil
}
