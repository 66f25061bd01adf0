// Package graphstore implements the graph-store adapter (C3): MERGE-based
// upsert of concepts and typed relationships into a property graph, with
// constraint bootstrap and video-scoped deletion/read paths.
package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/lumenreach/transcriptgraph/internal/domain"
	"github.com/lumenreach/transcriptgraph/internal/pkg/ctxutil"
	"github.com/lumenreach/transcriptgraph/internal/pkg/perr"
	"github.com/lumenreach/transcriptgraph/internal/platform/logger"
	"github.com/lumenreach/transcriptgraph/internal/platform/neo4jdb"
	"github.com/lumenreach/transcriptgraph/internal/platform/tracing"
)

// Store is the C3 graph-store adapter interface.
type Store interface {
	Bootstrap(ctx context.Context) error
	UpsertConcepts(ctx context.Context, concepts []domain.Concept) error
	UpsertRelationships(ctx context.Context, relationships []domain.Relationship, batchSize int) (UpsertRelationshipsResult, error)
	DeleteConceptsForVideo(ctx context.Context, videoID string) error
	DeleteRelationshipsForVideo(ctx context.Context, videoID string) error
	FetchConceptsForVideo(ctx context.Context, videoID string) ([]domain.Concept, error)
	FetchExtractedConcepts(ctx context.Context, videoID string) (map[int][]domain.Concept, error)
}

// UpsertRelationshipsResult reports how many relationship rows were written
// versus skipped for having a missing endpoint concept — the graph driver
// silently ignores MATCH misses, so this repo counts them explicitly rather
// than reporting a hardcoded zero.
type UpsertRelationshipsResult struct {
	Upserted int
	Skipped  int
}

type store struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func New(client *neo4jdb.Client, log *logger.Logger) (Store, error) {
	if client == nil || client.Driver == nil {
		return nil, perr.New("graphstore.New", perr.ConfigMissing, "neo4j client not configured")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &store{client: client, log: log.With("service", "GraphStore")}, nil
}

// Bootstrap ensures the uniqueness constraints this adapter relies on for
// idempotent MERGE exist. Safe to call on every startup.
func (s *store) Bootstrap(ctx context.Context) error {
	const op = "bootstrap"
	session := s.session(ctx)
	defer session.Close(ctxutil.Default(ctx))

	stmts := []string{
		`CREATE CONSTRAINT concept_id_unique IF NOT EXISTS FOR (c:Concept) REQUIRE c.id IS UNIQUE`,
		`CREATE CONSTRAINT concept_mention_id_unique IF NOT EXISTS FOR (m:ConceptMention) REQUIRE m.id IS UNIQUE`,
		`CREATE CONSTRAINT relates_to_id_unique IF NOT EXISTS FOR ()-[r:RELATES_TO]-() REQUIRE r.id IS UNIQUE`,
	}
	for _, stmt := range stmts {
		if _, err := session.Run(ctxutil.Default(ctx), stmt, nil); err != nil {
			return perr.Wrap(op, perr.Transport, "constraint bootstrap failed: "+stmt, err)
		}
	}
	return nil
}

// UpsertConcepts MERGEs every concept on id, setting all scalar properties.
func (s *store) UpsertConcepts(ctx context.Context, concepts []domain.Concept) error {
	const op = "upsert_concepts"
	if len(concepts) == 0 {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "graphstore."+op)
	defer span.End()
	rows := make([]map[string]any, 0, len(concepts))
	for _, c := range concepts {
		rows = append(rows, map[string]any{
			"id":                 c.ID,
			"name":               c.Name,
			"definition":         c.Definition,
			"type":               string(c.Type),
			"importance":         domain.Clamp01(c.Importance),
			"confidence":         domain.Clamp01(c.Confidence),
			"video_id":           c.VideoID,
			"group_id":           int64(c.GroupID),
			"first_mention_time": c.FirstMentionTime,
			"last_mention_time":  c.LastMentionTime,
			"mention_count":      int64(c.MentionCount),
			"aliases":            c.Aliases,
			"extracted_at":       formatTime(c.ExtractedAt),
		})
	}

	session := s.session(ctx)
	defer session.Close(ctxutil.Default(ctx))

	_, err := session.ExecuteWrite(ctxutil.Default(ctx), func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctxutil.Default(ctx), `
UNWIND $rows AS row
MERGE (c:Concept {id: row.id})
SET c += row
`, map[string]any{"rows": rows})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctxutil.Default(ctx))
	})
	if err != nil {
		return perr.Wrap(op, perr.Transport, "upsert concepts failed", err)
	}
	return nil
}

// UpsertRelationships MERGEs on the relationship id, in batches of
// batchSize, matching both endpoints by Concept.id. Rows whose endpoints do
// not both exist are skipped and counted rather than silently dropped.
func (s *store) UpsertRelationships(ctx context.Context, relationships []domain.Relationship, batchSize int) (UpsertRelationshipsResult, error) {
	const op = "upsert_relationships"
	result := UpsertRelationshipsResult{}
	if len(relationships) == 0 {
		return result, nil
	}
	ctx, span := tracing.StartSpan(ctx, "graphstore."+op)
	defer span.End()
	if batchSize <= 0 {
		batchSize = 200
	}

	session := s.session(ctx)
	defer session.Close(ctxutil.Default(ctx))

	for start := 0; start < len(relationships); start += batchSize {
		end := start + batchSize
		if end > len(relationships) {
			end = len(relationships)
		}
		batch := relationships[start:end]

		rows := make([]map[string]any, 0, len(batch))
		for _, r := range batch {
			row := map[string]any{
				"id":              r.ID,
				"type":            string(r.Type),
				"confidence":      domain.Clamp01(r.Confidence),
				"evidence":        r.Evidence,
				"detection":       string(r.DetectionMethod),
				"source_id":       r.SourceID,
				"target_id":       r.TargetID,
				"extracted_at":    formatTime(r.ExtractedAt),
				"temporal_distance": nullableFloat(r.TemporalDistance),
			}
			rows = append(rows, row)
		}

		var existingIDs map[string]bool
		checkResult, err := session.ExecuteRead(ctxutil.Default(ctx), func(tx neo4j.ManagedTransaction) (any, error) {
			ids := make([]string, 0, 2*len(batch))
			for _, r := range batch {
				ids = append(ids, r.SourceID, r.TargetID)
			}
			res, err := tx.Run(ctxutil.Default(ctx), `
UNWIND $ids AS id
MATCH (c:Concept {id: id})
RETURN c.id AS id
`, map[string]any{"ids": ids})
			if err != nil {
				return nil, err
			}
			found := map[string]bool{}
			for res.Next(ctxutil.Default(ctx)) {
				if id, ok := res.Record().Get("id"); ok {
					if s, ok := id.(string); ok {
						found[s] = true
					}
				}
			}
			return found, res.Err()
		})
		if err != nil {
			return result, perr.Wrap(op, perr.Transport, "endpoint existence check failed", err)
		}
		existingIDs, _ = checkResult.(map[string]bool)

		writable := rows[:0:0]
		for i, r := range batch {
			if existingIDs[r.SourceID] && existingIDs[r.TargetID] {
				writable = append(writable, rows[i])
			} else {
				result.Skipped++
			}
		}
		if len(writable) == 0 {
			continue
		}

		writeResult, err := session.ExecuteWrite(ctxutil.Default(ctx), func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctxutil.Default(ctx), `
UNWIND $rows AS row
MATCH (a:Concept {id: row.source_id})
MATCH (b:Concept {id: row.target_id})
MERGE (a)-[e:RELATES_TO {id: row.id}]->(b)
ON CREATE SET e.type = row.type
SET e.confidence = row.confidence,
    e.evidence = row.evidence,
    e.detection = row.detection,
    e.extracted_at = row.extracted_at,
    e.temporal_distance = row.temporal_distance
RETURN count(e) AS written
`, map[string]any{"rows": writable})
			if err != nil {
				return nil, err
			}
			if !res.Next(ctxutil.Default(ctx)) {
				return int64(0), res.Err()
			}
			written, _ := res.Record().Get("written")
			n, _ := written.(int64)
			return n, res.Err()
		})
		if err != nil {
			return result, perr.Wrap(op, perr.Transport, "upsert relationships failed", err)
		}
		n, _ := writeResult.(int64)
		result.Upserted += int(n)
	}

	if result.Skipped > 0 {
		s.log.Warn("relationship upsert skipped rows with missing endpoints", "skipped", result.Skipped)
	}
	return result, nil
}

// DeleteConceptsForVideo detaches and deletes every Concept (and attached
// ConceptMention) for a video. Idempotent.
func (s *store) DeleteConceptsForVideo(ctx context.Context, videoID string) error {
	const op = "delete_concepts_for_video"
	session := s.session(ctx)
	defer session.Close(ctxutil.Default(ctx))

	_, err := session.ExecuteWrite(ctxutil.Default(ctx), func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctxutil.Default(ctx), `
MATCH (c:Concept {video_id: $video_id})
OPTIONAL MATCH (c)-[:HAS_MENTION]->(m:ConceptMention)
DETACH DELETE c, m
`, map[string]any{"video_id": videoID})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctxutil.Default(ctx))
	})
	if err != nil {
		return perr.Wrap(op, perr.Transport, "delete concepts for video failed", err)
	}
	return nil
}

// DeleteRelationshipsForVideo removes edges where either endpoint belongs to
// the video.
func (s *store) DeleteRelationshipsForVideo(ctx context.Context, videoID string) error {
	const op = "delete_relationships_for_video"
	session := s.session(ctx)
	defer session.Close(ctxutil.Default(ctx))

	_, err := session.ExecuteWrite(ctxutil.Default(ctx), func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctxutil.Default(ctx), `
MATCH (a:Concept)-[e:RELATES_TO]->(b:Concept)
WHERE a.video_id = $video_id OR b.video_id = $video_id
DELETE e
`, map[string]any{"video_id": videoID})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctxutil.Default(ctx))
	})
	if err != nil {
		return perr.Wrap(op, perr.Transport, "delete relationships for video failed", err)
	}
	return nil
}

// FetchConceptsForVideo returns every persisted concept for a video ordered
// by importance descending.
func (s *store) FetchConceptsForVideo(ctx context.Context, videoID string) ([]domain.Concept, error) {
	const op = "fetch_concepts_for_video"
	session := s.session(ctx)
	defer session.Close(ctxutil.Default(ctx))

	readResult, err := session.ExecuteRead(ctxutil.Default(ctx), func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctxutil.Default(ctx), `
MATCH (c:Concept {video_id: $video_id})
RETURN c
ORDER BY c.importance DESC
`, map[string]any{"video_id": videoID})
		if err != nil {
			return nil, err
		}
		var out []domain.Concept
		for res.Next(ctxutil.Default(ctx)) {
			node, ok := res.Record().Get("c")
			if !ok {
				continue
			}
			if n, ok := node.(neo4j.Node); ok {
				out = append(out, conceptFromProps(n.Props))
			}
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, perr.Wrap(op, perr.Transport, "fetch concepts for video failed", err)
	}
	concepts, _ := readResult.([]domain.Concept)
	return concepts, nil
}

// FetchExtractedConcepts returns persisted concepts for a video grouped by
// group_id, for reconstructing Pass-1 candidates when skip_existing is true
// and Pass 1 itself is skipped.
func (s *store) FetchExtractedConcepts(ctx context.Context, videoID string) (map[int][]domain.Concept, error) {
	concepts, err := s.FetchConceptsForVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	byGroup := make(map[int][]domain.Concept)
	for _, c := range concepts {
		byGroup[c.GroupID] = append(byGroup[c.GroupID], c)
	}
	return byGroup, nil
}

func (s *store) session(ctx context.Context) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctxutil.Default(ctx), neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
}

func conceptFromProps(props map[string]any) domain.Concept {
	c := domain.Concept{}
	if v, ok := props["id"].(string); ok {
		c.ID = v
	}
	if v, ok := props["name"].(string); ok {
		c.Name = v
	}
	if v, ok := props["definition"].(string); ok {
		c.Definition = v
	}
	if v, ok := props["type"].(string); ok {
		c.Type = domain.CoerceConceptType(v)
	}
	if v, ok := props["importance"].(float64); ok {
		c.Importance = v
	}
	if v, ok := props["confidence"].(float64); ok {
		c.Confidence = v
	}
	if v, ok := props["video_id"].(string); ok {
		c.VideoID = v
	}
	if v, ok := props["group_id"].(int64); ok {
		c.GroupID = int(v)
	}
	if v, ok := props["first_mention_time"].(float64); ok {
		c.FirstMentionTime = v
	}
	if v, ok := props["last_mention_time"].(float64); ok {
		c.LastMentionTime = v
	}
	if v, ok := props["mention_count"].(int64); ok {
		c.MentionCount = int(v)
	}
	if v, ok := props["aliases"].([]any); ok {
		for _, a := range v {
			if s, ok := a.(string); ok {
				c.Aliases = append(c.Aliases, s)
			}
		}
	}
	if v, ok := props["extracted_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			c.ExtractedAt = t
		}
	}
	return c
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
