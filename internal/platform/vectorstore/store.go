// Package vectorstore implements the vector-store adapter (C2): a
// Qdrant-shaped HTTP dense-vector store that embeds segment text on insert,
// so no other component ever computes or sends vectors itself.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumenreach/transcriptgraph/internal/domain"
	"github.com/lumenreach/transcriptgraph/internal/pkg/ctxutil"
	"github.com/lumenreach/transcriptgraph/internal/pkg/perr"
	"github.com/lumenreach/transcriptgraph/internal/platform/logger"
	"github.com/lumenreach/transcriptgraph/internal/platform/tracing"
)

const (
	payloadVideoIDKey   = "videoId"
	payloadTextKey      = "text"
	payloadStartKey     = "start_s"
	payloadEndKey       = "end_s"
	payloadTokensKey    = "tokens"
	payloadSegmentIDKey = "_tg_segment_id"
	maxErrorBodyBytes   = 1024
	scrollPageSize      = 256
)

var pointIDNamespaceUUID = uuid.MustParse("0f1705d1-2c3f-4e40-b2f4-f855f7d3c8e8")

// Embedder produces dense vectors from text, standing in for the vector
// store's server-side embedding provider. C1/C4 never call this directly;
// only this package does, on insert. KNN takes a caller-supplied vector
// and does not embed.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Store is the C2 vector-store adapter interface.
type Store interface {
	UpsertSegments(ctx context.Context, segments []domain.Segment) (int, error)
	FetchByVideo(ctx context.Context, videoID string, includeVectors bool) ([]domain.Segment, error)
	KNN(ctx context.Context, embedding []float32, videoID string, k int) ([]domain.Neighbor, error)
	DeleteByVideo(ctx context.Context, videoID string) error
}

type store struct {
	log      *logger.Logger
	cfg      Config
	baseURL  string
	embedder Embedder
	distance string
	http     *http.Client
}

func New(log *logger.Logger, cfg Config, embedder Embedder) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if err := ValidateConfig(cfg, true); err != nil {
		return nil, err
	}
	s := &store{
		log:      log.With("service", "VectorStore"),
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		embedder: embedder,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
	if err := s.verifyReady(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// UpsertSegments embeds each segment's text, then batch-upserts points with
// deterministic client-side ids derived from the segment id — the operation
// is idempotent because the id is a pure function of (video_id, start_s).
func (s *store) UpsertSegments(ctx context.Context, segments []domain.Segment) (int, error) {
	const op = "upsert_segments"
	if len(segments) == 0 {
		return 0, nil
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}
	vectors, err := s.embedder.Embed(ctxutil.Default(ctx), texts)
	if err != nil {
		return 0, perr.Wrap(op, perr.Transport, "embedding call failed", err)
	}

	points := make([]map[string]any, 0, len(segments))
	for i, seg := range segments {
		if i >= len(vectors) || len(vectors[i]) == 0 {
			s.log.Warn("segment embedding missing, skipping upsert for segment", "segment_id", seg.ID)
			continue
		}
		points = append(points, map[string]any{
			"id":     s.pointID(seg.ID),
			"vector": vectors[i],
			"payload": map[string]any{
				payloadVideoIDKey:   seg.VideoID,
				payloadTextKey:      seg.Text,
				payloadStartKey:     seg.StartS,
				payloadEndKey:       seg.EndS,
				payloadTokensKey:    seg.TokenCount,
				payloadSegmentIDKey: seg.ID,
			},
		})
	}
	if len(points) == 0 {
		return 0, nil
	}

	req := map[string]any{"points": points}
	if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), req, nil); err != nil {
		return 0, err
	}
	return len(points), nil
}

// FetchByVideo returns all segments for a video sorted by start_s, with a
// dense Index assigned in that order.
func (s *store) FetchByVideo(ctx context.Context, videoID string, includeVectors bool) ([]domain.Segment, error) {
	const op = "fetch_by_video"

	var segments []domain.Segment
	var offset json.RawMessage
	for {
		req := map[string]any{
			"filter":       matchFilter(payloadVideoIDKey, videoID),
			"limit":        scrollPageSize,
			"with_payload": true,
			"with_vector":  includeVectors,
		}
		if len(offset) > 0 && string(offset) != "null" {
			req["offset"] = offset
		}
		var resp struct {
			Points         []scrollPoint   `json:"points"`
			NextPageOffset json.RawMessage `json:"next_page_offset"`
		}
		if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/scroll"), req, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Points {
			seg := p.toSegment(includeVectors)
			if seg.VideoID == "" {
				continue
			}
			segments = append(segments, seg)
		}
		if len(resp.NextPageOffset) == 0 || string(resp.NextPageOffset) == "null" {
			break
		}
		offset = resp.NextPageOffset
	}

	sort.SliceStable(segments, func(i, j int) bool { return segments[i].StartS < segments[j].StartS })
	for i := range segments {
		segments[i].Index = i
	}
	return segments, nil
}

// KNN returns up to k nearest segments to embedding within one video. Rows
// with distance-derived (non-cosine) scores are normalized into a bounded
// similarity; self-matches are not filtered here, per spec — the caller
// must drop self.
func (s *store) KNN(ctx context.Context, embedding []float32, videoID string, k int) ([]domain.Neighbor, error) {
	const op = "knn"
	if len(embedding) == 0 {
		return nil, perr.New(op, perr.Validation, "query embedding required")
	}
	if k <= 0 {
		k = 10
	}

	req := map[string]any{
		"vector":       embedding,
		"limit":        k,
		"with_payload": true,
		"with_vector":  true,
		"filter":       matchFilter(payloadVideoIDKey, videoID),
	}
	var rawResults []searchResultItem
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &rawResults); err != nil {
		return nil, err
	}

	out := make([]domain.Neighbor, 0, len(rawResults))
	for _, item := range rawResults {
		segID, _ := item.Payload[payloadSegmentIDKey].(string)
		if segID == "" {
			continue
		}
		startS, _ := item.Payload[payloadStartKey].(float64)
		endS, _ := item.Payload[payloadEndKey].(float64)
		n := domain.Neighbor{
			SegmentID:  segID,
			Similarity: s.normalizeScore(item.Score),
			StartS:     startS,
			EndS:       endS,
		}
		if vec, ok := item.Vector.([]any); ok {
			n.Embedding = toFloat32Slice(vec)
		}
		out = append(out, n)
	}
	return out, nil
}

// DeleteByVideo removes every point whose payload videoId matches. Idempotent.
func (s *store) DeleteByVideo(ctx context.Context, videoID string) error {
	const op = "delete_by_video"
	req := map[string]any{"filter": matchFilter(payloadVideoIDKey, videoID)}
	return s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), req, nil)
}

type scrollPoint struct {
	ID      json.RawMessage `json:"id"`
	Payload map[string]any  `json:"payload"`
	Vector  any             `json:"vector"`
}

func (p scrollPoint) toSegment(includeVectors bool) domain.Segment {
	seg := domain.Segment{}
	if v, ok := p.Payload[payloadVideoIDKey].(string); ok {
		seg.VideoID = v
	}
	if v, ok := p.Payload[payloadSegmentIDKey].(string); ok {
		seg.ID = v
	}
	if v, ok := p.Payload[payloadTextKey].(string); ok {
		seg.Text = v
	}
	if v, ok := p.Payload[payloadStartKey].(float64); ok {
		seg.StartS = v
	}
	if v, ok := p.Payload[payloadEndKey].(float64); ok {
		seg.EndS = v
	}
	if v, ok := p.Payload[payloadTokensKey].(float64); ok {
		seg.TokenCount = int(v)
	}
	if includeVectors {
		if vec, ok := p.Vector.([]any); ok {
			seg.Embedding = toFloat32Slice(vec)
		}
	}
	return seg
}

type searchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
	Vector  any             `json:"vector"`
}

func toFloat32Slice(vals []any) []float32 {
	out := make([]float32, 0, len(vals))
	for _, v := range vals {
		if f, ok := v.(float64); ok {
			out = append(out, float32(f))
		}
	}
	return out
}

func matchFilter(key, value string) map[string]any {
	return map[string]any{
		"must": []any{
			map[string]any{"key": key, "match": map[string]any{"value": value}},
		},
	}
}

func (s *store) pointID(segmentID string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(s.cfg.NamespacePrefix+"|"+segmentID)).String()
}

func (s *store) collectionPath(suffix string) string {
	path := "/collections/" + s.cfg.Collection
	if suffix == "" {
		return path
	}
	return path + suffix
}

func (s *store) verifyReady(ctx context.Context) error {
	const op = "bootstrap_verify"
	readyReq, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return perr.Wrap(op, perr.Transport, "build ready request failed", err)
	}
	readyResp, err := s.http.Do(readyReq)
	if err != nil {
		return classifyHTTPCallError(op, "vector store ready check failed", err)
	}
	_ = readyResp.Body.Close()
	if readyResp.StatusCode < 200 || readyResp.StatusCode >= 300 {
		return perr.New(op, perr.Transport, fmt.Sprintf("vector store ready check returned status=%d", readyResp.StatusCode))
	}

	var result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &result); err != nil {
		return err
	}
	size := result.Config.Params.Vectors.Size
	if size != 0 && s.cfg.VectorDim != 0 && size != s.cfg.VectorDim {
		return perr.New(op, perr.Validation, fmt.Sprintf("collection %q vector size mismatch: expected=%d actual=%d", s.cfg.Collection, s.cfg.VectorDim, size))
	}
	s.distance = strings.TrimSpace(result.Config.Params.Vectors.Distance)
	return nil
}

func (s *store) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	ctx, span := tracing.StartSpan(ctx, "vectorstore."+op)
	defer span.End()

	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return perr.Wrap(op, perr.Transport, "encode request failed", err)
		}
		body = &buf
	}
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, body)
	if err != nil {
		return perr.Wrap(op, perr.Transport, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "vector store request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return perr.Wrap(op, perr.Transport, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return perr.New(op, perr.Transport, fmt.Sprintf("vector store http status=%d body=%q", resp.StatusCode, truncateBody(raw)))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Status json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return perr.Wrap(op, perr.Malformed, "decode vector store envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return perr.New(op, perr.Transport, statusErr)
	}
	if out == nil {
		return nil
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return perr.Wrap(op, perr.Malformed, "decode vector store result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return perr.Wrap(op, perr.Transport, message+" (timeout)", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return perr.Wrap(op, perr.Transport, message+" (timeout)", err)
	}
	return perr.Wrap(op, perr.Transport, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("vector store status=%q", statusString)
	}
	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("vector store status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func (s *store) normalizeScore(score float64) float64 {
	switch strings.ToLower(strings.TrimSpace(s.distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	default:
		return score
	}
}
