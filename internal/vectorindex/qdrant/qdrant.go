// Package qdrant is a minimal REST client to Qdrant implementing the
// engine's VectorIndex. It assumes cosine distance and creates the
// collection (plus payload indexes on route_id and is_negative) if missing.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/free4inno/intent-hub/internal/domain"
)

// Index is a Qdrant-backed vector index for one collection.
type Index struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

// Config contains connection details for a Qdrant vector index.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// NewIndex connects to Qdrant and ensures the collection exists with the
// expected dimension.
func NewIndex(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", domain.ErrValidation, cfg.Dimension)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	idx := &Index{
		url:        strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (s *Index) ensureCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	// Qdrant returns 200 if the collection already exists with the same schema
	if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body, nil); err != nil {
		return err
	}
	for field, schema := range map[string]string{"route_id": "integer", "is_negative": "bool"} {
		idxBody := map[string]any{"field_name": field, "field_schema": schema}
		if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s/index", s.url, s.collection), idxBody, nil); err != nil {
			// index creation races and duplicates are harmless
			if !strings.Contains(err.Error(), "already exists") && !strings.Contains(err.Error(), "Conflict") {
				return err
			}
		}
	}
	return nil
}

// Upsert writes the given points, waiting for the operation to land.
func (s *Index) Upsert(ctx context.Context, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": points}
	return s.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body, nil)
}

// DeleteByIDs removes the given point ids.
func (s *Index) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	return s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection), body, nil)
}

// DeleteByRoute removes every point (positive and negative) of a route.
func (s *Index) DeleteByRoute(ctx context.Context, routeID int) error {
	body := map[string]any{"filter": routeFilter(&routeID, nil)}
	return s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection), body, nil)
}

// Search returns the k nearest points by cosine similarity, best first.
func (s *Index) Search(ctx context.Context, vector []float64, k int, filter *domain.Filter) ([]domain.SearchHit, error) {
	if k <= 0 {
		k = 20
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if filter != nil {
		if f := routeFilter(filter.RouteID, filter.Negative); f != nil {
			req["filter"] = f
		}
	}
	var resp struct {
		Result []struct {
			ID      string              `json:"id"`
			Score   float64             `json:"score"`
			Payload domain.PointPayload `json:"payload"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]domain.SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, domain.SearchHit{ID: r.ID, Score: r.Score, Payload: r.Payload})
	}
	return hits, nil
}

// IDsByRoute lists the point ids currently stored for a route.
func (s *Index) IDsByRoute(ctx context.Context, routeID int) ([]string, error) {
	var ids []string
	err := s.scroll(ctx, routeFilter(&routeID, nil), false, func(p scrolledPoint) {
		ids = append(ids, p.ID)
	})
	return ids, err
}

// Count returns the exact number of stored points.
func (s *Index) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	body := map[string]any{"exact": true}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/count", s.url, s.collection), body, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// AllPayloads returns every stored point id with its payload.
func (s *Index) AllPayloads(ctx context.Context) (map[string]domain.PointPayload, error) {
	out := make(map[string]domain.PointPayload)
	err := s.scroll(ctx, nil, false, func(p scrolledPoint) {
		out[p.ID] = p.Payload
	})
	return out, err
}

// Vectors returns points with vectors, optionally narrowed by filter.
func (s *Index) Vectors(ctx context.Context, filter *domain.Filter) ([]domain.Point, error) {
	var f map[string]any
	if filter != nil {
		f = routeFilter(filter.RouteID, filter.Negative)
	}
	var points []domain.Point
	err := s.scroll(ctx, f, true, func(p scrolledPoint) {
		points = append(points, domain.Point{ID: p.ID, Vector: p.Vector, Payload: p.Payload})
	})
	return points, err
}

type scrolledPoint struct {
	ID      string              `json:"id"`
	Vector  []float64           `json:"vector,omitempty"`
	Payload domain.PointPayload `json:"payload"`
}

func (s *Index) scroll(ctx context.Context, filter map[string]any, withVectors bool, visit func(scrolledPoint)) error {
	var offset any
	for {
		req := map[string]any{
			"limit":        256,
			"with_payload": true,
			"with_vector":  withVectors,
		}
		if filter != nil {
			req["filter"] = filter
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points         []scrolledPoint `json:"points"`
				NextPageOffset any             `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/scroll", s.url, s.collection), req, &resp); err != nil {
			return err
		}
		for _, p := range resp.Result.Points {
			visit(p)
		}
		if resp.Result.NextPageOffset == nil {
			return nil
		}
		offset = resp.Result.NextPageOffset
	}
}

// routeFilter builds a Qdrant filter clause. negative=false must also match
// points written before the flag existed, so it uses must_not rather than a
// match on false.
func routeFilter(routeID *int, negative *bool) map[string]any {
	var must, mustNot []map[string]any
	if routeID != nil {
		must = append(must, map[string]any{"key": "route_id", "match": map[string]any{"value": *routeID}})
	}
	if negative != nil {
		cond := map[string]any{"key": "is_negative", "match": map[string]any{"value": true}}
		if *negative {
			must = append(must, cond)
		} else {
			mustNot = append(mustNot, cond)
		}
	}
	if len(must) == 0 && len(mustNot) == 0 {
		return nil
	}
	f := map[string]any{}
	if len(must) > 0 {
		f["must"] = must
	}
	if len(mustNot) > 0 {
		f["must_not"] = mustNot
	}
	return f
}

func (s *Index) putJSON(ctx context.Context, url string, body, out any) error {
	return s.doJSON(ctx, http.MethodPut, url, body, out)
}

func (s *Index) postJSON(ctx context.Context, url string, body, out any) error {
	return s.doJSON(ctx, http.MethodPost, url, body, out)
}

func (s *Index) doJSON(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
		}
		return fmt.Errorf("%w: qdrant %s %s: %v", domain.ErrBackendUnavailable, method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var qErr struct {
			Status struct {
				Error string `json:"error"`
			} `json:"status"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&qErr)
		detail := qErr.Status.Error
		if detail == "" {
			detail = resp.Status
		}
		return fmt.Errorf("%w: qdrant %s %s failed: %s", domain.ErrBackendUnavailable, method, url, detail)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
