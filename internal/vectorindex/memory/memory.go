// Package memory is a brute-force in-memory vector index. It backs tests
// and single-node deployments that have no Qdrant configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/free4inno/intent-hub/internal/distance"
	"github.com/free4inno/intent-hub/internal/domain"
)

// Index keeps all points in a map and scans on search.
type Index struct {
	mu        sync.RWMutex
	dimension int
	points    map[string]domain.Point
}

// NewIndex creates an empty index for vectors of the given dimension.
func NewIndex(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", domain.ErrValidation, dimension)
	}
	return &Index{dimension: dimension, points: make(map[string]domain.Point)}, nil
}

// Upsert writes the given points, replacing any with the same id.
func (s *Index) Upsert(_ context.Context, points []domain.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		if len(p.Vector) != s.dimension {
			return fmt.Errorf("%w: vector dimension %d, index expects %d", domain.ErrValidation, len(p.Vector), s.dimension)
		}
	}
	for _, p := range points {
		s.points[p.ID] = p
	}
	return nil
}

// DeleteByIDs removes the given point ids; missing ids are ignored.
func (s *Index) DeleteByIDs(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.points, id)
	}
	return nil
}

// DeleteByRoute removes every point of a route.
func (s *Index) DeleteByRoute(_ context.Context, routeID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.points {
		if p.Payload.RouteID == routeID {
			delete(s.points, id)
		}
	}
	return nil
}

// Search returns the k nearest points by dot product (cosine similarity on
// unit vectors), best first, ties broken by point id for determinism.
func (s *Index) Search(_ context.Context, vector []float64, k int, filter *domain.Filter) ([]domain.SearchHit, error) {
	if k <= 0 {
		k = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	hits := make([]domain.SearchHit, 0, len(s.points))
	for _, p := range s.points {
		if !matches(p.Payload, filter) {
			continue
		}
		hits = append(hits, domain.SearchHit{ID: p.ID, Score: distance.Dot(vector, p.Vector), Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// IDsByRoute lists the point ids currently stored for a route.
func (s *Index) IDsByRoute(_ context.Context, routeID int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, p := range s.points {
		if p.Payload.RouteID == routeID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of stored points.
func (s *Index) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points), nil
}

// AllPayloads returns every stored point id with its payload.
func (s *Index) AllPayloads(_ context.Context) (map[string]domain.PointPayload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.PointPayload, len(s.points))
	for id, p := range s.points {
		out[id] = p.Payload
	}
	return out, nil
}

// Vectors returns points with vectors, optionally narrowed by filter,
// ordered by point id for determinism.
func (s *Index) Vectors(_ context.Context, filter *domain.Filter) ([]domain.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var points []domain.Point
	for _, p := range s.points {
		if matches(p.Payload, filter) {
			points = append(points, p)
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })
	return points, nil
}

func matches(p domain.PointPayload, f *domain.Filter) bool {
	if f == nil {
		return true
	}
	if f.RouteID != nil && p.RouteID != *f.RouteID {
		return false
	}
	if f.Negative != nil && p.IsNegative != *f.Negative {
		return false
	}
	return true
}
