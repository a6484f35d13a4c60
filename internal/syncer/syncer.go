// Package syncer reconciles the vector index with the route store. It owns
// the consistency relation: after a successful run, every stored
// (route_id, utterance) pair has exactly one point and no other points
// exist.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/free4inno/intent-hub/internal/domain"
	"github.com/free4inno/intent-hub/internal/routestore"
)

// Syncer diffs the store against the index and applies minimal upserts and
// deletes. Runs are serialized by an internal mutex and are idempotent, so
// coalescing adjacent triggers is safe.
type Syncer struct {
	mu       sync.Mutex
	store    *routestore.Store
	index    domain.VectorIndex
	embedder domain.Embedder
	log      *slog.Logger
}

// New wires a syncer over the given components.
func New(store *routestore.Store, index domain.VectorIndex, embedder domain.Embedder, log *slog.Logger) *Syncer {
	return &Syncer{store: store, index: index, embedder: embedder, log: log}
}

// Sync runs one reconciliation pass. In incremental mode, routes whose
// stored content hash matches the index are skipped wholesale; forceFull
// re-embeds everything. If any embedding batch fails the run aborts before
// deletes are applied, leaving a partial state the next run converges from.
func (s *Syncer) Sync(ctx context.Context, forceFull bool) (*domain.SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mode := "incremental"
	if forceFull {
		mode = "full"
	}

	routes := s.store.List()
	actual, err := s.index.AllPayloads(ctx)
	if err != nil {
		return nil, err
	}

	stored := make(map[int]struct{}, len(routes))
	for _, r := range routes {
		stored[r.ID] = struct{}{}
	}

	// index state grouped per route: ids and the content hash points carry
	idsByRoute := make(map[int]map[string]struct{})
	hashByRoute := make(map[int]string)
	hashDirty := make(map[int]bool)
	var toDelete []string
	deletedRoutes := make(map[int]struct{})
	for id, payload := range actual {
		if _, ok := stored[payload.RouteID]; !ok {
			toDelete = append(toDelete, id)
			deletedRoutes[payload.RouteID] = struct{}{}
			continue
		}
		set, ok := idsByRoute[payload.RouteID]
		if !ok {
			set = make(map[string]struct{})
			idsByRoute[payload.RouteID] = set
		}
		set[id] = struct{}{}
		if prev, ok := hashByRoute[payload.RouteID]; ok && prev != payload.RouteHash {
			hashDirty[payload.RouteID] = true
		}
		hashByRoute[payload.RouteID] = payload.RouteHash
	}

	report := &domain.SyncReport{Mode: mode, RoutesCount: len(routes)}
	for _, r := range routes {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, err)
		}
		report.TotalPoints += len(r.Utterances)
		report.TotalNegativePoints += len(r.NegativeSamples)

		hash := routestore.ComputeHash(r)
		expected := expectedIDs(r)
		have := idsByRoute[r.ID]
		if !forceFull && !hashDirty[r.ID] && hashByRoute[r.ID] == hash && sameIDs(have, expected) {
			report.SkippedRoutes++
			continue
		}

		points, err := s.buildPoints(ctx, r, hash)
		if err != nil {
			return nil, err
		}
		if err := s.index.Upsert(ctx, points); err != nil {
			return nil, err
		}
		for id := range have {
			if _, ok := expected[id]; !ok {
				toDelete = append(toDelete, id)
			}
		}
		if len(have) == 0 {
			report.NewRoutes++
		} else {
			report.UpdatedRoutes++
		}
	}

	// deletes run last: an aborted run must never have evicted live points
	if err := s.index.DeleteByIDs(ctx, toDelete); err != nil {
		return nil, err
	}
	report.DeletedRoutes = len(deletedRoutes)

	s.log.Info("sync completed",
		"mode", mode,
		"routes", report.RoutesCount,
		"points", report.TotalPoints,
		"negative_points", report.TotalNegativePoints,
		"new", report.NewRoutes,
		"updated", report.UpdatedRoutes,
		"deleted", report.DeletedRoutes,
		"skipped", report.SkippedRoutes,
	)
	return report, nil
}

// SyncRoutes force-refreshes the given routes only: their old points are
// dropped and re-embedded regardless of hash state.
func (s *Syncer) SyncRoutes(ctx context.Context, ids []int) (*domain.SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &domain.SyncReport{Mode: "targeted", RoutesCount: len(ids)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, err)
		}
		r, err := s.store.Get(id)
		if err != nil {
			return nil, err
		}
		points, err := s.buildPoints(ctx, r, routestore.ComputeHash(r))
		if err != nil {
			return nil, err
		}
		if err := s.index.DeleteByRoute(ctx, id); err != nil {
			return nil, err
		}
		if err := s.index.Upsert(ctx, points); err != nil {
			return nil, err
		}
		report.TotalPoints += len(r.Utterances)
		report.TotalNegativePoints += len(r.NegativeSamples)
		report.UpdatedRoutes++
	}
	s.log.Info("targeted sync completed", "routes", len(ids), "points", report.TotalPoints)
	return report, nil
}

// buildPoints embeds a route's utterances and negative samples in one call
// and assembles the index points.
func (s *Syncer) buildPoints(ctx context.Context, r domain.Route, hash string) ([]domain.Point, error) {
	texts := make([]string, 0, len(r.Utterances)+len(r.NegativeSamples))
	texts = append(texts, r.Utterances...)
	texts = append(texts, r.NegativeSamples...)
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	points := make([]domain.Point, 0, len(texts))
	for i, u := range r.Utterances {
		points = append(points, domain.Point{
			ID:     domain.PositivePointID(r.ID, u),
			Vector: vectors[i],
			Payload: domain.PointPayload{
				RouteID:        r.ID,
				RouteName:      r.Name,
				Utterance:      u,
				ScoreThreshold: r.ScoreThreshold,
				RouteHash:      hash,
				ModelName:      s.embedder.Name(),
			},
		})
	}
	for i, n := range r.NegativeSamples {
		points = append(points, domain.Point{
			ID:     domain.NegativePointID(r.ID, n),
			Vector: vectors[len(r.Utterances)+i],
			Payload: domain.PointPayload{
				RouteID:           r.ID,
				RouteName:         r.Name,
				Utterance:         n,
				IsNegative:        true,
				NegativeThreshold: r.NegativeThreshold,
				RouteHash:         hash,
				ModelName:         s.embedder.Name(),
			},
		})
	}
	return points, nil
}

func expectedIDs(r domain.Route) map[string]struct{} {
	out := make(map[string]struct{}, len(r.Utterances)+len(r.NegativeSamples))
	for _, u := range r.Utterances {
		out[domain.PositivePointID(r.ID, u)] = struct{}{}
	}
	for _, n := range r.NegativeSamples {
		out[domain.NegativePointID(r.ID, n)] = struct{}{}
	}
	return out
}

func sameIDs(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}
