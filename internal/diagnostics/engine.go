// Package diagnostics finds and explains overlapping routes: a region score
// per route pair, instance-level conflict pairs, a 2-D projection for
// visualization, and LLM-backed repair suggestions.
package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/free4inno/intent-hub/internal/distance"
	"github.com/free4inno/intent-hub/internal/domain"
	"github.com/free4inno/intent-hub/internal/routestore"
)

// Defaults for the overlap thresholds and the region sample size.
const (
	DefaultRegionThreshold   = 0.85
	DefaultInstanceThreshold = 0.92
	defaultTopM              = 8
	maxConflictsPerPair      = 10
	repairPromptConflicts    = 5
)

// Engine computes overlap reports against consistent (store, index)
// snapshots. Results cache under the store's version counter, so any route
// write invalidates lazily on the next read.
type Engine struct {
	store             *routestore.Store
	index             domain.VectorIndex
	advisor           domain.Advisor
	regionThreshold   float64
	instanceThreshold float64
	log               *slog.Logger

	mu            sync.Mutex
	cached        []domain.DiagnosticReport
	cachedVersion uint64
	haveCache     bool
	sf            singleflight.Group
}

// New wires a diagnostics engine. Zero thresholds select the defaults.
func New(store *routestore.Store, index domain.VectorIndex, advisor domain.Advisor, regionThreshold, instanceThreshold float64, log *slog.Logger) *Engine {
	if regionThreshold == 0 {
		regionThreshold = DefaultRegionThreshold
	}
	if instanceThreshold == 0 {
		instanceThreshold = DefaultInstanceThreshold
	}
	return &Engine{
		store:             store,
		index:             index,
		advisor:           advisor,
		regionThreshold:   regionThreshold,
		instanceThreshold: instanceThreshold,
		log:               log,
	}
}

// Overlaps returns the full pairwise report. refresh=false serves a cached
// result when the store has not changed since it was computed; concurrent
// refreshes for the same store version are coalesced.
func (e *Engine) Overlaps(ctx context.Context, refresh bool) ([]domain.DiagnosticReport, error) {
	version := e.store.Version()
	if !refresh {
		e.mu.Lock()
		if e.haveCache && e.cachedVersion == version {
			cached := e.cached
			e.mu.Unlock()
			return cached, nil
		}
		e.mu.Unlock()
	}

	v, err, _ := e.sf.Do(fmt.Sprintf("overlap-%d", version), func() (any, error) {
		reports, err := e.computeAll(ctx)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.cached = reports
		e.cachedVersion = version
		e.haveCache = true
		e.mu.Unlock()
		return reports, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.DiagnosticReport), nil
}

// RouteOverlap reports a single source route against all others.
func (e *Engine) RouteOverlap(ctx context.Context, routeID int) (*domain.DiagnosticReport, error) {
	route, err := e.store.Get(routeID)
	if err != nil {
		return nil, err
	}
	groups, err := e.routeVectors(ctx)
	if err != nil {
		return nil, err
	}
	report := domain.DiagnosticReport{RouteID: route.ID, RouteName: route.Name, Overlaps: []domain.RouteOverlap{}}
	source, ok := groups[route.ID]
	if !ok || len(source.points) == 0 {
		return &report, nil
	}
	for _, other := range e.store.List() {
		if other.ID == route.ID {
			continue
		}
		target, ok := groups[other.ID]
		if !ok || len(target.points) == 0 {
			continue
		}
		score := pairScore(source, target)
		if score < e.regionThreshold {
			continue
		}
		report.Overlaps = append(report.Overlaps, domain.RouteOverlap{
			TargetRouteID:     other.ID,
			TargetRouteName:   other.Name,
			RegionSimilarity:  score,
			InstanceConflicts: e.instanceConflicts(source, target),
		})
	}
	sortOverlaps(report.Overlaps)
	return &report, nil
}

// Projection places every positive utterance vector on a 2-D plane with a
// deterministic neighborhood-preserving layout.
func (e *Engine) Projection(ctx context.Context, nNeighbors int, minDist float64, seed int64) ([]domain.ProjectedPoint, error) {
	positive := false
	points, err := e.index.Vectors(ctx, &domain.Filter{Negative: &positive})
	if err != nil {
		return nil, err
	}
	vectors := make([][]float64, len(points))
	for i, p := range points {
		vectors[i] = p.Vector
	}
	coords := Project(vectors, nNeighbors, minDist, seed)
	out := make([]domain.ProjectedPoint, len(points))
	for i, p := range points {
		out[i] = domain.ProjectedPoint{
			X:         coords[i][0],
			Y:         coords[i][1],
			RouteID:   p.Payload.RouteID,
			RouteName: p.Payload.RouteName,
			Utterance: p.Payload.Utterance,
		}
	}
	return out, nil
}

// SuggestRepair asks the advisor how to disentangle source from target,
// passing the strongest instance conflicts as context. Advisory only.
func (e *Engine) SuggestRepair(ctx context.Context, sourceID, targetID int) (*domain.RepairSuggestion, error) {
	if e.advisor == nil {
		return nil, fmt.Errorf("%w: no LLM advisor configured", domain.ErrBackendUnavailable)
	}
	source, err := e.store.Get(sourceID)
	if err != nil {
		return nil, err
	}
	target, err := e.store.Get(targetID)
	if err != nil {
		return nil, err
	}
	groups, err := e.routeVectors(ctx)
	if err != nil {
		return nil, err
	}
	var conflicts []domain.ConflictPoint
	if sg, ok := groups[sourceID]; ok {
		if tg, ok := groups[targetID]; ok {
			conflicts = e.instanceConflicts(sg, tg)
			if len(conflicts) > repairPromptConflicts {
				conflicts = conflicts[:repairPromptConflicts]
			}
		}
	}
	return e.advisor.SuggestRepair(ctx, source, target, conflicts)
}

type routeGroup struct {
	route    domain.Route
	points   []domain.Point
	centroid []float64
	// topM holds the M most central utterance vectors, the region sample
	topM []domain.Point
}

// routeVectors loads all positive vectors once and groups them by route,
// skipping points whose route no longer exists in the store.
func (e *Engine) routeVectors(ctx context.Context) (map[int]*routeGroup, error) {
	positive := false
	points, err := e.index.Vectors(ctx, &domain.Filter{Negative: &positive})
	if err != nil {
		return nil, err
	}
	groups := make(map[int]*routeGroup)
	for _, r := range e.store.List() {
		groups[r.ID] = &routeGroup{route: r}
	}
	for _, p := range points {
		g, ok := groups[p.Payload.RouteID]
		if !ok {
			continue
		}
		g.points = append(g.points, p)
	}
	for _, g := range groups {
		if len(g.points) == 0 {
			continue
		}
		vectors := make([][]float64, len(g.points))
		for i, p := range g.points {
			vectors[i] = p.Vector
		}
		g.centroid = distance.Centroid(vectors)
		g.topM = topByCentroid(g.points, g.centroid, defaultTopM)
	}
	return groups, nil
}

func (e *Engine) computeAll(ctx context.Context) ([]domain.DiagnosticReport, error) {
	groups, err := e.routeVectors(ctx)
	if err != nil {
		return nil, err
	}
	routes := e.store.List()

	type pairResult struct {
		a, b  int
		score float64
	}
	var (
		pairMu sync.Mutex
		pairs  []pairResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range routes {
		for j := i + 1; j < len(routes); j++ {
			a, b := routes[i].ID, routes[j].ID
			ga, gb := groups[a], groups[b]
			if len(ga.points) == 0 || len(gb.points) == 0 {
				continue
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return fmt.Errorf("%w: %v", domain.ErrCancelled, err)
				}
				score := pairScore(ga, gb)
				if score < e.regionThreshold {
					return nil
				}
				pairMu.Lock()
				pairs = append(pairs, pairResult{a: a, b: b, score: score})
				pairMu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byRoute := make(map[int]*domain.DiagnosticReport)
	for _, p := range pairs {
		for _, dir := range [2][2]int{{p.a, p.b}, {p.b, p.a}} {
			src, dst := groups[dir[0]], groups[dir[1]]
			rep, ok := byRoute[dir[0]]
			if !ok {
				rep = &domain.DiagnosticReport{RouteID: src.route.ID, RouteName: src.route.Name}
				byRoute[dir[0]] = rep
			}
			rep.Overlaps = append(rep.Overlaps, domain.RouteOverlap{
				TargetRouteID:     dst.route.ID,
				TargetRouteName:   dst.route.Name,
				RegionSimilarity:  p.score,
				InstanceConflicts: e.instanceConflicts(src, dst),
			})
		}
	}

	reports := make([]domain.DiagnosticReport, 0, len(byRoute))
	for _, r := range routes {
		rep, ok := byRoute[r.ID]
		if !ok {
			continue
		}
		sortOverlaps(rep.Overlaps)
		reports = append(reports, *rep)
	}
	e.log.Info("overlap analysis completed", "routes", len(routes), "conflicting_pairs", len(pairs))
	return reports, nil
}

// pairScore is the symmetric region similarity: the better of the two
// directional scores, so both sides of a pair report the same value.
func pairScore(a, b *routeGroup) float64 {
	sAB := regionSimilarity(a, b)
	sBA := regionSimilarity(b, a)
	if sBA > sAB {
		return sBA
	}
	return sAB
}

// regionSimilarity averages, over the source's most central utterances, the
// best similarity each finds among the target's utterances.
func regionSimilarity(src, dst *routeGroup) float64 {
	if len(src.topM) == 0 || len(dst.points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range src.topM {
		best := -1.0
		for _, q := range dst.points {
			if s := distance.Dot(p.Vector, q.Vector); s > best {
				best = s
			}
		}
		sum += best
	}
	return sum / float64(len(src.topM))
}

// instanceConflicts lists the source utterances ambiguous against the
// target: each source utterance appears at most once, with its single
// nearest target utterance, ranked by similarity descending and capped.
func (e *Engine) instanceConflicts(src, dst *routeGroup) []domain.ConflictPoint {
	var conflicts []domain.ConflictPoint
	for _, p := range src.points {
		bestScore := -1.0
		bestUtterance := ""
		for _, q := range dst.points {
			if s := distance.Dot(p.Vector, q.Vector); s > bestScore {
				bestScore = s
				bestUtterance = q.Payload.Utterance
			}
		}
		if bestScore >= e.instanceThreshold {
			conflicts = append(conflicts, domain.ConflictPoint{
				SourceUtterance: p.Payload.Utterance,
				TargetUtterance: bestUtterance,
				Similarity:      bestScore,
			})
		}
	}
	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].Similarity != conflicts[j].Similarity {
			return conflicts[i].Similarity > conflicts[j].Similarity
		}
		return conflicts[i].SourceUtterance < conflicts[j].SourceUtterance
	})
	if len(conflicts) > maxConflictsPerPair {
		conflicts = conflicts[:maxConflictsPerPair]
	}
	return conflicts
}

// topByCentroid picks the m points nearest the centroid.
func topByCentroid(points []domain.Point, centroid []float64, m int) []domain.Point {
	if m > len(points) {
		m = len(points)
	}
	sorted := append([]domain.Point(nil), points...)
	sort.Slice(sorted, func(i, j int) bool {
		si := distance.Dot(sorted[i].Vector, centroid)
		sj := distance.Dot(sorted[j].Vector, centroid)
		if si != sj {
			return si > sj
		}
		return sorted[i].Payload.Utterance < sorted[j].Payload.Utterance
	})
	return sorted[:m]
}

func sortOverlaps(overlaps []domain.RouteOverlap) {
	sort.Slice(overlaps, func(i, j int) bool {
		if overlaps[i].RegionSimilarity != overlaps[j].RegionSimilarity {
			return overlaps[i].RegionSimilarity > overlaps[j].RegionSimilarity
		}
		return overlaps[i].TargetRouteID < overlaps[j].TargetRouteID
	})
}
