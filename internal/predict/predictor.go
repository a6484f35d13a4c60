// Package predict answers free-text queries with the routes whose examples
// are nearest in embedding space, subject to per-route thresholds and
// negative vetoes.
package predict

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/free4inno/intent-hub/internal/domain"
	"github.com/free4inno/intent-hub/internal/routestore"
)

// DefaultTopK bounds the retrieval breadth of one prediction.
const DefaultTopK = 20

// Predictor executes queries against a consistent (store, index) snapshot
// pair. It is a pure reader; thresholds always come from the authoritative
// store, with point payloads as fallback for routes mid-sync.
type Predictor struct {
	store       *routestore.Store
	index       domain.VectorIndex
	embedder    domain.Embedder
	topK        int
	defaultID   int
	defaultName string
	log         *slog.Logger
}

// New wires a predictor. topK <= 0 selects DefaultTopK.
func New(store *routestore.Store, index domain.VectorIndex, embedder domain.Embedder, topK int, defaultID int, defaultName string, log *slog.Logger) *Predictor {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if defaultName == "" {
		defaultName = "none"
	}
	return &Predictor{
		store:       store,
		index:       index,
		embedder:    embedder,
		topK:        topK,
		defaultID:   defaultID,
		defaultName: defaultName,
		log:         log,
	}
}

// Predict returns every admitted route ordered by score descending (route
// id ascending on ties). The result is never empty: when nothing admits it
// is exactly the synthetic fallback with a nil score.
func (p *Predictor) Predict(ctx context.Context, text string) ([]domain.Prediction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty query text", domain.ErrValidation)
	}

	vectors, err := p.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	qv := vectors[0]

	vetoed, err := p.vetoedRoutes(ctx, qv)
	if err != nil {
		return nil, err
	}

	positive := false
	hits, err := p.index.Search(ctx, qv, p.topK, &domain.Filter{Negative: &positive})
	if err != nil {
		return nil, err
	}

	best := make(map[int]domain.Prediction)
	for _, hit := range hits {
		routeID := hit.Payload.RouteID
		if vetoed[routeID] {
			continue
		}
		threshold := hit.Payload.ScoreThreshold
		if r, err := p.store.Get(routeID); err == nil {
			threshold = r.ScoreThreshold
		}
		if hit.Score < threshold {
			continue
		}
		if prev, ok := best[routeID]; ok && *prev.Score >= hit.Score {
			continue
		}
		score := hit.Score
		best[routeID] = domain.Prediction{ID: routeID, Name: hit.Payload.RouteName, Score: &score}
	}

	if len(best) == 0 {
		p.log.Debug("no route admitted, returning fallback", "query", text)
		return []domain.Prediction{{ID: p.defaultID, Name: p.defaultName}}, nil
	}

	out := make([]domain.Prediction, 0, len(best))
	for _, pred := range best {
		out = append(out, pred)
	}
	sort.Slice(out, func(i, j int) bool {
		if *out[i].Score != *out[j].Score {
			return *out[i].Score > *out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// vetoedRoutes sweeps the negative points nearest to the query and collects
// the routes whose negative threshold is exceeded.
func (p *Predictor) vetoedRoutes(ctx context.Context, qv []float64) (map[int]bool, error) {
	negative := true
	hits, err := p.index.Search(ctx, qv, p.topK, &domain.Filter{Negative: &negative})
	if err != nil {
		return nil, err
	}
	vetoed := make(map[int]bool)
	for _, hit := range hits {
		threshold := hit.Payload.NegativeThreshold
		if threshold == 0 {
			threshold = domain.DefaultNegativeThreshold
		}
		if r, err := p.store.Get(hit.Payload.RouteID); err == nil {
			threshold = r.NegativeThreshold
		}
		if hit.Score >= threshold {
			p.log.Debug("negative veto",
				"route_id", hit.Payload.RouteID,
				"negative_sample", hit.Payload.Utterance,
				"score", hit.Score,
				"threshold", threshold,
			)
			vetoed[hit.Payload.RouteID] = true
		}
	}
	return vetoed, nil
}
