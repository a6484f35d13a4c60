package domain

import "context"

// Embedder converts free text into L2-normalized vectors of a fixed
// dimension. Embedding is deterministic per (model, text); a failure inside
// a batch fails the whole call.
type Embedder interface {
	Name() string
	Dim() int
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorIndex is a nearest-neighbor store keyed by stable point ids.
// Operations are individually atomic; callers reconcile cross-point state
// by re-running the synchronizer.
type VectorIndex interface {
	Upsert(ctx context.Context, points []Point) error
	DeleteByIDs(ctx context.Context, ids []string) error
	DeleteByRoute(ctx context.Context, routeID int) error
	Search(ctx context.Context, vector []float64, k int, filter *Filter) ([]SearchHit, error)
	IDsByRoute(ctx context.Context, routeID int) ([]string, error)
	Count(ctx context.Context) (int, error)
	// AllPayloads returns every stored point id with its payload.
	AllPayloads(ctx context.Context) (map[string]PointPayload, error)
	// Vectors returns points with vectors, optionally narrowed by filter.
	Vectors(ctx context.Context, filter *Filter) ([]Point, error)
}

// Advisor produces LLM-backed utterance expansions and repair plans.
// Strictly advisory: never on the prediction path, never mutates state.
type Advisor interface {
	GenerateUtterances(ctx context.Context, route Route, count int, reference []string) ([]string, error)
	SuggestRepair(ctx context.Context, source, target Route, conflicts []ConflictPoint) (*RepairSuggestion, error)
}
