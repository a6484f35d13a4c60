package domain

// Route is a named intent class with example utterances and optional
// negative counter-examples. ID 0 is reserved for the synthetic fallback
// route and is never stored.
type Route struct {
	ID                int      `json:"id"`
	Name              string   `json:"name" validate:"required"`
	Description       string   `json:"description"`
	Utterances        []string `json:"utterances" validate:"required,min=1"`
	NegativeSamples   []string `json:"negative_samples"`
	ScoreThreshold    float64  `json:"score_threshold" validate:"gte=0,lte=1"`
	NegativeThreshold float64  `json:"negative_threshold" validate:"gte=0.8,lte=1"`
}

// Default thresholds applied when a route is created without them.
const (
	DefaultScoreThreshold    = 0.75
	DefaultNegativeThreshold = 0.95
)

// PointPayload is stored alongside every vector in the index. Negative
// samples are points flagged IsNegative so a single collection serves both
// retrieval and veto lookups.
type PointPayload struct {
	RouteID           int     `json:"route_id"`
	RouteName         string  `json:"route_name"`
	Utterance         string  `json:"utterance"`
	ScoreThreshold    float64 `json:"score_threshold"`
	IsNegative        bool    `json:"is_negative"`
	NegativeThreshold float64 `json:"negative_threshold,omitempty"`
	RouteHash         string  `json:"route_hash,omitempty"`
	ModelName         string  `json:"model_name,omitempty"`
}

// Point is a vector plus payload under a stable id.
type Point struct {
	ID      string       `json:"id"`
	Vector  []float64    `json:"vector"`
	Payload PointPayload `json:"payload"`
}

// SearchHit is one nearest-neighbor result, score descending on return.
type SearchHit struct {
	ID      string       `json:"id"`
	Score   float64      `json:"score"`
	Payload PointPayload `json:"payload"`
}

// Filter narrows a vector search. Nil fields match everything.
type Filter struct {
	RouteID  *int
	Negative *bool
}

// Prediction is one admitted route for a query. Score is nil only on the
// synthetic fallback.
type Prediction struct {
	ID    int      `json:"id"`
	Name  string   `json:"name"`
	Score *float64 `json:"score"`
}

// SyncReport describes the outcome of one synchronizer run.
type SyncReport struct {
	Mode                string `json:"mode"`
	RoutesCount         int    `json:"routes_count"`
	TotalPoints         int    `json:"total_points"`
	TotalNegativePoints int    `json:"total_negative_points"`
	NewRoutes           int    `json:"new_routes"`
	UpdatedRoutes       int    `json:"updated_routes"`
	DeletedRoutes       int    `json:"deleted_routes"`
	SkippedRoutes       int    `json:"skipped_routes"`
}

// ConflictPoint is a cross-route utterance pair above the ambiguity
// threshold.
type ConflictPoint struct {
	SourceUtterance string  `json:"source_utterance"`
	TargetUtterance string  `json:"target_utterance"`
	Similarity      float64 `json:"similarity"`
}

// RouteOverlap explains how one route overlaps a target route.
type RouteOverlap struct {
	TargetRouteID     int             `json:"target_route_id"`
	TargetRouteName   string          `json:"target_route_name"`
	RegionSimilarity  float64         `json:"region_similarity"`
	InstanceConflicts []ConflictPoint `json:"instance_conflicts"`
}

// DiagnosticReport lists all overlaps found for a source route.
type DiagnosticReport struct {
	RouteID   int            `json:"route_id"`
	RouteName string         `json:"route_name"`
	Overlaps  []RouteOverlap `json:"overlaps"`
}

// RepairSuggestion is advisory output from the LLM. The engine neither
// validates nor applies it.
type RepairSuggestion struct {
	RouteID               int      `json:"route_id"`
	RouteName             string   `json:"route_name"`
	NewUtterances         []string `json:"new_utterances"`
	NegativeSamples       []string `json:"negative_samples"`
	ConflictingUtterances []string `json:"conflicting_utterances"`
	Rationalization       string   `json:"rationalization"`
}

// ProjectedPoint is one utterance placed on the 2-D visualization plane.
type ProjectedPoint struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	RouteID   int     `json:"route_id"`
	RouteName string  `json:"route_name"`
	Utterance string  `json:"utterance"`
}
