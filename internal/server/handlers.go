package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/free4inno/intent-hub/internal/diagnostics"
	"github.com/free4inno/intent-hub/internal/domain"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	key, err := s.manager.Auth().Login(req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"api_key": key})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := s.manager.Health(r.Context())
	status := "ok"
	for _, ready := range components {
		if !ready {
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "components": components})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	predictions, err := s.manager.Predictor().Predict(r.Context(), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, predictions)
}

func (s *Server) handleListRoutes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Store().List())
}

func (s *Server) handleSearchRoutes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Store().Search(r.URL.Query().Get("q")))
}

func (s *Server) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	var route domain.Route
	if err := decodeBody(r, &route); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.manager.Store().Create(route)
	if err != nil {
		writeError(w, err)
		return
	}
	s.manager.TriggerSync()
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateRoute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var route domain.Route
	if err := decodeBody(r, &route); err != nil {
		writeError(w, err)
		return
	}
	updated, err := s.manager.Store().Update(id, route)
	if err != nil {
		writeError(w, err)
		return
	}
	s.manager.TriggerSync()
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.manager.Store().Delete(id); err != nil {
		writeError(w, err)
		return
	}
	s.manager.TriggerSync()
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("route %d deleted", id)})
}

func (s *Server) handleSetNegativeSamples(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		NegativeSamples   []string `json:"negative_samples"`
		NegativeThreshold *float64 `json:"negative_threshold"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	updated, err := s.manager.Store().ReplaceNegatives(id, req.NegativeSamples, req.NegativeThreshold)
	if err != nil {
		writeError(w, err)
		return
	}
	s.manager.TriggerSync()
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleClearNegativeSamples(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	updated, err := s.manager.Store().ReplaceNegatives(id, nil, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	s.manager.TriggerSync()
	writeJSON(w, http.StatusOK, updated)
}

// handleGenerateUtterances expands a route with LLM-generated utterances.
// The result is returned for review, not persisted: the operator saves it
// through the normal create/update calls.
func (s *Server) handleGenerateUtterances(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          int      `json:"id"`
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Count       int      `json:"count"`
		Utterances  []string `json:"utterances"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, fmt.Errorf("%w: name is required", domain.ErrValidation))
		return
	}
	if req.Count == 0 {
		req.Count = 5
	}

	adv, err := s.manager.Advisor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	seed := domain.Route{ID: req.ID, Name: req.Name, Description: req.Description}
	generated, err := adv.GenerateUtterances(r.Context(), seed, req.Count, req.Utterances)
	if err != nil {
		writeError(w, err)
		return
	}

	route := domain.Route{
		ID:                req.ID,
		Name:              req.Name,
		Description:       req.Description,
		Utterances:        append(append([]string(nil), req.Utterances...), generated...),
		NegativeSamples:   []string{},
		ScoreThreshold:    domain.DefaultScoreThreshold,
		NegativeThreshold: domain.DefaultNegativeThreshold,
	}
	if existing, err := s.manager.Store().Get(req.ID); err == nil {
		if route.Name == "" {
			route.Name = existing.Name
		}
		if route.Description == "" {
			route.Description = existing.Description
		}
		route.NegativeSamples = existing.NegativeSamples
		route.ScoreThreshold = existing.ScoreThreshold
		route.NegativeThreshold = existing.NegativeThreshold
	}
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ForceFull bool `json:"force_full"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	report, err := s.manager.Syncer().Sync(r.Context(), req.ForceFull)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleReindexRoutes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RouteIDs []int `json:"route_ids"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.RouteIDs) == 0 {
		writeError(w, fmt.Errorf("%w: route_ids is required", domain.ErrValidation))
		return
	}
	report, err := s.manager.Syncer().SyncRoutes(r.Context(), req.RouteIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleOverlap(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	reports, err := s.manager.Diagnostics().Overlaps(r.Context(), refresh)
	if err != nil {
		writeError(w, err)
		return
	}
	if reports == nil {
		reports = []domain.DiagnosticReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleRouteOverlap(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	report, err := s.manager.Diagnostics().RouteOverlap(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	nNeighbors := diagnostics.DefaultNeighbors
	if v := q.Get("n_neighbors"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: bad n_neighbors %q", domain.ErrValidation, v))
			return
		}
		nNeighbors = n
	}
	minDist := diagnostics.DefaultMinDist
	if v := q.Get("min_dist"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			writeError(w, fmt.Errorf("%w: bad min_dist %q", domain.ErrValidation, v))
			return
		}
		minDist = f
	}
	seed := int64(diagnostics.DefaultSeed)
	if v := q.Get("seed"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: bad seed %q", domain.ErrValidation, v))
			return
		}
		seed = n
	}
	points, err := s.manager.Diagnostics().Projection(r.Context(), nNeighbors, minDist, seed)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"points": points,
		"meta": map[string]any{
			"n_points":    len(points),
			"n_neighbors": nNeighbors,
			"min_dist":    minDist,
			"seed":        seed,
		},
	})
}

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceRouteID int `json:"source_route_id"`
		TargetRouteID int `json:"target_route_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	suggestion, err := s.manager.Diagnostics().SuggestRepair(r.Context(), req.SourceRouteID, req.TargetRouteID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

func (s *Server) handleApplyRepair(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RouteID    int      `json:"route_id"`
		Utterances []string `json:"utterances"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	route, err := s.manager.ApplyRepair(r.Context(), req.RouteID, req.Utterances)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Settings().Redacted())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := decodeBody(r, &raw); err != nil {
		writeError(w, err)
		return
	}
	changed, err := s.manager.Settings().Update(raw)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(changed) > 0 {
		if err := s.manager.Rebind(r.Context(), changed); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "settings updated, components rebound",
		"changed":  changed,
		"settings": s.manager.Settings().Redacted(),
	})
}

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad route id", domain.ErrValidation)
	}
	return id, nil
}
