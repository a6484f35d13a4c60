// Package core owns the component graph: it builds the embedder, vector
// index, syncer, predictor, diagnostics engine and auth manager from the
// runtime settings, and rebinds them when settings change.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/free4inno/intent-hub/internal/advisor"
	"github.com/free4inno/intent-hub/internal/auth"
	"github.com/free4inno/intent-hub/internal/config"
	"github.com/free4inno/intent-hub/internal/diagnostics"
	"github.com/free4inno/intent-hub/internal/domain"
	"github.com/free4inno/intent-hub/internal/embedding/hf"
	"github.com/free4inno/intent-hub/internal/embedding/local"
	"github.com/free4inno/intent-hub/internal/predict"
	"github.com/free4inno/intent-hub/internal/routestore"
	"github.com/free4inno/intent-hub/internal/syncer"
	"github.com/free4inno/intent-hub/internal/vectorindex/memory"
	"github.com/free4inno/intent-hub/internal/vectorindex/qdrant"
)

// Manager holds the live component set behind an RWMutex so reads see a
// consistent snapshot while a rebind swaps components out.
type Manager struct {
	mu       sync.RWMutex
	log      *slog.Logger
	settings *config.SettingsManager
	store    *routestore.Store

	embedder  domain.Embedder
	index     domain.VectorIndex
	syncer    *syncer.Syncer
	predictor *predict.Predictor
	diag      *diagnostics.Engine
	auth      *auth.Manager
}

// NewManager creates an uninitialized manager; call Init before use.
func NewManager(log *slog.Logger, settings *config.SettingsManager, store *routestore.Store) *Manager {
	return &Manager{log: log, settings: settings, store: store}
}

// Init builds all components from the current settings.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.build(ctx)
}

// build constructs the component graph. Caller holds the write lock.
func (m *Manager) build(ctx context.Context) error {
	s := m.settings.Current()

	embedder, err := m.buildEmbedder(ctx, s)
	if err != nil {
		return err
	}

	var index domain.VectorIndex
	if s.QdrantURL != "" {
		index, err = qdrant.NewIndex(ctx, qdrant.Config{
			URL:        s.QdrantURL,
			APIKey:     s.QdrantAPIKey,
			Collection: s.QdrantCollection,
			Dimension:  embedder.Dim(),
		})
		if err != nil {
			return err
		}
	} else {
		index, err = memory.NewIndex(embedder.Dim())
		if err != nil {
			return err
		}
		m.log.Warn("no QDRANT_URL configured, using in-memory vector index")
	}

	m.embedder = embedder
	m.index = index
	m.syncer = syncer.New(m.store, index, embedder, m.log)
	m.predictor = predict.New(m.store, index, embedder, predict.DefaultTopK, s.DefaultRouteID, s.DefaultRouteName, m.log)
	m.diag = diagnostics.New(m.store, index, &lazyAdvisor{m: m}, s.RegionThresholdSignificant, s.InstanceThresholdAmbiguous, m.log)
	m.auth = auth.NewManager(auth.Config{
		Enabled:    s.AuthEnabled,
		APIKeys:    s.APIKeys,
		Username:   s.DefaultUsername,
		Password:   s.DefaultPassword,
		PredictKey: s.PredictAuthKey,
	})
	m.log.Info("components ready", "embedder", embedder.Name(), "dim", embedder.Dim(), "qdrant", s.QdrantURL != "")
	return nil
}

func (m *Manager) buildEmbedder(ctx context.Context, s config.Settings) (domain.Embedder, error) {
	if s.HuggingFaceAccessToken == "" {
		m.log.Warn("no HuggingFace token configured, using deterministic local embedder")
		return local.NewEmbedder(), nil
	}
	return hf.NewClient(ctx, hf.Config{
		Token:     s.HuggingFaceAccessToken,
		Model:     s.EmbeddingModelName,
		Provider:  s.HuggingFaceProvider,
		BatchSize: s.BatchSize,
	})
}

// Rebind rebuilds the component graph after a settings change and runs the
// synchronizer: a full pass when the embedding space changed (different
// model or dimension), an incremental pass otherwise.
func (m *Manager) Rebind(ctx context.Context, changed []string) error {
	m.mu.Lock()
	prevName, prevDim := "", 0
	if m.embedder != nil {
		prevName, prevDim = m.embedder.Name(), m.embedder.Dim()
	}
	if err := m.build(ctx); err != nil {
		m.mu.Unlock()
		return err
	}
	full := m.embedder.Name() != prevName || m.embedder.Dim() != prevDim
	sc := m.syncer
	m.mu.Unlock()

	m.log.Info("settings changed, components rebound", "changed", changed, "full_reindex", full)
	if _, err := sc.Sync(ctx, full); err != nil {
		return fmt.Errorf("post-rebind sync: %w", err)
	}
	return nil
}

// Store returns the authoritative route store.
func (m *Manager) Store() *routestore.Store { return m.store }

// Settings returns the settings manager.
func (m *Manager) Settings() *config.SettingsManager { return m.settings }

// Syncer returns the current synchronizer.
func (m *Manager) Syncer() *syncer.Syncer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.syncer
}

// Predictor returns the current predictor.
func (m *Manager) Predictor() *predict.Predictor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.predictor
}

// Diagnostics returns the current diagnostics engine.
func (m *Manager) Diagnostics() *diagnostics.Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.diag
}

// Auth returns the current auth manager.
func (m *Manager) Auth() *auth.Manager {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.auth
}

// Advisor builds a fresh per-request LLM client from the current settings.
func (m *Manager) Advisor(ctx context.Context) (domain.Advisor, error) {
	s := m.settings.Current()
	if s.LLMAPIKey == "" {
		return nil, fmt.Errorf("%w: LLM_API_KEY is not configured", domain.ErrValidation)
	}
	return advisor.New(ctx, advisor.ProviderConfig{
		Provider:    s.LLMProvider,
		BaseURL:     s.LLMBaseURL,
		Model:       s.LLMModel,
		APIKey:      s.LLMAPIKey,
		Temperature: s.LLMTemperature,
	}, s.UtteranceGenerationPrompt, s.AgentRepairPrompt, m.log)
}

// TriggerSync runs an incremental sync in the background. Route writes call
// it after the journal write returns. Each trigger runs its own pass; the
// syncer serializes overlapping passes, and later ones skip routes whose hash
// is already current.
func (m *Manager) TriggerSync() {
	sc := m.Syncer()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := sc.Sync(ctx, false); err != nil {
			m.log.Error("background sync failed", "error", err)
		}
	}()
}

// ApplyRepair swaps a route's utterances (negative samples untouched) and
// synchronously re-syncs that route so the caller observes the result.
func (m *Manager) ApplyRepair(ctx context.Context, routeID int, utterances []string) (domain.Route, error) {
	route, err := m.store.ReplaceUtterances(routeID, utterances)
	if err != nil {
		return domain.Route{}, err
	}
	if _, err := m.Syncer().SyncRoutes(ctx, []int{routeID}); err != nil {
		return domain.Route{}, err
	}
	return route, nil
}

// Health reports component readiness flags.
func (m *Manager) Health(ctx context.Context) map[string]bool {
	m.mu.RLock()
	index := m.index
	embedder := m.embedder
	m.mu.RUnlock()
	out := map[string]bool{
		"route_store":  m.store != nil,
		"embedder":     embedder != nil,
		"vector_index": false,
	}
	if index != nil {
		_, err := index.Count(ctx)
		out["vector_index"] = err == nil
	}
	return out
}

// lazyAdvisor builds a fresh LLM client per call so settings changes apply
// immediately and clients stay stateless.
type lazyAdvisor struct{ m *Manager }

func (l *lazyAdvisor) GenerateUtterances(ctx context.Context, route domain.Route, count int, reference []string) ([]string, error) {
	a, err := l.m.Advisor(ctx)
	if err != nil {
		return nil, err
	}
	return a.GenerateUtterances(ctx, route, count, reference)
}

func (l *lazyAdvisor) SuggestRepair(ctx context.Context, source, target domain.Route, conflicts []domain.ConflictPoint) (*domain.RepairSuggestion, error) {
	a, err := l.m.Advisor(ctx)
	if err != nil {
		return nil, err
	}
	return a.SuggestRepair(ctx, source, target, conflicts)
}
