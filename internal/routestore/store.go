// Package routestore is the authoritative store of route configurations.
// Routes live in memory behind an RWMutex and every successful write
// replaces the JSON journal file atomically, so a write that returns has
// landed both in memory and on disk.
package routestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/flock"

	"github.com/free4inno/intent-hub/internal/domain"
)

// Store is a single-writer, many-reader route store backed by a journal
// file (JSON array of routes).
type Store struct {
	mu       sync.RWMutex
	path     string
	lockPath string
	routes   map[int]domain.Route
	version  uint64
	validate *validator.Validate
}

// New loads the journal at path, creating an empty one if absent.
func New(path string) (*Store, error) {
	s := &Store{
		path:     path,
		lockPath: path + ".lock",
		routes:   make(map[int]domain.Route),
		validate: validator.New(),
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.save(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Version returns a counter that increases on every accepted write.
// Diagnostics caches key on it.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Get returns a copy of the route with the given id.
func (s *Store) Get(id int) (domain.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routes[id]
	if !ok {
		return domain.Route{}, fmt.Errorf("%w: route %d", domain.ErrNotFound, id)
	}
	return cloneRoute(r), nil
}

// List returns copies of all routes ordered by id.
func (s *Store) List() []domain.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Route, 0, len(s.routes))
	for _, r := range s.routes {
		out = append(out, cloneRoute(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Search matches the query substring against name, description and any
// utterance, case-insensitively. An empty query returns everything.
func (s *Store) Search(query string) []domain.Route {
	query = strings.ToLower(strings.TrimSpace(query))
	all := s.List()
	if query == "" {
		return all
	}
	var out []domain.Route
	for _, r := range all {
		if strings.Contains(strings.ToLower(r.Name), query) ||
			strings.Contains(strings.ToLower(r.Description), query) {
			out = append(out, r)
			continue
		}
		for _, u := range r.Utterances {
			if strings.Contains(strings.ToLower(u), query) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Create stores a route. ID 0 requests auto-assignment (max existing + 1);
// a nonzero id must already exist and is replaced wholesale.
func (s *Store) Create(r domain.Route) (domain.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	normalized, err := s.normalize(r)
	if err != nil {
		return domain.Route{}, err
	}
	if normalized.ID == 0 {
		maxID := 0
		for id := range s.routes {
			if id > maxID {
				maxID = id
			}
		}
		normalized.ID = maxID + 1
	} else if _, ok := s.routes[normalized.ID]; !ok {
		return domain.Route{}, fmt.Errorf("%w: route %d does not exist; set id to 0 to create", domain.ErrNotFound, normalized.ID)
	}
	return s.commit(normalized)
}

// Update replaces the route with the given id atomically.
func (s *Store) Update(id int, r domain.Route) (domain.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routes[id]; !ok {
		return domain.Route{}, fmt.Errorf("%w: route %d", domain.ErrNotFound, id)
	}
	r.ID = id
	normalized, err := s.normalize(r)
	if err != nil {
		return domain.Route{}, err
	}
	return s.commit(normalized)
}

// Delete removes the route and leaves all other ids untouched: point
// identity hashes over (route_id, utterance), so ids are never renumbered.
func (s *Store) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routes[id]; !ok {
		return fmt.Errorf("%w: route %d", domain.ErrNotFound, id)
	}
	delete(s.routes, id)
	if err := s.save(); err != nil {
		return err
	}
	s.version++
	return nil
}

// ReplaceUtterances swaps only the utterance list of a route, leaving its
// negative samples alone (the apply-repair operation).
func (s *Store) ReplaceUtterances(id int, utterances []string) (domain.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.routes[id]
	if !ok {
		return domain.Route{}, fmt.Errorf("%w: route %d", domain.ErrNotFound, id)
	}
	r = cloneRoute(r)
	r.Utterances = utterances
	normalized, err := s.normalize(r)
	if err != nil {
		return domain.Route{}, err
	}
	return s.commit(normalized)
}

// ReplaceNegatives swaps the negative sample list and, when given, the
// negative threshold.
func (s *Store) ReplaceNegatives(id int, negatives []string, negativeThreshold *float64) (domain.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.routes[id]
	if !ok {
		return domain.Route{}, fmt.Errorf("%w: route %d", domain.ErrNotFound, id)
	}
	r = cloneRoute(r)
	r.NegativeSamples = negatives
	if negativeThreshold != nil {
		r.NegativeThreshold = *negativeThreshold
	}
	normalized, err := s.normalize(r)
	if err != nil {
		return domain.Route{}, err
	}
	return s.commit(normalized)
}

// Reload re-reads the journal file, replacing the in-memory state.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	s.version++
	return nil
}

// commit persists the already-normalized route. Caller holds the write lock.
func (s *Store) commit(r domain.Route) (domain.Route, error) {
	prev, existed := s.routes[r.ID]
	s.routes[r.ID] = r
	if err := s.save(); err != nil {
		// journal write failed: roll the memory state back
		if existed {
			s.routes[r.ID] = prev
		} else {
			delete(s.routes, r.ID)
		}
		return domain.Route{}, err
	}
	s.version++
	return cloneRoute(r), nil
}

// normalize trims and deduplicates utterance lists, applies default
// thresholds and enforces the route invariants.
func (s *Store) normalize(r domain.Route) (domain.Route, error) {
	if r.ID < 0 {
		return domain.Route{}, fmt.Errorf("%w: negative route id %d", domain.ErrValidation, r.ID)
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Utterances = dedupe(r.Utterances)
	r.NegativeSamples = dedupe(r.NegativeSamples)
	if r.ScoreThreshold == 0 {
		r.ScoreThreshold = domain.DefaultScoreThreshold
	}
	if r.NegativeThreshold == 0 {
		r.NegativeThreshold = domain.DefaultNegativeThreshold
	}
	if err := s.validate.Struct(r); err != nil {
		return domain.Route{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	seen := make(map[string]struct{}, len(r.Utterances))
	for _, u := range r.Utterances {
		seen[u] = struct{}{}
	}
	for _, n := range r.NegativeSamples {
		if _, ok := seen[n]; ok {
			return domain.Route{}, fmt.Errorf("%w: %q is both an utterance and a negative sample", domain.ErrValidation, n)
		}
	}
	return r, nil
}

// dedupe drops empty strings and repeats, preserving first-seen order.
func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var routes []domain.Route
	if err := json.Unmarshal(data, &routes); err != nil {
		return fmt.Errorf("parse route journal %s: %w", s.path, err)
	}
	m := make(map[int]domain.Route, len(routes))
	for _, r := range routes {
		if r.ID == 0 {
			return fmt.Errorf("%w: journal contains reserved route id 0", domain.ErrValidation)
		}
		// hand-edited journals may omit thresholds
		if r.ScoreThreshold == 0 {
			r.ScoreThreshold = domain.DefaultScoreThreshold
		}
		if r.NegativeThreshold == 0 {
			r.NegativeThreshold = domain.DefaultNegativeThreshold
		}
		m[r.ID] = r
	}
	s.routes = m
	return nil
}

// save writes the journal atomically (write-to-temp, rename) under an
// advisory file lock so two processes never interleave writes.
func (s *Store) save() error {
	fl := flock.New(s.lockPath)
	deadline := time.Now().Add(5 * time.Second)
	for {
		locked, err := fl.TryLock()
		if err != nil {
			return fmt.Errorf("acquire journal lock: %w", err)
		}
		if locked {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: route journal is locked by another writer", domain.ErrConflict)
		}
		time.Sleep(50 * time.Millisecond)
	}
	defer fl.Unlock()

	routes := make([]domain.Route, 0, len(s.routes))
	for _, r := range s.routes {
		routes = append(routes, r)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].ID < routes[j].ID })
	data, err := json.MarshalIndent(routes, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func cloneRoute(r domain.Route) domain.Route {
	r.Utterances = append([]string(nil), r.Utterances...)
	r.NegativeSamples = append([]string(nil), r.NegativeSamples...)
	return r
}
