package routestore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/free4inno/intent-hub/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "routes.json"))
	require.NoError(t, err)
	return s
}

func weatherRoute() domain.Route {
	return domain.Route{
		Name:           "weather",
		Description:    "weather forecasts",
		Utterances:     []string{"how is the weather in Beijing", "tomorrow's forecast"},
		ScoreThreshold: 0.6,
	}
}

func TestCreateAssignsIDAndRoundTrips(t *testing.T) {
	s := newTestStore(t)

	created, err := s.Create(weatherRoute())
	require.NoError(t, err)
	assert.Equal(t, 1, created.ID)

	got, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	second, err := s.Create(domain.Route{Name: "trains", Utterances: []string{"book a train"}})
	require.NoError(t, err)
	assert.Equal(t, 2, second.ID)
}

func TestCreateWithUnknownIDFails(t *testing.T) {
	s := newTestStore(t)
	r := weatherRoute()
	r.ID = 7
	_, err := s.Create(r)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateWithExistingIDReplaces(t *testing.T) {
	s := newTestStore(t)
	created, err := s.Create(weatherRoute())
	require.NoError(t, err)

	replacement := weatherRoute()
	replacement.ID = created.ID
	replacement.Utterances = []string{"will it rain"}
	got, err := s.Create(replacement)
	require.NoError(t, err)
	assert.Equal(t, []string{"will it rain"}, got.Utterances)
}

func TestValidationRejectsOverlappingNegatives(t *testing.T) {
	s := newTestStore(t)
	r := weatherRoute()
	r.NegativeSamples = []string{"tomorrow's forecast"}
	_, err := s.Create(r)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestValidationRejectsEmptyUtterances(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(domain.Route{Name: "empty", Utterances: []string{"", "   "}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNormalizationDedupesAndDefaults(t *testing.T) {
	s := newTestStore(t)
	created, err := s.Create(domain.Route{
		Name:       " padded ",
		Utterances: []string{" a ", "a", "b", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "padded", created.Name)
	assert.Equal(t, []string{"a", "b"}, created.Utterances)
	assert.Equal(t, domain.DefaultScoreThreshold, created.ScoreThreshold)
	assert.Equal(t, domain.DefaultNegativeThreshold, created.NegativeThreshold)
}

func TestUpdateMissingRoute(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Update(42, weatherRoute())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteKeepsOtherIDs(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(weatherRoute())
	require.NoError(t, err)
	second, err := s.Create(domain.Route{Name: "trains", Utterances: []string{"book a train"}})
	require.NoError(t, err)

	require.NoError(t, s.Delete(1))
	_, err = s.Get(1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// remaining route keeps its id: point identity depends on it
	got, err := s.Get(second.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ID)

	third, err := s.Create(domain.Route{Name: "flights", Utterances: []string{"book a flight"}})
	require.NoError(t, err)
	assert.Equal(t, 3, third.ID)
}

func TestSearchMatchesNameDescriptionAndUtterances(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(weatherRoute())
	require.NoError(t, err)
	_, err = s.Create(domain.Route{Name: "trains", Description: "railway booking", Utterances: []string{"book a ticket to Shanghai"}})
	require.NoError(t, err)

	assert.Len(t, s.Search("weather"), 1)
	assert.Len(t, s.Search("railway"), 1)
	assert.Len(t, s.Search("shanghai"), 1, "search is case-insensitive")
	assert.Len(t, s.Search("nothing-matches"), 0)
	assert.Len(t, s.Search(""), 2)
}

func TestJournalSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.json")
	s, err := New(path)
	require.NoError(t, err)
	created, err := s.Create(weatherRoute())
	require.NoError(t, err)

	reopened, err := New(path)
	require.NoError(t, err)
	got, err := reopened.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestJournalIsAnArrayOfRoutes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.json")
	s, err := New(path)
	require.NoError(t, err)
	_, err = s.Create(weatherRoute())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var routes []domain.Route
	require.NoError(t, json.Unmarshal(data, &routes))
	require.Len(t, routes, 1)
	assert.Equal(t, "weather", routes[0].Name)
}

func TestJournalRejectsReservedID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":0,"name":"bad","utterances":["x"]}]`), 0o644))
	_, err := New(path)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestVersionBumpsOnEveryWrite(t *testing.T) {
	s := newTestStore(t)
	v0 := s.Version()

	created, err := s.Create(weatherRoute())
	require.NoError(t, err)
	v1 := s.Version()
	assert.Greater(t, v1, v0)

	_, err = s.ReplaceUtterances(created.ID, []string{"new utterance"})
	require.NoError(t, err)
	v2 := s.Version()
	assert.Greater(t, v2, v1)

	// reads do not bump
	_ = s.List()
	_, _ = s.Get(created.ID)
	assert.Equal(t, v2, s.Version())
}

func TestReplaceUtterancesKeepsNegatives(t *testing.T) {
	s := newTestStore(t)
	r := weatherRoute()
	r.NegativeSamples = []string{"book a flight to Beijing"}
	r.NegativeThreshold = 0.85
	created, err := s.Create(r)
	require.NoError(t, err)

	updated, err := s.ReplaceUtterances(created.ID, []string{"will it rain tomorrow"})
	require.NoError(t, err)
	assert.Equal(t, []string{"will it rain tomorrow"}, updated.Utterances)
	assert.Equal(t, []string{"book a flight to Beijing"}, updated.NegativeSamples)
	assert.Equal(t, 0.85, updated.NegativeThreshold)
}

func TestReplaceNegatives(t *testing.T) {
	s := newTestStore(t)
	created, err := s.Create(weatherRoute())
	require.NoError(t, err)

	threshold := 0.9
	updated, err := s.ReplaceNegatives(created.ID, []string{"book a flight"}, &threshold)
	require.NoError(t, err)
	assert.Equal(t, []string{"book a flight"}, updated.NegativeSamples)
	assert.Equal(t, 0.9, updated.NegativeThreshold)

	cleared, err := s.ReplaceNegatives(created.ID, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, cleared.NegativeSamples)
	assert.Equal(t, 0.9, cleared.NegativeThreshold)
}

func TestListReturnsCopies(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(weatherRoute())
	require.NoError(t, err)

	list := s.List()
	list[0].Utterances[0] = "mutated"

	got, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "how is the weather in Beijing", got.Utterances[0])
}

func TestComputeHash(t *testing.T) {
	a := weatherRoute()
	a.ID = 1
	b := a
	b.Utterances = []string{"tomorrow's forecast", "how is the weather in Beijing"}
	assert.Equal(t, ComputeHash(a), ComputeHash(b), "utterance order does not change the hash")

	c := a
	c.Utterances = []string{"how is the weather in Beijing"}
	assert.NotEqual(t, ComputeHash(a), ComputeHash(c))

	d := a
	d.NegativeSamples = []string{"book a flight"}
	assert.NotEqual(t, ComputeHash(a), ComputeHash(d), "negatives affect points, so they affect the hash")
}
