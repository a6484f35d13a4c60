package predict

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/free4inno/intent-hub/internal/domain"
	"github.com/free4inno/intent-hub/internal/embedding/local"
	"github.com/free4inno/intent-hub/internal/routestore"
	"github.com/free4inno/intent-hub/internal/syncer"
	"github.com/free4inno/intent-hub/internal/vectorindex/memory"
)

type fixture struct {
	store     *routestore.Store
	index     *memory.Index
	syncer    *syncer.Syncer
	predictor *Predictor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := routestore.New(filepath.Join(t.TempDir(), "routes.json"))
	require.NoError(t, err)
	embedder := local.NewEmbedder()
	index, err := memory.NewIndex(embedder.Dim())
	require.NoError(t, err)
	return &fixture{
		store:     store,
		index:     index,
		syncer:    syncer.New(store, index, embedder, slog.Default()),
		predictor: New(store, index, embedder, 0, 0, "none", slog.Default()),
	}
}

func (f *fixture) create(t *testing.T, r domain.Route) domain.Route {
	t.Helper()
	created, err := f.store.Create(r)
	require.NoError(t, err)
	_, err = f.syncer.Sync(context.Background(), false)
	require.NoError(t, err)
	return created
}

func TestPredictHappyPath(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.Route{
		Name:           "weather",
		Utterances:     []string{"how is the weather in Beijing", "tomorrow's forecast"},
		ScoreThreshold: 0.6,
	})

	preds, err := f.predictor.Predict(context.Background(), "how is the weather in Beijing")
	require.NoError(t, err)
	require.NotEmpty(t, preds)
	assert.Equal(t, "weather", preds[0].Name)
	require.NotNil(t, preds[0].Score)
	assert.GreaterOrEqual(t, *preds[0].Score, 0.6)
}

func TestPredictFallbackWhenNothingAdmits(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.Route{
		Name:           "weather",
		Utterances:     []string{"how is the weather in Beijing"},
		ScoreThreshold: 0.6,
	})

	preds, err := f.predictor.Predict(context.Background(), "convert ten dollars to euros")
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, 0, preds[0].ID)
	assert.Equal(t, "none", preds[0].Name)
	assert.Nil(t, preds[0].Score)
}

func TestPredictFallbackOnEmptyIndex(t *testing.T) {
	f := newFixture(t)
	preds, err := f.predictor.Predict(context.Background(), "anything at all")
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, 0, preds[0].ID)
}

func TestPredictRejectsEmptyQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.predictor.Predict(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNegativeVeto(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.Route{
		Name:              "weather",
		Utterances:        []string{"how is the weather in Beijing", "book a flight to Beijing"},
		ScoreThreshold:    0.5,
		NegativeThreshold: 0.85,
	})

	// without negatives, the flight phrasing admits the route
	preds, err := f.predictor.Predict(context.Background(), "book a flight to Beijing")
	require.NoError(t, err)
	assert.Equal(t, "weather", preds[0].Name)

	// the same query as a negative sample vetoes the route entirely
	route, err := f.store.Get(1)
	require.NoError(t, err)
	route.Utterances = []string{"how is the weather in Beijing"}
	route.NegativeSamples = []string{"book a flight to Beijing"}
	_, err = f.store.Update(1, route)
	require.NoError(t, err)
	_, err = f.syncer.Sync(context.Background(), false)
	require.NoError(t, err)

	preds, err = f.predictor.Predict(context.Background(), "book a flight to Beijing")
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, 0, preds[0].ID)
	assert.Equal(t, "none", preds[0].Name)
}

func TestPredictionIsDeterministic(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.Route{Name: "weather", Utterances: []string{"how is the weather"}, ScoreThreshold: 0.3})
	f.create(t, domain.Route{Name: "climate", Utterances: []string{"how is the weather today"}, ScoreThreshold: 0.3})

	first, err := f.predictor.Predict(context.Background(), "how is the weather")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := f.predictor.Predict(context.Background(), "how is the weather")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEqualScoresBreakTiesByRouteID(t *testing.T) {
	f := newFixture(t)
	// identical utterances in both routes produce identical scores
	f.create(t, domain.Route{Name: "beta", Utterances: []string{"book a ticket to Shanghai"}, ScoreThreshold: 0.5})
	f.create(t, domain.Route{Name: "alpha", Utterances: []string{"book a ticket to Shanghai"}, ScoreThreshold: 0.5})

	preds, err := f.predictor.Predict(context.Background(), "book a ticket to Shanghai")
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, 1, preds[0].ID)
	assert.Equal(t, 2, preds[1].ID)
}

func TestLoweringThresholdOnlyAdds(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, domain.Route{
		Name:           "weather",
		Utterances:     []string{"how is the weather in Beijing"},
		ScoreThreshold: 0.99,
	})

	query := "how is the weather in Beijing today"
	preds, err := f.predictor.Predict(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, 0, preds[0].ID, "strict threshold rejects the paraphrase")

	route, err := f.store.Get(created.ID)
	require.NoError(t, err)
	route.ScoreThreshold = 0.3
	_, err = f.store.Update(created.ID, route)
	require.NoError(t, err)
	_, err = f.syncer.Sync(context.Background(), false)
	require.NoError(t, err)

	preds, err = f.predictor.Predict(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, created.ID, preds[0].ID, "lowering the threshold can only add the route")
}

func TestStoreThresholdOverridesPayload(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, domain.Route{
		Name:           "weather",
		Utterances:     []string{"how is the weather in Beijing"},
		ScoreThreshold: 0.3,
	})

	// tighten the threshold in the store without re-syncing: the store is
	// authoritative, the stale payload value must not admit the route
	route, err := f.store.Get(created.ID)
	require.NoError(t, err)
	route.ScoreThreshold = 0.999
	_, err = f.store.Update(created.ID, route)
	require.NoError(t, err)

	preds, err := f.predictor.Predict(context.Background(), "how is the weather in Beijing today")
	require.NoError(t, err)
	assert.Equal(t, 0, preds[0].ID)
}

func TestResultsOrderedByScoreDescending(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.Route{Name: "close", Utterances: []string{"play some jazz music"}, ScoreThreshold: 0.2})
	f.create(t, domain.Route{Name: "closer", Utterances: []string{"play some jazz music tonight please"}, ScoreThreshold: 0.2})

	preds, err := f.predictor.Predict(context.Background(), "play some jazz music tonight please")
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, "closer", preds[0].Name)
	assert.GreaterOrEqual(t, *preds[0].Score, *preds[1].Score)
}
