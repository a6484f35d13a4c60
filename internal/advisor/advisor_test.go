package advisor

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/free4inno/intent-hub/internal/domain"
)

const testUtterancePrompt = `Generate {{.Count}} utterances for {{.Name}}.
{{if .Reference}}Reference:
{{range .Reference}}- {{.}}
{{end}}{{end}}`

const testRepairPrompt = `Repair {{.SourceName}} against {{.TargetName}}.
{{range .Conflicts}}- {{.SourceUtterance}} vs {{.TargetUtterance}}
{{end}}`

// fakeModel replays a canned completion and captures the prompt.
type fakeModel struct {
	response string
	err      error
	prompt   string
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if len(messages) > 0 && len(messages[0].Parts) > 0 {
		if text, ok := messages[0].Parts[0].(llms.TextContent); ok {
			f.prompt = text.Text
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.response}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	f.prompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newTestAdvisor(t *testing.T, model llms.Model) *Advisor {
	t.Helper()
	a, err := NewWithModel(model, 0.7, testUtterancePrompt, testRepairPrompt, slog.Default())
	require.NoError(t, err)
	return a
}

func TestGenerateUtterancesDedupesAndCaps(t *testing.T) {
	model := &fakeModel{response: `{"utterances":["one","two","already known","one","three","four"]}`}
	a := newTestAdvisor(t, model)

	out, err := a.GenerateUtterances(context.Background(), domain.Route{Name: "payments"}, 3, []string{"already known"})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, out)
	assert.Contains(t, model.prompt, "payments")
	assert.Contains(t, model.prompt, "already known")
}

func TestGenerateUtterancesParsesFencedJSON(t *testing.T) {
	model := &fakeModel{response: "Here you go:\n```json\n{\"utterances\":[\"a\",\"b\"]}\n```\nEnjoy!"}
	a := newTestAdvisor(t, model)

	out, err := a.GenerateUtterances(context.Background(), domain.Route{Name: "x"}, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestGenerateUtterancesRejectsBadCount(t *testing.T) {
	a := newTestAdvisor(t, &fakeModel{})
	_, err := a.GenerateUtterances(context.Background(), domain.Route{Name: "x"}, 0, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = a.GenerateUtterances(context.Background(), domain.Route{Name: "x"}, 51, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGenerateUtterancesWrapsProviderError(t *testing.T) {
	a := newTestAdvisor(t, &fakeModel{err: errors.New("rate limited")})
	_, err := a.GenerateUtterances(context.Background(), domain.Route{Name: "x"}, 3, nil)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestSuggestRepair(t *testing.T) {
	model := &fakeModel{response: `{
		"rationalization": "the routes share booking phrasings",
		"conflicting_utterances": ["book a ticket to Shanghai"],
		"new_utterances": ["book a plane ticket"],
		"negative_samples": ["book a train ticket"]
	}`}
	a := newTestAdvisor(t, model)

	source := domain.Route{ID: 1, Name: "flights", Utterances: []string{"book a ticket to Shanghai"}}
	target := domain.Route{ID: 2, Name: "trains"}
	conflicts := []domain.ConflictPoint{{SourceUtterance: "book a ticket to Shanghai", TargetUtterance: "book a ticket to Shanghai", Similarity: 1}}

	got, err := a.SuggestRepair(context.Background(), source, target, conflicts)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RouteID)
	assert.Equal(t, "flights", got.RouteName)
	assert.Equal(t, []string{"book a ticket to Shanghai"}, got.ConflictingUtterances)
	assert.Equal(t, []string{"book a plane ticket"}, got.NewUtterances)
	assert.NotEmpty(t, got.Rationalization)
	assert.Contains(t, model.prompt, "flights")
	assert.Contains(t, model.prompt, "trains")
	assert.Contains(t, model.prompt, "book a ticket to Shanghai")
}

func TestNewWithModelRejectsBadTemplate(t *testing.T) {
	_, err := NewWithModel(&fakeModel{}, 0.7, "{{.Broken", testRepairPrompt, slog.Default())
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestProviderConfigValidation(t *testing.T) {
	_, err := newModel(context.Background(), ProviderConfig{Provider: "deepseek"})
	assert.ErrorIs(t, err, domain.ErrValidation, "missing API key")

	_, err = newModel(context.Background(), ProviderConfig{Provider: "does-not-exist", APIKey: "k"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = newModel(context.Background(), ProviderConfig{Provider: "doubao", APIKey: "k"})
	assert.ErrorIs(t, err, domain.ErrValidation, "doubao has no default model id")
}
