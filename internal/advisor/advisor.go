// Package advisor asks an external LLM for new route utterances and for
// repair plans against overlapping routes. Strictly advisory: it never
// mutates engine state and never sits on the prediction path.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/tmc/langchaingo/llms"

	"github.com/free4inno/intent-hub/internal/domain"
)

// Advisor renders prompt templates, calls the model and parses the JSON it
// returns.
type Advisor struct {
	model           llms.Model
	temperature     float64
	utterancePrompt *template.Template
	repairPrompt    *template.Template
	log             *slog.Logger
}

// New creates an advisor for the given provider config and prompt
// templates (Go text/template syntax).
func New(ctx context.Context, cfg ProviderConfig, utterancePrompt, repairPrompt string, log *slog.Logger) (*Advisor, error) {
	model, err := newModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithModel(model, cfg.Temperature, utterancePrompt, repairPrompt, log)
}

// NewWithModel wires an advisor over an already-built model. Tests use it
// with a fake.
func NewWithModel(model llms.Model, temperature float64, utterancePrompt, repairPrompt string, log *slog.Logger) (*Advisor, error) {
	up, err := template.New("utterances").Parse(utterancePrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: bad utterance prompt template: %v", domain.ErrValidation, err)
	}
	rp, err := template.New("repair").Parse(repairPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: bad repair prompt template: %v", domain.ErrValidation, err)
	}
	return &Advisor{
		model:           model,
		temperature:     temperature,
		utterancePrompt: up,
		repairPrompt:    rp,
		log:             log,
	}, nil
}

// GenerateUtterances returns up to count new utterances for a route,
// deduplicated against the reference set.
func (a *Advisor) GenerateUtterances(ctx context.Context, route domain.Route, count int, reference []string) ([]string, error) {
	if count <= 0 || count > 50 {
		return nil, fmt.Errorf("%w: count must be in 1..50, got %d", domain.ErrValidation, count)
	}
	var prompt bytes.Buffer
	err := a.utterancePrompt.Execute(&prompt, map[string]any{
		"Name":        route.Name,
		"Description": route.Description,
		"Count":       count,
		"Reference":   reference,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: render utterance prompt: %v", domain.ErrValidation, err)
	}

	raw, err := a.complete(ctx, prompt.String())
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Utterances []string `json:"utterances"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("%w: LLM returned unparseable utterances: %v", domain.ErrBackendUnavailable, err)
	}

	seen := make(map[string]struct{}, len(reference))
	for _, r := range reference {
		seen[r] = struct{}{}
	}
	var out []string
	for _, u := range parsed.Utterances {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
		if len(out) == count {
			break
		}
	}
	a.log.Info("generated utterances", "route", route.Name, "requested", count, "returned", len(out))
	return out, nil
}

// SuggestRepair asks the model how to disentangle source from target.
// The result is returned as-is: the operator decides what to accept.
func (a *Advisor) SuggestRepair(ctx context.Context, source, target domain.Route, conflicts []domain.ConflictPoint) (*domain.RepairSuggestion, error) {
	var prompt bytes.Buffer
	err := a.repairPrompt.Execute(&prompt, map[string]any{
		"SourceName":        source.Name,
		"SourceDescription": source.Description,
		"SourceUtterances":  source.Utterances,
		"TargetName":        target.Name,
		"TargetDescription": target.Description,
		"Conflicts":         conflicts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: render repair prompt: %v", domain.ErrValidation, err)
	}

	raw, err := a.complete(ctx, prompt.String())
	if err != nil {
		return nil, err
	}
	var parsed domain.RepairSuggestion
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("%w: LLM returned unparseable repair suggestion: %v", domain.ErrBackendUnavailable, err)
	}
	parsed.RouteID = source.ID
	parsed.RouteName = source.Name
	return &parsed, nil
}

// complete runs one prompt through the model and extracts the JSON document
// from its (possibly fenced) reply.
func (a *Advisor) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := llms.GenerateFromSinglePrompt(ctx, a.model, prompt, llms.WithTemperature(a.temperature))
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
		}
		return "", fmt.Errorf("%w: LLM call failed: %v", domain.ErrBackendUnavailable, err)
	}
	doc, err := extractJSON(resp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	return doc, nil
}
