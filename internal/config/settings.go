package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/free4inno/intent-hub/internal/domain"
)

// Settings are the hot-reloadable runtime knobs. Every field is addressable
// by its upper-snake key through the settings file, the environment, and the
// /settings endpoint. Resolution precedence: environment variable > settings
// file > built-in default.
type Settings struct {
	QdrantURL        string `json:"QDRANT_URL"`
	QdrantAPIKey     string `json:"QDRANT_API_KEY"`
	QdrantCollection string `json:"QDRANT_COLLECTION"`

	EmbeddingModelName     string `json:"EMBEDDING_MODEL_NAME"`
	EmbeddingDevice        string `json:"EMBEDDING_DEVICE"`
	HuggingFaceAccessToken string `json:"HUGGINGFACE_ACCESS_TOKEN"`
	HuggingFaceProvider    string `json:"HUGGINGFACE_PROVIDER"`

	LLMProvider    string  `json:"LLM_PROVIDER"`
	LLMAPIKey      string  `json:"LLM_API_KEY"`
	LLMBaseURL     string  `json:"LLM_BASE_URL"`
	LLMModel       string  `json:"LLM_MODEL"`
	LLMTemperature float64 `json:"LLM_TEMPERATURE" validate:"gte=0,lte=2"`

	UtteranceGenerationPrompt string `json:"UTTERANCE_GENERATION_PROMPT"`
	AgentRepairPrompt         string `json:"AGENT_REPAIR_PROMPT"`

	RegionThresholdSignificant float64 `json:"REGION_THRESHOLD_SIGNIFICANT" validate:"gte=0,lte=1"`
	InstanceThresholdAmbiguous float64 `json:"INSTANCE_THRESHOLD_AMBIGUOUS" validate:"gte=0,lte=1"`

	BatchSize int `json:"BATCH_SIZE" validate:"gte=1"`

	DefaultRouteID   int    `json:"DEFAULT_ROUTE_ID"`
	DefaultRouteName string `json:"DEFAULT_ROUTE_NAME"`

	APIKeys         string `json:"API_KEYS"`
	AuthEnabled     bool   `json:"AUTH_ENABLED"`
	PredictAuthKey  string `json:"PREDICT_AUTH_KEY"`
	DefaultUsername string `json:"DEFAULT_USERNAME"`
	DefaultPassword string `json:"DEFAULT_PASSWORD"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		QdrantURL:        "",
		QdrantCollection: "intent_hub_routes",

		EmbeddingModelName: "Qwen/Qwen3-Embedding-0.6B",
		EmbeddingDevice:    "cpu",

		LLMProvider:    "deepseek",
		LLMTemperature: 0.7,

		UtteranceGenerationPrompt: defaultUtterancePrompt,
		AgentRepairPrompt:         defaultRepairPrompt,

		RegionThresholdSignificant: 0.85,
		InstanceThresholdAmbiguous: 0.92,

		BatchSize: 32,

		DefaultRouteID:   0,
		DefaultRouteName: "none",

		AuthEnabled:     true,
		DefaultUsername: "admin",
		DefaultPassword: "123456",
	}
}

// SettingsManager loads, persists and hands out runtime settings. Writes go
// through a single mutex and replace the settings file atomically.
type SettingsManager struct {
	mu        sync.RWMutex
	path      string
	envMirror string
	current   Settings
	validate  *validator.Validate
}

// NewSettingsManager resolves settings from defaults, then the file at path
// (if present), then the environment. envMirror, when non-empty, receives a
// KEY=VALUE export on every save so a restart preserves the last-saved
// settings even without the file.
func NewSettingsManager(path, envMirror string) (*SettingsManager, error) {
	m := &SettingsManager{path: path, envMirror: envMirror, validate: validator.New()}
	s := DefaultSettings()
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse settings file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	applyEnvOverrides(&s)
	if err := m.validate.Struct(s); err != nil {
		return nil, fmt.Errorf("%w: settings out of range: %v", domain.ErrValidation, err)
	}
	m.current = s
	return m, nil
}

// Current returns a copy of the active settings.
func (m *SettingsManager) Current() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Update merges the given raw key set into the active settings, persists the
// result and returns the list of keys that actually changed. Unknown keys
// are rejected.
func (m *SettingsManager) Update(raw map[string]any) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	known := knownKeys()
	for k := range raw {
		if _, ok := known[k]; !ok {
			return nil, fmt.Errorf("%w: unrecognized setting %q", domain.ErrValidation, k)
		}
	}

	merged := m.current
	before, _ := json.Marshal(merged)
	var beforeMap map[string]json.RawMessage
	_ = json.Unmarshal(before, &beforeMap)

	patch, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := json.Unmarshal(patch, &merged); err != nil {
		return nil, fmt.Errorf("%w: bad setting value: %v", domain.ErrValidation, err)
	}
	if err := m.validate.Struct(merged); err != nil {
		return nil, fmt.Errorf("%w: settings out of range: %v", domain.ErrValidation, err)
	}

	after, _ := json.Marshal(merged)
	var afterMap map[string]json.RawMessage
	_ = json.Unmarshal(after, &afterMap)
	var changed []string
	for k := range raw {
		if string(beforeMap[k]) != string(afterMap[k]) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)

	if err := m.persist(merged); err != nil {
		return nil, err
	}
	m.current = merged
	return changed, nil
}

// persist writes the settings file atomically (temp + rename) and refreshes
// the env mirror when configured.
func (m *SettingsManager) persist(s Settings) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return err
	}
	if m.envMirror != "" {
		if err := exportEnvMirror(m.envMirror, s); err != nil {
			return err
		}
	}
	return nil
}

// Redacted returns the settings as a key map with secret values masked, for
// the /settings read endpoint.
func (m *SettingsManager) Redacted() map[string]any {
	s := m.Current()
	data, _ := json.Marshal(s)
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	for _, k := range []string{"QDRANT_API_KEY", "HUGGINGFACE_ACCESS_TOKEN", "LLM_API_KEY", "API_KEYS", "PREDICT_AUTH_KEY", "DEFAULT_PASSWORD"} {
		if v, ok := out[k].(string); ok && v != "" {
			out[k] = "********"
		}
	}
	return out
}

func knownKeys() map[string]struct{} {
	data, _ := json.Marshal(Settings{})
	var asMap map[string]json.RawMessage
	_ = json.Unmarshal(data, &asMap)
	keys := make(map[string]struct{}, len(asMap))
	for k := range asMap {
		keys[k] = struct{}{}
	}
	return keys
}

// applyEnvOverrides lets environment variables win over the file for every
// recognized key.
func applyEnvOverrides(s *Settings) {
	for key := range knownKeys() {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		setByKey(s, key, v)
	}
}

func setByKey(s *Settings, key, v string) {
	patch := map[string]any{}
	switch key {
	case "LLM_TEMPERATURE", "REGION_THRESHOLD_SIGNIFICANT", "INSTANCE_THRESHOLD_AMBIGUOUS":
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			patch[key] = f
		}
	case "BATCH_SIZE", "DEFAULT_ROUTE_ID":
		if n, err := strconv.Atoi(v); err == nil {
			patch[key] = n
		}
	case "AUTH_ENABLED":
		if b, err := strconv.ParseBool(v); err == nil {
			patch[key] = b
		}
	default:
		patch[key] = v
	}
	data, _ := json.Marshal(patch)
	_ = json.Unmarshal(data, s)
}

func exportEnvMirror(path string, s Settings) error {
	data, _ := json.Marshal(s)
	var asMap map[string]any
	_ = json.Unmarshal(data, &asMap)
	keys := make([]string, 0, len(asMap))
	for k := range asMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		val := fmt.Sprintf("%v", asMap[k])
		if strings.ContainsAny(val, "\n") {
			continue // multi-line values (prompt templates) do not fit env format
		}
		fmt.Fprintf(&b, "%s=%s\n", k, val)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
