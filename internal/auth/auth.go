// Package auth implements the two credential schemes of the HTTP surface:
// operator API keys for management endpoints and a separate predict key so
// downstream services can call prediction without administrative
// credentials.
package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/free4inno/intent-hub/internal/domain"
)

// Manager validates API keys and mints per-user keys on login.
type Manager struct {
	mu         sync.RWMutex
	enabled    bool
	staticKeys map[string]struct{}
	userKeys   map[string]string // username -> minted key
	username   string
	password   string
	predictKey string
}

// Config carries the credential-related settings.
type Config struct {
	Enabled    bool
	APIKeys    string // comma-separated static keys
	Username   string
	Password   string
	PredictKey string
}

// NewManager builds a manager from settings.
func NewManager(cfg Config) *Manager {
	static := make(map[string]struct{})
	for _, k := range strings.Split(cfg.APIKeys, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			static[k] = struct{}{}
		}
	}
	return &Manager{
		enabled:    cfg.Enabled,
		staticKeys: static,
		userKeys:   make(map[string]string),
		username:   cfg.Username,
		password:   cfg.Password,
		predictKey: cfg.PredictKey,
	}
}

// Login verifies the credentials and returns the user's API key. Repeated
// logins of the same user return the same key.
func (m *Manager) Login(username, password string) (string, error) {
	if username == "" || password == "" {
		return "", fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(m.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(m.password)) == 1
	if !userOK || !passOK {
		return "", fmt.Errorf("%w: invalid username or password", domain.ErrAuth)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if key, ok := m.userKeys[username]; ok {
		return key, nil
	}
	key := uuid.NewString()
	m.userKeys[username] = key
	return key, nil
}

// ValidateAPIKey reports whether the key grants management access. With
// auth disabled every request passes.
func (m *Manager) ValidateAPIKey(key string) bool {
	if !m.enabled {
		return true
	}
	if key == "" {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.staticKeys[key]; ok {
		return true
	}
	for _, minted := range m.userKeys {
		if subtle.ConstantTimeCompare([]byte(minted), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

// ValidatePredictKey gates /predict. An empty configured key leaves
// prediction open; a management key is also accepted.
func (m *Manager) ValidatePredictKey(key string) bool {
	if m.predictKey == "" {
		return true
	}
	if subtle.ConstantTimeCompare([]byte(m.predictKey), []byte(key)) == 1 {
		return true
	}
	return m.ValidateAPIKey(key)
}
