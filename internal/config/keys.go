// Package config provides secret management utilities.
package config

import (
	"crypto/subtle"
	"errors"
	"log"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ErrMissingSecret is returned when a required secret is not configured.
var ErrMissingSecret = errors.New("required secret not configured")

// MaskSecret returns a masked version of a secret for display.
// Shows the first 4 and last 4 characters of long values.
func MaskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}

	if len(secret) <= 12 {
		return "***"
	}

	return secret[:4] + "..." + secret[len(secret)-4:]
}

// SecretStore holds the current verification secret. It is safe for
// concurrent use so the value can rotate while requests are served.
type SecretStore struct {
	mu     sync.RWMutex
	secret string
}

// NewSecretStore creates a store holding the given secret.
func NewSecretStore(secret string) *SecretStore {
	return &SecretStore{secret: secret}
}

// Secret returns the current secret.
func (s *SecretStore) Secret() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secret
}

// Set replaces the secret. Empty values are ignored so a half-written
// config file cannot disable authorization.
func (s *SecretStore) Set(secret string) bool {
	if secret == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.secret != secret
	s.secret = secret
	return changed
}

// Match reports whether candidate equals the current secret in constant time.
func (s *SecretStore) Match(candidate string) bool {
	current := s.Secret()
	if current == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(current), []byte(candidate)) == 1
}

// WatchSecret reloads the verification secret whenever the config file
// viper read from changes. It is a no-op when no config file is in use.
func WatchSecret(v *viper.Viper, store *SecretStore) bool {
	if v == nil || v.ConfigFileUsed() == "" {
		return false
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if store.Set(expandEnv(v.GetString("verification_secret"))) {
			log.Printf("[config] verification secret rotated from %s", e.Name)
		}
	})
	v.WatchConfig()
	return true
}
