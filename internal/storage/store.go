// Package storage models the page's persisted key-value state: the encoded
// credential blob, identity and consent markers, and the install-prompt
// dismissal timestamp.
package storage

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Well-known keys. The credential blob and the consent marker live under
// exactly one key each; identity discovery scans the whole keyspace.
const (
	KeyCredential       = "vault.credential"
	KeyConsent          = "save_auth"
	KeySessionUser      = "session_user"
	KeyInstallDismissed = "pwa.install_dismissed"
)

// ConsentGranted is the marker value that enables credential capture.
const ConsentGranted = "1"

// Store is a flat string key-value store.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
	Keys() []string
}

// MemoryStore is an in-memory Store, used in tests and as the cache layer of
// FileStore.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// Get returns the value for key.
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores value under key.
func (s *MemoryStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Delete removes key.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Keys returns all keys in sorted order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasConsent reports whether the consent marker is present and set.
func HasConsent(s Store) bool {
	v, ok := s.Get(KeyConsent)
	return ok && (v == ConsentGranted || v == "true")
}

// DismissInstallPrompt records the install-prompt dismissal time.
func DismissInstallPrompt(s Store, now time.Time) {
	s.Set(KeyInstallDismissed, strconv.FormatInt(now.UnixMilli(), 10))
}

// InstallPromptDismissedAt returns the recorded dismissal time, if any.
func InstallPromptDismissedAt(s Store) (time.Time, bool) {
	v, ok := s.Get(KeyInstallDismissed)
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
