// Package vault stores a single credential pair as an opaque encoded blob,
// gated by an explicit consent marker and bounded by a TTL.
package vault

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/relaykit/pageagent/internal/logging"
	"github.com/relaykit/pageagent/internal/storage"
)

// DefaultTTL is the maximum age of a stored credential.
const DefaultTTL = 30 * 24 * time.Hour

// Credential is the stored pair plus its capture time.
type Credential struct {
	Account string `json:"account"`
	Secret  string `json:"secret"`
	SavedAt int64  `json:"saved_at"` // epoch milliseconds
}

// Option configures a Vault.
type Option func(*Vault)

// WithTTL overrides the credential TTL.
func WithTTL(ttl time.Duration) Option {
	return func(v *Vault) {
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// Vault owns the one persisted credential record.
type Vault struct {
	store storage.Store
	ttl   time.Duration
	now   func() time.Time
	log   *logging.Logger
}

// New creates a vault over the given store.
func New(store storage.Store, log *logging.Logger, opts ...Option) *Vault {
	if log == nil {
		log = logging.NewNop()
	}
	v := &Vault{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
		log:   log.Named("vault"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Consented reports whether the consent marker permits capture and replay.
func (v *Vault) Consented() bool {
	return storage.HasConsent(v.store)
}

// Save persists the credential pair. Without the consent marker this is a
// hard no-op; the return value reports whether anything was stored.
func (v *Vault) Save(account, secret string) bool {
	if !v.Consented() {
		v.log.Debug("save skipped, no consent marker")
		return false
	}
	if account == "" || secret == "" {
		return false
	}

	blob, err := encode(Credential{
		Account: account,
		Secret:  secret,
		SavedAt: v.now().UnixMilli(),
	})
	if err != nil {
		v.log.Warn("credential encode failed", zap.Error(err))
		return false
	}

	v.store.Set(storage.KeyCredential, blob)
	v.log.Debug("credential saved")
	return true
}

// Load returns the stored credential. Expired or undecodable records are
// treated as absent and purged immediately so they cannot resurface.
func (v *Vault) Load() (Credential, bool) {
	blob, ok := v.store.Get(storage.KeyCredential)
	if !ok || blob == "" {
		return Credential{}, false
	}

	cred, err := decode(blob)
	if err != nil {
		v.log.Warn("credential decode failed, clearing", zap.Error(err))
		v.Clear()
		return Credential{}, false
	}

	age := v.now().UnixMilli() - cred.SavedAt
	if age > v.ttl.Milliseconds() {
		v.log.Debug("credential expired, clearing")
		v.Clear()
		return Credential{}, false
	}

	return cred, true
}

// Clear removes the stored record unconditionally.
func (v *Vault) Clear() {
	v.store.Delete(storage.KeyCredential)
}

func encode(cred Credential) (string, error) {
	raw, err := json.Marshal(cred)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decode(blob string) (Credential, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return Credential{}, err
	}
	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return Credential{}, err
	}
	return cred, nil
}
