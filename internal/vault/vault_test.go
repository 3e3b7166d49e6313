package vault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykit/pageagent/internal/logging"
	"github.com/relaykit/pageagent/internal/storage"
)

func grantConsent(store storage.Store) {
	store.Set(storage.KeyConsent, storage.ConsentGranted)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	store := storage.NewMemory()
	grantConsent(store)
	v := New(store, logging.NewNop())

	require.True(t, v.Save("alice", "hunter2"))

	cred, ok := v.Load()
	require.True(t, ok)
	assert.Equal(t, "alice", cred.Account)
	assert.Equal(t, "hunter2", cred.Secret)
	assert.NotZero(t, cred.SavedAt)
}

func TestSaveWithoutConsentIsNoop(t *testing.T) {
	store := storage.NewMemory()
	v := New(store, logging.NewNop())

	assert.False(t, v.Save("alice", "hunter2"))

	_, ok := v.Load()
	assert.False(t, ok)
	_, stored := store.Get(storage.KeyCredential)
	assert.False(t, stored)
}

func TestExpiredCredentialIsPurged(t *testing.T) {
	store := storage.NewMemory()
	grantConsent(store)

	now := time.Now()
	v := New(store, logging.NewNop(),
		WithTTL(30*24*time.Hour),
		WithClock(func() time.Time { return now }),
	)
	require.True(t, v.Save("alice", "hunter2"))

	// Jump past the TTL.
	now = now.Add(31 * 24 * time.Hour)

	_, ok := v.Load()
	assert.False(t, ok)

	// Purged on read: the record must not resurface.
	_, stored := store.Get(storage.KeyCredential)
	assert.False(t, stored)
	_, ok = v.Load()
	assert.False(t, ok)
}

func TestCredentialWithinTTLSurvives(t *testing.T) {
	store := storage.NewMemory()
	grantConsent(store)

	now := time.Now()
	v := New(store, logging.NewNop(), WithClock(func() time.Time { return now }))
	require.True(t, v.Save("alice", "hunter2"))

	now = now.Add(29 * 24 * time.Hour)

	cred, ok := v.Load()
	require.True(t, ok)
	assert.Equal(t, "alice", cred.Account)
}

func TestCorruptBlobTreatedAsAbsent(t *testing.T) {
	store := storage.NewMemory()
	grantConsent(store)
	store.Set(storage.KeyCredential, "not-base64!!!")

	v := New(store, logging.NewNop())

	_, ok := v.Load()
	assert.False(t, ok)
	_, stored := store.Get(storage.KeyCredential)
	assert.False(t, stored)
}

func TestClear(t *testing.T) {
	store := storage.NewMemory()
	grantConsent(store)
	v := New(store, logging.NewNop())
	require.True(t, v.Save("alice", "hunter2"))

	v.Clear()

	_, ok := v.Load()
	assert.False(t, ok)
}

func TestSaveEmptyPairRejected(t *testing.T) {
	store := storage.NewMemory()
	grantConsent(store)
	v := New(store, logging.NewNop())

	assert.False(t, v.Save("", "secret"))
	assert.False(t, v.Save("account", ""))
}
