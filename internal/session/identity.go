package session

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/relaykit/pageagent/internal/storage"
)

// identityKeys are the JSON fields scanned for a usable display name.
var identityKeys = []string{"username", "account", "name"}

// ResolveUsername picks the channel identity: the stored session user when
// present, otherwise the first identity-shaped field found in any stored
// JSON record, otherwise a fresh guest tag.
func ResolveUsername(store storage.Store) string {
	if store == nil {
		return guestName()
	}

	if v, ok := store.Get(storage.KeySessionUser); ok {
		if name := strings.TrimSpace(v); name != "" {
			return name
		}
	}

	for _, key := range store.Keys() {
		if key == storage.KeySessionUser {
			continue
		}
		raw, ok := store.Get(key)
		if !ok {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			continue
		}
		for _, fk := range identityKeys {
			if name, ok := fields[fk].(string); ok && strings.TrimSpace(name) != "" {
				return strings.TrimSpace(name)
			}
		}
	}

	return guestName()
}

func guestName() string {
	return "guest-" + uuid.NewString()[:8]
}
