package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// KeyStore maps hashed shared keys to the caller that owns them. It is
// built once at startup and read-only afterwards.
type KeyStore struct {
	keys map[string]string // sha256(key) -> caller
}

// NewKeyStore parses a comma-separated "caller:key" list, for example
// "instantly:k1,frontend:k2". Malformed pairs are skipped.
func NewKeyStore(raw string) *KeyStore {
	ks := &KeyStore{keys: make(map[string]string)}
	for _, pair := range strings.Split(raw, ",") {
		caller, key, ok := strings.Cut(strings.TrimSpace(pair), ":")
		caller, key = strings.TrimSpace(caller), strings.TrimSpace(key)
		if !ok || caller == "" || key == "" {
			continue
		}
		ks.keys[hashKey(key)] = caller
	}
	return ks
}

// Lookup returns the caller owning key.
func (ks *KeyStore) Lookup(key string) (caller string, ok bool) {
	if key == "" {
		return "", false
	}
	caller, ok = ks.keys[hashKey(key)]
	return caller, ok
}

// Enabled reports whether any key is configured.
func (ks *KeyStore) Enabled() bool {
	return ks != nil && len(ks.keys) > 0
}

func hashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
