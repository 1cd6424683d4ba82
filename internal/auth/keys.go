package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// KeyRing maps static operator API keys to roles.
type KeyRing struct {
	entries []keyEntry
}

type keyEntry struct {
	digest [sha256.Size]byte
	role   string
}

// NewKeyRing builds a ring from role→key. Empty keys are skipped so that a
// role without a configured key cannot be obtained at all.
func NewKeyRing(keysByRole map[string]string) *KeyRing {
	kr := &KeyRing{}
	for role, key := range keysByRole {
		if key == "" {
			continue
		}
		kr.entries = append(kr.entries, keyEntry{digest: sha256.Sum256([]byte(key)), role: role})
	}
	return kr
}

// Authenticate returns the role bound to key. Every entry is compared in
// constant time.
func (k *KeyRing) Authenticate(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidCredentials
	}
	d := sha256.Sum256([]byte(key))
	role := ""
	for _, e := range k.entries {
		if subtle.ConstantTimeCompare(d[:], e.digest[:]) == 1 {
			role = e.role
		}
	}
	if role == "" {
		return "", ErrInvalidCredentials
	}
	return role, nil
}

// Enabled reports whether role still has a configured key.
func (k *KeyRing) Enabled(role string) bool {
	for _, e := range k.entries {
		if e.role == role {
			return true
		}
	}
	return false
}

func (k *KeyRing) Len() int { return len(k.entries) }
