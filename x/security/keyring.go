package security

import (
	"sort"
	"sync"
)

// KeyRing holds session keys per peer plus an optional link-wide default key.
type KeyRing struct {
	mu    sync.RWMutex
	keys  map[string][]byte
	deflt []byte
}

func NewKeyRing() *KeyRing {
	return &KeyRing{keys: make(map[string][]byte)}
}

func (r *KeyRing) Set(peer string, key []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[peer] = append([]byte(nil), key...)
}

// SetDefault installs a pre-shared key used for peers without a session key.
func (r *KeyRing) SetDefault(key []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deflt = append([]byte(nil), key...)
}

// Key returns the key for peer, falling back to the default key.
func (r *KeyRing) Key(peer string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if k, ok := r.keys[peer]; ok {
		return k, true
	}
	if r.deflt != nil {
		return r.deflt, true
	}
	return nil, false
}

// Default returns the pre-shared key, if any.
func (r *KeyRing) Default() ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deflt, r.deflt != nil
}

func (r *KeyRing) Delete(peer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, peer)
}

// Peers lists peers with a session key, sorted.
func (r *KeyRing) Peers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.keys))
	for p := range r.keys {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
