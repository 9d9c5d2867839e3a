package crypto

import "sync"

// Keystore holds the per-entity symmetric keys established at registration.
// It is safe for concurrent use; callers never hold other locks across its
// methods, so socket writes can encrypt without blocking state mutation.
type Keystore struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewKeystore returns an empty Keystore.
func NewKeystore() *Keystore {
	return &Keystore{keys: make(map[string]string)}
}

// Set stores the key for an entity, replacing any previous one.
func (s *Keystore) Set(entityID, key string) {
	s.mu.Lock()
	s.keys[entityID] = key
	s.mu.Unlock()
}

// Forget drops the key for an entity.
func (s *Keystore) Forget(entityID string) {
	s.mu.Lock()
	delete(s.keys, entityID)
	s.mu.Unlock()
}

// Key returns the key on file for an entity, if any.
func (s *Keystore) Key(entityID string) (string, bool) {
	s.mu.RLock()
	k, ok := s.keys[entityID]
	s.mu.RUnlock()
	return k, ok
}

// EncryptFor seals a message with the entity's key. Without a key on file
// the message passes through unchanged; registration traffic runs before
// any key exists.
func (s *Keystore) EncryptFor(entityID, msg string) (string, error) {
	key, ok := s.Key(entityID)
	if !ok {
		return msg, nil
	}
	return Encrypt(msg, key)
}

// DecryptFrom opens data with the entity's key. Without a key on file the
// data passes through unchanged.
func (s *Keystore) DecryptFrom(entityID, data string) (string, error) {
	key, ok := s.Key(entityID)
	if !ok {
		return data, nil
	}
	return Decrypt(data, key)
}
