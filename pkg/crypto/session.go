package crypto

import (
	"crypto/ed25519"
	"fmt"
	"sync"
)

// Keyring holds a node's key material and manages the session ciphers
// derived for remote peers. Each peer session gets one ChaCha20-Poly1305
// cipher keyed by an X25519 ECDH secret expanded with HKDF-SHA256, so both
// ends of a connection arrive at the same key independently.
//
// Keyring is safe for concurrent use.
type Keyring struct {
	ed25519Private ed25519.PrivateKey
	ed25519Public  ed25519.PublicKey
	x25519Private  []byte
	x25519Public   []byte

	// salt separates session keys between deployments. Both peers must
	// construct their keyrings with the same salt.
	salt []byte

	// sessions caches the cipher for each remote Ed25519 public key.
	sessions map[string]*Cipher
	mu       sync.RWMutex

	closed bool
}

// NewKeyring creates a keyring from the node's Ed25519 private key.
// The key is converted to X25519 form for session key exchange.
func NewKeyring(privateKey ed25519.PrivateKey, salt []byte) (*Keyring, error) {
	if err := ValidateEd25519PrivateKey(privateKey); err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	publicKey := privateKey.Public().(ed25519.PublicKey)

	x25519Priv, err := Ed25519PrivateToX25519(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to convert private key to X25519: %w", err)
	}

	x25519Pub, err := Ed25519PublicToX25519(publicKey)
	if err != nil {
		SecureZero(x25519Priv)
		return nil, fmt.Errorf("failed to convert public key to X25519: %w", err)
	}

	saltCopy := make([]byte, len(salt))
	copy(saltCopy, salt)

	return &Keyring{
		ed25519Private: privateKey,
		ed25519Public:  publicKey,
		x25519Private:  x25519Priv,
		x25519Public:   x25519Pub,
		salt:           saltCopy,
		sessions:       make(map[string]*Cipher),
	}, nil
}

// Ed25519PublicKey returns the node's Ed25519 public key.
func (k *Keyring) Ed25519PublicKey() ed25519.PublicKey {
	return k.ed25519Public
}

// X25519PublicKey returns a copy of the node's X25519 public key.
func (k *Keyring) X25519PublicKey() []byte {
	result := make([]byte, len(k.x25519Public))
	copy(result, k.x25519Public)
	return result
}

// SessionKey derives the session key shared with the holder of the given
// Ed25519 public key. The caller owns the returned slice and must zero it
// when done. The key is not cached; use SessionCipher for the cached path.
func (k *Keyring) SessionKey(remotePubKey ed25519.PublicKey) ([]byte, error) {
	if err := ValidateEd25519PublicKey(remotePubKey); err != nil {
		return nil, fmt.Errorf("invalid remote public key: %w", err)
	}

	remoteX25519, err := Ed25519PublicToX25519(remotePubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to convert remote public key: %w", err)
	}

	// Copy the private key under lock so Close cannot zero it mid-derivation.
	k.mu.RLock()
	if k.closed {
		k.mu.RUnlock()
		return nil, fmt.Errorf("keyring is closed")
	}
	privCopy := make([]byte, len(k.x25519Private))
	copy(privCopy, k.x25519Private)
	k.mu.RUnlock()

	defer SecureZero(privCopy)

	key, err := DeriveSessionKey(privCopy, remoteX25519, k.salt)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return key, nil
}

// SessionCipher returns the cipher for the session with the given remote
// Ed25519 public key, deriving and caching it on first use. The returned
// cipher is shared; callers must not Close it. Use DropSession instead.
func (k *Keyring) SessionCipher(remotePubKey ed25519.PublicKey) (*Cipher, error) {
	cacheKey := string(remotePubKey)

	k.mu.RLock()
	if k.closed {
		k.mu.RUnlock()
		return nil, fmt.Errorf("keyring is closed")
	}
	if c, ok := k.sessions[cacheKey]; ok {
		k.mu.RUnlock()
		return c, nil
	}
	k.mu.RUnlock()

	key, err := k.SessionKey(remotePubKey)
	if err != nil {
		return nil, err
	}
	defer SecureZero(key)

	c, err := NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cipher: %w", err)
	}

	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		c.Close()
		return nil, fmt.Errorf("keyring is closed")
	}
	// Another goroutine may have derived the same session concurrently.
	if existing, ok := k.sessions[cacheKey]; ok {
		k.mu.Unlock()
		c.Close()
		return existing, nil
	}
	k.sessions[cacheKey] = c
	k.mu.Unlock()

	return c, nil
}

// DropSession closes and removes the cached cipher for a remote peer.
// Call this when the peer disconnects.
func (k *Keyring) DropSession(remotePubKey ed25519.PublicKey) {
	cacheKey := string(remotePubKey)
	k.mu.Lock()
	if c, ok := k.sessions[cacheKey]; ok {
		c.Close()
		delete(k.sessions, cacheKey)
	}
	k.mu.Unlock()
}

// ClearSessions closes and removes all cached session ciphers.
func (k *Keyring) ClearSessions() {
	k.mu.Lock()
	for _, c := range k.sessions {
		c.Close()
	}
	k.sessions = make(map[string]*Cipher)
	k.mu.Unlock()
}

// Close zeros all private key material and closes cached session ciphers.
// The keyring must not be used after Close.
func (k *Keyring) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.closed = true

	for _, c := range k.sessions {
		c.Close()
	}
	k.sessions = make(map[string]*Cipher)

	// ed25519.PrivateKey is a byte slice, safe to zero directly.
	SecureZero(k.ed25519Private)
	SecureZero(k.x25519Private)

	// Public keys are not sensitive and stay readable.
}
