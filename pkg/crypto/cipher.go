package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// NonceSize is the size of the nonce used with ChaCha20-Poly1305.
	NonceSize = chacha20poly1305.NonceSize // 12 bytes

	// TagSize is the size of the authentication tag.
	TagSize = chacha20poly1305.Overhead // 16 bytes

	// KeySize is the required key size for ChaCha20-Poly1305.
	KeySize = chacha20poly1305.KeySize // 32 bytes
)

// Cipher provides ChaCha20-Poly1305 authenticated encryption for a single
// session key. It is safe for concurrent use.
//
// Call Close when the session ends to zero the key copy held here. The
// underlying chacha20poly1305 implementation keeps its own copy that cannot
// be zeroed from outside the package.
type Cipher struct {
	aead   cipher
	key    []byte // our copy, zeroed on Close
	closed bool
}

// cipher matches chacha20poly1305.AEAD, kept as an interface for testing.
type cipher interface {
	NonceSize() int
	Overhead() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// NewCipher creates a ChaCha20-Poly1305 cipher with the given 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: expected %d bytes, got %d", KeySize, len(key))
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)

	return &Cipher{aead: aead, key: keyCopy}, nil
}

// Encrypt encrypts the plaintext with a fresh random nonce.
// The returned data format is: [12-byte nonce][ciphertext][16-byte tag]
//
// additionalData is authenticated but not encrypted; the receiver must
// supply the same value to Decrypt. Pass nil when not needed.
func (c *Cipher) Encrypt(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return c.EncryptWithNonce(nonce, plaintext, additionalData)
}

// EncryptWithNonce encrypts the plaintext using the provided nonce.
// Never reuse a nonce with the same key; this exists for deterministic tests.
//
// The returned data format is: [12-byte nonce][ciphertext][16-byte tag]
func (c *Cipher) EncryptWithNonce(nonce, plaintext, additionalData []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("invalid nonce size: expected %d bytes, got %d", NonceSize, len(nonce))
	}

	result := make([]byte, NonceSize+len(plaintext)+TagSize)
	copy(result[:NonceSize], nonce)

	// Seal in place after the nonce prefix.
	c.aead.Seal(result[NonceSize:NonceSize], nonce, plaintext, additionalData)

	return result, nil
}

// EncryptInto seals the plaintext with a fresh random nonce, appending the
// result to dst, and returns the extended slice. The appended bytes use the
// same layout as Encrypt: [12-byte nonce][ciphertext][16-byte tag].
//
// dst may be a reused scratch buffer; when its capacity is large enough no
// allocation happens.
func (c *Cipher) EncryptInto(dst, plaintext, additionalData []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	dst = append(dst, nonce[:]...)
	return c.aead.Seal(dst, nonce[:], plaintext, additionalData), nil
}

// Decrypt decrypts data produced by Encrypt, extracting the nonce from the
// prefix and verifying the authentication tag. additionalData must match
// what was provided during encryption.
func (c *Cipher) Decrypt(data, additionalData []byte) ([]byte, error) {
	if len(data) < NonceSize+TagSize {
		return nil, fmt.Errorf("ciphertext too short: minimum %d bytes, got %d",
			NonceSize+TagSize, len(data))
	}

	nonce := data[:NonceSize]
	ciphertext := data[NonceSize:]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: authentication tag mismatch or corrupted data")
	}

	return plaintext, nil
}

// Close zeros the key copy held by this cipher. The cipher must not be
// used after Close.
func (c *Cipher) Close() {
	if c.closed {
		return
	}
	c.closed = true
	SecureZero(c.key)
	c.key = nil
	c.aead = nil
}

// IsClosed returns true if the cipher has been closed.
func (c *Cipher) IsClosed() bool {
	return c.closed
}

// Encrypt is a convenience function that encrypts plaintext with the given
// key using a one-off cipher. For repeated use, create a Cipher instead.
func Encrypt(key, plaintext, additionalData []byte) ([]byte, error) {
	c, err := NewCipher(key)
	if err != nil {
		return nil, err
	}
	return c.Encrypt(plaintext, additionalData)
}

// Decrypt is a convenience function that decrypts data with the given key
// using a one-off cipher. For repeated use, create a Cipher instead.
func Decrypt(key, data, additionalData []byte) ([]byte, error) {
	c, err := NewCipher(key)
	if err != nil {
		return nil, err
	}
	return c.Decrypt(data, additionalData)
}
