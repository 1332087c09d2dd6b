// Package crypto provides the cryptographic primitives used by ergors:
// Ed25519 to X25519 key conversion, ECDH session key derivation, and
// ChaCha20-Poly1305 authenticated encryption.
package crypto

import (
	"crypto/ed25519"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	// X25519KeySize is the size of X25519 public and private keys in bytes.
	X25519KeySize = 32
)

// Ed25519PrivateToX25519 converts an Ed25519 private key to an X25519
// private key so a node's signing identity can also be used for key
// exchange. Per RFC 8032 the Ed25519 seed (first 32 bytes) is hashed
// with SHA-512 and the first half is clamped for Curve25519.
func Ed25519PrivateToX25519(edPriv ed25519.PrivateKey) ([]byte, error) {
	if len(edPriv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid Ed25519 private key size: expected %d, got %d",
			ed25519.PrivateKeySize, len(edPriv))
	}

	seed := edPriv[:ed25519.SeedSize]

	h := sha512.Sum512(seed)
	defer SecureZero(h[:])

	x25519Priv := make([]byte, X25519KeySize)
	copy(x25519Priv, h[:32])
	clampX25519(x25519Priv)

	return x25519Priv, nil
}

// Ed25519PublicToX25519 converts an Ed25519 public key to an X25519 public
// key by mapping the Edwards curve point to its Montgomery u-coordinate.
func Ed25519PublicToX25519(edPub ed25519.PublicKey) ([]byte, error) {
	if len(edPub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid Ed25519 public key size: expected %d, got %d",
			ed25519.PublicKeySize, len(edPub))
	}

	edPoint, err := new(edwards25519.Point).SetBytes(edPub)
	if err != nil {
		return nil, fmt.Errorf("invalid Ed25519 public key: %w", err)
	}

	return edPoint.BytesMontgomery(), nil
}

// clampX25519 applies the standard X25519 clamping to a 32-byte scalar:
// clear the lowest 3 bits, clear the highest bit, set the second-highest.
func clampX25519(k []byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}

// ValidateEd25519PrivateKey checks if the provided key is a valid Ed25519 private key.
func ValidateEd25519PrivateKey(key ed25519.PrivateKey) error {
	if key == nil {
		return fmt.Errorf("private key is nil")
	}
	if len(key) != ed25519.PrivateKeySize {
		return fmt.Errorf("invalid Ed25519 private key size: expected %d, got %d",
			ed25519.PrivateKeySize, len(key))
	}
	return nil
}

// ValidateEd25519PublicKey checks if the provided key is a valid Ed25519
// public key, including that it decodes to a point on the curve.
func ValidateEd25519PublicKey(key ed25519.PublicKey) error {
	if key == nil {
		return fmt.Errorf("public key is nil")
	}
	if len(key) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid Ed25519 public key size: expected %d, got %d",
			ed25519.PublicKeySize, len(key))
	}
	if _, err := new(edwards25519.Point).SetBytes(key); err != nil {
		return fmt.Errorf("invalid Ed25519 public key: not a valid curve point")
	}
	return nil
}

// SecureZero overwrites the provided byte slice with zeros so key material
// does not linger in memory. Go's garbage collector gives no zeroing
// guarantee, so all private keys, shared secrets, and derived session keys
// must be zeroed explicitly once they are no longer needed.
func SecureZero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// SecureZeroMultiple zeros multiple byte slices.
func SecureZeroMultiple(slices ...[]byte) {
	for _, b := range slices {
		SecureZero(b)
	}
}
