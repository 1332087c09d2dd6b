package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// SessionKeySize is the size of a derived session key in bytes.
	SessionKeySize = 32

	// hkdfInfo is the context string used in HKDF key derivation.
	// Changing it invalidates all session keys between nodes.
	hkdfInfo = "ergors-v1-session-key"
)

// ComputeX25519SharedSecret performs X25519 ECDH to compute a raw shared
// secret. The result must not be used directly as an encryption key; use
// DeriveSessionKey instead.
func ComputeX25519SharedSecret(localPrivate, remotePublic []byte) ([]byte, error) {
	if len(localPrivate) != X25519KeySize {
		return nil, fmt.Errorf("invalid X25519 private key size: expected %d, got %d",
			X25519KeySize, len(localPrivate))
	}
	if len(remotePublic) != X25519KeySize {
		return nil, fmt.Errorf("invalid X25519 public key size: expected %d, got %d",
			X25519KeySize, len(remotePublic))
	}

	sharedSecret, err := curve25519.X25519(localPrivate, remotePublic)
	if err != nil {
		return nil, fmt.Errorf("X25519 computation failed: %w", err)
	}

	// A malicious low-order public key forces an all-zero output.
	allZeros := true
	for _, b := range sharedSecret {
		if b != 0 {
			allZeros = false
			break
		}
	}
	if allZeros {
		return nil, fmt.Errorf("X25519 produced all-zero output (low-order point attack)")
	}

	return sharedSecret, nil
}

// DeriveSessionKey derives a symmetric session key from X25519 private and
// public keys. It performs ECDH to get a shared secret, then expands it with
// HKDF-SHA256. The salt provides domain separation between deployments; both
// peers must use the same salt. The raw ECDH output is zeroed before return.
func DeriveSessionKey(localPrivate, remotePublic, salt []byte) ([]byte, error) {
	sharedSecret, err := ComputeX25519SharedSecret(localPrivate, remotePublic)
	if err != nil {
		return nil, err
	}
	defer SecureZero(sharedSecret)

	return deriveKeyFromSecret(sharedSecret, salt)
}

// deriveKeyFromSecret expands a shared secret into a session key with
// HKDF-SHA256. The info string binds the key to this protocol version.
func deriveKeyFromSecret(sharedSecret, salt []byte) ([]byte, error) {
	hkdfReader := hkdf.New(sha256.New, sharedSecret, salt, []byte(hkdfInfo))

	key := make([]byte, SessionKeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}

	return key, nil
}

// X25519PublicFromPrivate computes the X25519 public key from a private key.
func X25519PublicFromPrivate(privateKey []byte) ([]byte, error) {
	if len(privateKey) != X25519KeySize {
		return nil, fmt.Errorf("invalid X25519 private key size: expected %d, got %d",
			X25519KeySize, len(privateKey))
	}

	publicKey, err := curve25519.X25519(privateKey, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("X25519 public key computation failed: %w", err)
	}

	return publicKey, nil
}
