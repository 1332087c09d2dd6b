// Package identity provides Ed25519 node identities for ergors clusters:
// key generation, namespace-separated signing, endpoint address
// derivation, and sealed private-key storage.
//
// The public key doubles as the node id (its lowercase hex encoding).
// The private key lives only inside PrivateKey and NodeIdentity and is
// serialized exclusively through the keystore.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"filippo.io/edwards25519"
)

const (
	// PublicKeySize is the size of a node public key in bytes.
	PublicKeySize = ed25519.PublicKeySize
	// PrivateKeySize is the size of a node private key in bytes.
	PrivateKeySize = ed25519.PrivateKeySize
	// SeedSize is the size of a deterministic key seed in bytes.
	SeedSize = ed25519.SeedSize
	// SignatureSize is the size of a node signature in bytes.
	SignatureSize = ed25519.SignatureSize
)

// PrivateKey is an Ed25519 signing key bound to a node identity.
// The zero value is unusable; obtain keys from GenerateKey, FromSeed,
// PrivateKeyFromBytes, or the keystore.
type PrivateKey struct {
	key ed25519.PrivateKey
}

// GenerateKey creates a new private key from the given entropy source.
// A nil rng falls back to crypto/rand.
func GenerateKey(rng io.Reader) (*PrivateKey, error) {
	if rng == nil {
		rng = rand.Reader
	}
	_, priv, err := ed25519.GenerateKey(rng)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &PrivateKey{key: priv}, nil
}

// FromSeed derives a private key deterministically from a 32-byte seed.
//
// Deterministic keys are predictable. Use only in tests and examples.
func FromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("invalid seed size: expected %d, got %d", SeedSize, len(seed))
	}
	return &PrivateKey{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// PrivateKeyFromBytes reconstructs a private key from its raw 64-byte
// form. The input is copied.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: expected %d, got %d", PrivateKeySize, len(b))
	}
	key := make(ed25519.PrivateKey, PrivateKeySize)
	copy(key, b)
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromHex reconstructs a private key from its hex encoding.
func PrivateKeyFromHex(s string) (*PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	return PrivateKeyFromBytes(b)
}

// Sign signs message bound to the given namespace.
//
// A nil namespace signs the bare message. A non-nil namespace,
// including the empty one, is length-prefixed into the signed payload,
// so signatures made under different namespaces, or under nil versus
// empty, never verify against each other.
func (k *PrivateKey) Sign(namespace, message []byte) []byte {
	return ed25519.Sign(k.key, signingPayload(namespace, message))
}

// Public returns the corresponding public key.
func (k *PrivateKey) Public() *PublicKey {
	pub := make(ed25519.PublicKey, PublicKeySize)
	copy(pub, k.key[PrivateKeySize-PublicKeySize:])
	return &PublicKey{key: pub}
}

// Raw returns a copy of the underlying Ed25519 private key. It exists
// for transport key derivation, session key exchange, and keystore
// sealing; never log the result or persist it outside the keystore.
func (k *PrivateKey) Raw() ed25519.PrivateKey {
	out := make(ed25519.PrivateKey, PrivateKeySize)
	copy(out, k.key)
	return out
}

// Equal reports whether both keys are the same key. The comparison is
// constant time.
func (k *PrivateKey) Equal(other *PrivateKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	return subtle.ConstantTimeCompare(k.key, other.key) == 1
}

// PublicKey is an Ed25519 verification key identifying a node.
type PublicKey struct {
	key ed25519.PublicKey
}

// PublicKeyFromBytes parses and validates a 32-byte public key. The
// bytes must decode to a canonical curve point.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	if len(b) != PublicKeySize {
		return nil, fmt.Errorf("invalid public key size: expected %d, got %d", PublicKeySize, len(b))
	}
	if _, err := new(edwards25519.Point).SetBytes(b); err != nil {
		return nil, fmt.Errorf("invalid public key: not a valid curve point")
	}
	key := make(ed25519.PublicKey, PublicKeySize)
	copy(key, b)
	return &PublicKey{key: key}, nil
}

// PublicKeyFromHex parses a public key from its 64-character hex form.
// This is the inverse of String and accepts node ids.
func PublicKeyFromHex(s string) (*PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid public key hex: %w", err)
	}
	return PublicKeyFromBytes(b)
}

// Verify reports whether sig is a valid signature over message bound to
// namespace. Namespace semantics match PrivateKey.Sign.
func (p *PublicKey) Verify(namespace, message, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(p.key, signingPayload(namespace, message), sig)
}

// Bytes returns a copy of the raw 32-byte public key.
func (p *PublicKey) Bytes() []byte {
	out := make([]byte, PublicKeySize)
	copy(out, p.key)
	return out
}

// String returns the lowercase hex encoding of the key. This string is
// the node id used throughout the network.
func (p *PublicKey) String() string {
	return hex.EncodeToString(p.key)
}

// Equal reports whether both keys are the same key.
func (p *PublicKey) Equal(other *PublicKey) bool {
	if p == nil || other == nil {
		return p == other
	}
	return bytes.Equal(p.key, other.key)
}

// signingPayload builds the byte string actually signed. A nil
// namespace yields the bare message; any non-nil namespace is
// uvarint-length-prefixed ahead of the message so distinct namespaces
// (and nil versus empty) occupy disjoint payload spaces.
func signingPayload(namespace, message []byte) []byte {
	if namespace == nil {
		return message
	}
	buf := make([]byte, 0, binary.MaxVarintLen64+len(namespace)+len(message))
	buf = binary.AppendUvarint(buf, uint64(len(namespace)))
	buf = append(buf, namespace...)
	buf = append(buf, message...)
	return buf
}
