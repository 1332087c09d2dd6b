package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func TestCipher_EncryptDecrypt(t *testing.T) {
	c, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	defer c.Close()

	plaintext := []byte("tetrahedral ping payload")

	encrypted, err := c.Encrypt(plaintext, nil)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if len(encrypted) != NonceSize+len(plaintext)+TagSize {
		t.Errorf("encrypted size = %d, want %d", len(encrypted), NonceSize+len(plaintext)+TagSize)
	}

	decrypted, err := c.Decrypt(encrypted, nil)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("decrypted = %q, want %q", decrypted, plaintext)
	}
}

func TestCipher_EmptyPlaintext(t *testing.T) {
	c, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	defer c.Close()

	encrypted, err := c.Encrypt(nil, nil)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	decrypted, err := c.Decrypt(encrypted, nil)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if len(decrypted) != 0 {
		t.Errorf("decrypted length = %d, want 0", len(decrypted))
	}
}

func TestCipher_AdditionalData(t *testing.T) {
	c, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	defer c.Close()

	plaintext := []byte("state sync delta")
	channelTag := []byte{2}

	encrypted, err := c.Encrypt(plaintext, channelTag)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Matching additional data decrypts.
	decrypted, err := c.Decrypt(encrypted, channelTag)
	if err != nil {
		t.Fatalf("Decrypt with matching additional data failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("decrypted = %q, want %q", decrypted, plaintext)
	}

	// A different channel tag must fail authentication.
	if _, err := c.Decrypt(encrypted, []byte{3}); err == nil {
		t.Error("expected error when additional data differs")
	}
	if _, err := c.Decrypt(encrypted, nil); err == nil {
		t.Error("expected error when additional data is missing")
	}
}

func TestCipher_TamperedCiphertext(t *testing.T) {
	c, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	defer c.Close()

	encrypted, err := c.Encrypt([]byte("payload"), nil)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Flip one bit in the ciphertext body.
	encrypted[NonceSize] ^= 0x01

	if _, err := c.Decrypt(encrypted, nil); err == nil {
		t.Error("expected error for tampered ciphertext")
	}
}

func TestCipher_WrongKey(t *testing.T) {
	c1, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	defer c1.Close()

	c2, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	defer c2.Close()

	encrypted, err := c1.Encrypt([]byte("payload"), nil)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if _, err := c2.Decrypt(encrypted, nil); err == nil {
		t.Error("expected error when decrypting with a different key")
	}
}

func TestCipher_DecryptTooShort(t *testing.T) {
	c, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	defer c.Close()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: []byte{}},
		{name: "nonce only", data: make([]byte, NonceSize)},
		{name: "one byte short", data: make([]byte, NonceSize+TagSize-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Decrypt(tt.data, nil); err == nil {
				t.Error("expected error for short ciphertext")
			}
		})
	}
}

func TestCipher_EncryptWithNonce_Deterministic(t *testing.T) {
	key := testKey(t)
	c, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	defer c.Close()

	nonce := make([]byte, NonceSize)
	plaintext := []byte("deterministic")

	enc1, err := c.EncryptWithNonce(nonce, plaintext, nil)
	if err != nil {
		t.Fatalf("EncryptWithNonce failed: %v", err)
	}
	enc2, err := c.EncryptWithNonce(nonce, plaintext, nil)
	if err != nil {
		t.Fatalf("EncryptWithNonce failed: %v", err)
	}

	if !bytes.Equal(enc1, enc2) {
		t.Error("same nonce and plaintext should produce identical output")
	}

	if _, err := c.EncryptWithNonce(make([]byte, NonceSize-1), plaintext, nil); err == nil {
		t.Error("expected error for wrong nonce size")
	}
}

func TestCipher_EncryptInto_ReusesCapacity(t *testing.T) {
	c, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	defer c.Close()

	plaintext := []byte("fractal sync delta")
	scratch := make([]byte, 0, NonceSize+len(plaintext)+TagSize)

	sealed, err := c.EncryptInto(scratch, plaintext, nil)
	if err != nil {
		t.Fatalf("EncryptInto failed: %v", err)
	}
	if len(sealed) != NonceSize+len(plaintext)+TagSize {
		t.Errorf("sealed size = %d, want %d", len(sealed), NonceSize+len(plaintext)+TagSize)
	}
	if &sealed[0] != &scratch[:1][0] {
		t.Error("expected sealed frame to reuse scratch capacity")
	}

	decrypted, err := c.Decrypt(sealed, nil)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("decrypted = %q, want %q", decrypted, plaintext)
	}
}

func TestNewCipher_InvalidKeySize(t *testing.T) {
	tests := []struct {
		name string
		key  []byte
	}{
		{name: "nil key", key: nil},
		{name: "empty key", key: []byte{}},
		{name: "short key", key: make([]byte, 16)},
		{name: "long key", key: make([]byte, 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCipher(tt.key); err == nil {
				t.Error("expected error for invalid key size")
			}
		})
	}
}

func TestCipher_Close(t *testing.T) {
	c, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}

	if c.IsClosed() {
		t.Error("cipher should not be closed initially")
	}

	c.Close()
	c.Close() // Idempotent.

	if !c.IsClosed() {
		t.Error("cipher should report closed")
	}
}

func TestPackageEncryptDecrypt(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("sealed keystore body")
	ad := []byte("header")

	encrypted, err := Encrypt(key, plaintext, ad)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	decrypted, err := Decrypt(key, encrypted, ad)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("decrypted = %q, want %q", decrypted, plaintext)
	}

	if _, err := Decrypt(key, encrypted, []byte("other")); err == nil {
		t.Error("expected error for mismatched additional data")
	}
}
