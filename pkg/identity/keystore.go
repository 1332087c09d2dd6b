package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"

	"github.com/permissionlessweb/ergors/pkg/crypto"
)

// Keystore file layout: 4-byte magic, 1-byte version, 16-byte salt,
// then the sealed private key ([12-byte nonce][ciphertext][16-byte tag]).
const (
	keystoreMagic   = "ERGK"
	keystoreVersion = 1
	keystoreSalt    = 16

	// keystoreInfo is the HKDF info string binding derived keys to this
	// file format.
	keystoreInfo = "ergors/keystore/v1"
)

// ErrKeystoreSecret indicates the sealing secret does not open the
// keystore file (wrong secret or corrupted file body).
var ErrKeystoreSecret = errors.New("identity: keystore secret does not open file")

// SaveKey seals priv under secret and writes it to path atomically
// with 0600 permissions. The secret must be non-empty and should carry
// real entropy; the same secret opens the file again with LoadKey.
//
// This is the only sanctioned way to persist a private key.
func SaveKey(path string, priv *PrivateKey, secret []byte) error {
	if priv == nil {
		return ErrPrivateKeyNotFound
	}
	if len(secret) == 0 {
		return errors.New("identity: empty keystore secret")
	}

	salt := make([]byte, keystoreSalt)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate keystore salt: %w", err)
	}

	sealKey, err := deriveKeystoreKey(secret, salt)
	if err != nil {
		return err
	}
	defer crypto.SecureZero(sealKey)

	raw := priv.Raw()
	defer crypto.SecureZero(raw)

	header := keystoreHeader(salt)
	sealed, err := crypto.Encrypt(sealKey, raw, header)
	if err != nil {
		return fmt.Errorf("seal private key: %w", err)
	}

	return writeFileAtomic(path, append(header, sealed...), 0o600)
}

// LoadKey opens the keystore file at path with secret and returns the
// private key it holds. A wrong secret or tampered body yields
// ErrKeystoreSecret; a malformed header yields a format error.
func LoadKey(path string, secret []byte) (*PrivateKey, error) {
	if len(secret) == 0 {
		return nil, errors.New("identity: empty keystore secret")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}

	headerLen := len(keystoreMagic) + 1 + keystoreSalt
	if len(data) < headerLen+crypto.NonceSize+crypto.TagSize {
		return nil, errors.New("identity: keystore file truncated")
	}
	if string(data[:len(keystoreMagic)]) != keystoreMagic {
		return nil, errors.New("identity: not a keystore file")
	}
	if data[len(keystoreMagic)] != keystoreVersion {
		return nil, fmt.Errorf("identity: unsupported keystore version %d", data[len(keystoreMagic)])
	}

	salt := data[len(keystoreMagic)+1 : headerLen]
	sealKey, err := deriveKeystoreKey(secret, salt)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureZero(sealKey)

	raw, err := crypto.Decrypt(sealKey, data[headerLen:], data[:headerLen])
	if err != nil {
		return nil, ErrKeystoreSecret
	}
	defer crypto.SecureZero(raw)

	return PrivateKeyFromBytes(raw)
}

func keystoreHeader(salt []byte) []byte {
	header := make([]byte, 0, len(keystoreMagic)+1+keystoreSalt)
	header = append(header, keystoreMagic...)
	header = append(header, keystoreVersion)
	header = append(header, salt...)
	return header
}

func deriveKeystoreKey(secret, salt []byte) ([]byte, error) {
	key := make([]byte, crypto.KeySize)
	kdf := hkdf.New(sha256.New, secret, salt, []byte(keystoreInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive keystore key: %w", err)
	}
	return key, nil
}

// writeFileAtomic writes data to a temp file in the target directory,
// syncs it, then renames over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp keystore: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp keystore: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp keystore: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp keystore: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp keystore: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace keystore: %w", err)
	}
	return nil
}
