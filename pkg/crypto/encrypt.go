// Package crypto seals small secrets at rest, such as the session cookie
// file, with a passphrase.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

const (
	// MagicBytes prefixes every sealed file.
	MagicBytes = "TGSL"

	// FormatVersion of the sealed layout.
	FormatVersion = 1

	// Argon2id parameters.
	Argon2Time    = 3
	Argon2Memory  = 64 * 1024 // KiB
	Argon2Threads = 4
	Argon2KeyLen  = 32 // AES-256

	SaltSize  = 16
	NonceSize = 12

	// HeaderSize is magic(4) + version(4) + salt + nonce.
	HeaderSize = 4 + 4 + SaltSize + NonceSize
)

var (
	ErrNotSealed          = errors.New("data is not sealed")
	ErrUnsupportedVersion = errors.New("unsupported sealed format version")
	ErrWrongPassphrase    = errors.New("unseal failed: wrong passphrase or corrupted data")
	ErrEmptyPassphrase    = errors.New("passphrase is empty")
)

// DeriveKey derives an AES-256 key from a passphrase using Argon2id.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, Argon2Time, Argon2Memory, Argon2Threads, Argon2KeyLen)
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext with AES-256-GCM under a key derived from
// passphrase. The header is authenticated as additional data.
func Seal(plaintext []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}

	header := make([]byte, HeaderSize)
	copy(header[0:4], MagicBytes)
	binary.BigEndian.PutUint32(header[4:8], FormatVersion)
	if _, err := io.ReadFull(rand.Reader, header[8:]); err != nil {
		return nil, fmt.Errorf("generate salt and nonce: %w", err)
	}
	salt := header[8 : 8+SaltSize]
	nonce := header[8+SaltSize:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(header, nonce, plaintext, header), nil
}

// Open reverses Seal.
func Open(data []byte, passphrase string) ([]byte, error) {
	if !IsSealed(data) || len(data) < HeaderSize {
		return nil, ErrNotSealed
	}
	if binary.BigEndian.Uint32(data[4:8]) != FormatVersion {
		return nil, ErrUnsupportedVersion
	}

	header := data[:HeaderSize]
	salt := header[8 : 8+SaltSize]
	nonce := header[8+SaltSize:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, data[HeaderSize:], header)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}

// IsSealed reports whether data starts with the sealed-file magic.
func IsSealed(data []byte) bool {
	return len(data) >= len(MagicBytes) && string(data[:len(MagicBytes)]) == MagicBytes
}

// SealFile encrypts srcPath into dstPath with owner-only permissions. The
// destination is replaced atomically.
func SealFile(srcPath, dstPath, passphrase string) error {
	plaintext, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	if IsSealed(plaintext) {
		return fmt.Errorf("%s is already sealed", srcPath)
	}

	sealed, err := Seal(plaintext, passphrase)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dstPath), ".seal-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("write sealed file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod sealed file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close sealed file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dstPath); err != nil {
		return fmt.Errorf("rename sealed file: %w", err)
	}
	return nil
}
