// Package crypto implements the at-rest codec used by the encrypting
// sync backends: PBKDF2-derived AES-256-GCM over the exported JSON
// snapshot, with a fresh salt and nonce per call.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/heppoko-wizard/web-collections/internal/errs"
	"github.com/heppoko-wizard/web-collections/internal/models"
)

const (
	// SaltSize is the PBKDF2 salt size in bytes.
	SaltSize = 16
	// IVSize is the GCM nonce size in bytes.
	IVSize = 12
	// KeySize is the AES-256 key size in bytes.
	KeySize = 32
	// Iterations is the PBKDF2 iteration count.
	Iterations = 100000
)

// DeriveKey derives a 256-bit AES key from the password and salt using
// PBKDF2 with SHA-256.
func DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
}

// Encrypt encrypts plaintext with a key derived from password. Salt and
// nonce are freshly random on every call and returned base64-encoded
// alongside the ciphertext; the GCM auth tag is part of the ciphertext.
func Encrypt(plaintext, password string) (*models.EncryptedPayload, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errs.New("encrypt", fmt.Errorf("generate salt: %w", err))
	}
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, errs.New("encrypt", fmt.Errorf("generate iv: %w", err))
	}

	gcm, err := newGCM(DeriveKey(password, salt))
	if err != nil {
		return nil, errs.New("encrypt", err)
	}

	ciphertext := gcm.Seal(nil, iv, []byte(plaintext), nil)

	return &models.EncryptedPayload{
		Encrypted: base64.StdEncoding.EncodeToString(ciphertext),
		Salt:      base64.StdEncoding.EncodeToString(salt),
		IV:        base64.StdEncoding.EncodeToString(iv),
	}, nil
}

// Decrypt reverses Encrypt. A wrong password or tampered ciphertext
// surfaces as errs.ErrAuthentication; malformed base64 input as
// errs.ErrValidation.
func Decrypt(encryptedB64, saltB64, ivB64, password string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedB64)
	if err != nil {
		return "", errs.New("decrypt", fmt.Errorf("%w: bad ciphertext encoding: %v", errs.ErrValidation, err))
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return "", errs.New("decrypt", fmt.Errorf("%w: bad salt encoding: %v", errs.ErrValidation, err))
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return "", errs.New("decrypt", fmt.Errorf("%w: bad iv encoding: %v", errs.ErrValidation, err))
	}
	if len(iv) != IVSize {
		return "", errs.New("decrypt", fmt.Errorf("%w: iv must be %d bytes", errs.ErrValidation, IVSize))
	}

	gcm, err := newGCM(DeriveKey(password, salt))
	if err != nil {
		return "", errs.New("decrypt", err)
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", errs.New("decrypt", errs.ErrAuthentication)
	}
	return string(plaintext), nil
}

// DecryptPayload is a convenience wrapper over Decrypt for a full bundle.
func DecryptPayload(p *models.EncryptedPayload, password string) (string, error) {
	return Decrypt(p.Encrypted, p.Salt, p.IV, password)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}
