package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"sync"
)

// encPrefix marks values produced by Encrypt so plain legacy values can coexist in the same column.
const encPrefix = "enc:v1:"

var (
	keyMu         sync.RWMutex
	encryptionKey []byte
)

// SetEncryptionKey derives the AES-256 key from the application secret.
func SetEncryptionKey(secret string) error {
	if strings.TrimSpace(secret) == "" {
		return errors.New("encryption secret cannot be empty")
	}
	sum := sha256.Sum256([]byte(secret))
	keyMu.Lock()
	encryptionKey = sum[:]
	keyMu.Unlock()
	return nil
}

func currentKey() []byte {
	keyMu.RLock()
	defer keyMu.RUnlock()
	return encryptionKey
}

// Encrypt seals plainText with AES-GCM. Empty input stays empty.
func Encrypt(plainText string) (string, error) {
	if plainText == "" {
		return "", nil
	}
	key := currentKey()
	if len(key) == 0 {
		return "", errors.New("encryption key not configured")
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plainText), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Values without the marker are returned as is.
func Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, encPrefix) {
		return value, nil
	}
	key := currentKey()
	if len(key) == 0 {
		return "", errors.New("encryption key not configured")
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encPrefix))
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether value carries the Encrypt marker.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encPrefix)
}

// Mask hides all but the last four characters of a credential.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
