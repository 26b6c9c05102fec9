// Package crypto provides authenticated at-rest encryption for strings
// persisted in the vector store.
//
// Tokens are XChaCha20-Poly1305 sealed with a key derived from the
// configured secret via HKDF-SHA256, encoded as unpadded base64url. The
// scheme protects stored documents and metadata from a reader of the raw
// store; it is not designed to resist an adversary who controls the
// process or the key.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// DecryptFailed is returned by Decrypt for malformed or cross-key tokens.
// Read paths must keep working through key rotation and data corruption,
// so decryption failure is a sentinel value, never an error.
const DecryptFailed = "[decryption failed]"

// insecureDevSecret keys the encryptor when no secret is configured.
// Development fallback only; construction logs a warning when it is used.
const insecureDevSecret = "inboxd-insecure-dev-key"

// hkdfInfo domain-separates the derived key from other uses of the secret.
var hkdfInfo = []byte("inboxd at-rest encryption v1")

var errTokenTooShort = errors.New("token shorter than nonce")

// Encryptor performs symmetric at-rest encryption of strings.
type Encryptor struct {
	aead   interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
	logger *zap.Logger
}

// New creates an Encryptor keyed by secret. An empty secret falls back to
// a fixed insecure development key and logs a visible warning; deployments
// must configure security.encryption_key.
func New(secret string, logger *zap.Logger) (*Encryptor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if secret == "" {
		logger.Warn("no encryption key configured, using insecure development key",
			zap.String("remedy", "set security.encryption_key"),
		)
		secret = insecureDevSecret
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, hkdfInfo)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	return &Encryptor{aead: aead, logger: logger}, nil
}

// Encrypt seals plaintext into an opaque token. Encrypting the empty
// string is a no-op returning "".
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt. An empty token returns "".
// Malformed, corrupted, or cross-key tokens return DecryptFailed and are
// logged; Decrypt never fails loudly.
func (e *Encryptor) Decrypt(token string) string {
	if token == "" {
		return ""
	}

	plaintext, err := e.decrypt(token)
	if err != nil {
		e.logger.Warn("decryption failed", zap.Error(err))
		return DecryptFailed
	}
	return plaintext
}

func (e *Encryptor) decrypt(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("decoding token: %w", err)
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return "", errTokenTooShort
	}

	nonce, ciphertext := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("opening ciphertext: %w", err)
	}
	return string(plaintext), nil
}
