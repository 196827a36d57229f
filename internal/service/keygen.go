package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// secretPrefix marks keywarden secrets so they are recognizable in client
// configs and secret scanners. It carries no entropy.
const secretPrefix = "kw_"

// NewKeyID returns the public identifier for a new key. Key IDs are UUID v7,
// so they are fixed-length, URL-safe, and sort by creation time. They are not
// secret and may appear in logs and CLI output.
func NewKeyID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewSecret generates a new bearer secret: 32 bytes from crypto/rand, hex
// encoded. The secret is independent of the key ID and every other field.
func NewSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return secretPrefix + hex.EncodeToString(buf), nil
}

// DigestSecret returns the hex-encoded SHA-256 digest of a raw secret. The
// digest is the only representation of the secret ever stored or compared.
func DigestSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}
