// Package secrets seals mail credentials before they reach the database.
//
// Sealed values are stored as "age:" followed by base64 age ciphertext
// addressed to the configured X25519 identity. Values without the prefix
// are treated as plaintext, so rows written before a key was configured
// stay readable.
package secrets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

const sealedPrefix = "age:"

// Sealer protects secrets at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(stored string) (string, error)
}

// PlainSealer stores secrets unchanged. Used when no identity is configured.
type PlainSealer struct{}

// Seal returns plaintext unchanged.
func (PlainSealer) Seal(plaintext string) (string, error) { return plaintext, nil }

// Open returns stored unchanged, refusing sealed values it cannot decrypt.
func (PlainSealer) Open(stored string) (string, error) {
	if IsSealed(stored) {
		return "", errors.New("sealed secret found but no age identity is configured")
	}
	return stored, nil
}

// AgeSealer encrypts to its own X25519 recipient.
type AgeSealer struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewAgeSealer parses an AGE-SECRET-KEY-1... identity.
func NewAgeSealer(identity string) (*AgeSealer, error) {
	id, err := age.ParseX25519Identity(strings.TrimSpace(identity))
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}
	return &AgeSealer{identity: id, recipient: id.Recipient()}, nil
}

// GenerateIdentity returns a fresh identity string for SECRETS_AGE_IDENTITY.
func GenerateIdentity() (string, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generating age identity: %w", err)
	}
	return id.String(), nil
}

// Seal encrypts plaintext. Empty input stays empty.
func (s *AgeSealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.recipient)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return sealedPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Open decrypts a sealed value and passes plaintext values through.
func (s *AgeSealer) Open(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decoding sealed secret: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), s.identity)
	if err != nil {
		return "", fmt.Errorf("decrypting sealed secret: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading sealed secret: %w", err)
	}
	return string(plaintext), nil
}

// IsSealed reports whether stored carries the sealed prefix.
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, sealedPrefix)
}
