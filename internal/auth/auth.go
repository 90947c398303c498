// Package auth checks administrator credentials for privileged license
// operations.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUnauthorized is returned for a missing or wrong credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrLockedOut is returned while a client is blocked after repeated
	// failures.
	ErrLockedOut = errors.New("too many failed attempts")
)

// AdminVerifier decides whether a presented credential grants admin rights.
type AdminVerifier interface {
	Verify(ctx context.Context, credential string) error
}

// SharedSecretVerifier compares the credential with a configured secret in
// constant time.
type SharedSecretVerifier struct {
	secret []byte
}

func NewSharedSecretVerifier(secret string) *SharedSecretVerifier {
	return &SharedSecretVerifier{secret: []byte(secret)}
}

func (v *SharedSecretVerifier) Verify(_ context.Context, credential string) error {
	if len(v.secret) == 0 || credential == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(v.secret, []byte(credential)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// BcryptVerifier checks the credential against a bcrypt hash, so the plain
// admin key never has to be stored in configuration.
type BcryptVerifier struct {
	hash []byte
}

// NewBcryptVerifier validates hash and returns a verifier for it.
func NewBcryptVerifier(hash string) (*BcryptVerifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid admin key hash: %w", err)
	}
	return &BcryptVerifier{hash: []byte(hash)}, nil
}

func (v *BcryptVerifier) Verify(_ context.Context, credential string) error {
	if credential == "" {
		return ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(credential)); err != nil {
		return ErrUnauthorized
	}
	return nil
}

// HashSecret returns the bcrypt hash of secret for use as a configured admin
// key hash.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(h), nil
}

// denyAll rejects every credential. It backs deployments with no admin key
// configured.
type denyAll struct{}

func (denyAll) Verify(context.Context, string) error { return ErrUnauthorized }

// NewVerifier picks the bcrypt verifier when hash is set, the shared secret
// verifier when secret is set, and otherwise a verifier that rejects
// everything.
func NewVerifier(secret, hash string) (AdminVerifier, error) {
	switch {
	case hash != "":
		return NewBcryptVerifier(hash)
	case secret != "":
		return NewSharedSecretVerifier(secret), nil
	default:
		return denyAll{}, nil
	}
}
