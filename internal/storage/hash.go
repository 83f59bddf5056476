package storage

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost defines the computational cost for bcrypt hashing.
	// Cost 10 = ~60ms per hash, chosen because override application is an
	// infrequent admin operation, not a request-path check.
	bcryptCost  = 10
	bcryptLimit = 72
)

// ErrAuthorEmpty is returned when an empty override author token is hashed
// or compared.
var ErrAuthorEmpty = errors.New("override author cannot be empty")

// HashOverrideAuthor generates a bcrypt hash of a manual FRN override's
// author token for frn_manual_overrides.applied_by_hash. The plaintext
// author identity is never persisted — only the hash — so the audit trail
// can prove who applied an override without the products database becoming
// a second copy of the org's identity store.
func HashOverrideAuthor(author string) (string, error) {
	if author == "" {
		return "", ErrAuthorEmpty
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(author), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash override author: %w", err)
	}

	return string(hash), nil
}

// CompareOverrideAuthorHash performs constant-time comparison of an author
// token against its stored bcrypt hash, used when auditing who applied a
// given override.
func CompareOverrideAuthorHash(hash, author string) bool {
	if hash == "" || author == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(author)) == nil
}

// bcryptInput pre-hashes with SHA-256 when the input exceeds bcrypt's
// 72-byte limit, keeping behavior consistent for long author tokens
// (e.g. an email plus a free-text justification).
func bcryptInput(s string) []byte {
	if len(s) > bcryptLimit {
		sum := sha256.Sum256([]byte(s))
		return sum[:]
	}

	return []byte(s)
}
