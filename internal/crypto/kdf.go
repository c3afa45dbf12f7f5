package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
	"golang.org/x/text/unicode/norm"
)

// DeriveKey stretches passphrase and salt into a KeySize key with Argon2id.
//
// The passphrase is NFKC-normalized first so that visually identical
// passphrases typed through different input methods derive the same key.
// Empty passphrases are accepted here; rejecting them is a caller policy.
func DeriveKey(passphrase, salt []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidSalt, SaltSize, len(salt))
	}

	normalized := norm.NFKC.Append(nil, passphrase...)
	defer memguard.WipeBytes(normalized)

	return argon2.IDKey(normalized, salt, ArgonTime, ArgonMemory, ArgonThreads, KeySize), nil
}

// GenerateSalt returns SaltSize bytes from the system CSPRNG.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}
