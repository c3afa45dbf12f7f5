package vault

import (
	"errors"
	"fmt"

	"github.com/TheMichaelB/credvault/internal/crypto"
)

// Sentinel errors
var (
	ErrEnvVarNotFound = errors.New("environment variable not found")
	ErrKeyRequired    = errors.New("encryption key required")
	// ErrDecryptionFailed covers a wrong key and tampered data alike.
	ErrDecryptionFailed = crypto.ErrDecryptionFailed
	ErrInvalidEncoding  = errors.New("invalid encoding")
	ErrInvalidUtf8      = errors.New("decrypted password is not valid UTF-8")
	ErrEmptyPassphrase  = errors.New("encryption key must not be empty")
	ErrPlainTextWrite   = errors.New("plaintext password sources cannot be written")
	ErrUnknownKind      = errors.New("unknown password source kind")
)

// EnvVarNotFoundError names the missing variable.
type EnvVarNotFoundError struct {
	Name string
}

func (e *EnvVarNotFoundError) Error() string {
	return fmt.Sprintf("environment variable %q not set", e.Name)
}

func (e *EnvVarNotFoundError) Unwrap() error {
	return ErrEnvVarNotFound
}

// IsUserRecoverable reports whether asking the user again (another key, a
// fixed environment) can make the same call succeed.
func IsUserRecoverable(err error) bool {
	return errors.Is(err, ErrKeyRequired) ||
		errors.Is(err, ErrDecryptionFailed) ||
		errors.Is(err, ErrEmptyPassphrase) ||
		errors.Is(err, ErrEnvVarNotFound)
}
