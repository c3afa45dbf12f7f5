package crypto

import (
	"errors"
)

const (
	// Key sizes
	KeySize   = 32 // AES-256
	NonceSize = 12 // GCM standard
	TagSize   = 16 // GCM tag
	SaltSize  = 16

	// Argon2id parameters. They are not stored per record: changing any of
	// them makes every existing record undecryptable.
	ArgonTime    = 3
	ArgonMemory  = 64 * 1024 // KiB
	ArgonThreads = 4
)

// Errors
var (
	ErrInvalidKey       = errors.New("invalid key size")
	ErrInvalidSalt      = errors.New("invalid salt size")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// CryptoProvider handles all cryptographic operations.
// It holds no mutable state and is safe for concurrent use.
type CryptoProvider struct{}

// NewProvider creates a crypto provider.
func NewProvider() Provider {
	return &CryptoProvider{}
}

// DeriveKey derives a record key from a passphrase and salt.
func (p *CryptoProvider) DeriveKey(passphrase, salt []byte) ([]byte, error) {
	return DeriveKey(passphrase, salt)
}

// Encrypt encrypts plaintext using AES-GCM.
func (p *CryptoProvider) Encrypt(plaintext, key []byte) ([]byte, []byte, error) {
	return Encrypt(plaintext, key)
}

// Decrypt decrypts ciphertext using AES-GCM.
func (p *CryptoProvider) Decrypt(ciphertext, nonce, key []byte) ([]byte, error) {
	return Decrypt(ciphertext, nonce, key)
}

// GenerateSalt returns a fresh random salt.
func (p *CryptoProvider) GenerateSalt() ([]byte, error) {
	return GenerateSalt()
}
