package crypto

// Provider defines the interface for cryptographic operations.
type Provider interface {
	// DeriveKey derives a record key from a passphrase and a per-record salt.
	DeriveKey(passphrase, salt []byte) ([]byte, error)

	// Encrypt seals plaintext with AES-256-GCM under a freshly drawn nonce.
	Encrypt(plaintext, key []byte) (ciphertext, nonce []byte, err error)

	// Decrypt opens ciphertext sealed by Encrypt.
	Decrypt(ciphertext, nonce, key []byte) ([]byte, error)

	// GenerateSalt returns SaltSize random bytes.
	GenerateSalt() ([]byte, error)
}
