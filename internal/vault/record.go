package vault

import (
	"bytes"
	"fmt"

	"github.com/TheMichaelB/credvault/internal/crypto"
)

// Record is an encrypted password: AES-GCM ciphertext with its tag, the
// nonce it was sealed under, the Argon2id salt for the key, and an optional
// unencrypted hint. A Record is immutable; changing a password means
// creating a new one.
type Record struct {
	ciphertext []byte
	nonce      []byte
	salt       []byte
	hint       string
}

// NewRecord validates and copies stored record fields. It is meant for
// decoders; new records come from CreateEncrypted.
func NewRecord(ciphertext, nonce, salt []byte, hint string) (Record, error) {
	if len(nonce) != crypto.NonceSize {
		return Record{}, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrInvalidEncoding, crypto.NonceSize, len(nonce))
	}
	if len(salt) != crypto.SaltSize {
		return Record{}, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrInvalidEncoding, crypto.SaltSize, len(salt))
	}
	if len(ciphertext) < crypto.TagSize {
		return Record{}, fmt.Errorf("%w: ciphertext shorter than authentication tag", ErrInvalidEncoding)
	}

	return Record{
		ciphertext: bytes.Clone(ciphertext),
		nonce:      bytes.Clone(nonce),
		salt:       bytes.Clone(salt),
		hint:       hint,
	}, nil
}

// Ciphertext returns a copy of the sealed bytes, tag included.
func (r Record) Ciphertext() []byte { return bytes.Clone(r.ciphertext) }

// Nonce returns a copy of the nonce.
func (r Record) Nonce() []byte { return bytes.Clone(r.nonce) }

// Salt returns a copy of the key derivation salt.
func (r Record) Salt() []byte { return bytes.Clone(r.salt) }

// Hint returns the advisory hint and whether one was set.
func (r Record) Hint() (string, bool) {
	return r.hint, r.hint != ""
}
