package crypto_test

import (
	"crypto/rand"
	"testing"

	"github.com/TheMichaelB/credvault/internal/crypto"
)

func BenchmarkKeyDerivation(b *testing.B) {
	salt, err := crypto.GenerateSalt()
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := crypto.DeriveKey([]byte("password123"), salt); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecrypt(b *testing.B) {
	key := make([]byte, crypto.KeySize)
	if _, err := rand.Read(key); err != nil {
		b.Fatal(err)
	}

	plaintext := make([]byte, 64)
	if _, err := rand.Read(plaintext); err != nil {
		b.Fatal(err)
	}

	ciphertext, nonce, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.SetBytes(int64(len(plaintext)))

	for i := 0; i < b.N; i++ {
		if _, err := crypto.Decrypt(ciphertext, nonce, key); err != nil {
			b.Fatal(err)
		}
	}
}
