package crypto_test

import (
	"fmt"

	"github.com/TheMichaelB/credvault/internal/crypto"
)

func ExampleDeriveKey() {
	salt, err := crypto.GenerateSalt()
	if err != nil {
		panic(err)
	}

	key, err := crypto.DeriveKey([]byte("mypassword"), salt)
	if err != nil {
		panic(err)
	}

	fmt.Printf("Key length: %d bytes\n", len(key))
	// Output: Key length: 32 bytes
}

func ExampleDecrypt() {
	// In practice, this key comes from DeriveKey
	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i % 256)
	}

	ciphertext, nonce, err := crypto.Encrypt([]byte("Hello, World!"), key)
	if err != nil {
		fmt.Printf("Encryption failed: %v\n", err)
		return
	}

	decrypted, err := crypto.Decrypt(ciphertext, nonce, key)
	if err != nil {
		fmt.Printf("Decryption failed: %v\n", err)
		return
	}

	fmt.Printf("Decrypted: %s\n", decrypted)
	// Output: Decrypted: Hello, World!
}
