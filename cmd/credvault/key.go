package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/TheMichaelB/credvault/internal/secure"
	"github.com/TheMichaelB/credvault/internal/vault"
)

// maxKeyAttempts bounds re-prompting after a wrong key.
const maxKeyAttempts = 3

func canPrompt() bool {
	return cfg.Vault.PromptForKey && term.IsTerminal(int(syscall.Stdin))
}

// readKey returns the master key from the configured environment variable,
// falling back to a prompt. With confirm set a prompted key is asked twice.
func readKey(confirm bool) (key *secure.Buffer, prompted bool, err error) {
	if cfg.Vault.KeyEnv != "" {
		if v, ok := os.LookupEnv(cfg.Vault.KeyEnv); ok && v != "" {
			return secure.New(v), false, nil
		}
	}

	if !canPrompt() {
		return nil, false, fmt.Errorf("%w: set %s", vault.ErrKeyRequired, cfg.Vault.KeyEnv)
	}

	key, err = promptSecret("Encryption key: ")
	if err != nil {
		return nil, true, fmt.Errorf("read key: %w", err)
	}
	if !confirm {
		return key, true, nil
	}

	again, err := promptSecret("Confirm encryption key: ")
	if err != nil {
		key.Destroy()
		return nil, true, fmt.Errorf("read key: %w", err)
	}
	defer again.Destroy()

	if !key.Equal(again.Bytes()) {
		key.Destroy()
		return nil, true, errors.New("encryption keys do not match")
	}
	return key, true, nil
}

// withKey runs fn with a key when src needs one, re-prompting on a wrong key
// while the user is at a terminal.
func withKey(src vault.Source, fn func(key *secure.Buffer) error) error {
	if !vault.RequiresEncryptionKey(src) {
		return fn(nil)
	}

	if hint, ok := vault.GetHint(src); ok && canPrompt() && !jsonOutput {
		printInfo("Key hint: %s", hint)
	}

	for attempt := 1; ; attempt++ {
		key, prompted, err := readKey(false)
		if err != nil {
			return err
		}

		err = fn(key)
		key.Destroy()

		if err == nil || !prompted || !vault.IsUserRecoverable(err) || attempt == maxKeyAttempts {
			return err
		}
		printWarning("%v, try again", err)
	}
}

func promptSecret(prompt string) (*secure.Buffer, error) {
	fmt.Fprint(os.Stderr, prompt)

	// Read without echo
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return nil, err
	}

	return secure.FromBytes(b), nil
}

// readSecretFrom reads a whole stream as one secret, dropping the trailing
// line break.
func readSecretFrom(r io.Reader) (*secure.Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		secure.Wipe(data)
		return nil, err
	}

	n := len(data)
	for n > 0 && (data[n-1] == '\n' || data[n-1] == '\r') {
		n--
	}

	buf := secure.FromBytes(data[:n])
	secure.Wipe(data)
	return buf, nil
}
