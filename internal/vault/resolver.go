package vault

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/TheMichaelB/credvault/internal/crypto"
	"github.com/TheMichaelB/credvault/internal/events"
	"github.com/TheMichaelB/credvault/internal/secure"
)

// Resolver turns password sources into plaintext and builds encrypted
// sources. It keeps no state between calls and is safe for concurrent use.
//
// Buffers passed in stay owned by the caller; buffers returned are owned by
// the caller and must be destroyed.
type Resolver struct {
	provider  crypto.Provider
	lookupEnv func(string) (string, bool)
	logger    *events.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithProvider replaces the crypto provider.
func WithProvider(p crypto.Provider) Option {
	return func(r *Resolver) { r.provider = p }
}

// WithLogger sets the logger. Secrets are never logged.
func WithLogger(l *events.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithEnvLookup replaces os.LookupEnv for environment sources.
func WithEnvLookup(fn func(string) (string, bool)) Option {
	return func(r *Resolver) { r.lookupEnv = fn }
}

// NewResolver creates a resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		provider:  crypto.NewProvider(),
		lookupEnv: os.LookupEnv,
		logger:    events.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithField("component", "vault_resolver")
	return r
}

// Resolve returns the plaintext password for src. key may be nil for
// sources that do not need one.
func (r *Resolver) Resolve(src Source, key *secure.Buffer) (*secure.Buffer, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrUnknownKind)
	}
	logger := r.logger.WithField("kind", string(src.Kind()))

	switch s := src.(type) {
	case EnvironmentSource:
		value, ok := r.lookupEnv(s.VarName)
		if !ok {
			logger.WithField("var", s.VarName).Warn("Password variable not set")
			return nil, &EnvVarNotFoundError{Name: s.VarName}
		}
		logger.WithField("var", s.VarName).Debug("Resolved password from environment")
		return secure.New(value), nil

	case EncryptedSource:
		if key.IsDestroyed() {
			return nil, ErrKeyRequired
		}
		plaintext, err := r.decrypt(s.Record, key.Bytes())
		if err != nil {
			logger.WithError(err).Debug("Failed to resolve encrypted password")
			return nil, err
		}
		logger.Debug("Resolved encrypted password")
		return plaintext, nil

	case PlainTextSource:
		logger.Warn("Resolved legacy plaintext password; migrate it to an encrypted source")
		return secure.New(s.value), nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, src)
	}
}

func (r *Resolver) decrypt(rec Record, passphrase []byte) (*secure.Buffer, error) {
	key, err := r.provider.DeriveKey(passphrase, rec.salt)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer secure.Wipe(key)

	plaintext, err := r.provider.Decrypt(rec.ciphertext, rec.nonce, key)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return nil, ErrDecryptionFailed
		}
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	if !utf8.Valid(plaintext) {
		secure.Wipe(plaintext)
		return nil, ErrInvalidUtf8
	}
	return secure.FromBytes(plaintext), nil
}

// CreateEncrypted encrypts plaintext under a key derived from passphrase and
// a fresh salt. hint is stored unencrypted; pass "" for none.
func (r *Resolver) CreateEncrypted(plaintext, passphrase *secure.Buffer, hint string) (EncryptedSource, error) {
	if passphrase.IsDestroyed() {
		return EncryptedSource{}, ErrKeyRequired
	}
	if passphrase.Len() == 0 {
		return EncryptedSource{}, ErrEmptyPassphrase
	}

	salt, err := r.provider.GenerateSalt()
	if err != nil {
		return EncryptedSource{}, err
	}

	key, err := r.provider.DeriveKey(passphrase.Bytes(), salt)
	if err != nil {
		return EncryptedSource{}, fmt.Errorf("derive key: %w", err)
	}
	defer secure.Wipe(key)

	ciphertext, nonce, err := r.provider.Encrypt(plaintext.Bytes(), key)
	if err != nil {
		return EncryptedSource{}, fmt.Errorf("encrypt: %w", err)
	}

	r.logger.WithField("has_hint", hint != "").Debug("Created encrypted password")

	return EncryptedSource{Record: Record{
		ciphertext: ciphertext,
		nonce:      nonce,
		salt:       salt,
		hint:       hint,
	}}, nil
}

// MigrateToEncrypted is CreateEncrypted under a name that marks call sites
// converting a legacy plaintext password.
func (r *Resolver) MigrateToEncrypted(plaintext, passphrase *secure.Buffer, hint string) (EncryptedSource, error) {
	src, err := r.CreateEncrypted(plaintext, passphrase, hint)
	if err != nil {
		return EncryptedSource{}, err
	}
	r.logger.Info("Migrated plaintext password to encrypted source")
	return src, nil
}

// Migrate converts a PlainTextSource into an EncryptedSource. Other sources
// are returned unchanged with migrated set to false.
func (r *Resolver) Migrate(src Source, passphrase *secure.Buffer, hint string) (result Source, migrated bool, err error) {
	plain, ok := src.(PlainTextSource)
	if !ok {
		return src, false, nil
	}

	value := secure.New(plain.value)
	defer value.Destroy()

	enc, err := r.MigrateToEncrypted(value, passphrase, hint)
	if err != nil {
		return src, false, err
	}
	return enc, true, nil
}

var defaultResolver = NewResolver()

// ResolvePassword resolves src with the default resolver.
func ResolvePassword(src Source, key *secure.Buffer) (*secure.Buffer, error) {
	return defaultResolver.Resolve(src, key)
}

// CreateEncrypted encrypts plaintext with the default resolver.
func CreateEncrypted(plaintext, passphrase *secure.Buffer, hint string) (EncryptedSource, error) {
	return defaultResolver.CreateEncrypted(plaintext, passphrase, hint)
}

// MigrateToEncrypted encrypts a former plaintext password with the default resolver.
func MigrateToEncrypted(plaintext, passphrase *secure.Buffer, hint string) (EncryptedSource, error) {
	return defaultResolver.MigrateToEncrypted(plaintext, passphrase, hint)
}
