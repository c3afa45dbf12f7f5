// Package secure holds secret values in memory that is wiped on release.
//
// A Buffer protects only the bytes it owns. Copies made before wrapping (a
// string literal, a slice read from a prompt) are outside its reach, so wrap
// secrets as soon as they exist and prefer FromBytes, which wipes its input.
package secure

import (
	"github.com/awnumar/memguard"
)

const redacted = "[REDACTED]"

// Buffer holds one secret in a guarded, locked allocation.
type Buffer struct {
	lb        *memguard.LockedBuffer
	destroyed bool
}

// FromBytes moves b into a new Buffer. b is zeroed before returning.
func FromBytes(b []byte) *Buffer {
	return &Buffer{lb: memguard.NewBufferFromBytes(b)}
}

// New copies s into a new Buffer. The string itself cannot be wiped.
func New(s string) *Buffer {
	return FromBytes([]byte(s))
}

// Bytes returns the secret. The slice aliases guarded memory and must not be
// retained past Destroy.
func (b *Buffer) Bytes() []byte {
	if b.IsDestroyed() {
		return nil
	}
	return b.lb.Bytes()
}

// Reveal returns the secret as a string view over guarded memory. The string
// is only valid until Destroy.
func (b *Buffer) Reveal() string {
	if b.IsDestroyed() {
		return ""
	}
	return b.lb.String()
}

// Len returns the secret length in bytes.
func (b *Buffer) Len() int {
	if b.IsDestroyed() {
		return 0
	}
	return b.lb.Size()
}

// Equal reports whether the buffer holds exactly s, in constant time.
func (b *Buffer) Equal(s []byte) bool {
	if b.IsDestroyed() {
		return false
	}
	return b.lb.EqualTo(s)
}

// Destroy zeroes and releases the memory. Safe to call more than once and on
// a nil Buffer.
func (b *Buffer) Destroy() {
	if b == nil || b.destroyed {
		return
	}
	b.lb.Destroy()
	b.destroyed = true
}

// IsDestroyed reports whether Destroy has run.
func (b *Buffer) IsDestroyed() bool {
	return b == nil || b.destroyed
}

// String keeps secrets out of logs and fmt output.
func (b *Buffer) String() string {
	return redacted
}

// GoString keeps secrets out of %#v output.
func (b *Buffer) GoString() string {
	return redacted
}

// Use runs fn with the secret and destroys b on every exit path, including
// an error return or a panic inside fn.
func Use(b *Buffer, fn func(secret []byte) error) error {
	defer b.Destroy()
	return fn(b.Bytes())
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	memguard.WipeBytes(b)
}
