package vault

// Kind discriminates password sources in their stored form.
type Kind string

const (
	KindEnvironment Kind = "environment"
	KindEncrypted   Kind = "encrypted"
	KindPlainText   Kind = "plaintext"
)

// Source is where a password comes from. The set of implementations is
// closed: EnvironmentSource, EncryptedSource and PlainTextSource.
type Source interface {
	Kind() Kind
	isSource()
}

// EnvironmentSource reads the password from a process environment variable.
type EnvironmentSource struct {
	VarName string
}

func (EnvironmentSource) Kind() Kind { return KindEnvironment }
func (EnvironmentSource) isSource()  {}

// EncryptedSource holds the password only as an encrypted Record.
type EncryptedSource struct {
	Record Record
}

func (EncryptedSource) Kind() Kind { return KindEncrypted }
func (EncryptedSource) isSource()  {}

// PlainTextSource is a password stored in clear by an older release. It can
// only be obtained by decoding stored data and cannot be encoded again;
// migrate it with Migrate.
type PlainTextSource struct {
	value string
}

func (PlainTextSource) Kind() Kind { return KindPlainText }
func (PlainTextSource) isSource()  {}

// RequiresEncryptionKey reports whether resolving src needs a key.
func RequiresEncryptionKey(src Source) bool {
	_, ok := src.(EncryptedSource)
	return ok
}

// GetHint returns the hint of an encrypted source. Other sources never have one.
func GetHint(src Source) (string, bool) {
	enc, ok := src.(EncryptedSource)
	if !ok {
		return "", false
	}
	return enc.Record.Hint()
}
