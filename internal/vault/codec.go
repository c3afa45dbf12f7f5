package vault

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/hengadev/errsx"
	"gopkg.in/yaml.v3"
)

// storedSource is the persisted form shared by JSON and YAML.
type storedSource struct {
	Kind       Kind   `json:"kind" yaml:"kind"`
	VarName    string `json:"var_name,omitempty" yaml:"var_name,omitempty"`
	Ciphertext string `json:"ciphertext,omitempty" yaml:"ciphertext,omitempty"`
	Nonce      string `json:"nonce,omitempty" yaml:"nonce,omitempty"`
	Salt       string `json:"salt,omitempty" yaml:"salt,omitempty"`
	Hint       string `json:"hint,omitempty" yaml:"hint,omitempty"`
	Value      string `json:"value,omitempty" yaml:"value,omitempty"`
}

func toStored(src Source) (storedSource, error) {
	switch s := src.(type) {
	case EnvironmentSource:
		if s.VarName == "" {
			return storedSource{}, fmt.Errorf("%w: environment source without variable name", ErrInvalidEncoding)
		}
		return storedSource{Kind: KindEnvironment, VarName: s.VarName}, nil
	case EncryptedSource:
		r := s.Record
		if len(r.nonce) == 0 {
			return storedSource{}, fmt.Errorf("%w: empty encrypted record", ErrInvalidEncoding)
		}
		return storedSource{
			Kind:       KindEncrypted,
			Ciphertext: base64.StdEncoding.EncodeToString(r.ciphertext),
			Nonce:      base64.StdEncoding.EncodeToString(r.nonce),
			Salt:       base64.StdEncoding.EncodeToString(r.salt),
			Hint:       r.hint,
		}, nil
	case PlainTextSource:
		return storedSource{}, ErrPlainTextWrite
	default:
		return storedSource{}, fmt.Errorf("%w: %T", ErrUnknownKind, src)
	}
}

func fromStored(st storedSource) (Source, error) {
	switch st.Kind {
	case KindEnvironment:
		if st.VarName == "" {
			return nil, fmt.Errorf("%w: environment source without var_name", ErrInvalidEncoding)
		}
		return EnvironmentSource{VarName: st.VarName}, nil
	case KindEncrypted:
		errs := make(errsx.Map)
		ciphertext := decodeField(&errs, "ciphertext", st.Ciphertext)
		nonce := decodeField(&errs, "nonce", st.Nonce)
		salt := decodeField(&errs, "salt", st.Salt)
		if !errs.IsEmpty() {
			return nil, fmt.Errorf("%w: %w", ErrInvalidEncoding, errs.AsError())
		}
		record, err := NewRecord(ciphertext, nonce, salt, st.Hint)
		if err != nil {
			return nil, err
		}
		return EncryptedSource{Record: record}, nil
	case KindPlainText:
		return PlainTextSource{value: st.Value}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, st.Kind)
	}
}

func decodeField(errs *errsx.Map, name, value string) []byte {
	if value == "" {
		errs.Set(name, fmt.Errorf("missing %s", name))
		return nil
	}
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		errs.Set(name, fmt.Errorf("decode %s: %w", name, err))
		return nil
	}
	return b
}

// MarshalSource encodes src as a JSON object with a "kind" discriminator.
// Plaintext sources are refused with ErrPlainTextWrite.
func MarshalSource(src Source) ([]byte, error) {
	st, err := toStored(src)
	if err != nil {
		return nil, err
	}
	return json.Marshal(st)
}

// UnmarshalSource decodes a JSON password source, including legacy
// plaintext entries.
func UnmarshalSource(data []byte) (Source, error) {
	var st storedSource
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}
	return fromStored(st)
}

// SourceField embeds a Source in JSON and YAML documents such as connection
// profiles. A nil Source encodes as null.
type SourceField struct {
	Source Source
}

// MarshalJSON implements json.Marshaler.
func (f SourceField) MarshalJSON() ([]byte, error) {
	if f.Source == nil {
		return []byte("null"), nil
	}
	return MarshalSource(f.Source)
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *SourceField) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.Source = nil
		return nil
	}
	src, err := UnmarshalSource(data)
	if err != nil {
		return err
	}
	f.Source = src
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (f SourceField) MarshalYAML() (interface{}, error) {
	if f.Source == nil {
		return nil, nil
	}
	return toStored(f.Source)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *SourceField) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		f.Source = nil
		return nil
	}
	var st storedSource
	if err := node.Decode(&st); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}
	src, err := fromStored(st)
	if err != nil {
		return err
	}
	f.Source = src
	return nil
}
