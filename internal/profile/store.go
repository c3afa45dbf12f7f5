// Package profile persists database connection profiles, including where
// each profile's password comes from.
package profile

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/TheMichaelB/credvault/internal/config"
	"github.com/TheMichaelB/credvault/internal/events"
	"github.com/TheMichaelB/credvault/internal/vault"
)

// Driver names a database engine.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
	DriverSQLite   Driver = "sqlite"
)

// Profile describes one database connection.
type Profile struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Driver   Driver `json:"driver" yaml:"driver"`
	Host     string `json:"host,omitempty" yaml:"host,omitempty"` // file path for sqlite
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
	SSLMode  string `json:"ssl_mode,omitempty" yaml:"ssl_mode,omitempty"`

	// Password is nil for engines or accounts without one.
	Password vault.SourceField `json:"password" yaml:"password"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Store manages profile persistence. Implementations serialize writes.
type Store interface {
	// Get retrieves a profile by name.
	Get(name string) (*Profile, error)

	// Save creates or replaces a profile.
	Save(p *Profile) error

	// Delete removes a profile.
	Delete(name string) error

	// List returns all profile names, sorted.
	List() ([]string, error)

	// Close releases resources.
	Close() error
}

// Errors
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileCorrupt  = errors.New("profile file is corrupt")
	ErrInvalidProfile  = errors.New("invalid profile")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// CheckName rejects names a store cannot hold. File stores use the name as
// a file name, so this also keeps lookups inside the store directory.
func CheckName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: name %q must be 1-64 letters, digits, '.', '_' or '-'", ErrInvalidProfile, name)
	}
	return nil
}

// Validate checks the fields a store needs.
func (p *Profile) Validate() error {
	if err := CheckName(p.Name); err != nil {
		return err
	}

	switch p.Driver {
	case DriverPostgres, DriverMySQL:
		if p.Host == "" {
			return fmt.Errorf("%w: host is required for %s", ErrInvalidProfile, p.Driver)
		}
	case DriverSQLite:
		if p.Host == "" {
			return fmt.Errorf("%w: database file path is required for sqlite", ErrInvalidProfile)
		}
	default:
		return fmt.Errorf("%w: unsupported driver %q", ErrInvalidProfile, p.Driver)
	}

	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidProfile, p.Port)
	}

	return nil
}

// checkWritable refuses profiles whose password would be written in clear.
func checkWritable(p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if isPlainText(p) {
		return fmt.Errorf("profile %s: %w", p.Name, vault.ErrPlainTextWrite)
	}
	return nil
}

// NewStore opens the store selected by cfg.
func NewStore(cfg config.StoreConfig, logger *events.Logger) (Store, error) {
	switch cfg.Driver {
	case config.StoreDriverFile:
		return NewFileStore(cfg.Path, cfg.Format, logger)
	case config.StoreDriverSQLite:
		return NewSQLiteStore(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}
