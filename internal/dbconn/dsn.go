// Package dbconn opens database connections described by connection profiles.
package dbconn

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/credvault/internal/profile"
)

// Default ports.
const (
	DefaultPostgresPort = 5432
	DefaultMySQLPort    = 3306
)

// ErrUnsupportedDriver is returned for profiles naming an unknown engine.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// DriverName returns the database/sql driver name for d.
func DriverName(d profile.Driver) (string, error) {
	switch d {
	case profile.DriverPostgres:
		return "postgres", nil
	case profile.DriverMySQL:
		return "mysql", nil
	case profile.DriverSQLite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, d)
	}
}

// BuildDSN renders the connection string for p with the given password. The
// result contains the password and must be handled as a secret.
func BuildDSN(p *profile.Profile, password []byte) (string, error) {
	switch p.Driver {
	case profile.DriverPostgres:
		return postgresDSN(p, password), nil
	case profile.DriverMySQL:
		return mysqlDSN(p, password), nil
	case profile.DriverSQLite:
		return p.Host, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, p.Driver)
	}
}

func postgresDSN(p *profile.Profile, password []byte) string {
	port := p.Port
	if port == 0 {
		port = DefaultPostgresPort
	}
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	parts := []string{
		"host=" + quotePQ(p.Host),
		"port=" + strconv.Itoa(port),
	}
	if p.Username != "" {
		parts = append(parts, "user="+quotePQ(p.Username))
	}
	if len(password) > 0 {
		parts = append(parts, "password="+quotePQ(string(password)))
	}
	if p.Database != "" {
		parts = append(parts, "dbname="+quotePQ(p.Database))
	}
	parts = append(parts, "sslmode="+quotePQ(sslMode))

	return strings.Join(parts, " ")
}

// quotePQ quotes a libpq key/value value when it is empty or contains
// whitespace, quotes or backslashes.
func quotePQ(v string) string {
	if v != "" && !strings.ContainsAny(v, `'\`) && strings.IndexFunc(v, unicode.IsSpace) < 0 {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

func mysqlDSN(p *profile.Profile, password []byte) string {
	port := p.Port
	if port == 0 {
		port = DefaultMySQLPort
	}

	cfg := mysql.NewConfig()
	cfg.User = p.Username
	cfg.Passwd = string(password)
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(p.Host, strconv.Itoa(port))
	cfg.DBName = p.Database
	cfg.ParseTime = true
	switch p.SSLMode {
	case "require", "verify-full":
		cfg.TLSConfig = "true"
	case "skip-verify":
		cfg.TLSConfig = "skip-verify"
	}

	return cfg.FormatDSN()
}
