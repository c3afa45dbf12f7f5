package profile

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/credvault/internal/events"
	"github.com/TheMichaelB/credvault/internal/vault"
)

// CurrentSchemaVersion is the profile table layout version.
const CurrentSchemaVersion = 1

// SQLiteStore keeps profiles in a SQLite database. The password source is
// stored as its JSON wire form.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
}

// NewSQLiteStore opens or creates a SQLite profile store.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_profile_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS profiles (
        name TEXT PRIMARY KEY,
        id TEXT NOT NULL UNIQUE,
        driver TEXT NOT NULL,
        host TEXT NOT NULL DEFAULT '',
        port INTEGER NOT NULL DEFAULT 0,
        username TEXT NOT NULL DEFAULT '',
        database_name TEXT NOT NULL DEFAULT '',
        ssl_mode TEXT NOT NULL DEFAULT '',
        password TEXT,
        created_at TIMESTAMP NOT NULL,
        updated_at TIMESTAMP NOT NULL
    );

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Get retrieves a profile by name.
func (s *SQLiteStore) Get(name string) (*Profile, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	s.logger.WithField("profile", name).Debug("Loading profile from SQLite")

	var p Profile
	var driver string
	var password sql.NullString

	err := s.db.QueryRow(`
        SELECT id, name, driver, host, port, username, database_name, ssl_mode,
               password, created_at, updated_at
        FROM profiles
        WHERE name = ?
    `, name).Scan(&p.ID, &p.Name, &driver, &p.Host, &p.Port, &p.Username,
		&p.Database, &p.SSLMode, &password, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}

	p.Driver = Driver(driver)
	if password.Valid {
		src, err := vault.UnmarshalSource([]byte(password.String))
		if err != nil {
			return nil, fmt.Errorf("%w: profile %s password: %w", ErrProfileCorrupt, name, err)
		}
		p.Password.Source = src
	}

	return &p, nil
}

// Save creates or replaces a profile.
func (s *SQLiteStore) Save(p *Profile) error {
	if err := checkWritable(p); err != nil {
		return err
	}

	var password sql.NullString
	if p.Password.Source != nil {
		data, err := vault.MarshalSource(p.Password.Source)
		if err != nil {
			return fmt.Errorf("encode password source: %w", err)
		}
		password = sql.NullString{String: string(data), Valid: true}
	}

	now := time.Now().UTC()
	saved := *p
	if saved.ID == "" {
		saved.ID = uuid.NewString()
	}
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = now
	}
	saved.UpdatedAt = now

	s.logger.WithFields(map[string]interface{}{
		"profile": p.Name,
		"driver":  string(p.Driver),
	}).Debug("Saving profile to SQLite")

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
        INSERT INTO profiles (name, id, driver, host, port, username, database_name,
                              ssl_mode, password, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET
            driver = excluded.driver,
            host = excluded.host,
            port = excluded.port,
            username = excluded.username,
            database_name = excluded.database_name,
            ssl_mode = excluded.ssl_mode,
            password = excluded.password,
            updated_at = excluded.updated_at
    `, saved.Name, saved.ID, string(saved.Driver), saved.Host, saved.Port, saved.Username,
		saved.Database, saved.SSLMode, password, saved.CreatedAt, saved.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	// An update keeps the original row identity.
	if err := tx.QueryRow("SELECT id, created_at FROM profiles WHERE name = ?", saved.Name).
		Scan(&saved.ID, &saved.CreatedAt); err != nil {
		return fmt.Errorf("read back profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	*p = saved
	return nil
}

// Delete removes a profile.
func (s *SQLiteStore) Delete(name string) error {
	if err := CheckName(name); err != nil {
		return err
	}

	res, err := s.db.Exec("DELETE FROM profiles WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if n == 0 {
		return ErrProfileNotFound
	}

	s.logger.WithField("profile", name).Info("Deleted profile")
	return nil
}

// List returns all profile names.
func (s *SQLiteStore) List() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM profiles ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan profile name: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
