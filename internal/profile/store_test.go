package profile_test

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/credvault/internal/config"
	"github.com/TheMichaelB/credvault/internal/events"
	"github.com/TheMichaelB/credvault/internal/profile"
	"github.com/TheMichaelB/credvault/internal/secure"
	"github.com/TheMichaelB/credvault/internal/vault"
)

func testLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

func TestFileStoreJSON(t *testing.T) {
	store, err := profile.NewFileStore(t.TempDir(), "json", testLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func TestFileStoreYAML(t *testing.T) {
	store, err := profile.NewFileStore(t.TempDir(), "yaml", testLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func TestSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "profiles.db")
	store, err := profile.NewSQLiteStore(dbPath, testLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func encryptedSource(t *testing.T, password, key, hint string) vault.EncryptedSource {
	t.Helper()
	pw := secure.New(password)
	defer pw.Destroy()
	k := secure.New(key)
	defer k.Destroy()

	src, err := vault.CreateEncrypted(pw, k, hint)
	require.NoError(t, err)
	return src
}

func testStoreOperations(t *testing.T, store profile.Store) {
	t.Run("get non-existent", func(t *testing.T) {
		_, err := store.Get("missing")
		assert.ErrorIs(t, err, profile.ErrProfileNotFound)
	})

	t.Run("invalid name on read", func(t *testing.T) {
		_, err := store.Get("../other")
		assert.ErrorIs(t, err, profile.ErrInvalidProfile)
		assert.ErrorIs(t, store.Delete("../other"), profile.ErrInvalidProfile)
	})

	t.Run("delete non-existent", func(t *testing.T) {
		err := store.Delete("missing")
		assert.ErrorIs(t, err, profile.ErrProfileNotFound)
	})

	t.Run("save and get environment source", func(t *testing.T) {
		p := &profile.Profile{
			Name:     "reporting",
			Driver:   profile.DriverPostgres,
			Host:     "db.internal",
			Port:     5433,
			Username: "reporter",
			Database: "analytics",
			SSLMode:  "require",
			Password: vault.SourceField{Source: vault.EnvironmentSource{VarName: "REPORTING_DB_PASSWORD"}},
		}
		require.NoError(t, store.Save(p))
		assert.NotEmpty(t, p.ID)
		assert.False(t, p.CreatedAt.IsZero())

		loaded, err := store.Get("reporting")
		require.NoError(t, err)

		assert.Equal(t, p.ID, loaded.ID)
		assert.Equal(t, p.Driver, loaded.Driver)
		assert.Equal(t, p.Host, loaded.Host)
		assert.Equal(t, p.Port, loaded.Port)
		assert.Equal(t, p.Username, loaded.Username)
		assert.Equal(t, p.Database, loaded.Database)
		assert.Equal(t, p.SSLMode, loaded.SSLMode)
		assert.Equal(t, vault.EnvironmentSource{VarName: "REPORTING_DB_PASSWORD"}, loaded.Password.Source)
		assert.WithinDuration(t, p.CreatedAt, loaded.CreatedAt, time.Second)
	})

	t.Run("save and get encrypted source", func(t *testing.T) {
		src := encryptedSource(t, "s3cret!", "master", "team vault")
		p := &profile.Profile{
			Name:     "orders",
			Driver:   profile.DriverMySQL,
			Host:     "mysql.internal",
			Username: "app",
			Database: "orders",
			Password: vault.SourceField{Source: src},
		}
		require.NoError(t, store.Save(p))

		loaded, err := store.Get("orders")
		require.NoError(t, err)
		require.Equal(t, vault.KindEncrypted, loaded.Password.Source.Kind())

		hint, ok := vault.GetHint(loaded.Password.Source)
		assert.True(t, ok)
		assert.Equal(t, "team vault", hint)

		key := secure.New("master")
		defer key.Destroy()
		plain, err := vault.ResolvePassword(loaded.Password.Source, key)
		require.NoError(t, err)
		defer plain.Destroy()
		assert.True(t, plain.Equal([]byte("s3cret!")))
	})

	t.Run("profile without password", func(t *testing.T) {
		p := &profile.Profile{Name: "local", Driver: profile.DriverSQLite, Host: "/tmp/local.db"}
		require.NoError(t, store.Save(p))

		loaded, err := store.Get("local")
		require.NoError(t, err)
		assert.Nil(t, loaded.Password.Source)
	})

	t.Run("update keeps identity", func(t *testing.T) {
		p, err := store.Get("reporting")
		require.NoError(t, err)
		id, created := p.ID, p.CreatedAt

		p.Port = 6543
		require.NoError(t, store.Save(p))

		loaded, err := store.Get("reporting")
		require.NoError(t, err)
		assert.Equal(t, 6543, loaded.Port)
		assert.Equal(t, id, loaded.ID)
		assert.WithinDuration(t, created, loaded.CreatedAt, time.Second)
	})

	t.Run("list", func(t *testing.T) {
		names, err := store.List()
		require.NoError(t, err)
		assert.Equal(t, []string{"local", "orders", "reporting"}, names)
	})

	t.Run("invalid profile rejected", func(t *testing.T) {
		for _, p := range []*profile.Profile{
			{Name: "", Driver: profile.DriverPostgres, Host: "h"},
			{Name: "../escape", Driver: profile.DriverPostgres, Host: "h"},
			{Name: "ok", Driver: "oracle", Host: "h"},
			{Name: "ok", Driver: profile.DriverMySQL},
			{Name: "ok", Driver: profile.DriverPostgres, Host: "h", Port: 70000},
		} {
			err := store.Save(p)
			assert.ErrorIs(t, err, profile.ErrInvalidProfile, "profile %+v", p)
		}
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete("local"))

		_, err := store.Get("local")
		assert.ErrorIs(t, err, profile.ErrProfileNotFound)

		names, err := store.List()
		require.NoError(t, err)
		assert.NotContains(t, names, "local")
	})
}

const legacyProfileJSON = `{
  "id": "0b6f1c1e-8a4e-4e55-9b6b-2f4f9a0f6c11",
  "name": "legacy",
  "driver": "postgres",
  "host": "old.internal",
  "username": "admin",
  "database": "billing",
  "password": {"kind": "plaintext", "value": "hunter2"},
  "created_at": "2023-01-02T03:04:05Z",
  "updated_at": "2023-01-02T03:04:05Z"
}
`

func writeLegacyProfile(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.json"), []byte(legacyProfileJSON), 0600))
}

func TestFileStoreLegacyPlainText(t *testing.T) {
	dir := t.TempDir()
	writeLegacyProfile(t, dir)

	store, err := profile.NewFileStore(dir, "json", testLogger())
	require.NoError(t, err)

	p, err := store.Get("legacy")
	require.NoError(t, err)
	assert.Equal(t, vault.KindPlainText, p.Password.Source.Kind())

	plain, err := vault.ResolvePassword(p.Password.Source, nil)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain.Reveal())
	plain.Destroy()

	t.Run("saving plaintext is refused", func(t *testing.T) {
		p.Port = 5432
		err := store.Save(p)
		assert.ErrorIs(t, err, vault.ErrPlainTextWrite)

		data, err := os.ReadFile(filepath.Join(dir, "legacy.json"))
		require.NoError(t, err)
		assert.Equal(t, legacyProfileJSON, string(data))
	})
}

func TestMigratePlainText(t *testing.T) {
	dir := t.TempDir()
	writeLegacyProfile(t, dir)

	store, err := profile.NewFileStore(dir, "json", testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Save(&profile.Profile{
		Name:     "modern",
		Driver:   profile.DriverPostgres,
		Host:     "new.internal",
		Password: vault.SourceField{Source: vault.EnvironmentSource{VarName: "MODERN_PW"}},
	}))

	resolver := vault.NewResolver(vault.WithLogger(testLogger()))
	key := secure.New("migration key")
	defer key.Destroy()

	migrated, err := profile.MigratePlainText(store, resolver, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy"}, migrated)

	p, err := store.Get("legacy")
	require.NoError(t, err)
	require.Equal(t, vault.KindEncrypted, p.Password.Source.Kind())
	assert.Equal(t, "0b6f1c1e-8a4e-4e55-9b6b-2f4f9a0f6c11", p.ID)

	plain, err := resolver.Resolve(p.Password.Source, key)
	require.NoError(t, err)
	defer plain.Destroy()
	assert.True(t, plain.Equal([]byte("hunter2")))

	data, err := os.ReadFile(filepath.Join(dir, "legacy.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
	assert.NoFileExists(t, filepath.Join(dir, "legacy.json.backup"))

	t.Run("second run is a no-op", func(t *testing.T) {
		migrated, err := profile.MigratePlainText(store, resolver, key)
		require.NoError(t, err)
		assert.Empty(t, migrated)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := profile.MigratePlainText(store, resolver, key, "nope")
		assert.ErrorIs(t, err, profile.ErrProfileNotFound)
	})
}

func TestMigratePlainTextRequiresKey(t *testing.T) {
	dir := t.TempDir()
	writeLegacyProfile(t, dir)

	store, err := profile.NewFileStore(dir, "json", testLogger())
	require.NoError(t, err)

	empty := secure.New("")
	defer empty.Destroy()

	migrated, err := profile.MigratePlainText(store, vault.NewResolver(), empty, "legacy")
	assert.ErrorIs(t, err, vault.ErrEmptyPassphrase)
	assert.Empty(t, migrated)

	p, err := store.Get("legacy")
	require.NoError(t, err)
	assert.Equal(t, vault.KindPlainText, p.Password.Source.Kind())
}

func TestSQLiteStoreLegacyPlainText(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "profiles.db")
	store, err := profile.NewSQLiteStore(dbPath, testLogger())
	require.NoError(t, err)
	defer store.Close()

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`
        INSERT INTO profiles (name, id, driver, host, password, created_at, updated_at)
        VALUES ('legacy', 'id-1', 'mysql', 'old.internal', '{"kind":"plaintext","value":"hunter2"}', ?, ?)
    `, time.Now().UTC(), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	p, err := store.Get("legacy")
	require.NoError(t, err)
	assert.Equal(t, vault.KindPlainText, p.Password.Source.Kind())
	assert.ErrorIs(t, store.Save(p), vault.ErrPlainTextWrite)

	key := secure.New("k")
	defer key.Destroy()
	migrated, err := profile.MigratePlainText(store, vault.NewResolver(), key)
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy"}, migrated)

	p, err = store.Get("legacy")
	require.NoError(t, err)
	assert.Equal(t, vault.KindEncrypted, p.Password.Source.Kind())
	assert.Equal(t, "id-1", p.ID)
}

func TestSQLiteStoreCorruptPassword(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "profiles.db")
	store, err := profile.NewSQLiteStore(dbPath, testLogger())
	require.NoError(t, err)
	defer store.Close()

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`
        INSERT INTO profiles (name, id, driver, host, password, created_at, updated_at)
        VALUES ('broken', 'id-2', 'postgres', 'h', '{"kind":"encrypted","nonce":"%%%"}', ?, ?)
    `, time.Now().UTC(), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = store.Get("broken")
	assert.ErrorIs(t, err, profile.ErrProfileCorrupt)
	assert.ErrorIs(t, err, vault.ErrInvalidEncoding)
}

func TestFileStoreBackupRecovery(t *testing.T) {
	dir := t.TempDir()
	store, err := profile.NewFileStore(dir, "json", testLogger())
	require.NoError(t, err)

	p := &profile.Profile{Name: "main", Driver: profile.DriverPostgres, Host: "v1"}
	require.NoError(t, store.Save(p))
	p.Host = "v2"
	require.NoError(t, store.Save(p))

	_, err = os.Stat(filepath.Join(dir, "main.json.backup"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.json"), []byte("{not json"), 0600))

	loaded, err := store.Get("main")
	require.NoError(t, err)
	assert.Equal(t, "v1", loaded.Host)

	t.Run("no backup", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(dir, "main.json.backup")))
		_, err := store.Get("main")
		assert.ErrorIs(t, err, profile.ErrProfileCorrupt)
	})
}

func TestFileStoreIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := profile.NewFileStore(dir, "yaml", testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Save(&profile.Profile{Name: "a", Driver: profile.DriverSQLite, Host: "a.db"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte("{}"), 0600))

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names)
}

func TestTransfer(t *testing.T) {
	dir := t.TempDir()
	writeLegacyProfile(t, dir)

	from, err := profile.NewFileStore(dir, "json", testLogger())
	require.NoError(t, err)
	require.NoError(t, from.Save(&profile.Profile{
		Name:     "modern",
		Driver:   profile.DriverMySQL,
		Host:     "m",
		Password: vault.SourceField{Source: encryptedSource(t, "pw", "key", "")},
	}))

	to, err := profile.NewSQLiteStore(filepath.Join(t.TempDir(), "p.db"), testLogger())
	require.NoError(t, err)
	defer to.Close()

	copied, err := profile.Transfer(from, to)
	assert.Equal(t, 1, copied)
	assert.ErrorIs(t, err, vault.ErrPlainTextWrite)

	names, err := to.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"modern"}, names)
}

func TestNewStore(t *testing.T) {
	logger := testLogger()

	fileStore, err := profile.NewStore(config.StoreConfig{
		Driver: config.StoreDriverFile,
		Path:   t.TempDir(),
		Format: "yaml",
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &profile.FileStore{}, fileStore)

	sqliteStore, err := profile.NewStore(config.StoreConfig{
		Driver: config.StoreDriverSQLite,
		Path:   filepath.Join(t.TempDir(), "p.db"),
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &profile.SQLiteStore{}, sqliteStore)
	require.NoError(t, sqliteStore.Close())

	_, err = profile.NewStore(config.StoreConfig{Driver: "etcd"}, logger)
	assert.Error(t, err)

	_, err = profile.NewFileStore(t.TempDir(), "toml", logger)
	assert.Error(t, err)
}

func TestMigratePlainTextLeavesNoCleartext(t *testing.T) {
	dir := t.TempDir()
	writeLegacyProfile(t, dir)
	// A backup left behind by an older release.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.json.backup"), []byte(legacyProfileJSON), 0600))

	store, err := profile.NewFileStore(dir, "json", testLogger())
	require.NoError(t, err)

	key := secure.New("k")
	defer key.Destroy()
	_, err = profile.MigratePlainText(store, vault.NewResolver(), key)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		require.NoError(t, err)
		assert.NotContains(t, string(data), "hunter2", entry.Name())
	}

	t.Run("corrupt file does not resurrect plaintext", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.json"), []byte("{"), 0600))

		_, err := store.Get("legacy")
		assert.ErrorIs(t, err, profile.ErrProfileCorrupt)
	})

	t.Run("next save backs up the encrypted version", func(t *testing.T) {
		require.NoError(t, store.Save(&profile.Profile{
			Name:     "legacy",
			Driver:   profile.DriverPostgres,
			Host:     "v1",
			Password: vault.SourceField{Source: encryptedSource(t, "hunter2", "k", "")},
		}))
		p, err := store.Get("legacy")
		require.NoError(t, err)
		p.Host = "v2"
		require.NoError(t, store.Save(p))

		data, err := os.ReadFile(filepath.Join(dir, "legacy.json.backup"))
		require.NoError(t, err)
		assert.Contains(t, string(data), `"kind": "encrypted"`)
		assert.NotContains(t, string(data), "hunter2")
	})
}

func TestFileStoreIgnoresPlainTextBackup(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.json"), []byte("{"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.json.backup"), []byte(legacyProfileJSON), 0600))

	store, err := profile.NewFileStore(dir, "json", testLogger())
	require.NoError(t, err)

	p, err := store.Get("legacy")
	assert.ErrorIs(t, err, profile.ErrProfileCorrupt)
	assert.Nil(t, p)
}

func TestFileStoreRejectsPathNames(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "profiles")
	victim := filepath.Join(parent, "victim.json")
	require.NoError(t, os.WriteFile(victim, []byte(legacyProfileJSON), 0600))

	store, err := profile.NewFileStore(dir, "json", testLogger())
	require.NoError(t, err)

	for _, name := range []string{"../victim", "sub/../../victim", "/etc/passwd", ".hidden", ""} {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(name)
			assert.ErrorIs(t, err, profile.ErrInvalidProfile)

			err = store.Delete(name)
			assert.ErrorIs(t, err, profile.ErrInvalidProfile)
		})
	}

	assert.FileExists(t, victim)
}
