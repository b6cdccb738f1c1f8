package database

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db")+"?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty path", func(c *Config) { c.DatabasePath = "" }},
		{"no connections", func(c *Config) { c.MaxConnections = 0 }},
		{"no lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }},
		{"no idle time", func(c *Config) { c.ConnMaxIdleTime = 0 }},
		{"no write timeout", func(c *Config) { c.WriteTimeout = 0 }},
		{"negative retry", func(c *Config) { c.RetryDelay = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestMigrations_EmbeddedApplyAndValidate(t *testing.T) {
	db := openTestDB(t)
	manager := NewMigrationManager(db)

	require.NoError(t, manager.ApplyMigrations())
	require.NoError(t, manager.ApplyMigrations(), "second run is a no-op")

	applied, err := manager.AppliedVersions()
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"001": true}, applied)

	assert.NoError(t, NewSchemaValidator(db).Validate())
}

func TestMigrations_OrderedByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_second.sql": {Data: []byte("INSERT INTO log (step) VALUES ('second');")},
		"m/001_first.sql":  {Data: []byte("CREATE TABLE log (step TEXT); INSERT INTO log (step) VALUES ('first');")},
		"m/README.md":      {Data: []byte("ignored")},
	}
	db := openTestDB(t)
	manager := NewMigrationManagerFS(db, fsys, "m")

	migrations, err := manager.LoadMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "001", migrations[0].Version)
	assert.Equal(t, "first", migrations[0].Description)

	require.NoError(t, manager.ApplyMigrations())

	rows, err := db.Query("SELECT step FROM log ORDER BY rowid")
	require.NoError(t, err)
	defer rows.Close()
	var steps []string
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		steps = append(steps, s)
	}
	assert.Equal(t, []string{"first", "second"}, steps)
}

func TestMigrations_FailedMigrationIsNotRecorded(t *testing.T) {
	fsys := fstest.MapFS{
		"m/001_broken.sql": {Data: []byte("CREATE TABLE ok (id TEXT); NOT VALID SQL;")},
	}
	db := openTestDB(t)
	manager := NewMigrationManagerFS(db, fsys, "m")

	assert.Error(t, manager.ApplyMigrations())

	applied, err := manager.AppliedVersions()
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestSchemaValidator_MissingTables(t *testing.T) {
	db := openTestDB(t)
	assert.Error(t, NewSchemaValidator(db).ValidateTablesExist())
}

func TestSchemaValidator_WrongColumnType(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`
		CREATE TABLE records (id TEXT, producer_id TEXT, status TEXT, face_count TEXT, record TEXT, published_at DATETIME);
		CREATE TABLE connection_events (id TEXT, connection_id TEXT, role TEXT, event TEXT, remote_addr TEXT, occurred_at DATETIME);
	`)
	require.NoError(t, err)

	err = NewSchemaValidator(db).ValidateTableStructure()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "face_count")
}

func TestSchemaValidator_MissingConstraints(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`CREATE TABLE connection_events (id TEXT, connection_id TEXT, role TEXT, event TEXT, remote_addr TEXT, occurred_at DATETIME)`)
	require.NoError(t, err)

	assert.Error(t, NewSchemaValidator(db).ValidateConstraints())
}
