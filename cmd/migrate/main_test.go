package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_create_records.sql", true, 1, "create_records"},
		{"0042_add_index.sql", true, 42, "add_index"},
		{"001_invalid.sql", false, 0, ""},
		{"0001_test", false, 0, ""},
		{"0001.sql", false, 0, ""},
		{"invalid_0001_test.sql", false, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseFilename(tt.filename)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestChecksumConsistency(t *testing.T) {
	a := checksum([]byte("CREATE TABLE test (id INT64);"))
	assert.Equal(t, a, checksum([]byte("CREATE TABLE test (id INT64);")))
	assert.NotEqual(t, a, checksum([]byte("CREATE TABLE different (id INT64);")))
	assert.Len(t, a, 64)
}

func TestReadMigrations(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"0002_second.sql": "SELECT 2 FROM `{{PROJECT_ID}}.{{DATASET_ID}}.records`",
		"0001_first.sql":  "SELECT 1",
		"README.md":       "not a migration",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	migrations, err := readMigrations(dir, target{ProjectID: "proj", DatasetID: "finance"})
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "second", migrations[1].Name)
	assert.Equal(t, "SELECT 2 FROM `proj.finance.records`", migrations[1].SQL)
	assert.Equal(t, checksum([]byte(files["0002_second.sql"])), migrations[1].Checksum)
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_a.sql"), []byte("SELECT 1"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_b.sql"), []byte("SELECT 2"), 0o600))

	_, err := readMigrations(dir, target{})
	assert.ErrorContains(t, err, "duplicate migration version 0001")
}

func TestReadMigrations_RepositoryFiles(t *testing.T) {
	migrations, err := readMigrations(resolveDir("migrations/bigquery"), target{ProjectID: "p", DatasetID: "d"})
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, "create_records", migrations[0].Name)
	assert.NotContains(t, migrations[0].SQL, "{{")
}

func TestPendingMigrations(t *testing.T) {
	all := []Migration{
		{Version: 1, Filename: "0001_a.sql", Checksum: "aaa"},
		{Version: 2, Filename: "0002_b.sql", Checksum: "bbb"},
	}

	pending, err := pendingMigrations(all, []AppliedMigration{{Version: 1, Checksum: "aaa"}})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Version)

	pending, err = pendingMigrations(all, nil)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	_, err = pendingMigrations(all, []AppliedMigration{{Version: 1, Checksum: "changed"}})
	assert.ErrorContains(t, err, "0001_a.sql changed")
}

func TestTargetTable(t *testing.T) {
	tg := target{ProjectID: "proj", DatasetID: "finance"}
	assert.Equal(t, "`proj.finance.schema_migrations`", tg.table("schema_migrations"))
	assert.Contains(t, recordMigrationSQL(tg), "@applied_by")
	assert.Contains(t, ensureSchemaMigrationsSQL(tg), "CREATE TABLE IF NOT EXISTS `proj.finance.schema_migrations`")
}
