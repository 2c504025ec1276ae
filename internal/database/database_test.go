package database_test

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherroute/weatherroute/internal/database"
)

func TestConfig_ConnectionString(t *testing.T) {
	cfg := database.Config{
		Host:     "db.internal",
		Port:     5433,
		User:     "weatherroute",
		Password: "p@ss word",
		Database: "routes",
		SSLMode:  "require",
	}

	got := cfg.ConnectionString()
	assert.True(t, strings.HasPrefix(got, "postgres://weatherroute:"))
	assert.Contains(t, got, "@db.internal:5433/routes?sslmode=require")
	assert.NotContains(t, got, "p@ss word", "password must be escaped")
}

func TestConfig_Enabled(t *testing.T) {
	assert.True(t, database.Config{Host: "localhost"}.Enabled())
	assert.False(t, database.Config{}.Enabled())
}

func TestMigrationSource(t *testing.T) {
	files, err := fs.Glob(database.MigrationSource(), "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	ups, downs := 0, 0
	for _, f := range files {
		switch {
		case strings.HasSuffix(f, ".up.sql"):
			ups++
		case strings.HasSuffix(f, ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, ups, downs, "every up migration needs a down migration")

	up, err := fs.ReadFile(database.MigrationSource(), "migrations/000001_create_travel_points.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "PRIMARY KEY (vessel_id, ts)")
}
