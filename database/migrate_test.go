package database

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations(t *testing.T) {
	t.Parallel()

	connString, cleanupFunc := SetupTestDB(t)
	t.Cleanup(cleanupFunc)

	m, err := NewMigrator(connString)
	require.NoError(t, err)
	defer func() {
		_, _ = m.Close()
	}()

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)

	fnames, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	assert.Equal(t, uint(len(fnames)), version)

	// step all the way down and back up again
	require.NoError(t, m.Steps(-len(fnames)))
	require.NoError(t, m.Steps(len(fnames)))

	// applying again is a no-op
	require.NoError(t, MigrateUp(connString))
}

func TestDriverURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@host:5432/db?sslmode=disable", "pgx5://u:p@host:5432/db?sslmode=disable"},
		{"postgresql://u@host/db", "pgx5://u@host/db"},
		{"pgx5://u@host/db", "pgx5://u@host/db"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, driverURL(tt.in))
	}
}

func TestMigrationFilesArePaired(t *testing.T) {
	t.Parallel()

	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
