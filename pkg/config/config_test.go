package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/merma-api/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.Shrinkage.MinPortions)
	assert.Equal(t, 200, cfg.Shrinkage.MaxIterations)
	assert.Equal(t, 1e-10, cfg.Shrinkage.Tolerance)
	assert.Equal(t, 0.5, cfg.Shrinkage.AMax)
	assert.Equal(t, 0.001, cfg.Shrinkage.BMin)
	assert.Equal(t, "weighted", cfg.Shrinkage.DefaultStrategy)
	assert.Equal(t, "exclude", cfg.Shrinkage.ExternalElapsed)
	assert.Equal(t, 4, cfg.Shrinkage.Workers)
	assert.True(t, cfg.Shrinkage.KeepPreviousOnFailure)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORAGE_DRIVER", "BOLT")
	t.Setenv("SHRINKAGE_WORKERS", "8")
	t.Setenv("SHRINKAGE_TOLERANCE", "1e-6")
	t.Setenv("SHRINKAGE_KEEP_PREVIOUS_ON_FAILURE", "false")
	t.Setenv("SHRINKAGE_EXTERNAL_ELAPSED", "zero")
	t.Setenv("AUDIT_EXCESS_THRESHOLD", "9999")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.StorageBolt, cfg.Storage.Driver)
	assert.Equal(t, 8, cfg.Shrinkage.Workers)
	assert.Equal(t, 1e-6, cfg.Shrinkage.Tolerance)
	assert.False(t, cfg.Shrinkage.KeepPreviousOnFailure)
	assert.Equal(t, "zero", cfg.Shrinkage.ExternalElapsed)
	assert.Equal(t, 9999.0, cfg.Audit.ExcessThreshold)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORAGE_DRIVER", "mongo")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestDBConfig_DSNEscapesPassword(t *testing.T) {
	c := config.DBConfig{Host: "db", Port: 5432, User: "u", Password: "p@ss/w", DBName: "merma", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p%40ss%2Fw@db:5432/merma?sslmode=disable", c.DSN())
	c.DatabaseURL = "postgres://x"
	assert.Equal(t, "postgres://x", c.ConnectionString())
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(prev)) })
}
