package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "./uploads", cfg.UploadDir)
	require.Equal(t, int64(20971520), cfg.MaxUploadSize)
	require.Equal(t, "sqlite", cfg.Database.Type)
	require.Equal(t, "./aeroinspect.db", cfg.Database.SQLitePath)
	require.Equal(t, 5, cfg.MaxConcurrentJobs)
	require.Equal(t, 10*time.Second, cfg.JobTimeout)
	require.InDelta(t, 0.6, cfg.Ensemble.PrimaryWeight, 1e-9)
	require.InDelta(t, 0.4, cfg.Ensemble.SecondaryWeight, 1e-9)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_CONCURRENT_JOBS", "2")
	t.Setenv("JOB_TIMEOUT", "30s")
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DB_PORT", "5433")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "9090", cfg.Port)
	require.Equal(t, 2, cfg.MaxConcurrentJobs)
	require.Equal(t, 30*time.Second, cfg.JobTimeout)
	require.Equal(t, "postgres", cfg.Database.Type)
	require.Equal(t, 5433, cfg.Database.Port)
	require.Equal(t, "aeroinspect", cfg.Database.User)
}

func TestLoadRejectsBadWeights(t *testing.T) {
	t.Setenv("ENSEMBLE_PRIMARY_WEIGHT", "0.9")
	t.Setenv("ENSEMBLE_SECONDARY_WEIGHT", "0.4")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_JOBS", "many")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "MAX_CONCURRENT_JOBS")
}
