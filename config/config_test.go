package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 30, cfg.Feed.EntryMaxAgeDays)
	assert.Equal(t, 0.9, cfg.Interest.DecayFactor)
	assert.Equal(t, 0.01, cfg.Interest.Floor)
	assert.Equal(t, 7*24*time.Hour, cfg.Interest.StaleAfter)
	assert.Equal(t, 100, cfg.Trending.TopContent)
	assert.Equal(t, 50, cfg.Trending.TopHashtags)
	assert.Equal(t, 7, cfg.Trending.RetentionDays)
	assert.Equal(t, 1.0, cfg.Interest.Weights["purchase"])
	assert.Equal(t, 0.6, cfg.Interest.Weights["click_product"])
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("database:\n  driver: sqlite\n  dsn: \"file::memory:\"\nfeed:\n  entry_max_age_days: 14\njobs:\n  sweep: 30m\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("FEED_TRENDING_TOP_CONTENT", "20")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 14, cfg.Feed.EntryMaxAgeDays)
	assert.Equal(t, 30*time.Minute, cfg.Jobs.Sweep)
	assert.Equal(t, 20, cfg.Trending.TopContent)
	// untouched keys keep their defaults
	assert.Equal(t, 0.3, cfg.Feed.ForYouSuggestedRatio)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Interest.DecayFactor = 1.5
	assert.Error(t, cfg.Validate())
}
