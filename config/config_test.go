package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghyeongl/warehouse/cache"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WAREHOUSE_DATA_DIR", dir)

	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*time.Minute, cfg.StaleAfter)
	assert.Equal(t, filepath.Join(dir, "drives.yaml"), cfg.DrivesFile)
	assert.Equal(t, cache.ProviderFile, cfg.Cache.Provider)
	assert.Equal(t, filepath.Join(dir, "cache"), cfg.Cache.Path)
	assert.Equal(t, 10, cfg.Crawl.MaxDepth)
	assert.Equal(t, 500, cfg.Crawl.MaxFolders)
	assert.Equal(t, 100, cfg.Changes.PageSize)
}

func TestLoad_LegacyEnv(t *testing.T) {
	t.Setenv("WAREHOUSE_DATA_DIR", t.TempDir())
	t.Setenv("GOOGLE_DRIVE_API_KEY", "legacy-key")
	t.Setenv("SYNC_SECRET", "s3cret")
	t.Setenv("WAREHOUSE_CRON_SECRET", "cron")
	t.Setenv("CRON_SECRET", "ignored")

	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "legacy-key", cfg.APIKey)
	assert.Equal(t, "s3cret", cfg.SyncSecret)
	assert.Equal(t, "cron", cfg.CronSecret)
}

func TestLoad_FileAndFlags(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "warehouse.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
data_dir: `+dir+`
addr: ":9000"
cache:
  provider: bolt
crawl:
  max_depth: 3
`), 0o644))

	v, err := New(file)
	require.NoError(t, err)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", ":8080", "")
	flags.Bool("verbose", false, "")
	flags.String("log-level", "", "")
	flags.String("cache-max-entries", "", "")
	require.NoError(t, BindFlags(v, flags))
	require.NoError(t, flags.Parse([]string{"--addr", ":7000", "--log-level", "debug", "--cache-max-entries", "50"}))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, cache.ProviderBolt, cfg.Cache.Provider)
	assert.Equal(t, filepath.Join(dir, "cache.db"), cfg.Cache.Path)
	assert.Equal(t, 3, cfg.Crawl.MaxDepth)
	assert.Equal(t, 1000, cfg.Crawl.MaxFilesPerFolder)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 50, cfg.Cache.MaxEntries)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"redis without url", map[string]string{"WAREHOUSE_CACHE_PROVIDER": "redis"}, "redis_url required"},
		{"unknown provider", map[string]string{"WAREHOUSE_CACHE_PROVIDER": "etcd"}, "unknown provider"},
		{"bad level", map[string]string{"LOG_LEVEL": "loud"}, "Level"},
		{"short stale", map[string]string{"WAREHOUSE_STALE_AFTER": "10s"}, "StaleAfter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("WAREHOUSE_DATA_DIR", t.TempDir())
			for k, val := range tt.env {
				t.Setenv(k, val)
			}
			v, err := New("")
			require.NoError(t, err)
			_, err = Load(v)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte("WAREHOUSE_TEST_DOTENV=from-file\n"), 0o644))
	t.Setenv("WAREHOUSE_TEST_DOTENV", "")
	os.Unsetenv("WAREHOUSE_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(env, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("WAREHOUSE_TEST_DOTENV"))
}
