package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "pathfinder-bot/0.1", cfg.Crawler.UserAgent)
	require.Equal(t, 200, cfg.Crawler.MaxPagesDefault)
	require.True(t, cfg.Crawler.RenderEnabled)
	require.Equal(t, "https://api.openai.com/v1", cfg.LLM.APIURL)
	require.Equal(t, "./snapshots", cfg.Snapshots.BaseDir)
	require.True(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
crawler:
  user_agent: custom-bot/1.0
  max_pages_default: 50
  render_enabled: false
db:
  dsn: postgres://localhost/pathfinder
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "custom-bot/1.0", cfg.Crawler.UserAgent)
	require.Equal(t, 50, cfg.Crawler.MaxPagesDefault)
	require.False(t, cfg.Crawler.RenderEnabled)
	require.Equal(t, "postgres://localhost/pathfinder", cfg.DB.DSN)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	t.Run("InvalidPort", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("InvalidBudget", func(t *testing.T) {
		cfg := base()
		cfg.Crawler.MaxPagesDefault = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("APIKeyWithoutModels", func(t *testing.T) {
		cfg := base()
		cfg.LLM.APIKey = "sk-test"
		cfg.LLM.ChatModel = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("MissingSnapshotDir", func(t *testing.T) {
		cfg := base()
		cfg.Snapshots.BaseDir = ""
		require.Error(t, cfg.Validate())
	})
}

func TestDurationHelpers(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, cfg.Crawler.NavTimeout().Seconds(), 30.0)
	require.Equal(t, cfg.Crawler.Delay().Milliseconds(), int64(250))
}
