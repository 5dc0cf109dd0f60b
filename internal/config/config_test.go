package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	assert.Nil(t, err)

	check.Equal(t, "8080", cfg.Server.Port)
	check.Equal(t, "bidwire.db", cfg.Storage.Path)
	check.Equal(t, 3, cfg.Storage.RetryAttempts)
	check.Equal(t, 50*time.Millisecond, cfg.Storage.RetryBackoff)
	check.Equal(t, 60.0, cfg.Gateway.BidsPerMinute)
	check.Equal(t, 5, cfg.Gateway.BidBurst)
	check.Equal(t, int64(4096), cfg.Gateway.ReadLimit)
	check.Equal(t, 60*time.Second, cfg.Gateway.PongWait)
	check.Equal(t, 20, cfg.Auction.HistoryWindow)
	check.Equal(t, "", cfg.Redis.Addr)
	check.Equal(t, "bidwire:notifications", cfg.Redis.Queue)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: "9090"
storage:
  path: /tmp/override.db
  retry_attempts: 5
gateway:
  bids_per_minute: 120
auction:
  history_window: 50
`
	assert.Nil(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	assert.Nil(t, err)

	check.Equal(t, "9090", cfg.Server.Port)
	check.Equal(t, "/tmp/override.db", cfg.Storage.Path)
	check.Equal(t, 5, cfg.Storage.RetryAttempts)
	check.Equal(t, 120.0, cfg.Gateway.BidsPerMinute)
	check.Equal(t, 50, cfg.Auction.HistoryWindow)
	// Values the file does not set keep their defaults.
	check.Equal(t, "bidwire-dev-secret", cfg.JWT.Secret)
	check.Equal(t, 5, cfg.Gateway.BidBurst)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	check.NotNil(t, err)
}
