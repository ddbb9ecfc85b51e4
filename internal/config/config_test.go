package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
engine:
  start_time: "09:00:00"
  stop_time: "17:30:00"
  opening_auction_duration: 120
  closing_auction_duration: 120
  intraday_auction_duration: 60
  auction_duration_offset_range: 15
  max_price_deviation: 5.0
  cancel_on_close: false
  instrument_db_path: /var/lib/exchange/instruments
server:
  listen_addr: ":9000"
  cors_origins:
    - https://ops.example.com
feed:
  brokers:
    - kafka-1:9092
    - kafka-2:9092
  topic: exchange.deals
db_path: /var/lib/exchange/exchange.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.Equal(t, []string{"https://ops.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Feed.Brokers)
	assert.Equal(t, "exchange.deals", cfg.Feed.Topic)
	assert.Equal(t, "/var/lib/exchange/exchange.db", cfg.DBPath)
	assert.Equal(t, "/var/lib/exchange/instruments", cfg.Engine.InstrumentDBPath)
	assert.False(t, cfg.Engine.CancelOnClose)

	settings, err := cfg.Engine.Settings()
	require.NoError(t, err)
	assert.Equal(t, 9*time.Hour, settings.StartTime)
	assert.Equal(t, 17*time.Hour+30*time.Minute, settings.StopTime)
	assert.Equal(t, 2*time.Minute, settings.OpeningAuctionDuration)
	assert.Equal(t, time.Minute, settings.IntradayAuctionDuration)
	assert.Equal(t, 15*time.Second, settings.AuctionDurationOffsetRange)
	assert.Equal(t, 5.0, settings.MaxPriceDeviation)
	assert.False(t, settings.CancelOnClose)
}

func TestDefaults(t *testing.T) {
	path := writeConfig(t, `
engine:
  start_time: "09:00:00"
  stop_time: "17:30:00"
  opening_auction_duration: 120
  closing_auction_duration: 120
  intraday_auction_duration: 60
  max_price_deviation: 5.0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Engine.CancelOnClose, "orders are cancelled at close unless disabled")
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "deals", cfg.Feed.Topic)
	assert.Empty(t, cfg.Feed.Brokers, "publication disabled without brokers")
}

func TestBadSessionTime(t *testing.T) {
	path := writeConfig(t, `
engine:
  start_time: "9 o'clock"
  stop_time: "17:30:00"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	_, err = cfg.Engine.Settings()
	assert.Error(t, err)
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
