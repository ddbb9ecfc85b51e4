// Package config loads the daemon configuration file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"exchange/internal/engine"
)

// Config is the full daemon configuration.
type Config struct {
	Engine EngineConfig `mapstructure:"engine"`
	Server ServerConfig `mapstructure:"server"`
	Feed   FeedConfig   `mapstructure:"feed"`

	// DBPath is the sqlite deal history file.
	DBPath string `mapstructure:"db_path"`
}

// EngineConfig mirrors engine.Settings in file-friendly units: wall-clock
// times as HH:MM:SS strings, durations in seconds.
type EngineConfig struct {
	StartTime string `mapstructure:"start_time"`
	StopTime  string `mapstructure:"stop_time"`

	OpeningAuctionDurationSec  int `mapstructure:"opening_auction_duration"`
	ClosingAuctionDurationSec  int `mapstructure:"closing_auction_duration"`
	IntradayAuctionDurationSec int `mapstructure:"intraday_auction_duration"`
	AuctionDurationOffsetSec   int `mapstructure:"auction_duration_offset_range"`

	MaxPriceDeviation float64 `mapstructure:"max_price_deviation"`
	CancelOnClose     bool    `mapstructure:"cancel_on_close"`

	InstrumentDBPath string `mapstructure:"instrument_db_path"`
}

type ServerConfig struct {
	ListenAddr  string   `mapstructure:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// FeedConfig configures the deal publication topic. An empty broker list
// disables publication.
type FeedConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Load reads the configuration at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("engine.cancel_on_close", true)
	v.SetDefault("engine.instrument_db_path", "instruments.db")
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("feed.topic", "deals")
	v.SetDefault("db_path", "exchange.db")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Settings converts the engine section into engine.Settings, parsing the
// session times.
func (c EngineConfig) Settings() (engine.Settings, error) {
	start, err := parseTimeOfDay(c.StartTime)
	if err != nil {
		return engine.Settings{}, fmt.Errorf("start_time: %w", err)
	}
	stop, err := parseTimeOfDay(c.StopTime)
	if err != nil {
		return engine.Settings{}, fmt.Errorf("stop_time: %w", err)
	}
	return engine.Settings{
		StartTime:                  start,
		StopTime:                   stop,
		OpeningAuctionDuration:     time.Duration(c.OpeningAuctionDurationSec) * time.Second,
		ClosingAuctionDuration:     time.Duration(c.ClosingAuctionDurationSec) * time.Second,
		IntradayAuctionDuration:    time.Duration(c.IntradayAuctionDurationSec) * time.Second,
		AuctionDurationOffsetRange: time.Duration(c.AuctionDurationOffsetSec) * time.Second,
		MaxPriceDeviation:          c.MaxPriceDeviation,
		CancelOnClose:              c.CancelOnClose,
	}, nil
}

// parseTimeOfDay turns an HH:MM:SS string into an offset from midnight.
func parseTimeOfDay(s string) (time.Duration, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return 0, fmt.Errorf("want HH:MM:SS, got %q", s)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}
