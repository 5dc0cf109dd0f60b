package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Auction AuctionConfig `mapstructure:"auction"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
	// RetryAttempts bounds the durable-write retry loop; RetryBackoff is the
	// base delay, doubled per attempt.
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type GatewayConfig struct {
	// BidsPerMinute and BidBurst parameterize the per-connection token bucket
	// applied to place_bid frames.
	BidsPerMinute float64       `mapstructure:"bids_per_minute"`
	BidBurst      int           `mapstructure:"bid_burst"`
	SendBuffer    int           `mapstructure:"send_buffer"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PongWait      time.Duration `mapstructure:"pong_wait"`
	PingInterval  time.Duration `mapstructure:"ping_interval"`
	WriteWait     time.Duration `mapstructure:"write_wait"`
}

type AuctionConfig struct {
	// HistoryWindow bounds the recent-bid list delivered to late joiners.
	HistoryWindow int `mapstructure:"history_window"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Queue    string `mapstructure:"queue"`
}

// Load reads configuration from an optional yaml file and BIDWIRE_* env
// overrides, falling back to defaults suitable for local development.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("storage.path", "bidwire.db")
	v.SetDefault("storage.retry_attempts", 3)
	v.SetDefault("storage.retry_backoff", 50*time.Millisecond)

	v.SetDefault("jwt.secret", "bidwire-dev-secret")
	v.SetDefault("jwt.expiration", 24*time.Hour)

	v.SetDefault("gateway.bids_per_minute", 60.0)
	v.SetDefault("gateway.bid_burst", 5)
	v.SetDefault("gateway.send_buffer", 256)
	v.SetDefault("gateway.read_limit", 4096)
	v.SetDefault("gateway.pong_wait", 60*time.Second)
	v.SetDefault("gateway.ping_interval", 30*time.Second)
	v.SetDefault("gateway.write_wait", 10*time.Second)

	v.SetDefault("auction.history_window", 20)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.queue", "bidwire:notifications")

	v.SetEnvPrefix("BIDWIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
