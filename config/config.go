// Package config loads application configuration from a YAML file with
// struct-tag defaults and validation, then applies environment overrides so
// deployments can tweak single values without editing the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config holds all application configuration.
type Config struct {
	Service   string `yaml:"service" default:"screener-engine"`
	LogFormat string `yaml:"log_format" default:"text" validate:"oneof=text json"`
	LogLevel  string `yaml:"log_level" default:"info"`

	Feed struct {
		Mode string `yaml:"mode" default:"ws" validate:"oneof=ws kafka replay"`

		WS struct {
			URL               string        `yaml:"url" default:"ws://localhost:8081/ws"`
			ReconnectDelay    time.Duration `yaml:"reconnect_delay" default:"2s"`
			MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay" default:"30s"`
		} `yaml:"ws"`

		Kafka struct {
			Brokers  []string `yaml:"brokers"`
			Topic    string   `yaml:"topic" default:"market.ticks"`
			GroupID  string   `yaml:"group_id" default:"screener-engine"`
			MinBytes int      `yaml:"min_bytes" default:"1"`
			MaxBytes int      `yaml:"max_bytes" default:"1048576"`
		} `yaml:"kafka"`

		Replay struct {
			Path  string  `yaml:"path"`
			Speed float64 `yaml:"speed" default:"0"` // 0 = flat-out, 1 = realtime pacing
		} `yaml:"replay"`
	} `yaml:"feed"`

	Engine struct {
		TickBuffer         int           `yaml:"tick_buffer" default:"10000" validate:"gt=0"`
		WorkerBuffer       int           `yaml:"worker_buffer" default:"256" validate:"gt=0"`
		UpdateBuffer       int           `yaml:"update_buffer" default:"5000" validate:"gt=0"`
		CheckpointInterval time.Duration `yaml:"checkpoint_interval" default:"30s"`
		CheckpointMaxAge   time.Duration `yaml:"checkpoint_max_age" default:"10m"`
	} `yaml:"engine"`

	Hub struct {
		QueueSize int `yaml:"queue_size" default:"64" validate:"gt=0"`
	} `yaml:"hub"`

	Gateway struct {
		Addr string `yaml:"addr" default:":8080"`
	} `yaml:"gateway"`

	Metrics struct {
		Addr string `yaml:"addr" default:":9090"`
	} `yaml:"metrics"`

	Redis struct {
		Enabled   bool          `yaml:"enabled" default:"false"`
		Addr      string        `yaml:"addr" default:"localhost:6379"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db" default:"0"`
		LatestTTL time.Duration `yaml:"latest_ttl" default:"30m"`
	} `yaml:"redis"`

	SQLite struct {
		Path string `yaml:"path" default:"data/screener.db"`
	} `yaml:"sqlite"`

	Session struct {
		Mode string `yaml:"mode" default:"nse" validate:"oneof=nse always"`
	} `yaml:"session"`

	Thresholds Thresholds `yaml:"thresholds"`

	Notify struct {
		Telegram struct {
			Enabled  bool   `yaml:"enabled" default:"false"`
			BotToken string `yaml:"bot_token"`
			ChatID   string `yaml:"chat_id"`
		} `yaml:"telegram"`
		Webhook struct {
			Enabled bool   `yaml:"enabled" default:"false"`
			URL     string `yaml:"url"`
		} `yaml:"webhook"`
	} `yaml:"notify"`

	Watchlist []string `yaml:"watchlist"`
}

// Load reads configuration from path (optional — empty path yields pure
// defaults), applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.Thresholds.fillSeverities()

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides selected fields from environment variables.
func (c *Config) applyEnv() {
	c.Service = getEnv("SERVICE_NAME", c.Service)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.Feed.Mode = getEnv("FEED_MODE", c.Feed.Mode)
	c.Feed.WS.URL = getEnv("FEED_WS_URL", c.Feed.WS.URL)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Feed.Kafka.Brokers = strings.Split(v, ",")
	}
	c.Feed.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Feed.Kafka.Topic)
	c.Feed.Replay.Path = getEnv("REPLAY_PATH", c.Feed.Replay.Path)

	c.Gateway.Addr = getEnv("GATEWAY_ADDR", c.Gateway.Addr)
	c.Metrics.Addr = getEnv("METRICS_ADDR", c.Metrics.Addr)

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = v
	}
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.SQLite.Path = getEnv("SQLITE_PATH", c.SQLite.Path)

	c.Notify.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", c.Notify.Telegram.BotToken)
	c.Notify.Telegram.ChatID = getEnv("TELEGRAM_CHAT_ID", c.Notify.Telegram.ChatID)
	if c.Notify.Telegram.BotToken != "" && c.Notify.Telegram.ChatID != "" {
		c.Notify.Telegram.Enabled = true
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Notify.Webhook.Enabled = true
		c.Notify.Webhook.URL = v
	}

	if v := os.Getenv("WATCHLIST"); v != "" {
		c.Watchlist = strings.Split(v, ",")
	}

	if v := os.Getenv("ALERT_COOLDOWN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Thresholds.CooldownSeconds = n
		}
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
