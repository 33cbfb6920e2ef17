package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Listen string `mapstructure:"listen"`

	Chat struct {
		QueueSize   int `mapstructure:"queue_size"`
		EventBuffer int `mapstructure:"event_buffer"`
	} `mapstructure:"chat"`

	Feed struct {
		QueueSize              int           `mapstructure:"queue_size"`
		MaxDurationSeconds     int           `mapstructure:"max_duration_seconds"`
		DefaultDurationSeconds int           `mapstructure:"default_duration_seconds"`
		MaxDuration            time.Duration `mapstructure:"-"`
		DefaultDuration        time.Duration `mapstructure:"-"`
	} `mapstructure:"feed"`

	Catalog struct {
		DefaultPageSize int `mapstructure:"default_page_size"`
		MaxPageSize     int `mapstructure:"max_page_size"`
	} `mapstructure:"catalog"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("listen", "127.0.0.1:8080")
	v.SetDefault("chat.queue_size", 32)
	v.SetDefault("chat.event_buffer", 128)
	v.SetDefault("feed.queue_size", 16)
	v.SetDefault("feed.max_duration_seconds", 3600)
	v.SetDefault("feed.default_duration_seconds", 60)
	v.SetDefault("catalog.default_page_size", 10)
	v.SetDefault("catalog.max_page_size", 100)

	// Env overrides
	v.SetEnvPrefix("BOOKSTORE")
	v.AutomaticEnv()
	_ = v.BindEnv("listen", "BOOKSTORE_LISTEN")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if c.Chat.QueueSize < 1 || c.Feed.QueueSize < 1 {
		return nil, fmt.Errorf("queue sizes must be positive")
	}
	if c.Feed.MaxDurationSeconds < 1 {
		return nil, fmt.Errorf("feed.max_duration_seconds must be positive")
	}

	c.Feed.MaxDuration = time.Duration(c.Feed.MaxDurationSeconds) * time.Second
	c.Feed.DefaultDuration = time.Duration(c.Feed.DefaultDurationSeconds) * time.Second
	return &c, nil
}
