package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "HUDDLE"

type RateLimit struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type Config struct {
	Mode              string        `mapstructure:"mode"`
	Port              int           `mapstructure:"port"`
	StaticPath        string        `mapstructure:"static_path"`
	ReadLimit         int64         `mapstructure:"read_limit"`
	PingPeriod        time.Duration `mapstructure:"ping_period"`
	Secret            string        `mapstructure:"secret"`
	LogLevel          string        `mapstructure:"log_level"`
	DBPath            string        `mapstructure:"db_path"`
	MembershipTimeout time.Duration `mapstructure:"membership_timeout"`
	StoreTimeout      time.Duration `mapstructure:"store_timeout"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	MaxMessageLen     int           `mapstructure:"max_message_len"`
	Backpressure      string        `mapstructure:"backpressure"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	MessageRate       RateLimit     `mapstructure:"message_rate"`
	TypingRate        RateLimit     `mapstructure:"typing_rate"`

	v *viper.Viper
}

func Load() (*Config, error) {
	v := newViper("config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("db_path", "./data/huddle.db")
	v.SetDefault("membership_timeout", "3s")
	v.SetDefault("store_timeout", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("max_message_len", 4000)
	v.SetDefault("backpressure", "kick")
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("message_rate.limit", 20)
	v.SetDefault("message_rate.interval", "10s")
	v.SetDefault("typing_rate.limit", 50)
	v.SetDefault("typing_rate.interval", "10s")

	fromFile := readFile(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if fromFile {
		cfg.v = v
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("db", cfg.DBPath).Msg("config loaded")
	return &cfg, nil
}

// OnChange re-reads the config file whenever it changes on disk. It does
// nothing when the config came from defaults and environment only.
func (c *Config) OnChange(fn func(*Config)) {
	if c.v == nil {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		var next Config
		if err := c.v.Unmarshal(&next); err != nil {
			log.Error().Err(err).Str("module", "config").Str("file", e.Name).Msg("reload failed")
			return
		}
		next.v = c.v
		log.Info().Str("module", "config").Str("file", e.Name).Msg("config reloaded")
		fn(&next)
	})
	c.v.WatchConfig()
}

func newViper(prefix string) *viper.Viper {
	if err := godotenv.Load(); err == nil {
		log.Info().Str("module", "config").Msg("loaded .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	v.SetConfigFile(fmt.Sprintf("config/%s.%s.yaml", prefix, env))

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func readFile(v *viper.Viper) bool {
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("config file not found, using defaults")
		return false
	}
	log.Info().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("loaded config file")
	return true
}
