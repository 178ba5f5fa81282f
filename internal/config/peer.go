package config

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// PeerConfig configures the headless call participant.
type PeerConfig struct {
	ServerURL      string   `mapstructure:"server_url"`
	UserID         string   `mapstructure:"user_id"`
	Name           string   `mapstructure:"name"`
	Email          string   `mapstructure:"email"`
	College        string   `mapstructure:"college"`
	GroupID        string   `mapstructure:"group_id"`
	GroupName      string   `mapstructure:"group_name"`
	CallType       string   `mapstructure:"call_type"`
	StartCall      bool     `mapstructure:"start_call"`
	ICEServers     []string `mapstructure:"ice_servers"`
	OfferCacheSize int      `mapstructure:"offer_cache_size"`
	LogLevel       string   `mapstructure:"log_level"`
}

func LoadPeer() (*PeerConfig, error) {
	v := newViper("peer")

	v.SetDefault("server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("name", "peer")
	v.SetDefault("call_type", "audio")
	v.SetDefault("start_call", false)
	v.SetDefault("group_name", "")
	v.SetDefault("ice_servers", []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
		"stun:stun2.l.google.com:19302",
	})
	v.SetDefault("offer_cache_size", 512)
	v.SetDefault("log_level", "info")
	v.SetDefault("user_id", "")
	v.SetDefault("email", "")
	v.SetDefault("college", "")
	v.SetDefault("group_id", "")

	readFile(v)

	var cfg PeerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse peer config: %w", err)
	}
	if cfg.UserID == "" || cfg.GroupID == "" {
		return nil, fmt.Errorf("peer config: user_id and group_id are required")
	}
	log.Info().Str("module", "config").Str("server", cfg.ServerURL).Str("user", cfg.UserID).Str("group", cfg.GroupID).Msg("peer config loaded")
	return &cfg, nil
}
