package config

import (
	"errors"
	"os"

	"github.com/BurntSushi/toml"
)

// Defaults applied when neither the config file nor the environment sets a value.
const (
	DefaultListenAddr = "127.0.0.1:8377"
	DefaultChannel    = "whatsapp"
)

// Config holds the connection parameters for the remote message store and
// the local tool API.
type Config struct {
	SupabaseURL string `toml:"supabase_url"`
	SupabaseKey string `toml:"supabase_key"`
	ListenAddr  string `toml:"listen_addr"`
	Channel     string `toml:"channel"`
}

// Load reads config from the given toml file (optional; an empty path or a
// missing file is fine), applies environment overrides, and validates the
// result. SUPABASE_URL and SUPABASE_KEY must come from one of the two sources.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ListenAddr: DefaultListenAddr,
		Channel:    DefaultChannel,
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.SupabaseURL = v
	}
	if v := os.Getenv("SUPABASE_KEY"); v != "" {
		cfg.SupabaseKey = v
	}
	if v := os.Getenv("WAMCP_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("WAMCP_CHANNEL"); v != "" {
		cfg.Channel = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the required remote store parameters are set.
func (c *Config) Validate() error {
	if c.SupabaseURL == "" || c.SupabaseKey == "" {
		return errors.New("SUPABASE_URL and SUPABASE_KEY are required (env or config file)")
	}
	return nil
}
