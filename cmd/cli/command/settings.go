package command

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/config"

	"github.com/spf13/viper"
)

// defaultConfigPath returns $HOME/.smsnotify/config.yaml
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".smsnotify", "config.yaml")
}

// loadSettings layers the optional YAML file over the environment defaults.
// A missing file is not an error.
func loadSettings(path string) (*config.SyncConfig, error) {
	base, err := config.LoadSyncConfig()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to the environment values.
	v.SetDefault("api_url", base.APIURL)
	v.SetDefault("ws_url", base.WSURL)
	v.SetDefault("page_size", base.PageSize)
	v.SetDefault("reconnect_attempts", base.ReconnectAttempts)
	v.SetDefault("reconnect_delay", base.ReconnectDelay)
	v.SetDefault("handshake_timeout", base.HandshakeTimeout)
	v.SetDefault("poll_interval", base.PollInterval)
	v.SetDefault("request_timeout", base.RequestTimeout)
	v.SetDefault("rate_limit", base.RateLimit)
	v.SetDefault("rate_burst", base.RateBurst)
	v.SetDefault("log_level", base.LogLevel)
	v.SetDefault("log_format", base.LogFormat)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &config.SyncConfig{
		APIURL:            v.GetString("api_url"),
		WSURL:             v.GetString("ws_url"),
		PageSize:          v.GetInt("page_size"),
		ReconnectAttempts: v.GetInt("reconnect_attempts"),
		ReconnectDelay:    v.GetDuration("reconnect_delay"),
		HandshakeTimeout:  v.GetDuration("handshake_timeout"),
		PollInterval:      v.GetDuration("poll_interval"),
		RequestTimeout:    v.GetDuration("request_timeout"),
		RateLimit:         v.GetFloat64("rate_limit"),
		RateBurst:         v.GetInt("rate_burst"),
		LogLevel:          v.GetString("log_level"),
		LogFormat:         v.GetString("log_format"),
	}
	return cfg, nil
}
