package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults mirror the original deployment: 100 ms tick, 300-tick (~30 s)
// idle timeout.
const (
	defaultQUICPort     = 4433
	defaultTick         = 100 * time.Millisecond
	defaultTimeoutTicks = 300
	defaultWheelSize    = 512
	defaultMaxSessions  = 65536
)

// Load reads the YAML config at path, applying defaults and SPINDLE_*
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("SPINDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("quic_port", defaultQUICPort)
	v.SetDefault("tick", defaultTick)
	v.SetDefault("timeout_ticks", defaultTimeoutTicks)
	v.SetDefault("wheel_size", defaultWheelSize)
	v.SetDefault("max_sessions", defaultMaxSessions)
	v.SetDefault("source.type", "afpacket")
	v.SetDefault("metrics.listen", ":9469")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
