// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"time"

	"firestige.xyz/spindle/internal/core"
	"firestige.xyz/spindle/internal/log"
)

// Config is the top-level static configuration. Everything here is written
// before the pipeline starts and treated as immutable thereafter.
type Config struct {
	// QUICPort marks a UDP flow as QUIC when either endpoint uses it.
	QUICPort uint16 `mapstructure:"quic_port"`

	// Tick is the timer wheel granularity.
	Tick time.Duration `mapstructure:"tick"`

	// TimeoutTicks is the idle session timeout, in ticks.
	TimeoutTicks int `mapstructure:"timeout_ticks"`

	// WheelSize is the slot count of the timer wheel. Must exceed
	// TimeoutTicks by at least 2.
	WheelSize int `mapstructure:"wheel_size"`

	// MaxSessions sizes the pre-allocated session pool. Exhaustion skips
	// new flows; live sessions are never evicted.
	MaxSessions int `mapstructure:"max_sessions"`

	// BackendsFile is the path of the port-to-backend map.
	BackendsFile string `mapstructure:"backends_file"`

	// TraceAll arms trace emission for every buffer.
	TraceAll bool `mapstructure:"trace_all"`

	Source  SourceConfig  `mapstructure:"source"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     log.Config    `mapstructure:"log"`
}

// SourceConfig selects and parameterizes the packet source. Options are
// decoded by the source factory.
type SourceConfig struct {
	Type    string                 `mapstructure:"type"`
	Options map[string]interface{} `mapstructure:"options"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Validate checks invariants the engine relies on.
func (c *Config) Validate() error {
	if c.Tick <= 0 {
		return fmt.Errorf("%w: tick must be positive", core.ErrConfigInvalid)
	}
	if c.TimeoutTicks <= 0 {
		return fmt.Errorf("%w: timeout_ticks must be positive", core.ErrConfigInvalid)
	}
	if c.WheelSize <= c.TimeoutTicks+1 {
		return fmt.Errorf("%w: wheel_size %d must exceed timeout_ticks %d by at least 2",
			core.ErrConfigInvalid, c.WheelSize, c.TimeoutTicks)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("%w: max_sessions must be positive", core.ErrConfigInvalid)
	}
	if c.BackendsFile == "" {
		return fmt.Errorf("%w: backends_file is required", core.ErrConfigInvalid)
	}
	if c.Source.Type == "" {
		return fmt.Errorf("%w: source.type is required", core.ErrConfigInvalid)
	}
	return nil
}
