// Package source implements packet sources feeding the pipeline.
package source

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/spindle/internal/config"
	"firestige.xyz/spindle/internal/core"
)

// Source delivers IPv4-first packet bytes. ReadPacket returns (nil, nil) on
// a poll timeout so the caller can flush partial frames, and io.EOF when a
// finite source is drained. The returned slice belongs to the caller and
// stays valid across later ReadPacket calls; the engine batches several
// packets before processing them.
type Source interface {
	ReadPacket() ([]byte, error)
	Close() error
}

// Builder constructs a source from decoded options.
type Builder func(options map[string]interface{}) (Source, error)

var registry = map[string]Builder{}

// Register installs a builder under a source type name. Called from package
// init functions.
func Register(name string, b Builder) {
	registry[name] = b
}

// New builds the source selected by cfg.
func New(cfg config.SourceConfig) (Source, error) {
	b, ok := registry[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSourceNotFound, cfg.Type)
	}
	return b(cfg.Options)
}

// DecodeOptions decodes the free-form options map into a typed config.
func DecodeOptions(options map[string]interface{}, out interface{}) error {
	if err := mapstructure.Decode(options, out); err != nil {
		return fmt.Errorf("failed to decode source options: %w", err)
	}
	return nil
}
