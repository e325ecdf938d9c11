package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/spindle/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
backends_file: /etc/spindle/backends.yml
source:
  type: file
  options:
    path: /tmp/sample.pcap
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint16(4433), cfg.QUICPort)
	assert.Equal(t, 100*time.Millisecond, cfg.Tick)
	assert.Equal(t, 300, cfg.TimeoutTicks)
	assert.Equal(t, 512, cfg.WheelSize)
	assert.Equal(t, 65536, cfg.MaxSessions)
	assert.Equal(t, "file", cfg.Source.Type)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
quic_port: 8443
tick: 50ms
timeout_ticks: 100
wheel_size: 256
max_sessions: 1024
backends_file: /etc/spindle/backends.yml
trace_all: true
source:
  type: afpacket
  options:
    device: eth1
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint16(8443), cfg.QUICPort)
	assert.Equal(t, 50*time.Millisecond, cfg.Tick)
	assert.Equal(t, 100, cfg.TimeoutTicks)
	assert.Equal(t, 256, cfg.WheelSize)
	assert.Equal(t, 1024, cfg.MaxSessions)
	assert.True(t, cfg.TraceAll)
	assert.Equal(t, "eth1", cfg.Source.Options["device"])
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidateRejectsTightWheel(t *testing.T) {
	path := writeConfig(t, `
backends_file: /etc/spindle/backends.yml
timeout_ticks: 600
wheel_size: 512
source:
  type: afpacket
`)
	_, err := Load(path)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestValidateRequiresBackendsFile(t *testing.T) {
	path := writeConfig(t, `
source:
  type: afpacket
`)
	_, err := Load(path)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}
