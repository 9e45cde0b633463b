package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/james-see/bbs1ctl/pkg/device"
	"github.com/james-see/bbs1ctl/pkg/tempo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bbs1ctl.yaml")
	data := []byte("timeout: 500ms\nlog_level: debug\nsimulate: true\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Simulate)
	assert.Equal(t, Default().PortPattern, cfg.PortPattern)
	assert.Equal(t, "8080", cfg.ServerPort)
}

func TestParseAllFields(t *testing.T) {
	cfg, err := Parse([]byte(`
port_pattern: "BBS.*"
timeout: 3s
log_level: warn
development: true
server_port: "9090"
strict_page_order: true
`))
	require.NoError(t, err)
	assert.Equal(t, Config{
		PortPattern: "BBS.*",
		Timeout:     3 * time.Second,
		LogLevel:    "warn",
		Development: true,
		ServerPort:  "9090",
		PageOrder:   true,
	}, cfg)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("timeout: [1, 2"))
	assert.Error(t, err)

	_, err = Parse([]byte("timeout: soon"))
	assert.Error(t, err)
}

func TestSimulatedOpener(t *testing.T) {
	cfg := Default()
	cfg.Simulate = true

	tr, err := cfg.Opener(zap.NewNop())()
	require.NoError(t, err)
	s := device.NewSession(tr, cfg.SessionOptions(zap.NewNop())...)
	defer s.Close()

	f, _, err := s.FetchTempoMaps(context.Background())
	require.NoError(t, err)
	assert.True(t, device.DemoFile().Equal(f))
}

func TestDecodeOptionsPageOrder(t *testing.T) {
	pages := [][]byte{
		{0x00, 0x01, 0x00, 0x00, 0x00, 0x42},
		{0x7F, 0x7F, 0x00, 0x00, 0x42, 0x53, 0x02, 0x00, 0x0A, 0x00, 0x00, 0x00},
	}

	cfg := Default()
	_, err := tempo.DecodePages(pages, cfg.DecodeOptions(zap.NewNop())...)
	require.NoError(t, err)

	cfg.PageOrder = true
	_, err = tempo.DecodePages(pages, cfg.DecodeOptions(zap.NewNop())...)
	assert.ErrorIs(t, err, tempo.ErrPageOrder)
}
