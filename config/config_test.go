package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mmconsole/internal/domain"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	payload := []byte(`mode: live
api_url: https://metrics.example.com
stream_url: wss://metrics.example.com/ws
symbols:
  - BTCUSDT
  - ETHUSDT
`)
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	cfg, err := LoadFile(path, "tkn")
	require.NoError(t, err)

	require.Equal(t, domain.ModeLive, cfg.Mode)
	require.Equal(t, "https://metrics.example.com", cfg.APIURL)
	require.Equal(t, "wss://metrics.example.com/ws", cfg.StreamURL)
	require.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Symbols)
	require.Equal(t, "tkn", cfg.Token)
}

func TestLoadFileRejectsUnknownMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	payload := []byte(`mode: paper
api_url: http://localhost:8080
stream_url: ws://localhost:8080/ws
`)
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	_, err := LoadFile(path, "tkn")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid mode")
}

func TestSplitSymbols(t *testing.T) {
	require.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, splitSymbols(" BTCUSDT, ETHUSDT ,"))
	require.Empty(t, splitSymbols(" , "))
}
