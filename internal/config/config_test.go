package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadParsesListenersAndToggles(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "config.yaml", `
listeners:
  - dialect: pc
    listen_addr: 127.0.0.1:9100
  - dialect: gc
    listen_addr: 127.0.0.1:9200
    proxy_protocol: true
home_server_addr: 127.0.0.1:9000
toggles:
  save_files: true
  infinite_hp: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Listeners, 2)
	require.Equal(t, "127.0.0.1:9000", cfg.HomeServerAddr)
	require.True(t, cfg.Toggles.SaveFiles)
	require.True(t, cfg.Toggles.InfiniteHP)
	require.False(t, cfg.Toggles.SwitchAssist)
	require.True(t, cfg.Listeners[1].ProxyProto)
}

func TestLoadRejectsMissingListeners(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "config.yaml", `home_server_addr: 127.0.0.1:9000`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsDuplicateDialectListener(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "config.yaml", `
listeners:
  - dialect: pc
    listen_addr: 127.0.0.1:9100
  - dialect: pc
    listen_addr: 127.0.0.1:9101
home_server_addr: 127.0.0.1:9000
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingHomeServerAddr(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "config.yaml", `
listeners:
  - dialect: pc
    listen_addr: 127.0.0.1:9100
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadBBMasterKeysReadsEachFileInFull(t *testing.T) {
	dir := t.TempDir()
	k1 := writeTempFile(t, dir, "key1.bin", "abc")
	k2 := writeTempFile(t, dir, "key2.bin", "defgh")

	cfg := &Config{BBMasterKeyFiles: []string{k1, k2}}
	keys, err := cfg.LoadBBMasterKeys()
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("abc"), []byte("defgh")}, keys)
}
