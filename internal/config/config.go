// Package config loads the operator-facing YAML configuration (spec §6
// "Operator surface"): per-dialect listen addresses, the home server
// address sessions are redirected back to, the license store path, and the
// feature toggles/overrides the handler table consults by contract.
//
// Grounded on EchoTools-evr-proxy's config-loading shape (a single struct
// decoded once at startup via yaml.v3, validated, then handed out
// read-only).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DialectListener is one dialect's listen address plus whether accepted
// connections should be treated as behind a PROXY-protocol-aware load
// balancer (spec §6 "Wire").
type DialectListener struct {
	Dialect    string `yaml:"dialect"`
	ListenAddr string `yaml:"listen_addr"`
	ProxyProto bool   `yaml:"proxy_protocol"`
}

// Toggles mirrors the operator surface spec §6 names by contract.
type Toggles struct {
	SaveFiles           bool    `yaml:"save_files"`
	EnableChatFilter    bool    `yaml:"enable_chat_filter"`
	InfiniteHP          bool    `yaml:"infinite_hp"`
	InfiniteTP          bool    `yaml:"infinite_tp"`
	SwitchAssist        bool    `yaml:"switch_assist"`
	OverrideSectionID   *uint8  `yaml:"override_section_id"`
	OverrideLobbyEvent  *uint8  `yaml:"override_lobby_event"`
	OverrideLobbyNumber *uint8  `yaml:"override_lobby_number"`
	OverrideRandomSeed  *uint32 `yaml:"override_random_seed"`
}

// Config is the full operator configuration file.
type Config struct {
	Listeners []DialectListener `yaml:"listeners"`
	// HomeServerAddr is resolved at startup and handed to the listener's
	// SessionFactory. The A0/A1 retarget-response handler does not read it:
	// it redirects the client to the session's next destination (virtual
	// client) or the client socket's local address.
	HomeServerAddr string `yaml:"home_server_addr"`
	// LicenseFile is a newline-delimited credential file; see
	// internal/license/load.go.
	LicenseFile string `yaml:"license_file"`
	// CaptureDir is where the optional file-capture sink writes blobs
	// (spec §4.E "File capture"); empty disables capture entirely.
	CaptureDir string `yaml:"capture_dir"`
	// BBMasterKeyFiles are candidate BB master keys, each a raw binary
	// file, trial-decrypted by the detector (spec §4.B).
	BBMasterKeyFiles []string `yaml:"bb_master_key_files"`
	Debug            bool     `yaml:"debug"`
	Toggles          Toggles  `yaml:"toggles"`
}

// Load reads and validates the YAML configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Listeners) == 0 {
		return fmt.Errorf("config: at least one listener is required")
	}
	seen := make(map[string]bool)
	for _, l := range c.Listeners {
		if l.ListenAddr == "" {
			return fmt.Errorf("config: listener for dialect %q has no listen_addr", l.Dialect)
		}
		if seen[l.Dialect] {
			return fmt.Errorf("config: duplicate listener for dialect %q", l.Dialect)
		}
		seen[l.Dialect] = true
	}
	if c.HomeServerAddr == "" {
		return fmt.Errorf("config: home_server_addr is required")
	}
	return nil
}

// LoadBBMasterKeys reads each configured candidate key file in full.
func (c *Config) LoadBBMasterKeys() ([][]byte, error) {
	keys := make([][]byte, 0, len(c.BBMasterKeyFiles))
	for _, path := range c.BBMasterKeyFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read bb master key %s: %w", path, err)
		}
		keys = append(keys, data)
	}
	return keys, nil
}
