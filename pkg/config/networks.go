package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NetworkEntry describes one predefined online network in the networks
// file.
type NetworkEntry struct {
	// StatusURL is the network's status file URL
	StatusURL string `yaml:"status_url"`

	// Format is the whazzup format: "vatsim" or "ivao"
	Format string `yaml:"format"`

	// ReloadSeconds overrides the poll interval; -1 means not set, in
	// which case the reload advice from the whazzup file is used
	ReloadSeconds int `yaml:"reload_seconds"`
}

// Networks is the parsed networks file.
type Networks struct {
	Networks map[string]NetworkEntry `yaml:"networks"`
}

// DefaultNetworks returns the built-in network definitions used when no
// networks file is configured.
func DefaultNetworks() *Networks {
	return &Networks{
		Networks: map[string]NetworkEntry{
			"vatsim": {
				StatusURL:     "https://status.vatsim.net/status.txt",
				Format:        "vatsim",
				ReloadSeconds: -1,
			},
			"ivao": {
				StatusURL:     "https://www.ivao.aero/whazzup/status.txt",
				Format:        "ivao",
				ReloadSeconds: -1,
			},
		},
	}
}

// LoadNetworks reads the YAML networks file. An empty path returns the
// built-in defaults; entries without a reload override get -1.
func LoadNetworks(path string) (*Networks, error) {
	if path == "" {
		return DefaultNetworks(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read networks file: %w", err)
	}

	// Unset reload overrides must come out as -1, not 0, so the decoder
	// works on a map of raw entries with the sentinel prefilled.
	var raw struct {
		Networks map[string]yaml.Node `yaml:"networks"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse networks file: %w", err)
	}

	nets := &Networks{Networks: make(map[string]NetworkEntry, len(raw.Networks))}
	for name, node := range raw.Networks {
		entry := NetworkEntry{ReloadSeconds: -1}
		if err := node.Decode(&entry); err != nil {
			return nil, fmt.Errorf("failed to parse network %q: %w", name, err)
		}
		nets.Networks[name] = entry
	}
	return nets, nil
}

// Get returns the entry for a network name.
func (n *Networks) Get(name string) (NetworkEntry, bool) {
	entry, ok := n.Networks[name]
	return entry, ok
}
