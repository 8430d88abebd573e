package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const defaultServer = "http://localhost:8080"

// Profile is the on-disk client configuration.
type Profile struct {
	Server string `toml:"server"`
	APIKey string `toml:"api_key"`
}

// defaultProfilePath returns ~/.config/errcachectl.toml.
func defaultProfilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "errcachectl.toml"), nil
}

// loadProfile reads path. A missing file yields the defaults.
func loadProfile(path string) (Profile, error) {
	p := Profile{Server: defaultServer}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("failed to read profile: %w", err)
	}

	if err := toml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if p.Server == "" {
		p.Server = defaultServer
	}
	return p, nil
}
