package config

import (
	"os"
	"path/filepath"
)

// ResolveHome returns the HOOKRELAY_HOME directory.
// Priority: HOOKRELAY_HOME env > ~/.hookrelay/
func ResolveHome() string {
	if home := os.Getenv("HOOKRELAY_HOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".hookrelay"
	}
	return filepath.Join(userHome, ".hookrelay")
}

// ResolveConfigPath finds the config file.
// Priority: --config flag > HOOKRELAY_HOME/config.yaml
func ResolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return filepath.Join(ResolveHome(), "config.yaml")
}
