// Copyright 2024-2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2024-2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

var (
	configDir string // Directory for configuration files
	fifoDir   string // Directory for the ID file, MSA regions, and named pipes
	rlogDir   string // Directory for per-remote rolling log files
)

func init() {
	if os.Geteuid() == 0 {
		configDir = "/etc/afdmon"
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			panic(fmt.Sprintf("failed to get home directory: %v", err))
		}
		configDir = filepath.Join(homeDir, ".afdmon")
	}

	fifoDir = filepath.Join(configDir, "fifodir")
	rlogDir = filepath.Join(configDir, "rlog")

	if err := EnsureDirectories(); err != nil {
		panic(fmt.Sprintf("failed to ensure configuration directories: %v", err))
	}
}

// GetConfigDir returns the appropriate configuration directory.
// If running as root, it returns the system config directory.
// Otherwise, it returns the user config directory.
func GetConfigDir() string {
	return configDir
}

// GetFifoDir returns the directory holding msa.id, the status.<N>
// regions, mon_active, and the named pipes (§6.1).
func GetFifoDir() string {
	return fifoDir
}

// GetRlogDir returns the directory holding per-remote rolling log
// file trees (§6.1).
func GetRlogDir() string {
	return rlogDir
}

// EnsureDirectories creates necessary directories if they do not exist.
func EnsureDirectories() error {
	dirs := []string{configDir, fifoDir, rlogDir}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
