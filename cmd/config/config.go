/*
 * Copyright 2024-2025 Raamsri Kumar <raam@tinkershack.in>
 * Copyright 2024-2025 The StrataSTOR Authors and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stratastor/afdmon/config"
	"github.com/stratastor/afdmon/pkg/afdconfig"
	"github.com/stratastor/afdmon/pkg/errors"
	"github.com/stratastor/logger"
	"gopkg.in/yaml.v3"
)

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage afdmon configuration",
	}

	cmd.AddCommand(NewLoadConfigCmd())
	cmd.AddCommand(NewPrintConfigCmd())
	cmd.AddCommand(NewValidateDomainConfigCmd())
	return cmd
}

func NewLoadConfigCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load config using precedence rules
			_ = config.LoadConfig(configPath)
			loadedPath := config.GetLoadedConfigPath()

			if loadedPath == "" {
				// If no config was found, show where it was saved
				if err := config.SaveConfig(""); err != nil {
					return fmt.Errorf("failed to save default configuration: %v", err)
				}
				loadedPath = config.GetLoadedConfigPath()
				fmt.Printf("No configuration found. Default configuration saved to: %s\n", loadedPath)
			} else {
				fmt.Printf("Configuration loaded from: %s\n", loadedPath)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}

func NewPrintConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print the currently loaded configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetConfig()
			if cfg == nil {
				return fmt.Errorf("no configuration loaded")
			}

			// Convert the config to YAML format
			ymlData, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config to YAML: %v", err)
			}

			loadedPath := config.GetLoadedConfigPath()
			if loadedPath != "" {
				fmt.Printf("# Configuration loaded from: %s\n", loadedPath)
			} else {
				fmt.Println("# Using default configuration")
			}
			fmt.Printf("---\n%s", string(ymlData))
			return nil
		},
	}

	return cmd
}

// NewValidateDomainConfigCmd parses and validates AFD_MON_CONFIG (§4.C)
// without starting a supervisor, printing the resolved entries so an
// operator can check a file before deploying it.
func NewValidateDomainConfigCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an AFD_MON_CONFIG file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("opening %s: %w", path, err)
			}
			defer f.Close()

			l, err := logger.NewTag(logger.Config{LogLevel: "warn"}, "config-validate")
			if err != nil {
				return err
			}

			entries, err := afdconfig.Parse(bufio.NewReader(f), l)
			if err != nil {
				return err
			}
			if err := afdconfig.Validate(entries); err != nil {
				if code, ok := errors.GetCode(err); ok {
					return fmt.Errorf("invalid configuration (code %d): %w", code, err)
				}
				return err
			}

			fmt.Printf("%s: %d entries, all valid\n", path, len(entries))
			for _, e := range entries {
				if e.IsGroupHeader() {
					fmt.Printf("  %-12s (group header)\n", e.Alias)
					continue
				}
				fmt.Printf("  %-12s %s:%d / %s:%d  rcmd=%s\n", e.Alias, e.Host[0], e.Port[0], e.Host[1], e.Port[1], e.Rcmd)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "file", "f", "", "Path to AFD_MON_CONFIG")
	cmd.MarkFlagRequired("file")
	return cmd
}
