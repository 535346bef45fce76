// Copyright 2024-2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2024-2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/stratastor/afdmon/internal/constants"
	"github.com/stratastor/logger"
	"gopkg.in/yaml.v3"
)

var (
	instance    *Config
	once        sync.Once
	configPath  string // Tracks where the config was loaded from
	reloadHooks []func(*Config)
)

type Config struct {
	Supervisor struct {
		WorkDir       string `mapstructure:"workDir"`
		Daemonize     bool   `mapstructure:"daemonize"`
		RestartWindow string `mapstructure:"restartWindow"`
		MaxRestarts   int    `mapstructure:"maxRestarts"`
	} `mapstructure:"supervisor"`

	Logs struct {
		Path      string `mapstructure:"path"`
		Retention string `mapstructure:"retention"`
		Output    string `mapstructure:"output"` // stdout or file
	} `mapstructure:"logs"`

	Logger struct {
		LogLevel     string `mapstructure:"logLevel"`
		EnableSentry bool   `mapstructure:"enableSentry"`
		SentryDSN    string `mapstructure:"sentryDSN"`
	} `mapstructure:"logger"`

	Identity struct {
		LDAPEnabled bool   `mapstructure:"ldapEnabled"`
		LDAPURL     string `mapstructure:"ldapURL"`
		BaseDN      string `mapstructure:"baseDN"`
		BindDN      string `mapstructure:"bindDN"`
		BindPwd     string `mapstructure:"bindPwd"`
		GroupDN     string `mapstructure:"groupDN"`
	} `mapstructure:"identity"`

	Alerting struct {
		WebhookURL string `mapstructure:"webhookURL"`
		TimeoutS   int    `mapstructure:"timeoutS"`
	} `mapstructure:"alerting"`

	Environment string `mapstructure:"environment"`
}

// LoadConfig loads the configuration with precedence rules.
func LoadConfig(configFilePath string) *Config {
	once.Do(func() {
		logConfig := logger.Config{
			LogLevel:     "info",
			EnableSentry: false,
			SentryDSN:    "",
		}
		l, err := logger.NewTag(logConfig, "config")
		if err != nil {
			fmt.Printf("Failed to create logger: %v\n", err)
			os.Exit(1)
		}

		viper.Reset()
		viper.SetConfigType("yaml")

		systemConfigPath := filepath.Join(GetConfigDir(), constants.ConfigFileName)

		if configFilePath != "" {
			configPath = configFilePath
		} else if envPath := os.Getenv("AFDMON_CONFIG"); envPath != "" {
			configPath = envPath
		} else {
			configPath = systemConfigPath
		}

		l.Info("Using config file", "path", configPath)

		if absPath, err := filepath.Abs(configPath); err == nil {
			configPath = absPath
		}

		viper.SetConfigFile(configPath)

		viper.SetDefault("environment", "dev")
		viper.SetDefault("supervisor.workDir", "/var/lib/afdmon")
		viper.SetDefault("supervisor.daemonize", false)
		viper.SetDefault("supervisor.restartWindow", "10s")
		viper.SetDefault("supervisor.maxRestarts", 10)
		viper.SetDefault("logs.path", "/var/log/afdmon/afdmon.log")
		viper.SetDefault("logs.retention", "7d")
		viper.SetDefault("logs.output", "stdout")
		viper.SetDefault("logger.logLevel", "info")
		viper.SetDefault("logger.enableSentry", false)
		viper.SetDefault("logger.sentryDSN", "")
		viper.SetDefault("identity.ldapEnabled", false)
		viper.SetDefault("identity.ldapURL", "")
		viper.SetDefault("identity.baseDN", "")
		viper.SetDefault("identity.bindDN", "")
		viper.SetDefault("identity.bindPwd", "")
		viper.SetDefault("identity.groupDN", "")
		viper.SetDefault("alerting.webhookURL", "")
		viper.SetDefault("alerting.timeoutS", 10)

		viper.AutomaticEnv()
		viper.SetEnvPrefix("AFDMON")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

		err = viper.ReadInConfig()

		if err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				l.Info("Config file not found, creating default at system path", "path", systemConfigPath)

				if err := os.MkdirAll(GetConfigDir(), 0755); err != nil {
					l.Error("Failed to create config directory", "err", err)
				}

				var cfg Config
				if err := viper.Unmarshal(&cfg); err != nil {
					l.Error("Failed to unmarshal default configuration", "err", err)
				}

				instance = &cfg
				configPath = systemConfigPath

				if err := SaveConfig(systemConfigPath); err != nil {
					l.Error("Failed to save default configuration", "err", err)
				}
			} else {
				l.Error("Error reading config file", "err", err)

				var cfg Config
				if err := viper.Unmarshal(&cfg); err != nil {
					l.Error("Failed to unmarshal default configuration", "err", err)
				}
				instance = &cfg
			}
		} else {
			l.Info("Config file loaded successfully", "path", viper.ConfigFileUsed())
			configPath = viper.ConfigFileUsed()

			var cfg Config
			if err := viper.Unmarshal(&cfg); err != nil {
				l.Error("Failed to parse configuration", "err", err)
			} else {
				instance = &cfg
			}
		}

		// Hot-reload: re-unmarshal on file change and notify subscribers
		// (the supervisor's SIGHUP-equivalent path).
		viper.OnConfigChange(func(e fsnotify.Event) {
			l.Info("config file changed, reloading", "path", e.Name)
			var cfg Config
			if err := viper.Unmarshal(&cfg); err != nil {
				l.Error("failed to reload configuration", "err", err)
				return
			}
			instance = &cfg
			for _, hook := range reloadHooks {
				hook(instance)
			}
		})
		viper.WatchConfig()

		debugCfg := *instance
		debugCfg.Identity.BindPwd = "[REDACTED]"
		l.Debug("Loaded configuration", "config", fmt.Sprintf("%+v", debugCfg))
	})

	return instance
}

// OnReload registers a callback invoked whenever the app config file
// changes on disk. It does not fire for the domain AFD_MON_CONFIG file,
// which the supervisor reloads on SIGHUP instead (§4.E).
func OnReload(hook func(*Config)) {
	reloadHooks = append(reloadHooks, hook)
}

// SaveConfig persists the current configuration to a specified path.
func SaveConfig(path string) error {
	if path == "" {
		if os.Geteuid() == 0 {
			if err := os.MkdirAll(GetConfigDir(), 0755); err != nil {
				return fmt.Errorf("failed to create system config directory: %w", err)
			}
			path = filepath.Join(GetConfigDir(), constants.ConfigFileName)
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get home directory: %w", err)
			}
			userConfigDir := filepath.Join(home, ".afdmon")
			if err := os.MkdirAll(userConfigDir, 0755); err != nil {
				return fmt.Errorf("failed to create user config directory: %w", err)
			}
			path = filepath.Join(userConfigDir, constants.ConfigFileName)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configYAML, err := yaml.Marshal(instance)
	if err != nil {
		return fmt.Errorf("failed to serialize configuration: %w", err)
	}

	if err := os.WriteFile(path, configYAML, 0644); err != nil {
		return fmt.Errorf("failed to write configuration to file: %w", err)
	}

	configPath = path
	return nil
}

// GetLoadedConfigPath returns the path of the currently loaded configuration file.
func GetLoadedConfigPath() string {
	return configPath
}

// GetConfig returns the current configuration instance.
func GetConfig() *Config {
	if instance == nil {
		return LoadConfig("")
	}
	return instance
}

func NewLoggerConfig(cfg *Config) logger.Config {
	if cfg == nil {
		return logger.Config{
			LogLevel:     "info",
			EnableSentry: false,
			SentryDSN:    "",
		}
	}

	return logger.Config{
		LogLevel:     cfg.Logger.LogLevel,
		EnableSentry: cfg.Logger.EnableSentry,
		SentryDSN:    cfg.Logger.SentryDSN,
	}
}
