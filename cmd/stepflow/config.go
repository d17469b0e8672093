package main

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all stepflow CLI configuration.
// Priority: env vars (STEPFLOW_*) > config file > defaults.
type Config struct {
	DBPath       string `mapstructure:"db_path"`
	WorkflowsDir string `mapstructure:"workflows_dir"`
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"` // "text" or "json"
	PoolSize     int    `mapstructure:"pool_size"`
}

// LoadConfig reads configuration from an optional config file and the
// environment. A missing config file is not an error; defaults apply.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("db_path", filepath.Join(".", "stepflow.db"))
	v.SetDefault("workflows_dir", filepath.Join(".", "workflows"))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("pool_size", 10)

	v.SetEnvPrefix("STEPFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName("stepflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
