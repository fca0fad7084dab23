// Package config provides configuration management for arcset.
//
// Configuration is loaded in order of precedence (highest to lowest):
// 1. Command line flags
// 2. Environment variables (ARCSET_CHANNEL_NAME, ...)
// 3. Configuration file
// 4. Default values
//
// The supervisor and every generator must agree on the channel section; the
// generator takes capacity and slot capacity from the segment header and only
// uses name and dir to locate it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bebsworthy/arcset/internal/protocol"
)

// Config represents the complete arcset configuration
type Config struct {
	Channel    ChannelConfig    `mapstructure:"channel" yaml:"channel"`
	Supervisor SupervisorConfig `mapstructure:"supervisor" yaml:"supervisor"`
	Generator  GeneratorConfig  `mapstructure:"generator" yaml:"generator"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// ChannelConfig names and sizes the shared channel
type ChannelConfig struct {
	Name                string        `mapstructure:"name" yaml:"name"`
	Dir                 string        `mapstructure:"dir" yaml:"dir"`
	Capacity            int           `mapstructure:"capacity" yaml:"capacity"`
	SlotCapacity        int           `mapstructure:"slot_capacity" yaml:"slot_capacity"`
	WaitInitialInterval time.Duration `mapstructure:"wait_initial_interval" yaml:"wait_initial_interval"`
	WaitMaxInterval     time.Duration `mapstructure:"wait_max_interval" yaml:"wait_max_interval"`
}

// SupervisorConfig contains aggregator options
type SupervisorConfig struct {
	History int `mapstructure:"history" yaml:"history"`
}

// GeneratorConfig contains worker options
type GeneratorConfig struct {
	PrintCandidates bool    `mapstructure:"print_candidates" yaml:"print_candidates"`
	PrintRate       float64 `mapstructure:"print_rate" yaml:"print_rate"`
	Seed            uint64  `mapstructure:"seed" yaml:"seed"`
	Verify          bool    `mapstructure:"verify" yaml:"verify"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	OutputFile string `mapstructure:"output_file" yaml:"output_file"`
	Verbose    bool   `mapstructure:"verbose" yaml:"verbose"`
}

// MetricsConfig controls the optional Prometheus listener
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Channel: ChannelConfig{
			Name:                "arcset",
			Dir:                 "/dev/shm",
			Capacity:            protocol.DefaultChannelCapacity,
			SlotCapacity:        protocol.DefaultSlotCapacity,
			WaitInitialInterval: time.Millisecond,
			WaitMaxInterval:     100 * time.Millisecond,
		},
		Supervisor: SupervisorConfig{
			History: 16,
		},
		Generator: GeneratorConfig{
			PrintCandidates: true,
			PrintRate:       0,
			Seed:            0,
			Verify:          false,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			OutputFile: "",
			Verbose:    false,
		},
		Metrics: MetricsConfig{
			ListenAddr: "",
		},
	}
}

// LoadConfig loads configuration from various sources
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ARCSET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.arcset")
		v.AddConfigPath("/etc/arcset")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if configFile != "" {
				return nil, fmt.Errorf("config file not found: %s", configFile)
			}
		} else if os.IsNotExist(err) && configFile != "" {
			return nil, fmt.Errorf("config file not found: %s", configFile)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	// Channel defaults
	v.SetDefault("channel.name", defaults.Channel.Name)
	v.SetDefault("channel.dir", defaults.Channel.Dir)
	v.SetDefault("channel.capacity", defaults.Channel.Capacity)
	v.SetDefault("channel.slot_capacity", defaults.Channel.SlotCapacity)
	v.SetDefault("channel.wait_initial_interval", defaults.Channel.WaitInitialInterval)
	v.SetDefault("channel.wait_max_interval", defaults.Channel.WaitMaxInterval)

	// Supervisor defaults
	v.SetDefault("supervisor.history", defaults.Supervisor.History)

	// Generator defaults
	v.SetDefault("generator.print_candidates", defaults.Generator.PrintCandidates)
	v.SetDefault("generator.print_rate", defaults.Generator.PrintRate)
	v.SetDefault("generator.seed", defaults.Generator.Seed)
	v.SetDefault("generator.verify", defaults.Generator.Verify)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.output_file", defaults.Logging.OutputFile)
	v.SetDefault("logging.verbose", defaults.Logging.Verbose)

	// Metrics defaults
	v.SetDefault("metrics.listen_addr", defaults.Metrics.ListenAddr)
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Channel.Name == "" {
		return fmt.Errorf("channel.name cannot be empty")
	}

	if strings.ContainsRune(config.Channel.Name, '/') {
		return fmt.Errorf("channel.name must not contain '/', got %s", config.Channel.Name)
	}

	if config.Channel.Capacity < 1 || config.Channel.Capacity > 1<<16 {
		return fmt.Errorf("channel.capacity must be between 1 and 65536, got %d", config.Channel.Capacity)
	}

	if config.Channel.SlotCapacity < 1 || config.Channel.SlotCapacity > 1<<20 {
		return fmt.Errorf("channel.slot_capacity must be between 1 and 1048576, got %d", config.Channel.SlotCapacity)
	}

	if config.Channel.WaitInitialInterval <= 0 {
		return fmt.Errorf("channel.wait_initial_interval must be positive, got %v", config.Channel.WaitInitialInterval)
	}

	if config.Channel.WaitMaxInterval < config.Channel.WaitInitialInterval {
		return fmt.Errorf("channel.wait_max_interval must be at least channel.wait_initial_interval, got %v", config.Channel.WaitMaxInterval)
	}

	if config.Supervisor.History < 0 {
		return fmt.Errorf("supervisor.history must be non-negative, got %d", config.Supervisor.History)
	}

	if config.Generator.PrintRate < 0 {
		return fmt.Errorf("generator.print_rate must be non-negative, got %v", config.Generator.PrintRate)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[config.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got %s", config.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[config.Logging.Format] {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %s", config.Logging.Format)
	}

	return nil
}

// GetConfigPaths returns the paths where config files are searched
func GetConfigPaths() []string {
	paths := []string{
		"./config.yaml",
		"./config.yml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".arcset", "config.yaml"),
			filepath.Join(home, ".arcset", "config.yml"),
		)
	}

	paths = append(paths,
		"/etc/arcset/config.yaml",
		"/etc/arcset/config.yml",
	)

	return paths
}

// GetEnvVarName returns the environment variable name for a config key
func GetEnvVarName(key string) string {
	return "ARCSET_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
